package audit

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// GenesisHash chains the first decision recorded in a fresh log.
const GenesisHash = "blake3:0000000000000000000000000000000000000000000000000000000000000000"

// TimestampFormat is the layout of Entry.Timestamp.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Recorder receives denial, bypass and kill-switch records from the
// gate. *Log implements it.
type Recorder interface {
	Record(entry Entry) error
}

// Log appends boundary decisions as JSON lines. Every line carries the
// BLAKE3 hash of the line before it, so removing or editing a decision
// breaks Verify.
type Log struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	prevHash string
	entries  int
}

// Open opens path for appending, creating it and its directory. An
// existing log continues its chain from the last line. A log whose last
// line is not a complete entry is refused rather than extended.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	prevHash, entries, err := chainTail(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	return &Log{path: path, file: file, prevHash: prevHash, entries: entries}, nil
}

// chainTail returns the hash to chain the next entry to and the
// number of entries already in the log.
func chainTail(path string) (string, int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return GenesisHash, 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("audit: read existing log: %w", err)
	}
	defer f.Close()

	var last []byte
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		last = append(last[:0], line...)
		n++
	}
	if err := sc.Err(); err != nil {
		return "", 0, fmt.Errorf("audit: scan existing log: %w", err)
	}
	if n == 0 {
		return GenesisHash, 0, nil
	}
	var tail Entry
	if err := json.Unmarshal(last, &tail); err != nil {
		return "", 0, fmt.Errorf("audit: %s ends with a partial entry: %w", path, err)
	}
	return HashLine(last), n, nil
}

// Path returns the file backing the log.
func (l *Log) Path() string {
	return l.path
}

// Entries returns how many decisions the log holds, including those
// written before it was opened.
func (l *Log) Entries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries
}

// Record chains entry to the previous decision and writes it durably.
// A missing Timestamp is set to now.
func (l *Log) Record(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	entry.PrevHash = l.prevHash

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write %s entry: %w", entry.Event, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}

	l.prevHash = HashLine(line)
	l.entries++
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// HashLine returns "blake3:<hex>" of line.
func HashLine(line []byte) string {
	h := blake3.Sum256(line)
	return "blake3:" + hex.EncodeToString(h[:])
}
