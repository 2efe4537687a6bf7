package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// maxLineSize bounds a single audit line during verification.
const maxLineSize = 1 << 20

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid     bool          `json:"valid"`
	Lines     int           `json:"lines"`
	Events    map[Event]int `json:"events,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorLine int           `json:"error_line,omitempty"`
}

// Verify validates the hash chain of the audit log at path.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()
	return VerifyReader(f)
}

// VerifyReader validates a hash chain read from r. It reports the first
// broken link.
func VerifyReader(r io.Reader) VerifyResult {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	result := VerifyResult{Events: make(map[Event]int)}
	expected := GenesisHash

	for scanner.Scan() {
		result.Lines++
		line := scanner.Bytes()

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return broken(result, fmt.Sprintf("parse error: %v", err))
		}
		if entry.PrevHash != expected {
			if result.Lines == 1 {
				return broken(result, fmt.Sprintf("first entry prev_hash is %q, expected genesis hash", entry.PrevHash))
			}
			return broken(result, fmt.Sprintf("hash mismatch: expected %s, got %s", expected, entry.PrevHash))
		}
		switch entry.Event {
		case EventDeny, EventBypass, EventKillswitch, EventRestore:
			result.Events[entry.Event]++
		default:
			return broken(result, fmt.Sprintf("unknown event %q", entry.Event))
		}
		expected = HashLine(line)
	}

	if err := scanner.Err(); err != nil {
		return VerifyResult{Lines: result.Lines, Error: fmt.Sprintf("scan: %v", err)}
	}
	result.Valid = true
	return result
}

func broken(r VerifyResult, msg string) VerifyResult {
	return VerifyResult{Lines: r.Lines, Events: r.Events, Error: msg, ErrorLine: r.Lines}
}
