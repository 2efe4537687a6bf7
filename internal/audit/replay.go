package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Filter holds criteria for reading back audit entries. Zero fields
// match everything.
type Filter struct {
	Scope     string
	Mechanism string
	Event     Event
	From      time.Time
	To        time.Time
}

func (f Filter) match(e Entry) bool {
	if f.Scope != "" && e.Scope != f.Scope {
		return false
	}
	if f.Mechanism != "" && e.Mechanism != f.Mechanism {
		return false
	}
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

// Summary counts matched entries.
type Summary struct {
	Total           int            `json:"total"`
	DenyCount       int            `json:"deny_count"`
	BypassCount     int            `json:"bypass_count"`
	KillswitchCount int            `json:"killswitch_count"`
	ByMechanism     map[string]int `json:"by_mechanism"`
	FirstTimestamp  string         `json:"first_timestamp"`
	LastTimestamp   string         `json:"last_timestamp"`
}

// QueryResult holds filtered entries and their summary.
type QueryResult struct {
	Entries []Entry `json:"entries"`
	Summary Summary `json:"summary"`
}

// Query reads the audit log at path and returns entries matching f.
// Malformed lines are skipped.
func Query(path string, f Filter) (*QueryResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	result := &QueryResult{Summary: Summary{ByMechanism: make(map[string]int)}}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if !f.match(entry) {
			continue
		}
		result.Entries = append(result.Entries, entry)
		updateSummary(&result.Summary, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return result, nil
}

func updateSummary(s *Summary, e Entry) {
	s.Total++
	switch e.Event {
	case EventDeny:
		s.DenyCount++
	case EventBypass:
		s.BypassCount++
	case EventKillswitch:
		s.KillswitchCount++
	}
	if e.Mechanism != "" {
		s.ByMechanism[e.Mechanism]++
	}
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.Timestamp
	}
	s.LastTimestamp = e.Timestamp
}
