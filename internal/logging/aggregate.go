package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"
)

// Entry is one parsed debug log record.
type Entry struct {
	Time      time.Time
	Level     string
	Message   string
	SessionID string
	JobID     string
	PID       int
	Attrs     map[string]any
}

// Filter selects entries. Zero fields match everything; set fields are
// combined with AND.
type Filter struct {
	// Level keeps entries at or above this level.
	Level string
	// Since keeps entries at or after this time.
	Since time.Time
	// SessionID and JobID match exactly. JobID also matches an ID prefix of
	// at least eight characters, as shown by the jobs built-in.
	SessionID string
	JobID     string
	// PID matches the pid attribute of spawn and reap records.
	PID int
	// Contains matches a substring of the message.
	Contains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// maxRecordSize bounds a single log line.
const maxRecordSize = 1024 * 1024

// ReadLog returns every record in dir's debug log, rotated copies included,
// oldest first. Lines that are not JSON records are skipped.
func ReadLog(dir string) ([]Entry, error) {
	paths := []string{filepath.Join(dir, LogFileName)}
	backups, _ := filepath.Glob(filepath.Join(dir, LogFileName+".*"))
	paths = append(paths, backups...)

	var entries []Entry
	found := false
	for _, p := range paths {
		f, err := os.Open(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		found = true
		parsed, err := readEntries(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", p, err)
		}
		entries = append(entries, parsed...)
	}
	if !found {
		return nil, fmt.Errorf("no debug log in %s: %w", dir, os.ErrNotExist)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Before(entries[j].Time)
	})
	return entries, nil
}

func readEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if e, err := ParseEntry(line); err == nil {
			entries = append(entries, e)
		}
	}
	return entries, scanner.Err()
}

// ParseEntry parses one JSON record as written by Logger.
func ParseEntry(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	e := Entry{Attrs: make(map[string]any)}
	for k, v := range raw {
		switch k {
		case "time":
			if s, ok := v.(string); ok {
				e.Time, _ = time.Parse(time.RFC3339Nano, s)
			}
		case "level":
			e.Level, _ = v.(string)
		case "msg":
			e.Message, _ = v.(string)
		case "session_id":
			e.SessionID, _ = v.(string)
		case "job_id":
			e.JobID, _ = v.(string)
		case "pid":
			if n, ok := v.(float64); ok {
				e.PID = int(n)
			}
		default:
			e.Attrs[k] = v
		}
	}
	return e, nil
}

// Apply returns the entries f selects, in their original order.
func (f Filter) Apply(entries []Entry) []Entry {
	return slices.DeleteFunc(slices.Clone(entries), func(e Entry) bool { return !f.Matches(e) })
}

// Matches reports whether e satisfies every set field of f.
func (f Filter) Matches(e Entry) bool {
	if f.Level != "" {
		want, ok1 := levelOrder[strings.ToUpper(f.Level)]
		got, ok2 := levelOrder[e.Level]
		if ok1 && ok2 && got < want {
			return false
		}
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.JobID != "" && !matchesJobID(e.JobID, f.JobID) {
		return false
	}
	if f.PID != 0 && e.PID != f.PID {
		return false
	}
	if f.Contains != "" && !strings.Contains(e.Message, f.Contains) {
		return false
	}
	return true
}

func matchesJobID(id, want string) bool {
	if len(want) >= 8 {
		return strings.HasPrefix(id, want)
	}
	return id == want
}

// Format renders e as one line of text:
//
//	15:04:05.000 INFO  job finished job=01234567 pid=4711 status=exited(0)
func (e Entry) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", e.Time.Format("15:04:05.000"), e.Level, e.Message)
	if e.JobID != "" {
		id := e.JobID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(&b, " job=%s", id)
	}
	if e.PID != 0 {
		fmt.Fprintf(&b, " pid=%d", e.PID)
	}

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}
