package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Entry is one decoded log line.
type Entry struct {
	Time      time.Time
	Level     string
	Message   string
	BusID     string
	Component string
	Attrs     map[string]any
}

// Filter selects entries. Zero fields match everything; set fields are ANDed.
type Filter struct {
	// Level keeps entries at or above this level (DEBUG < INFO < WARN < ERROR).
	Level string
	Since time.Time
	BusID string
	// Component matches the component attribute, e.g. "supervisor".
	Component string
	// Pattern is matched against the message and every attribute value.
	Pattern *regexp.Regexp
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// LogFiles returns the log file in dir followed by its rotated backups,
// oldest first. Files that do not exist are omitted.
func LogFiles(dir string) []string {
	active := filepath.Join(dir, LogFileName)
	backups, _ := filepath.Glob(active + ".*")
	sort.Slice(backups, func(i, j int) bool {
		return backupIndex(backups[i]) > backupIndex(backups[j])
	})

	var files []string
	for _, b := range backups {
		if backupIndex(b) > 0 {
			files = append(files, b)
		}
	}
	if _, err := os.Stat(active); err == nil {
		files = append(files, active)
	}
	return files
}

func backupIndex(path string) int {
	var n int
	ext := filepath.Ext(path)
	if _, err := fmt.Sscanf(ext, ".%d", &n); err != nil {
		return 0
	}
	return n
}

// ReadEntries reads every log file in dir, oldest first, and returns the
// entries that pass f sorted by time. Lines that are not JSON are skipped.
func ReadEntries(dir string, f Filter) ([]Entry, error) {
	var entries []Entry
	for _, path := range LogFiles(dir) {
		fileEntries, err := readFile(path, f)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fileEntries...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Before(entries[j].Time)
	})
	return entries, nil
}

func readFile(path string, f Filter) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	const maxLine = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	for scanner.Scan() {
		entry, err := ParseEntry(scanner.Text())
		if err != nil {
			continue
		}
		if f.Match(entry) {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return entries, nil
}

// ParseEntry decodes a single JSON log line.
func ParseEntry(line string) (Entry, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Entry{}, fmt.Errorf("empty line")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := Entry{Attrs: make(map[string]any)}
	for k, v := range raw {
		s, _ := v.(string)
		switch k {
		case "time":
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				entry.Time = t
			}
		case "level":
			entry.Level = strings.ToUpper(s)
		case "msg":
			entry.Message = s
		case "bus_id":
			entry.BusID = s
		case "component":
			entry.Component = s
		default:
			entry.Attrs[k] = v
		}
	}
	return entry, nil
}

// Match reports whether e passes every criterion of f.
func (f Filter) Match(e Entry) bool {
	if f.Level != "" {
		want, okWant := levelOrder[strings.ToUpper(f.Level)]
		got, okGot := levelOrder[e.Level]
		if okWant && okGot && got < want {
			return false
		}
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if f.BusID != "" && e.BusID != f.BusID {
		return false
	}
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	if f.Pattern != nil {
		text := e.Message
		for _, v := range e.Attrs {
			text += " " + fmt.Sprint(v)
		}
		if !f.Pattern.MatchString(text) {
			return false
		}
	}
	return true
}
