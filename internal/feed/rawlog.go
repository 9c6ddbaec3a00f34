package feed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// RawLogPath returns the per-student raw log filename.
func RawLogPath(studentID string) string {
	return fmt.Sprintf("student-%s-activities.jsonl", studentID)
}

// RawLog is the append-only, newline-delimited record of every
// fetched activity, written verbatim before any interpretation. It is
// never read back by the tool; it exists for manual replay.
type RawLog struct {
	f *os.File
	w *bufio.Writer
}

// OpenRawLog creates (or truncates) the raw log at path.
func OpenRawLog(path string) (*RawLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("opening raw log: %w", err)
	}
	return &RawLog{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one raw server record as a single line and flushes,
// so a later failure in the run cannot lose it.
func (l *RawLog) Append(raw json.RawMessage) error {
	if _, err := l.w.Write(raw); err != nil {
		return fmt.Errorf("writing raw log: %w", err)
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing raw log: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("flushing raw log: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *RawLog) Close() error {
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
