package persist

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const errorLogLayout = "2006-01-02 15:04:05"

// ErrorLog appends timestamped lines to an append-only file.
type ErrorLog struct {
	path string
	now  func() time.Time
}

// NewErrorLog returns an ErrorLog writing to path.
func NewErrorLog(path string) *ErrorLog {
	return &ErrorLog{path: path, now: time.Now}
}

// WithClock replaces the timestamp source. Tests only.
func (l *ErrorLog) WithClock(now func() time.Time) *ErrorLog {
	l.now = now
	return l
}

// Append writes "[YYYY-MM-DD HH:MM:SS] message\n". Newlines inside message are
// flattened so every entry stays on one line.
func (l *ErrorLog) Append(message string) error {
	message = strings.Join(strings.Fields(message), " ")
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open error log: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "[%s] %s\n", l.now().Format(errorLogLayout), message); err != nil {
		return fmt.Errorf("append error log: %w", err)
	}
	return nil
}
