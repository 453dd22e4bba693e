package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one diagnostic record: a file that was skipped or failed.
type Entry struct {
	File      string
	Status    string
	Reason    string
	Timestamp time.Time
}

// ErrorLogger counts skip and failure records and appends them to a log
// file. The file is created on the first record, so a clean run leaves
// nothing behind. Safe for concurrent use.
type ErrorLogger struct {
	mu      sync.Mutex
	logFile string
	logged  int
	failed  int
	file    *os.File
	created bool
	openErr error
}

// NewErrorLogger creates a logger writing to logFile. An empty path keeps
// records in memory only.
func NewErrorLogger(logFile string) *ErrorLogger {
	return &ErrorLogger{logFile: logFile}
}

// Log records a diagnostic for a file.
func (l *ErrorLogger) Log(filePath, status, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		File:      filePath,
		Status:    status,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	l.logged++
	if status == "failed" {
		l.failed++
	}

	if l.logFile == "" || l.openErr != nil {
		return
	}
	if l.file == nil {
		if l.openErr = l.open(); l.openErr != nil {
			return
		}
	}

	line := fmt.Sprintf("%s | %s | %s | %s\n",
		entry.Timestamp.Format(time.RFC3339),
		entry.Status,
		entry.File,
		entry.Reason)
	l.file.WriteString(line)
}

func (l *ErrorLogger) open() error {
	if err := os.MkdirAll(filepath.Dir(l.logFile), 0755); err != nil {
		return fmt.Errorf("could not create log directory: %w", err)
	}
	file, err := os.OpenFile(l.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("could not open log file: %w", err)
	}
	l.file = file
	l.created = true
	return nil
}

// File returns the log file path once a record has reached it, or "".
func (l *ErrorLogger) File() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.created {
		return ""
	}
	return l.logFile
}

// Summary returns a one-line description of what was logged.
func (l *ErrorLogger) Summary() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logged == 0 {
		return "No errors"
	}
	if !l.created || l.openErr != nil {
		return fmt.Sprintf("%d diagnostics (%d errors)", l.logged, l.failed)
	}
	return fmt.Sprintf("%d diagnostics (%d errors) logged to %s", l.logged, l.failed, l.logFile)
}

// Close closes the log file and reports a failure to open it, if any.
func (l *ErrorLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return err
		}
		l.file = nil
	}
	return l.openErr
}
