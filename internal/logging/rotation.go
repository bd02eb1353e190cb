package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Size limits for the debug log. A long-lived shell with debug logging on
// writes a record per spawn and per reap; the log is capped at
// MaxLogSize bytes plus MaxLogBackups rotated copies.
const (
	MaxLogSize    = 5 * 1024 * 1024
	MaxLogBackups = 2
)

// rotatingFile is an append-only log file that is renamed to path.1 once it
// would grow past maxSize. Older copies shift to path.2 and so on; the
// oldest beyond maxBackups is removed.
type rotatingFile struct {
	mu         sync.Mutex
	path       string
	maxSize    int64
	maxBackups int

	file *os.File
	size int64
}

func openRotatingFile(path string, maxSize int64, maxBackups int) (*rotatingFile, error) {
	rf := &rotatingFile{path: path, maxSize: maxSize, maxBackups: maxBackups}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

// open (re)opens the current log file. The caller holds mu or owns rf.
func (rf *rotatingFile) open() error {
	if err := os.MkdirAll(filepath.Dir(rf.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	rf.file, rf.size = f, info.Size()
	return nil
}

// Write appends p, rotating first if p would push the file past maxSize.
// A record is never split across two files.
func (rf *rotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return 0, os.ErrClosed
	}
	if rf.maxSize > 0 && rf.size > 0 && rf.size+int64(len(p)) > rf.maxSize {
		if err := rf.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "tosh: log rotation failed: %v\n", err)
			if rf.file == nil {
				return 0, err
			}
		}
	}

	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

func (rf *rotatingFile) rotate() error {
	if err := rf.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	rf.file = nil

	if rf.maxBackups > 0 {
		_ = os.Remove(rf.backup(rf.maxBackups))
		for i := rf.maxBackups - 1; i >= 1; i-- {
			_ = os.Rename(rf.backup(i), rf.backup(i+1))
		}
		if err := os.Rename(rf.path, rf.backup(1)); err != nil {
			if openErr := rf.open(); openErr != nil {
				return openErr
			}
			return fmt.Errorf("failed to rename log file: %w", err)
		}
	} else if err := os.Truncate(rf.path, 0); err != nil {
		if openErr := rf.open(); openErr != nil {
			return openErr
		}
		return fmt.Errorf("failed to truncate log file: %w", err)
	}

	return rf.open()
}

func (rf *rotatingFile) backup(n int) string {
	return fmt.Sprintf("%s.%d", rf.path, n)
}

// Close syncs and closes the current file. Further writes fail.
func (rf *rotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return nil
	}
	f := rf.file
	rf.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}
