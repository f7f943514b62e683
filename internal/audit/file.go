package audit

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
)

// FileSink appends event lines to a per-team log file.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink creates the parent directory of path.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &FileSink{path: path}, nil
}

// Path returns the file backing this sink.
func (f *FileSink) Path() string { return f.path }

// Write appends one line.
func (f *FileSink) Write(e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.WriteString(e.Line() + "\n"); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Tail returns up to maxLines of the most recent lines.
func (f *FileSink) Tail(maxLines int) ([]string, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	file, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > maxLines {
			lines = lines[1:]
		}
	}
	return lines, scanner.Err()
}
