package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"
)

// CSVWriter appends window rows to a CSV file.
type CSVWriter struct {
	mu            sync.Mutex
	file          *os.File
	headerWritten bool
}

// NewCSVWriter creates the file at path, truncating any previous run.
// Returns nil if path is empty (output disabled); a nil writer accepts and
// discards every call.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating telemetry directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &CSVWriter{file: f}, nil
}

// Write appends one row. The first row carries the header.
func (w *CSVWriter) Write(ws WindowStats) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	records := []WindowStats{ws}
	if !w.headerWritten {
		if err := gocsv.Marshal(records, w.file); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
		w.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, w.file); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

// Path returns the output file path.
func (w *CSVWriter) Path() string {
	if w == nil {
		return ""
	}
	return w.file.Name()
}

// Close closes the output file.
func (w *CSVWriter) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
