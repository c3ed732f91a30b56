// Package csvlog persists congestion-window observations to the optional
// CWND.csv file: one row per observable CWND/SSTHRESH change and per
// timeout/triple-dup-ACK event.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"
)

// DefaultPath is the filename the original sender writes its CWND trace to.
const DefaultPath = "CWND.csv"

// Writer appends rows to the CSV trace. It is safe for concurrent use,
// though the sender's single-goroutine design serializes calls in practice.
// A nil *Writer is valid and every method on it is a no-op, so logging can
// be disabled without branching at every call site.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	csv    *csv.Writer
	closed bool
}

// Open creates or truncates path and returns a Writer appending to it.
func Open(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csvlog: open %s: %w", path, err)
	}
	return &Writer{file: f, csv: csv.NewWriter(f)}, nil
}

// Record appends one row: <unix_seconds.microseconds>, <cwnd_or_fractional>,
// <ssthresh>. Each row is flushed immediately so a crash does not lose the
// trace.
func (w *Writer) Record(at time.Time, cwndOrFractional float64, ssthresh int) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("csvlog: writer closed")
	}

	ts := fmt.Sprintf("%d.%06d", at.Unix(), at.Nanosecond()/1000)
	row := []string{ts, formatFloat(cwndOrFractional), fmt.Sprintf("%d", ssthresh)}
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("csvlog: write row: %w", err)
	}
	w.csv.Flush()
	return w.csv.Error()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("csvlog: flush: %w", err)
	}
	return w.file.Close()
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.6f", f)
}
