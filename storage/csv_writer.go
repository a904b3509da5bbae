package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"bin-dates/models"
)

var csvHeader = []string{
	"cycle_id", "refreshed_at", "uprn",
	"domestic_date", "recycling_date", "garden_date",
	"domestic_today", "recycling_today", "garden_today",
}

// CSVWriter appends one row per published snapshot to a CSV state log.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter opens (or creates) the CSV file at the given path. The header
// row is only written when the file is empty. Intermediate directories are
// created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("csv: open file %q: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: stat %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv: write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv: write header: %w", err)
		}
	}

	return &CSVWriter{file: f, writer: w}, nil
}

// Publish appends the snapshot as a single row.
func (c *CSVWriter) Publish(_ context.Context, snap models.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := []string{
		snap.CycleID,
		snap.RefreshedAt.Format(time.RFC3339),
		string(snap.UPRN),
	}
	for _, stream := range models.WasteStreams {
		row = append(row, snap.Result.Date(stream).Format(time.DateOnly))
	}
	for _, stream := range models.WasteStreams {
		row = append(row, strconv.FormatBool(snap.IsToday[stream]))
	}

	if err := c.writer.Write(row); err != nil {
		return fmt.Errorf("csv: write row: %w", err)
	}
	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}
