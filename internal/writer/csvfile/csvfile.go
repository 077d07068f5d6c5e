// Package csvfile writes feature rows as a CSV table with a fixed header.
package csvfile

import (
	"Go2FlowFeatures/internal/config"
	"Go2FlowFeatures/internal/engine/features"
	"Go2FlowFeatures/internal/factory"
	"Go2FlowFeatures/internal/model"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
)

// Stdout is the path that selects standard output.
const Stdout = "-"

func init() {
	factory.RegisterWriter("csv", func(cfg config.WriterConfig) (model.Writer, error) {
		return New(cfg.Path)
	})
}

// Writer writes one CSV file per export, replacing any previous content.
type Writer struct {
	path string
	out  io.Writer // used instead of path when set
}

// New creates a writer for path. An empty path or "-" writes to stdout.
func New(path string) (*Writer, error) {
	if path == "" || path == Stdout {
		return &Writer{path: Stdout, out: os.Stdout}, nil
	}
	return &Writer{path: path}, nil
}

// NewStream creates a writer that writes to out.
func NewStream(out io.Writer) *Writer {
	return &Writer{path: Stdout, out: out}
}

func (w *Writer) Name() string {
	return "csv:" + w.path
}

// Write emits the header followed by one line per row.
func (w *Writer) Write(_ context.Context, export *model.Export) error {
	if w.out != nil {
		return Encode(w.out, export.Rows)
	}

	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("failed to create csv file '%s': %w", w.path, err)
	}
	if err := Encode(file, export.Rows); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (w *Writer) Close() error {
	return nil
}

// Encode writes rows as CSV to out.
func Encode(out io.Writer, rows []model.FeatureRow) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(features.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(features.Strings(row)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Decode reads a CSV table produced by Encode.
func Decode(in io.Reader) ([]model.FeatureRow, error) {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = len(features.Columns)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if !slices.Equal(header, features.Columns) {
		return nil, fmt.Errorf("unexpected csv header %v", header)
	}

	rows := []model.FeatureRow{}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		row, err := features.ParseRow(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
}

// ReadFile reads back a CSV file written by Writer.
func ReadFile(path string) ([]model.FeatureRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Decode(file)
}
