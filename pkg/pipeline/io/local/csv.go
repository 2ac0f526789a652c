package local

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shpitdev/location-campaign/pkg/pipeline/core"
)

// CSVSource streams rows from a CSV file with a header line.
type CSVSource struct {
	cr     *csv.Reader
	closer io.Closer
	header []string
	rows   int
}

// OpenCSV opens path and validates its header against required.
func OpenCSV(path string, required ...string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	src, err := NewCSVSource(f, required...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	src.closer = f
	return src, nil
}

// NewCSVSource reads the header from r and fails if any required column is
// missing. No data rows are read until Next is called.
func NewCSVSource(r io.Reader, required ...string) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("read header: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}
	if err := core.RequireColumns(header, required...); err != nil {
		return nil, err
	}
	return &CSVSource{cr: cr, header: header}, nil
}

func (s *CSVSource) Header() []string {
	out := make([]string, len(s.header))
	copy(out, s.header)
	return out
}

// Next returns the next data row. Malformed records come back as
// *core.RowError so the caller can skip them.
func (s *CSVSource) Next(ctx context.Context) (core.Row, error) {
	if err := ctx.Err(); err != nil {
		return core.Row{}, err
	}
	rec, err := s.cr.Read()
	if err == io.EOF {
		return core.Row{}, io.EOF
	}
	s.rows++
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return core.Row{}, &core.RowError{Number: s.rows, Err: err}
		}
		return core.Row{}, fmt.Errorf("read row: %w", err)
	}
	return core.NewRow(s.rows, s.header, rec), nil
}

func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

func trimBOM(s string) string {
	const bom = "\uFEFF"
	if len(s) >= len(bom) && s[:len(bom)] == bom {
		return s[len(bom):]
	}
	return s
}
