package core

import (
	"context"
	"fmt"
	"strings"
)

// Row is one record from a row source, addressed by header name.
type Row struct {
	// Number is the 1-based data row number (the header is not counted).
	Number int
	fields map[string]string
}

// NewRow builds a Row from a header and the matching record values.
// Missing trailing values read as empty strings.
func NewRow(number int, header []string, values []string) Row {
	fields := make(map[string]string, len(header))
	for i, name := range header {
		key := columnKey(name)
		if key == "" {
			continue
		}
		if _, dup := fields[key]; dup {
			continue
		}
		v := ""
		if i < len(values) {
			v = values[i]
		}
		fields[key] = v
	}
	return Row{Number: number, fields: fields}
}

// Get returns the trimmed value for a column. Column names are matched
// case-insensitively.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r.fields[columnKey(column)])
}

// RowSource yields input rows one at a time. Next returns io.EOF after the
// last row. A source is single-pass and cannot be restarted.
type RowSource interface {
	Header() []string
	Next(ctx context.Context) (Row, error)
	Close() error
}

// Processor transforms one input item into one output item.
type Processor[In any, Out any] interface {
	Process(ctx context.Context, in In) (Out, error)
}

// ProcessFunc adapts a function to the Processor interface.
type ProcessFunc[In any, Out any] func(ctx context.Context, in In) (Out, error)

func (f ProcessFunc[In, Out]) Process(ctx context.Context, in In) (Out, error) {
	return f(ctx, in)
}

// MissingColumnsError reports required header columns absent from a source.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	if e == nil || len(e.Columns) == 0 {
		return "missing required columns"
	}
	quoted := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	if len(quoted) == 1 {
		return "missing required column " + quoted[0]
	}
	return "missing required columns " + strings.Join(quoted, ", ")
}

// RequireColumns checks that every required column is present in header.
func RequireColumns(header []string, required ...string) error {
	have := make(map[string]struct{}, len(header))
	for _, name := range header {
		have[columnKey(name)] = struct{}{}
	}
	var missing []string
	for _, col := range required {
		if _, ok := have[columnKey(col)]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Columns: missing}
	}
	return nil
}

// RowError marks a failure scoped to a single input row. Sources return it
// for malformed records; callers may skip the row and keep reading.
type RowError struct {
	Number int
	Err    error
}

func (e *RowError) Error() string {
	if e == nil || e.Err == nil {
		return "row error"
	}
	return fmt.Sprintf("row %d: %s", e.Number, e.Err.Error())
}

func (e *RowError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func columnKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
