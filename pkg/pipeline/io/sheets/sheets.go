package sheets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/shpitdev/location-campaign/pkg/pipeline/core"
)

// DefaultRange covers the contact columns of the first sheet.
const DefaultRange = "Sheet1!A:E"

type Config struct {
	SpreadsheetID string
	// Range is an A1 range; DefaultRange when empty.
	Range string
	// CredentialsJSON is a service account key. Ignored when ClientOptions
	// supply their own credentials.
	CredentialsJSON []byte

	ClientOptions []option.ClientOption
}

// Source yields rows from a spreadsheet range fetched once at construction.
type Source struct {
	header []string
	values [][]any
	next   int
}

// New fetches the configured range and validates its header row.
func New(ctx context.Context, cfg Config, required ...string) (*Source, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("spreadsheet id is required")
	}
	rng := strings.TrimSpace(cfg.Range)
	if rng == "" {
		rng = DefaultRange
	}

	opts := []option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsReadonlyScope)}
	if len(cfg.CredentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	}
	opts = append(opts, cfg.ClientOptions...)

	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	resp, err := svc.Spreadsheets.Values.Get(id, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", rng, err)
	}
	return NewFromValues(resp.Values, required...)
}

// NewFromValues wraps already-fetched cell values. The first row is the header.
func NewFromValues(values [][]any, required ...string) (*Source, error) {
	if len(values) == 0 {
		return nil, errors.New("read header: empty sheet")
	}
	header := cellsToStrings(values[0])
	if err := core.RequireColumns(header, required...); err != nil {
		return nil, err
	}
	return &Source{header: header, values: values[1:]}, nil
}

func (s *Source) Header() []string {
	out := make([]string, len(s.header))
	copy(out, s.header)
	return out
}

// Next returns the next non-blank row.
func (s *Source) Next(ctx context.Context) (core.Row, error) {
	if err := ctx.Err(); err != nil {
		return core.Row{}, err
	}
	for s.next < len(s.values) {
		s.next++
		cells := cellsToStrings(s.values[s.next-1])
		if blank(cells) {
			continue
		}
		return core.NewRow(s.next, s.header, cells), nil
	}
	return core.Row{}, io.EOF
}

func (s *Source) Close() error { return nil }

func cellsToStrings(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
