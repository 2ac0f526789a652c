package campaign

import (
	"fmt"
	"io"

	"github.com/shpitdev/location-campaign/internal/cache"
)

// Outcome is the terminal result of one row.
type Outcome string

const (
	OutcomeInvalid       Outcome = "invalid"
	OutcomeSkipped       Outcome = "skipped_processed"
	OutcomeNoLocations   Outcome = "no_locations"
	OutcomeComposeFailed Outcome = "compose_failed"
	OutcomeSendFailed    Outcome = "send_failed"
	OutcomeSent          Outcome = "sent"
)

// Summary counts what a run did.
type Summary struct {
	Rows        int
	Invalid     int
	Skipped     int
	NoLocations int
	Failed      int
	Sent        int

	LookupCalls int
	CacheHits   int

	// Filled from the cache when the run ends.
	ProcessedEmails int
	CacheStats      []cache.Stat
}

func (s *Summary) record(o Outcome) {
	switch o {
	case OutcomeInvalid:
		s.Invalid++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeNoLocations:
		s.NoLocations++
	case OutcomeComposeFailed, OutcomeSendFailed:
		s.Failed++
	case OutcomeSent:
		s.Sent++
	}
}

// Print writes the operator-facing end-of-run report.
func (s Summary) Print(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Final statistics:")
	_, _ = fmt.Fprintf(w, "  rows processed:      %d\n", s.Rows)
	_, _ = fmt.Fprintf(w, "  emails sent:         %d\n", s.Sent)
	_, _ = fmt.Fprintf(w, "  already processed:   %d\n", s.Skipped)
	_, _ = fmt.Fprintf(w, "  no locations:        %d\n", s.NoLocations)
	_, _ = fmt.Fprintf(w, "  failed:              %d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "  invalid rows:        %d\n", s.Invalid)
	_, _ = fmt.Fprintf(w, "  lookup calls:        %d\n", s.LookupCalls)
	_, _ = fmt.Fprintf(w, "  cache hits:          %d\n", s.CacheHits)
	_, _ = fmt.Fprintf(w, "  processed emails:    %d\n", s.ProcessedEmails)
	if len(s.CacheStats) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "Cache statistics:")
	for _, st := range s.CacheStats {
		_, _ = fmt.Fprintf(w, "  %s: %d cache hits\n", st.Company, st.Hits)
	}
}
