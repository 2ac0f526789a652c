package campaign

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/shpitdev/location-campaign/internal/cache"
	"github.com/shpitdev/location-campaign/internal/compose"
	"github.com/shpitdev/location-campaign/internal/lead"
	"github.com/shpitdev/location-campaign/internal/places"
	"github.com/shpitdev/location-campaign/pkg/pipeline/core"
	"github.com/shpitdev/location-campaign/pkg/pipeline/redact"
)

// LocationFinder resolves a company to low-rated locations. It reports
// failures as an empty result.
type LocationFinder interface {
	FindLowRatedLocations(ctx context.Context, q places.Query) []lead.Location
}

type Composer interface {
	Compose(contact lead.Contact, locations []lead.Location, opener string) (lead.Message, error)
}

// Sender delivers a message and returns its delivery id.
type Sender interface {
	Send(ctx context.Context, msg lead.Message) (string, error)
}

type Options struct {
	Center      lead.LatLng
	RadiusMiles float64
	MaxRating   float64
	MinRatings  int

	// Pacing is the fixed wait after each row before the next one is read.
	Pacing time.Duration
}

type Deps struct {
	Cache    *cache.LocationCache
	Finder   LocationFinder
	Composer Composer
	Sender   Sender
	// Personalizer is optional.
	Personalizer compose.Personalizer
}

// Runner processes contacts one at a time against the cache and external
// collaborators.
type Runner struct {
	deps   Deps
	opts   Options
	logger *log.Logger
	runID  string
	sleep  func(ctx context.Context, d time.Duration) error

	// contacts handles each valid row; the Runner itself unless replaced.
	contacts core.Processor[lead.Contact, Outcome]

	summary Summary
}

func New(deps Deps, opts Options, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	r := &Runner{
		deps:   deps,
		opts:   opts,
		logger: logger,
		runID:  fmt.Sprintf("run-%d", time.Now().UnixNano()),
		sleep:  sleepContext,
	}
	r.contacts = r
	return r
}

func (r *Runner) logf(format string, args ...any) {
	prefix := make([]any, 0, len(args)+1)
	prefix = append(prefix, r.runID)
	prefix = append(prefix, args...)
	r.logger.Printf("run=%s "+format, prefix...)
}

// PersistError reports a failed cache save. The run cannot continue safely
// because dedup state may be lost.
type PersistError struct {
	Email string
	Err   error
}

func (e *PersistError) Error() string {
	if e == nil || e.Err == nil {
		return "persist cache"
	}
	return fmt.Sprintf("persist cache (email=%s): %s", e.Email, e.Err.Error())
}

func (e *PersistError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Run pulls rows from src until io.EOF, processing each to completion before
// reading the next. Row-scoped failures are logged and skipped; source read
// errors, cache persist errors and cancellation end the run.
func (r *Runner) Run(ctx context.Context, src core.RowSource) (Summary, error) {
	if err := core.RequireColumns(src.Header(), lead.RequiredColumns...); err != nil {
		return r.summary, err
	}
	runStart := time.Now()
	r.logf("campaign start: processedEmails=%d radiusMiles=%g maxRating=%g minRatings=%d pacing=%s",
		r.deps.Cache.ProcessedEmailCount(), r.opts.RadiusMiles, r.opts.MaxRating, r.opts.MinRatings, r.opts.Pacing)

	for {
		if err := ctx.Err(); err != nil {
			return r.finish(), err
		}
		row, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		var rowErr *core.RowError
		if errors.As(err, &rowErr) {
			r.summary.Rows++
			r.summary.record(OutcomeInvalid)
			r.logf("row %d: skipping malformed row: %s", rowErr.Number, redact.Secrets(rowErr.Error()))
			if err := r.pace(ctx); err != nil {
				return r.finish(), err
			}
			continue
		}
		if err != nil {
			return r.finish(), fmt.Errorf("read row: %w", err)
		}
		r.summary.Rows++

		outcome, err := r.processRow(ctx, row)
		if err != nil {
			return r.finish(), err
		}
		r.summary.record(outcome)
		r.logf("row %d: done outcome=%s", row.Number, outcome)
		if err := r.pace(ctx); err != nil {
			return r.finish(), err
		}
	}

	s := r.finish()
	r.logf("campaign complete: rows=%d sent=%d skipped=%d noLocations=%d failed=%d invalid=%d processedEmails=%d duration=%s",
		s.Rows, s.Sent, s.Skipped, s.NoLocations, s.Failed, s.Invalid, s.ProcessedEmails, time.Since(runStart).Round(time.Millisecond))
	return s, nil
}

func (r *Runner) processRow(ctx context.Context, row core.Row) (Outcome, error) {
	contact, err := lead.ContactFromRow(row)
	if err != nil {
		r.logf("row %d: invalid contact email=%q company=%q error=%q", row.Number, contact.Email, contact.Company, err.Error())
		return OutcomeInvalid, nil
	}
	r.logf("row %d: contact name=%q email=%q company=%q", row.Number, contact.FirstName+" "+contact.LastName, contact.Email, contact.Company)
	return r.contacts.Process(ctx, contact)
}

// Process runs the per-contact state machine for one contact. It returns a
// *PersistError when the cache cannot be saved, or the context error when
// the run is cancelled during the lookup; every other failure becomes an
// Outcome.
func (r *Runner) Process(ctx context.Context, contact lead.Contact) (Outcome, error) {
	c := r.deps.Cache

	// Dedup check.
	if c.IsEmailProcessed(contact.Email) {
		r.logf("skip: already processed email=%q", contact.Email)
		return OutcomeSkipped, nil
	}

	// Location lookup.
	var locations []lead.Location
	if c.Has(contact.Company) {
		locations, _ = c.Get(contact.Company)
		r.summary.CacheHits++
		r.logf("lookup: cache hit company=%q locations=%d", contact.Company, len(locations))
	} else {
		start := time.Now()
		locations = r.deps.Finder.FindLowRatedLocations(ctx, places.Query{
			CompanyName: contact.Company,
			Center:      r.opts.Center,
			RadiusMiles: r.opts.RadiusMiles,
			MaxRating:   r.opts.MaxRating,
			MinRatings:  r.opts.MinRatings,
		})
		r.summary.LookupCalls++
		// A cancelled lookup is not a result and must not be cached.
		if err := ctx.Err(); err != nil {
			r.logf("lookup: cancelled company=%q email=%q", contact.Company, contact.Email)
			return "", err
		}
		r.logf("lookup: fetched company=%q locations=%d duration=%s", contact.Company, len(locations), time.Since(start).Round(time.Millisecond))
		c.Set(contact.Company, locations)
		if err := c.Save(); err != nil {
			return "", &PersistError{Email: contact.Email, Err: err}
		}
	}
	if len(locations) == 0 {
		r.logf("skip: no low-rated locations company=%q email=%q", contact.Company, contact.Email)
		return OutcomeNoLocations, nil
	}

	// Compose and send.
	opener := r.opener(ctx, contact, locations)
	msg, err := r.deps.Composer.Compose(contact, locations, opener)
	if err != nil {
		r.logf("compose failed: email=%q company=%q error=%q", contact.Email, contact.Company, redact.Secrets(err.Error()))
		return OutcomeComposeFailed, nil
	}
	sendStart := time.Now()
	id, err := r.deps.Sender.Send(ctx, msg)
	if err != nil {
		r.logf("send failed: email=%q company=%q error=%q", contact.Email, contact.Company, redact.Secrets(err.Error()))
		return OutcomeSendFailed, nil
	}
	r.logf("sent: email=%q company=%q id=%s duration=%s", contact.Email, contact.Company, id, time.Since(sendStart).Round(time.Millisecond))

	// Record.
	c.MarkEmailProcessed(contact.Email)
	if err := c.Save(); err != nil {
		return "", &PersistError{Email: contact.Email, Err: err}
	}
	return OutcomeSent, nil
}

func (r *Runner) opener(ctx context.Context, contact lead.Contact, locations []lead.Location) string {
	if r.deps.Personalizer == nil {
		return ""
	}
	opener, err := r.deps.Personalizer.Opener(ctx, contact, locations)
	if err != nil {
		r.logf("opener failed, using template only: email=%q company=%q error=%q", contact.Email, contact.Company, redact.Secrets(err.Error()))
		return ""
	}
	return opener
}

func (r *Runner) pace(ctx context.Context) error {
	if r.opts.Pacing <= 0 {
		return nil
	}
	return r.sleep(ctx, r.opts.Pacing)
}

func (r *Runner) finish() Summary {
	s := r.summary
	s.ProcessedEmails = r.deps.Cache.ProcessedEmailCount()
	s.CacheStats = r.deps.Cache.Stats()
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
