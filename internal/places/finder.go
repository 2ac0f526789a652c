package places

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"

	"github.com/shpitdev/location-campaign/internal/lead"
	"github.com/shpitdev/location-campaign/pkg/pipeline/redact"
)

const (
	metersPerMile = 1609.34

	// MaxResults caps the locations returned for one company.
	MaxResults = 3
)

// Query describes one low-rated location search.
type Query struct {
	CompanyName string
	Center      lead.LatLng
	RadiusMiles float64
	MaxRating   float64
	MinRatings  int
}

type Config struct {
	APIKey string
	// BaseURL overrides the Maps API base URL. Useful for proxies/testing.
	BaseURL string

	// RateLimitRPS limits provider calls across a finder. Set to <=0 to disable.
	RateLimitRPS float64
	// DetailsConcurrency bounds parallel place details calls; default 4.
	DetailsConcurrency int
}

// Finder looks up a company's low-rated locations with the Google Places API.
type Finder struct {
	client             *maps.Client
	limiter            *rate.Limiter
	detailsConcurrency int
	logger             *log.Logger
}

func New(cfg Config, logger *log.Logger) (*Finder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GOOGLE_MAPS_API_KEY is required")
	}
	opts := []maps.ClientOption{maps.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, maps.WithBaseURL(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")))
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	f := &Finder{
		client:             client,
		detailsConcurrency: cfg.DetailsConcurrency,
		logger:             logger,
	}
	if f.detailsConcurrency <= 0 {
		f.detailsConcurrency = 4
	}
	if cfg.RateLimitRPS > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}
	return f, nil
}

// FindLowRatedLocations returns up to MaxResults locations for q in provider
// order. Provider failures and empty searches yield an empty result.
func (f *Finder) FindLowRatedLocations(ctx context.Context, q Query) []lead.Location {
	found, err := f.lookup(ctx, q)
	if err != nil {
		f.logger.Printf("places: lookup failed company=%q error=%q", q.CompanyName, redact.Secrets(err.Error()))
		return []lead.Location{}
	}
	return filterLocations(found, q.MaxRating, q.MinRatings, MaxResults)
}

func (f *Finder) lookup(ctx context.Context, q Query) ([]place, error) {
	name := strings.TrimSpace(q.CompanyName)
	if name == "" {
		return nil, errors.New("empty company name")
	}
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	search, err := f.client.TextSearch(ctx, &maps.TextSearchRequest{
		Query:    name,
		Location: &maps.LatLng{Lat: q.Center.Lat, Lng: q.Center.Lng},
		Radius:   uint(math.Round(q.RadiusMiles * metersPerMile)),
	})
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	if len(search.Results) == 0 {
		return nil, nil
	}

	out := make([]place, len(search.Results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.detailsConcurrency)
	for i, r := range search.Results {
		i, placeID := i, r.PlaceID
		g.Go(func() error {
			if err := f.wait(gctx); err != nil {
				return err
			}
			d, err := f.client.PlaceDetails(gctx, &maps.PlaceDetailsRequest{PlaceID: placeID})
			if err != nil {
				return fmt.Errorf("place details %s: %w", placeID, err)
			}
			out[i] = placeFromDetails(d)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Finder) wait(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	return f.limiter.Wait(ctx)
}

// place is provider data before filtering. Nil fields were not reported.
type place struct {
	Name         string
	Address      string
	Rating       *float64
	TotalRatings *int
}

// The Places SDK reports absent ratings as zero values.
func placeFromDetails(d maps.PlaceDetailsResult) place {
	p := place{
		Name:    strings.TrimSpace(d.Name),
		Address: strings.TrimSpace(d.FormattedAddress),
	}
	if d.Rating > 0 {
		r := math.Round(float64(d.Rating)*100) / 100
		p.Rating = &r
	}
	if d.UserRatingsTotal > 0 {
		n := d.UserRatingsTotal
		p.TotalRatings = &n
	}
	return p
}

func filterLocations(in []place, maxRating float64, minRatings int, limit int) []lead.Location {
	out := make([]lead.Location, 0, limit)
	for _, p := range in {
		if len(out) == limit {
			break
		}
		if p.Rating == nil || p.TotalRatings == nil {
			continue
		}
		if *p.Rating > maxRating || *p.TotalRatings < minRatings {
			continue
		}
		out = append(out, lead.Location{
			Name:         p.Name,
			Rating:       *p.Rating,
			Address:      p.Address,
			TotalRatings: *p.TotalRatings,
		})
	}
	return out
}
