package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/shpitdev/location-campaign/internal/cache"
	"github.com/shpitdev/location-campaign/internal/campaign"
	"github.com/shpitdev/location-campaign/internal/compose"
	"github.com/shpitdev/location-campaign/internal/compose/gemini"
	"github.com/shpitdev/location-campaign/internal/config"
	"github.com/shpitdev/location-campaign/internal/delivery"
	"github.com/shpitdev/location-campaign/internal/lead"
	"github.com/shpitdev/location-campaign/internal/places"
	"github.com/shpitdev/location-campaign/pkg/pipeline/core"
	"github.com/shpitdev/location-campaign/pkg/pipeline/io/local"
	"github.com/shpitdev/location-campaign/pkg/pipeline/io/sheets"
)

// OpenCache opens the configured snapshot store and loads the cache from it.
// The returned close func releases the store.
func OpenCache(cfg config.Cache, logger *log.Logger) (*cache.LocationCache, func() error, error) {
	var (
		store   cache.Store
		closeFn = func() error { return nil }
	)
	switch cfg.Backend {
	case config.CacheBackendBolt:
		bs, err := cache.OpenBoltStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		store, closeFn = bs, bs.Close
	case config.CacheBackendFile, "":
		store = cache.NewFileStore(cfg.Path)
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	c := cache.New(store, logger)
	c.Load()
	return c, closeFn, nil
}

// OpenCSV opens a local leads file.
func OpenCSV(path string) (core.RowSource, error) {
	return local.OpenCSV(path, lead.RequiredColumns...)
}

// OpenSheet fetches the leads range of a Google Sheet.
func OpenSheet(ctx context.Context, creds config.Credentials, sheetID, rng string) (core.RowSource, error) {
	if strings.TrimSpace(sheetID) == "" {
		sheetID = creds.SheetID
	}
	cfg := sheets.Config{SpreadsheetID: sheetID, Range: rng}
	if v := strings.TrimSpace(creds.SheetsCredentials); v != "" {
		cfg.CredentialsJSON = []byte(v)
	}
	return sheets.New(ctx, cfg, lead.RequiredColumns...)
}

// Run wires every collaborator from cfg and creds and processes src to
// completion. Construction failures (missing credentials, refused OAuth
// token, unreachable SMTP) are returned before any row is read.
func Run(ctx context.Context, cfg config.Campaign, creds config.Credentials, src core.RowSource, logger *log.Logger) (campaign.Summary, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if err := cfg.Validate(); err != nil {
		return campaign.Summary{}, err
	}

	finder, err := places.New(places.Config{
		APIKey:             creds.MapsAPIKey,
		BaseURL:            creds.MapsBaseURL,
		RateLimitRPS:       cfg.Search.RateLimitRPS,
		DetailsConcurrency: cfg.Search.DetailsConcurrency,
	}, logger)
	if err != nil {
		return campaign.Summary{}, fmt.Errorf("places: %w", err)
	}

	mode, err := delivery.ParseMode(cfg.Delivery.Mode)
	if err != nil {
		return campaign.Summary{}, err
	}
	sender, err := delivery.New(ctx, delivery.Config{
		Mode:         mode,
		From:         cfg.Delivery.From,
		SMTPHost:     cfg.Delivery.SMTPHost,
		SMTPPort:     cfg.Delivery.SMTPPort,
		ClientID:     creds.GoogleClientID,
		ClientSecret: creds.GoogleClientSecret,
		RefreshToken: creds.GoogleRefreshToken,
	}, logger)
	if err != nil {
		return campaign.Summary{}, fmt.Errorf("email service initialization failed: %w", err)
	}

	var personalizer compose.Personalizer
	if cfg.Gemini.Enabled {
		p, err := gemini.New(ctx, gemini.Config{
			APIKey:  creds.GeminiAPIKey,
			Model:   cfg.Gemini.Model,
			BaseURL: creds.GeminiBaseURL,
		})
		if err != nil {
			return campaign.Summary{}, fmt.Errorf("gemini: %w", err)
		}
		personalizer = p
	}

	c, closeCache, err := OpenCache(cfg.Cache, logger)
	if err != nil {
		return campaign.Summary{}, err
	}
	defer func() {
		_ = closeCache()
	}()

	runner := campaign.New(campaign.Deps{
		Cache:        c,
		Finder:       finder,
		Composer:     compose.New(cfg.Signature),
		Sender:       sender,
		Personalizer: personalizer,
	}, campaign.Options{
		Center:      cfg.Center,
		RadiusMiles: cfg.Search.RadiusMiles,
		MaxRating:   cfg.Search.MaxRating,
		MinRatings:  cfg.Search.MinRatings,
		Pacing:      cfg.Pacing,
	}, logger)
	logger.Printf("campaign: delivery mode=%s cache=%s:%s personalizer=%t", sender.Mode(), cfg.Cache.Backend, cfg.Cache.Path, personalizer != nil)
	return runner.Run(ctx, src)
}

// CacheStats prints per-company hit counts and the processed email count.
func CacheStats(cfg config.Cache, w io.Writer, logger *log.Logger) error {
	c, closeCache, err := OpenCache(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = closeCache()
	}()
	stats := c.Stats()
	_, _ = fmt.Fprintf(w, "Companies cached: %d\n", len(stats))
	_, _ = fmt.Fprintf(w, "Processed emails: %d\n", c.ProcessedEmailCount())
	for _, st := range stats {
		_, _ = fmt.Fprintf(w, "  %s: %d cache hits\n", st.Company, st.Hits)
	}
	return nil
}

// ClearCache empties the cache and removes its durable snapshot.
func ClearCache(cfg config.Cache, logger *log.Logger) error {
	c, closeCache, err := OpenCache(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = closeCache()
	}()
	return c.Clear()
}
