package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shpitdev/location-campaign/internal/app"
	"github.com/shpitdev/location-campaign/internal/config"
	"github.com/shpitdev/location-campaign/internal/version"
	"github.com/shpitdev/location-campaign/pkg/pipeline/core"
	"github.com/shpitdev/location-campaign/pkg/pipeline/io/sheets"
	"github.com/shpitdev/location-campaign/pkg/pipeline/redact"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}

	switch args[0] {
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	case "version":
		_, _ = fmt.Fprintln(stdout, version.Current)
		return 0
	case "csv":
		return runCSV(ctx, args[1:], stdout, stderr)
	case "sheets":
		return runSheets(ctx, args[1:], stdout, stderr)
	case "cache":
		return runCache(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command: %s\n\n", args[0])
		usage(stderr)
		return 2
	}
}

// campaignFlags are shared by the csv and sheets commands. Only flags given on
// the command line override the config file.
type campaignFlags struct {
	configPath string
	lat        float64
	lng        float64
	radius     float64
	maxRating  float64
	minRatings int
	mode       string
	cachePath  string
}

func (f *campaignFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Campaign YAML file (optional)")
	fs.Float64Var(&f.lat, "lat", 0, "Search center latitude")
	fs.Float64Var(&f.lng, "lng", 0, "Search center longitude")
	fs.Float64Var(&f.radius, "radius-miles", 0, "Search radius in miles")
	fs.Float64Var(&f.maxRating, "max-rating", 0, "Highest rating that still counts as low")
	fs.IntVar(&f.minRatings, "min-ratings", 0, "Minimum number of ratings a location needs")
	fs.StringVar(&f.mode, "mode", "", "Delivery mode: live or test (env: DELIVERY_MODE)")
	fs.StringVar(&f.cachePath, "cache", "", "Cache path override")
}

// resolve loads the config file, applies env overrides, then explicit flags.
func (f *campaignFlags) resolve(fs *flag.FlagSet) (config.Campaign, config.Credentials, error) {
	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Campaign{}, config.Credentials{}, err
	}
	creds, err := config.LoadCredentials()
	if err != nil {
		return config.Campaign{}, config.Credentials{}, err
	}
	creds.Apply(&cfg)

	if set["lat"] {
		cfg.Center.Lat = f.lat
	}
	if set["lng"] {
		cfg.Center.Lng = f.lng
	}
	if set["radius-miles"] {
		cfg.Search.RadiusMiles = f.radius
	}
	if set["max-rating"] {
		cfg.Search.MaxRating = f.maxRating
	}
	if set["min-ratings"] {
		cfg.Search.MinRatings = f.minRatings
	}
	if f.mode != "" {
		cfg.Delivery.Mode = f.mode
	}
	if f.cachePath != "" {
		cfg.Cache.Path = f.cachePath
	}
	if err := cfg.Validate(); err != nil {
		return config.Campaign{}, config.Credentials{}, err
	}
	return cfg, creds, nil
}

func runCSV(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("csv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf campaignFlags
	cf.register(fs)
	inputPath := fs.String("input", "", "Input CSV with First Name, Last Name, Email, Company columns")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *inputPath == "" {
		_, _ = fmt.Fprintln(stderr, "csv requires --input")
		return 2
	}
	cfg, creds, err := cf.resolve(fs)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	src, err := app.OpenCSV(*inputPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "input error: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	defer func() {
		_ = src.Close()
	}()
	return runCampaign(ctx, cfg, creds, src, stdout, stderr)
}

func runSheets(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sheets", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf campaignFlags
	cf.register(fs)
	sheetID := fs.String("sheet-id", "", "Spreadsheet id (env: GOOGLE_SHEET_ID)")
	rng := fs.String("range", sheets.DefaultRange, "A1 range holding the header and contacts")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, creds, err := cf.resolve(fs)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	if *sheetID == "" && creds.SheetID == "" {
		_, _ = fmt.Fprintln(stderr, "sheets requires --sheet-id or GOOGLE_SHEET_ID")
		return 2
	}

	src, err := app.OpenSheet(ctx, creds, *sheetID, *rng)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "input error: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	defer func() {
		_ = src.Close()
	}()
	return runCampaign(ctx, cfg, creds, src, stdout, stderr)
}

func runCampaign(ctx context.Context, cfg config.Campaign, creds config.Credentials, src core.RowSource, stdout, stderr io.Writer) int {
	logger := log.New(stdout, "", log.LstdFlags)
	summary, err := app.Run(ctx, cfg, creds, src, logger)
	summary.Print(stdout)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "campaign run failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}
	return 0
}

func runCache(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		_, _ = fmt.Fprintln(stderr, "cache requires a subcommand: stats or clear")
		return 2
	}
	action := args[0]
	fs := flag.NewFlagSet("cache "+action, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Campaign YAML file (optional)")
	cachePath := fs.String("cache", "", "Cache path override")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	if *cachePath != "" {
		cfg.Cache.Path = *cachePath
	}
	logger := log.New(stdout, "", log.LstdFlags)

	switch action {
	case "stats":
		err = app.CacheStats(cfg.Cache, stdout, logger)
	case "clear":
		err = app.ClearCache(cfg.Cache, logger)
		if err == nil {
			_, _ = fmt.Fprintln(stdout, "Cache cleared successfully")
		}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown cache subcommand: %s\n", action)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "cache %s failed: %s\n", action, redact.Secrets(err.Error()))
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `campaign: outbound email campaign for businesses with low-rated locations

Usage:
  campaign <command> [flags]

Commands:
  csv          Run over a local CSV of contacts
  sheets       Run over a Google Sheet of contacts
  cache stats  Show per-company cache hits and processed email count
  cache clear  Remove all cached locations and processed emails
  version      Print the version

Examples:
  campaign csv --input leads.csv --config campaign.yaml
  campaign csv --input leads.csv --mode test --lat 40.7128 --lng -74.006
  campaign sheets --sheet-id 1AbC... --range 'Leads!A:E'

Environment (lookup):
  GOOGLE_MAPS_API_KEY   Places API key (required)
  GOOGLE_MAPS_BASE_URL  Optional base URL override (proxies/testing)

Environment (delivery):
  DELIVERY_MODE         live (default) or test
  SENDER_EMAIL          From address
  GOOGLE_CLIENT_ID      OAuth2 client id (live mode)
  GOOGLE_CLIENT_SECRET  OAuth2 client secret (live mode)
  GOOGLE_REFRESH_TOKEN  OAuth2 refresh token (live mode)

Environment (sheets):
  GOOGLE_SHEET_ID       Default spreadsheet id
  GOOGLE_CREDENTIALS    Service account JSON

Environment (Gemini, optional opener):
  GEMINI_API_KEY        Gemini API key (required when gemini.enabled)
  GEMINI_MODEL          Model name override
  GEMINI_BASE_URL       Optional base URL override

`)
}
