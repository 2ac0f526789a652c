package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/shpitdev/location-campaign/internal/compose"
	"github.com/shpitdev/location-campaign/internal/lead"
)

// Campaign is the operator-facing campaign file.
//
// Example (YAML):
//
//	center:
//	  lat: 33.8617
//	  lng: -118.1671
//	search:
//	  radius_miles: 25
//	  max_rating: 4.0
//	  min_ratings: 100
//	pacing: 1s
//	cache:
//	  backend: file
//	  path: location-cache.json
//	delivery:
//	  mode: live
//	  from: sales@example.com
type Campaign struct {
	Center    lead.LatLng       `yaml:"center"`
	Search    Search            `yaml:"search"`
	Pacing    time.Duration     `yaml:"pacing"`
	Cache     Cache             `yaml:"cache"`
	Delivery  Delivery          `yaml:"delivery"`
	Signature compose.Signature `yaml:"signature"`
	Gemini    Gemini            `yaml:"gemini"`
}

type Search struct {
	RadiusMiles        float64 `yaml:"radius_miles"`
	MaxRating          float64 `yaml:"max_rating"`
	MinRatings         int     `yaml:"min_ratings"`
	RateLimitRPS       float64 `yaml:"rate_limit_rps"`
	DetailsConcurrency int     `yaml:"details_concurrency"`
}

const (
	CacheBackendFile = "file"
	CacheBackendBolt = "bolt"
)

type Cache struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type Delivery struct {
	Mode     string `yaml:"mode"`
	From     string `yaml:"from"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
}

type Gemini struct {
	// Enabled turns on the generated opener. GEMINI_API_KEY must be set.
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
}

// Default returns the built-in campaign settings.
func Default() Campaign {
	return Campaign{
		Center: lead.LatLng{Lat: 33.8617, Lng: -118.1671},
		Search: Search{
			RadiusMiles:        25,
			MaxRating:          4.0,
			MinRatings:         100,
			RateLimitRPS:       5,
			DetailsConcurrency: 4,
		},
		Pacing: time.Second,
		Cache: Cache{
			Backend: CacheBackendFile,
			Path:    "location-cache.json",
		},
		Delivery: Delivery{
			Mode:     "live",
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
		Signature: compose.Signature{
			LogoContentID: "company-logo",
		},
		Gemini: Gemini{
			Model: "gemini-2.0-flash",
		},
	}
}

// Load reads path over Default. An empty path returns Default unchanged.
func Load(path string) (Campaign, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Campaign{}, fmt.Errorf("read campaign config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Campaign{}, fmt.Errorf("parse campaign config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Campaign{}, err
	}
	return cfg, nil
}

func (c Campaign) Validate() error {
	var errs []error
	if c.Center.Lat < -90 || c.Center.Lat > 90 {
		errs = append(errs, fmt.Errorf("center.lat %g out of range", c.Center.Lat))
	}
	if c.Center.Lng < -180 || c.Center.Lng > 180 {
		errs = append(errs, fmt.Errorf("center.lng %g out of range", c.Center.Lng))
	}
	if c.Search.RadiusMiles <= 0 {
		errs = append(errs, errors.New("search.radius_miles must be positive"))
	}
	if c.Search.MaxRating < 0 || c.Search.MaxRating > 5 {
		errs = append(errs, fmt.Errorf("search.max_rating %g out of range [0,5]", c.Search.MaxRating))
	}
	if c.Search.MinRatings < 0 {
		errs = append(errs, errors.New("search.min_ratings must not be negative"))
	}
	if c.Pacing < 0 {
		errs = append(errs, errors.New("pacing must not be negative"))
	}
	switch c.Cache.Backend {
	case CacheBackendFile, CacheBackendBolt:
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q (want file or bolt)", c.Cache.Backend))
	}
	if strings.TrimSpace(c.Cache.Path) == "" {
		errs = append(errs, errors.New("cache.path is required"))
	}
	return errors.Join(errs...)
}

// Credentials are secrets read from the environment.
type Credentials struct {
	MapsAPIKey string `env:"GOOGLE_MAPS_API_KEY"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRefreshToken string `env:"GOOGLE_REFRESH_TOKEN"`

	// SheetsCredentials is a service account JSON document.
	SheetsCredentials string `env:"GOOGLE_CREDENTIALS"`
	SheetID           string `env:"GOOGLE_SHEET_ID"`

	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	GeminiModel   string `env:"GEMINI_MODEL"`
	GeminiBaseURL string `env:"GEMINI_BASE_URL"`

	MapsBaseURL  string `env:"GOOGLE_MAPS_BASE_URL"`
	DeliveryMode string `env:"DELIVERY_MODE"`
	SenderEmail  string `env:"SENDER_EMAIL"`
}

// LoadCredentials parses Credentials from the process environment.
func LoadCredentials() (Credentials, error) {
	var c Credentials
	if err := env.Parse(&c); err != nil {
		return Credentials{}, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}

// Apply overlays environment overrides onto the campaign file.
func (c Credentials) Apply(cfg *Campaign) {
	if v := strings.TrimSpace(c.DeliveryMode); v != "" {
		cfg.Delivery.Mode = v
	}
	if v := strings.TrimSpace(c.SenderEmail); v != "" {
		cfg.Delivery.From = v
	}
	if v := strings.TrimSpace(c.GeminiModel); v != "" {
		cfg.Gemini.Model = v
	}
}
