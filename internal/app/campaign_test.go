package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shpitdev/location-campaign/internal/config"
)

func fakeMaps(t *testing.T, searches *atomic.Int32) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/place/textsearch/json"):
			searches.Add(1)
			if !strings.Contains(r.URL.Query().Get("query"), "Acme") {
				_, _ = fmt.Fprint(w, `{"status":"ZERO_RESULTS","results":[]}`)
				return
			}
			_, _ = fmt.Fprint(w, `{"status":"OK","results":[{"place_id":"p1"}]}`)
		case strings.HasSuffix(r.URL.Path, "/place/details/json"):
			_, _ = fmt.Fprint(w, `{"status":"OK","result":{"name":"Acme Downtown","formatted_address":"1 Main St","rating":3.4,"user_ratings_total":321}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func writeLeads(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leads.csv")
	if err := os.WriteFile(path, []byte("First Name,Last Name,Email,Company,Title\n" + body), 0o644); err != nil {
		t.Fatalf("write leads: %v", err)
	}
	return path
}

func testConfig(t *testing.T, backend string) config.Campaign {
	t.Helper()
	cfg := config.Default()
	cfg.Pacing = 0
	cfg.Delivery.Mode = "test"
	cfg.Delivery.From = "sales@example.com"
	cfg.Cache.Backend = backend
	cfg.Cache.Path = filepath.Join(t.TempDir(), "state", "cache.db")
	return cfg
}

func TestRun_EndToEnd(t *testing.T) {
	for _, backend := range []string{config.CacheBackendFile, config.CacheBackendBolt} {
		t.Run(backend, func(t *testing.T) {
			var searches atomic.Int32
			creds := config.Credentials{MapsAPIKey: "maps-key", MapsBaseURL: fakeMaps(t, &searches)}
			cfg := testConfig(t, backend)
			if backend == config.CacheBackendFile {
				cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.json")
			}
			leads := writeLeads(t,
				"Ada,Lovelace,ada@example.com,Acme,CTO\n"+
					"Grace,Hopper,grace@example.com,Acme,\n"+
					"Alan,Turing,alan@example.com,Nowhere Co,\n")

			src, err := OpenCSV(leads)
			if err != nil {
				t.Fatalf("open csv: %v", err)
			}
			summary, err := Run(context.Background(), cfg, creds, src, nil)
			_ = src.Close()
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if summary.Sent != 2 || summary.NoLocations != 1 || summary.LookupCalls != 2 {
				t.Fatalf("unexpected summary: %#v", summary)
			}
			if n := searches.Load(); n != 2 {
				t.Fatalf("expected 2 searches, got %d", n)
			}

			src, err = OpenCSV(leads)
			if err != nil {
				t.Fatalf("reopen csv: %v", err)
			}
			summary, err = Run(context.Background(), cfg, creds, src, nil)
			_ = src.Close()
			if err != nil {
				t.Fatalf("second run: %v", err)
			}
			if summary.Sent != 0 || summary.Skipped != 2 || summary.NoLocations != 1 {
				t.Fatalf("unexpected second summary: %#v", summary)
			}
			if n := searches.Load(); n != 2 {
				t.Fatalf("second run should be served from cache, searches=%d", n)
			}

			var out bytes.Buffer
			if err := CacheStats(cfg.Cache, &out, nil); err != nil {
				t.Fatalf("stats: %v", err)
			}
			if !strings.Contains(out.String(), "Processed emails: 2") || !strings.Contains(out.String(), "Acme: 1 cache hits") {
				t.Fatalf("unexpected stats:\n%s", out.String())
			}

			if err := ClearCache(cfg.Cache, nil); err != nil {
				t.Fatalf("clear: %v", err)
			}
			out.Reset()
			if err := CacheStats(cfg.Cache, &out, nil); err != nil {
				t.Fatalf("stats after clear: %v", err)
			}
			if !strings.Contains(out.String(), "Companies cached: 0") {
				t.Fatalf("cache not cleared:\n%s", out.String())
			}
		})
	}
}

func TestRun_MissingMapsKeyFailsBeforeRows(t *testing.T) {
	src, err := OpenCSV(writeLeads(t, "Ada,Lovelace,ada@example.com,Acme,\n"))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer func() {
		_ = src.Close()
	}()
	cfg := testConfig(t, config.CacheBackendFile)
	_, err = Run(context.Background(), cfg, config.Credentials{}, src, nil)
	if err == nil || !strings.Contains(err.Error(), "GOOGLE_MAPS_API_KEY") {
		t.Fatalf("expected maps key error, got %v", err)
	}
	if _, statErr := os.Stat(cfg.Cache.Path); !os.IsNotExist(statErr) {
		t.Fatalf("cache should not be written, stat err=%v", statErr)
	}
}

func TestRun_LiveModeRequiresCredentials(t *testing.T) {
	src, err := OpenCSV(writeLeads(t, "Ada,Lovelace,ada@example.com,Acme,\n"))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer func() {
		_ = src.Close()
	}()
	cfg := testConfig(t, config.CacheBackendFile)
	cfg.Delivery.Mode = "live"
	_, err = Run(context.Background(), cfg, config.Credentials{MapsAPIKey: "k"}, src, nil)
	if err == nil || !strings.Contains(err.Error(), "email service initialization failed") {
		t.Fatalf("expected delivery init error, got %v", err)
	}
}

func TestOpenCSV_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.csv")
	if err := os.WriteFile(path, []byte("First Name,Email,Company\nAda,ada@example.com,Acme\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := OpenCSV(path)
	if err == nil || !strings.Contains(err.Error(), `"Last Name"`) {
		t.Fatalf("expected missing Last Name, got %v", err)
	}
}
