package delivery_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shpitdev/location-campaign/internal/delivery"
	"github.com/shpitdev/location-campaign/internal/lead"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    delivery.Mode
		wantErr bool
	}{
		{in: "", want: delivery.ModeLive},
		{in: "live", want: delivery.ModeLive},
		{in: " TEST ", want: delivery.ModeTest},
		{in: "dry-run", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := delivery.ParseMode(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %q err=%v want %q", got, err, tt.want)
			}
		})
	}
}

func TestTestMode(t *testing.T) {
	svc, err := delivery.New(context.Background(), delivery.Config{Mode: delivery.ModeTest, From: "sales@example.com"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := lead.Message{To: "ada@example.com", Subject: "hi", HTML: "<p>hi</p>"}
	id1, err := svc.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	id2, err := svc.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id1 == "" || id1 == id2 {
		t.Fatalf("expected distinct ids, got %q and %q", id1, id2)
	}
	if sent := svc.Sent(); len(sent) != 2 || sent[0].To != "ada@example.com" {
		t.Fatalf("unexpected recorded messages: %#v", sent)
	}

	if _, err := svc.Send(context.Background(), lead.Message{}); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
}

func TestNew_RequiresSender(t *testing.T) {
	if _, err := delivery.New(context.Background(), delivery.Config{Mode: delivery.ModeTest}, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLiveMode_ValidatesCredentials(t *testing.T) {
	tests := []struct {
		name    string
		cfg     delivery.Config
		missing string
	}{
		{name: "client id", cfg: delivery.Config{ClientSecret: "s", RefreshToken: "r"}, missing: "GOOGLE_CLIENT_ID"},
		{name: "client secret", cfg: delivery.Config{ClientID: "c", RefreshToken: "r"}, missing: "GOOGLE_CLIENT_SECRET"},
		{name: "refresh token", cfg: delivery.Config{ClientID: "c", ClientSecret: "s"}, missing: "GOOGLE_REFRESH_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Mode = delivery.ModeLive
			cfg.From = "sales@example.com"
			_, err := delivery.New(context.Background(), cfg, nil)
			if err == nil || !strings.Contains(err.Error(), tt.missing) {
				t.Fatalf("expected error naming %s, got %v", tt.missing, err)
			}
		})
	}
}

func TestLiveMode_TokenFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
	}))
	defer srv.Close()

	_, err := delivery.New(context.Background(), delivery.Config{
		Mode:         delivery.ModeLive,
		From:         "sales@example.com",
		ClientID:     "client",
		ClientSecret: "secret",
		RefreshToken: "refresh",
		TokenURL:     srv.URL,
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "access token") {
		t.Fatalf("expected access token error, got %v", err)
	}
}
