package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/shpitdev/location-campaign/internal/lead"
)

// Mode selects the outbound transport.
type Mode string

const (
	// ModeLive sends through Gmail SMTP with OAuth2.
	ModeLive Mode = "live"
	// ModeTest records messages in memory and never touches the network.
	ModeTest Mode = "test"
)

// ParseMode normalizes raw; empty means live.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeLive:
		return ModeLive, nil
	case ModeTest:
		return ModeTest, nil
	default:
		return "", fmt.Errorf("unknown delivery mode %q (want live or test)", raw)
	}
}

type Config struct {
	Mode Mode
	From string

	SMTPHost string
	SMTPPort int

	ClientID     string
	ClientSecret string
	RefreshToken string
	// TokenURL overrides the Google OAuth2 token endpoint.
	TokenURL string
}

type transport interface {
	send(ctx context.Context, from string, msg lead.Message) (string, error)
}

// Service delivers composed messages. It is ready to send once New returns.
type Service struct {
	from      string
	mode      Mode
	transport transport
	logger    *log.Logger
}

// New builds the transport for cfg.Mode. Live mode checks credentials,
// obtains an access token and verifies the SMTP connection before returning.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Service, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		return nil, errors.New("delivery: sender address is required")
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeLive
	}

	s := &Service{from: from, mode: mode, logger: logger}
	switch mode {
	case ModeTest:
		s.transport = &memoryTransport{}
	case ModeLive:
		t, err := newSMTPTransport(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Printf("delivery: SMTP connection verified host=%s from=%s", t.host, from)
		s.transport = t
	default:
		return nil, fmt.Errorf("unknown delivery mode %q", mode)
	}
	return s, nil
}

func (s *Service) Mode() Mode { return s.mode }

// Send delivers msg and returns its message id.
func (s *Service) Send(ctx context.Context, msg lead.Message) (string, error) {
	if strings.TrimSpace(msg.To) == "" {
		return "", errors.New("email sending failed: empty recipient")
	}
	id, err := s.transport.send(ctx, s.from, msg)
	if err != nil {
		return "", fmt.Errorf("email sending failed: %w", err)
	}
	return id, nil
}

// Sent returns the messages recorded in test mode.
func (s *Service) Sent() []lead.Message {
	mt, ok := s.transport.(*memoryTransport)
	if !ok {
		return nil
	}
	return mt.messages()
}

type memoryTransport struct {
	mu   sync.Mutex
	sent []lead.Message
}

func (t *memoryTransport) send(_ context.Context, _ string, msg lead.Message) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, msg)
	return "<" + uuid.NewString() + "@test.invalid>", nil
}

func (t *memoryTransport) messages() []lead.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]lead.Message, len(t.sent))
	copy(out, t.sent)
	return out
}
