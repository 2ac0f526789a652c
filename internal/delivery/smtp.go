package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/shpitdev/location-campaign/internal/lead"
)

const (
	defaultSMTPHost = "smtp.gmail.com"
	defaultSMTPPort = 587

	oauthRedirectURL = "https://developers.google.com/oauthplayground"
)

// smtpTransport sends over SMTP with XOAUTH2, refreshing the access token as
// it expires.
type smtpTransport struct {
	host   string
	port   int
	user   string
	tokens oauth2.TokenSource
}

func newSMTPTransport(ctx context.Context, cfg Config) (*smtpTransport, error) {
	required := []struct {
		name  string
		value string
	}{
		{"GOOGLE_CLIENT_ID", cfg.ClientID},
		{"GOOGLE_CLIENT_SECRET", cfg.ClientSecret},
		{"GOOGLE_REFRESH_TOKEN", cfg.RefreshToken},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, fmt.Errorf("missing required environment variable: %s", r.name)
		}
	}

	endpoint := google.Endpoint
	if strings.TrimSpace(cfg.TokenURL) != "" {
		endpoint.TokenURL = strings.TrimSpace(cfg.TokenURL)
	}
	conf := &oauth2.Config{
		ClientID:     strings.TrimSpace(cfg.ClientID),
		ClientSecret: strings.TrimSpace(cfg.ClientSecret),
		Endpoint:     endpoint,
		RedirectURL:  oauthRedirectURL,
		Scopes:       []string{"https://mail.google.com/"},
	}
	t := &smtpTransport{
		host:   strings.TrimSpace(cfg.SMTPHost),
		port:   cfg.SMTPPort,
		user:   strings.TrimSpace(cfg.From),
		tokens: conf.TokenSource(ctx, &oauth2.Token{RefreshToken: strings.TrimSpace(cfg.RefreshToken)}),
	}
	if t.host == "" {
		t.host = defaultSMTPHost
	}
	if t.port <= 0 {
		t.port = defaultSMTPPort
	}

	tok, err := t.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("get access token: empty token")
	}

	client, err := t.client(tok.AccessToken)
	if err != nil {
		return nil, err
	}
	if err := client.DialWithContext(ctx); err != nil {
		return nil, fmt.Errorf("verify SMTP connection: %w", err)
	}
	_ = client.Close()
	return t, nil
}

func (t *smtpTransport) client(accessToken string) (*mail.Client, error) {
	c, err := mail.NewClient(t.host,
		mail.WithPort(t.port),
		mail.WithSMTPAuth(mail.SMTPAuthXOAUTH2),
		mail.WithUsername(t.user),
		mail.WithPassword(accessToken),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return c, nil
}

func (t *smtpTransport) send(ctx context.Context, from string, msg lead.Message) (string, error) {
	m, err := buildMsg(from, msg)
	if err != nil {
		return "", err
	}
	tok, err := t.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	client, err := t.client(tok.AccessToken)
	if err != nil {
		return "", err
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", err
	}
	return m.GetMessageID(), nil
}

func buildMsg(from string, msg lead.Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := m.To(strings.TrimSpace(msg.To)); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	for _, a := range msg.Attachments {
		opts := []mail.FileOption{}
		if a.Filename != "" {
			opts = append(opts, mail.WithFileName(a.Filename))
		}
		if a.ContentID != "" {
			opts = append(opts, mail.WithFileContentID(a.ContentID))
			m.EmbedFile(a.Path, opts...)
			continue
		}
		m.AttachFile(a.Path, opts...)
	}
	m.SetMessageID()
	m.SetDate()
	return m, nil
}
