package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"google.golang.org/genai"

	"github.com/shpitdev/location-campaign/internal/lead"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Personalizer asks Gemini for a short opener that references the contact's
// locations.
type Personalizer struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Personalizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Personalizer{
		client: client,
		model:  strings.TrimSpace(cfg.Model),
	}, nil
}

type responseSchema struct {
	Opener string `json:"opener"`
}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"opener": {Type: genai.TypeString},
	},
	Required: []string{"opener"},
}

// maxOpenerLen bounds what a model can inject into the message body.
const maxOpenerLen = 280

func (p *Personalizer) Opener(ctx context.Context, contact lead.Contact, locations []lead.Location) (string, error) {
	resp, err := p.client.Models.GenerateContent(
		ctx,
		p.model,
		genai.Text(buildPrompt(contact, locations)),
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   outputSchema,
		},
	)
	if err != nil {
		return "", fmt.Errorf("gemini: generate opener: %w", err)
	}
	return parseOpener(resp.Text())
}

func parseOpener(raw string) (string, error) {
	var parsed responseSchema
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", fmt.Errorf("gemini: parse structured json: %w", err)
	}
	opener := strings.Join(strings.Fields(parsed.Opener), " ")
	if len(opener) > maxOpenerLen {
		cut := maxOpenerLen
		for cut > 0 && !utf8.RuneStart(opener[cut]) {
			cut--
		}
		opener = strings.TrimSpace(opener[:cut])
	}
	return opener, nil
}

func buildPrompt(contact lead.Contact, locations []lead.Location) string {
	// The email address never goes to the model; name, title, and public
	// place data are enough for an opener.
	var b strings.Builder
	b.WriteString(strings.TrimSpace(`
You write the first sentence of a short, friendly business email.

Return ONLY a single JSON object with this key:
- opener (string; one sentence, at most 30 words, no greeting, no sign-off)

Rules:
- Mention the company by name.
- Do not invent facts beyond the data below.
- If you cannot write a good sentence, set opener to an empty string.
`))
	b.WriteString("\n\nRecipient first name: ")
	b.WriteString(contact.FirstName)
	if contact.Title != "" {
		b.WriteString("\nRecipient title: ")
		b.WriteString(contact.Title)
	}
	b.WriteString("\nCompany: ")
	b.WriteString(contact.Company)
	b.WriteString("\nLocations:")
	for _, l := range locations {
		fmt.Fprintf(&b, "\n- %s (%s): %.1f stars from %d reviews", l.Name, l.Address, l.Rating, l.TotalRatings)
	}
	b.WriteString("\n")
	return b.String()
}
