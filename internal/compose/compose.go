package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shpitdev/location-campaign/internal/lead"
)

// Personalizer writes an optional one-sentence opener for a contact.
type Personalizer interface {
	Opener(ctx context.Context, contact lead.Contact, locations []lead.Location) (string, error)
}

// Signature identifies the sender in the message footer.
type Signature struct {
	Name    string `yaml:"name"`
	Title   string `yaml:"title"`
	Company string `yaml:"company"`
	Phone   string `yaml:"phone"`

	// LogoPath is embedded inline when set.
	LogoPath      string `yaml:"logo_path"`
	LogoContentID string `yaml:"logo_content_id"`
}

// Composer renders campaign emails from a fixed template.
type Composer struct {
	sig Signature
}

func New(sig Signature) *Composer {
	if strings.TrimSpace(sig.LogoContentID) == "" {
		sig.LogoContentID = "company-logo"
	}
	return &Composer{sig: sig}
}

type bodyData struct {
	FirstName     string
	Opener        string
	Locations     []string
	LowestRating  string
	Product       string
	Sig           Signature
	LogoContentID string
}

var bodyTemplate = template.Must(template.New("body").Parse(`<p>Hi {{.FirstName}},</p>
{{- if .Opener}}
<p>{{.Opener}}</p>
{{- end}}
<p>I noticed the businesses at locations {{range $i, $l := .Locations}}{{if $i}} and {{end}}{{$l}}{{end}} respectively.</p>
<p>Your {{.LowestRating}} star rating can be improved upon pretty easily. 77% of consumers are willing to leave a review if asked.</p>
<p>{{.Product}} is a simple and straightforward technology that makes it easier for customers to leave high quality, SEO rich reviews.</p>
<p>We'd give you a unique QR code to put into your customer communications (post service). All customers have to do is scan, tap, and click submit and we'll start generating strong reviews and ratings for your business.</p>
<p>It's a minimal effort solution for a high impact return.</p>
<p>Let me know if you're open to trying it for a few weeks.</p>
<div style="margin-top: 20px; border-top: 1px solid #eee; padding-top: 20px;">
<p style="margin: 0;">Best regards,</p>
<p style="margin: 0;">{{.Sig.Name}}</p>
{{- if .Sig.Title}}
<p style="margin: 0; color: #666;">{{.Sig.Title}}{{if .Sig.Company}} | {{.Sig.Company}}{{end}}</p>
{{- end}}
{{- if .Sig.Phone}}
<p style="margin: 0;">{{.Sig.Phone}}</p>
{{- end}}
{{- if .LogoContentID}}
<div style="margin-top: 15px;"><img src="cid:{{.LogoContentID}}" alt="{{.Sig.Company}}" style="height: 40px; width: auto;"></div>
{{- end}}
</div>
`))

// Compose builds the message for contact. locations must be non-empty; the
// subject names the first location.
func (c *Composer) Compose(contact lead.Contact, locations []lead.Location, opener string) (lead.Message, error) {
	if len(locations) == 0 {
		return lead.Message{}, errors.New("compose: no locations")
	}
	if strings.TrimSpace(contact.Email) == "" {
		return lead.Message{}, errors.New("compose: empty recipient")
	}

	lowest := locations[0].Rating
	lines := make([]string, 0, len(locations))
	for _, l := range locations {
		if l.Rating < lowest {
			lowest = l.Rating
		}
		lines = append(lines, fmt.Sprintf("%s has Google ratings of %s", l.Address, formatRating(l.Rating)))
	}

	product := strings.TrimSpace(c.sig.Company)
	if product == "" {
		product = "Our platform"
	}
	data := bodyData{
		FirstName:    strings.TrimSpace(contact.FirstName),
		Opener:       strings.TrimSpace(opener),
		Locations:    lines,
		LowestRating: formatRating(lowest),
		Product:      product,
		Sig:          c.sig,
	}
	var attachments []lead.Attachment
	if strings.TrimSpace(c.sig.LogoPath) != "" {
		data.LogoContentID = c.sig.LogoContentID
		attachments = append(attachments, lead.Attachment{
			Filename:  filepath.Base(c.sig.LogoPath),
			Path:      c.sig.LogoPath,
			ContentID: c.sig.LogoContentID,
		})
	}

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return lead.Message{}, fmt.Errorf("compose: render body: %w", err)
	}
	return lead.Message{
		To:          strings.TrimSpace(contact.Email),
		Subject:     fmt.Sprintf("Improve %s Customer Reviews", locations[0].Name),
		HTML:        buf.String(),
		Attachments: attachments,
	}, nil
}

func formatRating(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}
