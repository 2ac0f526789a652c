package lead

import (
	"fmt"
	"strings"

	"github.com/shpitdev/location-campaign/pkg/pipeline/core"
)

// Input column names.
const (
	ColumnFirstName = "First Name"
	ColumnLastName  = "Last Name"
	ColumnEmail     = "Email"
	ColumnCompany   = "Company"
	ColumnTitle     = "Title"
)

// RequiredColumns must all be present in a row source header.
var RequiredColumns = []string{ColumnFirstName, ColumnLastName, ColumnEmail, ColumnCompany}

// Contact is one lead read from the input.
type Contact struct {
	FirstName string
	LastName  string
	Email     string
	Company   string
	Title     string
}

// ContactFromRow maps a row to a Contact. Every required column must carry a
// value; Title is optional.
func ContactFromRow(row core.Row) (Contact, error) {
	c := Contact{
		FirstName: row.Get(ColumnFirstName),
		LastName:  row.Get(ColumnLastName),
		Email:     row.Get(ColumnEmail),
		Company:   row.Get(ColumnCompany),
		Title:     row.Get(ColumnTitle),
	}
	var empty []string
	if c.FirstName == "" {
		empty = append(empty, ColumnFirstName)
	}
	if c.LastName == "" {
		empty = append(empty, ColumnLastName)
	}
	if c.Email == "" {
		empty = append(empty, ColumnEmail)
	} else if !strings.Contains(c.Email, "@") {
		return c, fmt.Errorf("invalid email %q", c.Email)
	}
	if c.Company == "" {
		empty = append(empty, ColumnCompany)
	}
	if len(empty) > 0 {
		return c, fmt.Errorf("empty required fields: %s", strings.Join(empty, ", "))
	}
	return c, nil
}

// EmailKey normalizes an address for dedup.
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LatLng is a geographic point.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Location is a place returned by the lookup client.
type Location struct {
	Name         string  `json:"name"`
	Rating       float64 `json:"rating"`
	Address      string  `json:"address"`
	TotalRatings int     `json:"totalRatings"`
}

// Attachment is a file embedded in an outgoing message. ContentID is the
// cid referenced from the HTML body.
type Attachment struct {
	Filename  string
	Path      string
	ContentID string
}

// Message is a composed email ready for delivery.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}
