package notify

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
)

// Notification is one access event to report.
type Notification struct {
	Event types.AccessEvent
}

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
}

const defaultSubject = `Document opened: {{.DocumentID}} - {{.Recipient}}`

const defaultBody = `DOCUMENT OPENED

Document:  {{.DocumentID}}
Recipient: {{.Recipient}}
Opened:    {{.OpenedAt}}
IP:        {{.SourceIP}}

Location:  {{.Place}}
Accuracy:  {{.Accuracy}}
Source:    {{.SourceLabel}}
{{- if .HasCoordinates}}

Coordinates: {{.Latitude}}, {{.Longitude}}
Google Maps: {{.GoogleMaps}}
Apple Maps:  {{.AppleMaps}}
{{- end}}

Device: {{.UserAgent}}
`

// view is the data handed to message templates.
type view struct {
	DocumentID     string
	Recipient      string
	OpenedAt       string
	SourceIP       string
	Country        string
	Region         string
	City           string
	Place          string
	Accuracy       string
	SourceLabel    string
	HasCoordinates bool
	Latitude       string
	Longitude      string
	GoogleMaps     string
	AppleMaps      string
	UserAgent      string
}

// Renderer turns a Notification into a Message using text templates.
type Renderer struct {
	subject *template.Template
	body    *template.Template
}

// NewRenderer parses bodyTemplate, or the built-in body when it is empty.
func NewRenderer(bodyTemplate string) (*Renderer, error) {
	if strings.TrimSpace(bodyTemplate) == "" {
		bodyTemplate = defaultBody
	}
	subject, err := template.New("subject").Option("missingkey=error").Parse(defaultSubject)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	body, err := template.New("body").Option("missingkey=error").Parse(bodyTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}
	return &Renderer{subject: subject, body: body}, nil
}

// NewRendererFromFile loads the body template from path; an empty path
// selects the built-in template.
func NewRendererFromFile(path string) (*Renderer, error) {
	if path == "" {
		return NewRenderer("")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	return NewRenderer(string(b))
}

func (r *Renderer) Render(n Notification) (Message, error) {
	v := newView(n.Event)

	var subject, body strings.Builder
	if err := r.subject.Execute(&subject, v); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := r.body.Execute(&body, v); err != nil {
		return Message{}, fmt.Errorf("render body: %w", err)
	}
	return Message{Subject: subject.String(), Body: body.String()}, nil
}

func newView(ev types.AccessEvent) view {
	loc := ev.Location.Normalized()
	v := view{
		DocumentID:  ev.DocumentID,
		Recipient:   ev.RecipientLabel,
		OpenedAt:    ev.OpenedAt.UTC().Format(time.RFC3339),
		SourceIP:    ev.SourceIP,
		Country:     loc.Country,
		Region:      loc.Region,
		City:        loc.City,
		Place:       place(loc),
		Accuracy:    types.FormatAccuracy(loc.AccuracyMeters),
		SourceLabel: sourceLabel(loc),
		UserAgent:   ev.UserAgent,
	}
	if links := types.MapLinksFor(loc); links != nil {
		v.HasCoordinates = true
		v.Latitude = strconv.FormatFloat(*loc.Latitude, 'f', 6, 64)
		v.Longitude = strconv.FormatFloat(*loc.Longitude, 'f', 6, 64)
		v.GoogleMaps = links.GoogleMaps
		v.AppleMaps = links.AppleMaps
	}
	return v
}

func place(l types.Location) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.City, l.Region, l.Country} {
		if p != "" && p != types.Unknown {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "Unknown location"
	}
	return strings.Join(parts, ", ")
}

func sourceLabel(l types.Location) string {
	switch l.Source {
	case types.SourceGPS:
		return "Browser GPS"
	case types.SourceIPGeolocation:
		if l.Provider != "" {
			return "IP geolocation (" + l.Provider + ")"
		}
		return "IP geolocation"
	case types.SourceLocalNetwork:
		return "Local network"
	default:
		return "Unavailable"
	}
}
