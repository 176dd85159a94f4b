package types

import (
	"time"
)

// Unknown is the placeholder for any place name a resolver could not fill.
const Unknown = "Unknown"

// LifecycleOpened is the only lifecycle state an access event can be in.
const LifecycleOpened = "opened"

type LocationSource string

const (
	SourceGPS           LocationSource = "gps"
	SourceIPGeolocation LocationSource = "ip-geolocation"
	SourceLocalNetwork  LocationSource = "local-network"
	SourceUnavailable   LocationSource = "unavailable"
)

// Location is the best-effort place an access event came from.
// Country, Region and City are never empty; Latitude and Longitude are
// either both set or both nil.
type Location struct {
	Country        string         `json:"country"`
	Region         string         `json:"region"`
	City           string         `json:"city"`
	Latitude       *float64       `json:"latitude,omitempty"`
	Longitude      *float64       `json:"longitude,omitempty"`
	AccuracyMeters float64        `json:"accuracy_meters"`
	Source         LocationSource `json:"source"`
	Provider       string         `json:"provider,omitempty"`
}

func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// AccessEvent is one recorded open of a tracked document.
type AccessEvent struct {
	ID              int64
	DocumentID      string
	RecipientLabel  string
	OpenedAt        time.Time
	SourceIP        string
	UserAgent       string
	Location        Location
	EmailStatus     ChannelStatus
	ChatStatus      ChannelStatus
	LifecycleStatus string
}

// Normalized fills empty place names with Unknown, drops a half-set
// coordinate pair and defaults an empty source to unavailable.
func (l Location) Normalized() Location {
	if l.Country == "" {
		l.Country = Unknown
	}
	if l.Region == "" {
		l.Region = Unknown
	}
	if l.City == "" {
		l.City = Unknown
	}
	if !l.HasCoordinates() {
		l.Latitude, l.Longitude = nil, nil
	}
	if l.Source == "" {
		l.Source = SourceUnavailable
	}
	return l
}
