package types

import (
	"fmt"
	"strconv"
)

type TrackAck struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type CreateDocumentRequest struct {
	DocumentID     string `json:"document_id,omitempty" validate:"omitempty,max=128,docid"`
	RecipientLabel string `json:"recipient_label,omitempty" validate:"omitempty,max=128,docid"`
	Content        string `json:"content" validate:"required"`
}

type CreateDocumentResponse struct {
	Success          bool   `json:"success"`
	DocumentID       string `json:"document_id"`
	RecipientLabel   string `json:"recipient_label"`
	HTMLContent      string `json:"html_content"`
	TrackingURL      string `json:"tracking_url"`
	DownloadFilename string `json:"download_filename"`
}

type MapLinks struct {
	GoogleMaps string `json:"google_maps"`
	AppleMaps  string `json:"apple_maps"`
}

// MapLinksFor returns nil when the location has no coordinates.
func MapLinksFor(l Location) *MapLinks {
	if !l.HasCoordinates() {
		return nil
	}
	q := formatCoord(*l.Latitude) + "," + formatCoord(*l.Longitude)
	return &MapLinks{
		GoogleMaps: "https://www.google.com/maps?q=" + q,
		AppleMaps:  "https://maps.apple.com/?q=" + q,
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// AccessView is the analytics representation of an AccessEvent.
type AccessView struct {
	ID              int64         `json:"id"`
	DocumentID      string        `json:"document_id"`
	RecipientLabel  string        `json:"recipient_label"`
	OpenedAt        string        `json:"opened_at"`
	SourceIP        string        `json:"source_ip"`
	UserAgent       string        `json:"user_agent"`
	Location        Location      `json:"location"`
	EmailStatus     ChannelStatus `json:"email_status"`
	ChatStatus      ChannelStatus `json:"chat_status"`
	LifecycleStatus string        `json:"lifecycle_status"`
	MapLinks        *MapLinks     `json:"map_links,omitempty"`
}

type AnalyticsResponse struct {
	DocumentID string       `json:"document_id"`
	TotalOpens int          `json:"total_opens"`
	Accesses   []AccessView `json:"accesses"`
}

type ConfigStatus struct {
	EmailConfigured bool     `json:"email_configured"`
	ChatConfigured  bool     `json:"chat_configured"`
	EmailFrom       string   `json:"email_from"`
	SMTPServer      string   `json:"smtp_server"`
	SMTPPort        int      `json:"smtp_port"`
	GeoProviders    []string `json:"geo_providers"`
}

type ChannelTestResponse struct {
	Success bool          `json:"success"`
	Channel string        `json:"channel"`
	Status  ChannelStatus `json:"status"`
}

// FormatAccuracy renders a radius the way notifications show it: "~15m"
// below a kilometre, "~1.5km" above.
func FormatAccuracy(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("~%.0fm", meters)
	}
	return fmt.Sprintf("~%.1fkm", meters/1000)
}
