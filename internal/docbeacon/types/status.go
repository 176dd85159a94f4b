package types

import (
	"strings"

	json "github.com/goccy/go-json"
)

type StatusKind string

const (
	StatusPending       StatusKind = "pending"
	StatusNotConfigured StatusKind = "not_configured"
	StatusSent          StatusKind = "sent"
	StatusError         StatusKind = "error"
)

const errorPrefix = "error: "

// ChannelStatus is the outcome of one notification channel for one event.
// Detail is only meaningful for StatusError.
type ChannelStatus struct {
	Kind   StatusKind
	Detail string
}

func Pending() ChannelStatus       { return ChannelStatus{Kind: StatusPending} }
func NotConfigured() ChannelStatus { return ChannelStatus{Kind: StatusNotConfigured} }
func Sent() ChannelStatus          { return ChannelStatus{Kind: StatusSent} }

func Failed(detail string) ChannelStatus {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		detail = "unknown error"
	}
	return ChannelStatus{Kind: StatusError, Detail: detail}
}

func (s ChannelStatus) IsTerminal() bool {
	switch s.Kind {
	case StatusNotConfigured, StatusSent, StatusError:
		return true
	default:
		return false
	}
}

// String returns the persisted text form: "pending", "not_configured",
// "sent" or "error: <detail>".
func (s ChannelStatus) String() string {
	if s.Kind == StatusError {
		return errorPrefix + s.Detail
	}
	if s.Kind == "" {
		return string(StatusPending)
	}
	return string(s.Kind)
}

// ParseChannelStatus is the inverse of String. Unrecognised values are kept
// as errors so nothing stored is ever lost.
func ParseChannelStatus(v string) ChannelStatus {
	v = strings.TrimSpace(v)
	switch StatusKind(v) {
	case StatusPending, "":
		return Pending()
	case StatusNotConfigured:
		return NotConfigured()
	case StatusSent:
		return Sent()
	case StatusError:
		return Failed("")
	}
	if strings.HasPrefix(v, errorPrefix) {
		return Failed(strings.TrimPrefix(v, errorPrefix))
	}
	return Failed(v)
}

func (s ChannelStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ChannelStatus) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = ParseChannelStatus(v)
	return nil
}
