package types_test

import (
	"testing"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
)

func TestChannelStatus_TextForm(t *testing.T) {
	cases := []struct {
		status types.ChannelStatus
		want   string
	}{
		{types.Pending(), "pending"},
		{types.NotConfigured(), "not_configured"},
		{types.Sent(), "sent"},
		{types.Failed("http_error: 502"), "error: http_error: 502"},
		{types.Failed("  "), "error: unknown error"},
		{types.ChannelStatus{}, "pending"},
	}

	for _, tc := range cases {
		if got := tc.status.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
		if back := types.ParseChannelStatus(tc.want); back.String() != tc.want {
			t.Errorf("ParseChannelStatus(%q) = %q", tc.want, back.String())
		}
	}
}

func TestChannelStatus_IsTerminal(t *testing.T) {
	if types.Pending().IsTerminal() {
		t.Error("pending must not be terminal")
	}
	for _, s := range []types.ChannelStatus{types.NotConfigured(), types.Sent(), types.Failed("x")} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestParseChannelStatus_UnknownValueKeptAsError(t *testing.T) {
	got := types.ParseChannelStatus("api_error_500")
	if got.Kind != types.StatusError || got.Detail != "api_error_500" {
		t.Errorf("unexpected parse: %+v", got)
	}
}

func TestMapLinksFor(t *testing.T) {
	if types.MapLinksFor(types.Location{}) != nil {
		t.Error("expected nil links without coordinates")
	}

	lat, lon := 40.7128, -74.006
	links := types.MapLinksFor(types.Location{Latitude: &lat, Longitude: &lon})
	if links == nil {
		t.Fatal("expected links")
	}
	if links.GoogleMaps != "https://www.google.com/maps?q=40.7128,-74.006" {
		t.Errorf("google link: %s", links.GoogleMaps)
	}
	if links.AppleMaps != "https://maps.apple.com/?q=40.7128,-74.006" {
		t.Errorf("apple link: %s", links.AppleMaps)
	}
}

func TestFormatAccuracy(t *testing.T) {
	cases := map[float64]string{
		15:     "~15m",
		999:    "~999m",
		1000:   "~1.0km",
		50000:  "~50.0km",
		2500.4: "~2.5km",
	}
	for in, want := range cases {
		if got := types.FormatAccuracy(in); got != want {
			t.Errorf("FormatAccuracy(%v) = %q, want %q", in, got, want)
		}
	}
}
