package geo_test

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/geo"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
	"github.com/BrandonDHaskell/docbeacon/internal/logging"
)

// spyProvider returns a canned result and counts calls.
type spyProvider struct {
	name string
	res  geo.Result
	err  error
	wait time.Duration

	mu    sync.Mutex
	calls int
}

func (s *spyProvider) Name() string { return s.name }

func (s *spyProvider) Lookup(ctx context.Context, _ netip.Addr) (geo.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return geo.Result{}, ctx.Err()
		}
	}
	return s.res, s.err
}

func (s *spyProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fptr(v float64) *float64 { return &v }

func newResolver(opts geo.Options, providers ...geo.Provider) *geo.Resolver {
	entries := make([]geo.ProviderEntry, 0, len(providers))
	for _, p := range providers {
		entries = append(entries, geo.ProviderEntry{Provider: p})
	}
	return geo.NewResolver(entries, opts, logging.Nop())
}

// ═══════════════════════════════════════════════════════════════════════════
// GPS
// ═══════════════════════════════════════════════════════════════════════════

func TestResolve_GPSIsAuthoritative(t *testing.T) {
	spy := &spyProvider{name: "ipapi", res: geo.Result{City: "Elsewhere", Latitude: fptr(1), Longitude: fptr(1)}}
	r := newResolver(geo.Options{}, spy)

	loc := r.Resolve(context.Background(), geo.Query{
		IP:  "8.8.8.8",
		GPS: &geo.GPSReading{Latitude: 40.7128, Longitude: -74.0060, AccuracyMeters: 15},
	})

	if loc.Source != types.SourceGPS {
		t.Fatalf("source = %s, want gps", loc.Source)
	}
	if *loc.Latitude != 40.7128 || *loc.Longitude != -74.0060 {
		t.Errorf("coordinates changed: %v,%v", *loc.Latitude, *loc.Longitude)
	}
	if loc.AccuracyMeters != 15 {
		t.Errorf("accuracy = %v, want 15", loc.AccuracyMeters)
	}
	if spy.Calls() != 0 {
		t.Errorf("provider called %d times without enrichment", spy.Calls())
	}
}

func TestResolve_GPSAccuracyDefaultsAndClamps(t *testing.T) {
	r := newResolver(geo.Options{GPSAccuracyCeiling: 10000})

	cases := []struct {
		name string
		in   float64
		want float64
	}{
		{"missing", 0, 50},
		{"negative", -3, 50},
		{"within", 9000, 9000},
		{"above ceiling", 250000, 10000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc := r.Resolve(context.Background(), geo.Query{
				IP:  "unknown",
				GPS: &geo.GPSReading{Latitude: 1, Longitude: 2, AccuracyMeters: tc.in},
			})
			if loc.AccuracyMeters != tc.want {
				t.Errorf("accuracy = %v, want %v", loc.AccuracyMeters, tc.want)
			}
		})
	}
}

func TestResolve_OutOfRangeGPSIgnored(t *testing.T) {
	r := newResolver(geo.Options{})

	loc := r.Resolve(context.Background(), geo.Query{
		IP:  "192.168.1.20",
		GPS: &geo.GPSReading{Latitude: 91, Longitude: 10, AccuracyMeters: 5},
	})
	if loc.Source != types.SourceLocalNetwork {
		t.Errorf("source = %s, want local-network", loc.Source)
	}
	if loc.HasCoordinates() {
		t.Error("expected no coordinates")
	}
}

func TestResolve_GPSEnrichedWithIPPlaceNames(t *testing.T) {
	spy := &spyProvider{name: "ipapi", res: geo.Result{Country: "United States", Region: "New York", City: "New York", Latitude: fptr(40.7), Longitude: fptr(-74)}}
	r := newResolver(geo.Options{EnrichGPSWithIP: true}, spy)

	loc := r.Resolve(context.Background(), geo.Query{
		IP:  "8.8.8.8",
		GPS: &geo.GPSReading{Latitude: 40.7128, Longitude: -74.0060, AccuracyMeters: 15},
	})

	if loc.Source != types.SourceGPS || loc.AccuracyMeters != 15 {
		t.Errorf("GPS source/accuracy must be kept: %+v", loc)
	}
	if *loc.Latitude != 40.7128 {
		t.Errorf("latitude replaced: %v", *loc.Latitude)
	}
	if loc.City != "New York" || loc.Country != "United States" {
		t.Errorf("place names not copied: %+v", loc)
	}
	if loc.Provider != "" {
		t.Errorf("provider should stay empty for gps, got %q", loc.Provider)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Local and unparseable addresses
// ═══════════════════════════════════════════════════════════════════════════

func TestResolve_LocalAddressesNeverCallProviders(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "10.0.0.5", "172.16.4.1", "192.168.1.20", "100.64.0.1", "100.127.255.254", "169.254.0.9", "0.0.0.0", "::1", "fe80::1", "fd00::1", "::ffff:192.168.0.1"} {
		t.Run(ip, func(t *testing.T) {
			spy := &spyProvider{name: "ipapi", res: geo.Result{City: "X"}}
			r := newResolver(geo.Options{EnrichGPSWithIP: true}, spy)

			loc := r.Resolve(context.Background(), geo.Query{IP: ip})

			if spy.Calls() != 0 {
				t.Fatalf("provider called %d times", spy.Calls())
			}
			if loc.Country != "Local" || loc.Region != types.Unknown || loc.City != "Internal" {
				t.Errorf("unexpected sentinel: %+v", loc)
			}
			if loc.Source != types.SourceLocalNetwork || loc.AccuracyMeters != geo.LocalNetworkAccuracy {
				t.Errorf("unexpected sentinel metadata: %+v", loc)
			}
		})
	}
}

func TestResolve_PublicAddressesAroundSharedRange(t *testing.T) {
	// Only 100.64.0.0/10 is shared address space.
	for _, ip := range []string{"100.63.255.255", "100.128.0.1"} {
		t.Run(ip, func(t *testing.T) {
			spy := &spyProvider{name: "ipapi", res: geo.Result{Country: "US", City: "Somewhere"}}
			r := newResolver(geo.Options{}, spy)

			loc := r.Resolve(context.Background(), geo.Query{IP: ip})
			if spy.Calls() != 1 || loc.Source != types.SourceIPGeolocation {
				t.Errorf("expected provider lookup, calls=%d loc=%+v", spy.Calls(), loc)
			}
		})
	}
}

func TestResolve_PublicAddressOutside172PrivateRange(t *testing.T) {
	// 172.32.0.0 is public; only 172.16.0.0/12 is private.
	spy := &spyProvider{name: "ipapi", res: geo.Result{Country: "US", City: "Somewhere"}}
	r := newResolver(geo.Options{}, spy)

	loc := r.Resolve(context.Background(), geo.Query{IP: "172.32.0.1"})
	if spy.Calls() != 1 || loc.Source != types.SourceIPGeolocation {
		t.Errorf("expected provider lookup, calls=%d loc=%+v", spy.Calls(), loc)
	}
}

func TestResolve_UnparseableIPIsUnavailable(t *testing.T) {
	spy := &spyProvider{name: "ipapi", res: geo.Result{City: "X"}}
	r := newResolver(geo.Options{}, spy)

	loc := r.Resolve(context.Background(), geo.Query{IP: "unknown"})
	if spy.Calls() != 0 {
		t.Errorf("provider called for unparseable ip")
	}
	if loc.Source != types.SourceUnavailable || loc.City != types.Unknown {
		t.Errorf("unexpected location: %+v", loc)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Provider fallback
// ═══════════════════════════════════════════════════════════════════════════

func TestResolve_FirstProviderWithCoordinatesWins(t *testing.T) {
	textOnly := &spyProvider{name: "ipapi", res: geo.Result{Country: "Germany", City: "Berlin"}}
	failing := &spyProvider{name: "ipinfo", err: errors.New("boom")}
	coords := &spyProvider{name: "geoplugin", res: geo.Result{Country: "Germany", Region: "Hesse", City: "Frankfurt", Latitude: fptr(50.11), Longitude: fptr(8.68)}}
	never := &spyProvider{name: "ip-api", res: geo.Result{City: "Paris", Latitude: fptr(48.8), Longitude: fptr(2.3)}}

	r := geo.NewResolver([]geo.ProviderEntry{
		{Provider: textOnly},
		{Provider: failing},
		{Provider: coords, CoordinateAccuracyMeters: 2000},
		{Provider: never},
	}, geo.Options{}, logging.Nop())

	loc := r.Resolve(context.Background(), geo.Query{IP: "8.8.8.8"})

	if loc.City != "Frankfurt" || loc.Provider != "geoplugin" {
		t.Errorf("expected geoplugin result, got %+v", loc)
	}
	if loc.AccuracyMeters != 2000 {
		t.Errorf("accuracy = %v, want 2000", loc.AccuracyMeters)
	}
	if never.Calls() != 0 {
		t.Error("providers after a coordinate hit must not be called")
	}
}

func TestResolve_TextOnlyFallback(t *testing.T) {
	empty := &spyProvider{name: "ipapi", res: geo.Result{}}
	text := &spyProvider{name: "ipinfo", res: geo.Result{Country: "FR", City: "Lyon"}}
	r := newResolver(geo.Options{}, empty, text)

	loc := r.Resolve(context.Background(), geo.Query{IP: "8.8.4.4"})

	if loc.City != "Lyon" || loc.Region != types.Unknown {
		t.Errorf("unexpected location: %+v", loc)
	}
	if loc.AccuracyMeters != geo.DefaultPlaceAccuracy || loc.HasCoordinates() {
		t.Errorf("expected text accuracy without coordinates: %+v", loc)
	}
}

func TestResolve_NothingResolvesIsUnavailable(t *testing.T) {
	r := newResolver(geo.Options{},
		&spyProvider{name: "ipapi", err: errors.New("timeout")},
		&spyProvider{name: "ipinfo", res: geo.Result{City: "Unknown"}},
	)

	loc := r.Resolve(context.Background(), geo.Query{IP: "1.1.1.1"})
	if loc.Source != types.SourceUnavailable || loc.AccuracyMeters != geo.UnavailableAccuracy {
		t.Errorf("unexpected location: %+v", loc)
	}
	if loc.Country == "" || loc.Region == "" || loc.City == "" {
		t.Errorf("place names must never be empty: %+v", loc)
	}
}

func TestResolve_ProviderTimeoutMovesOn(t *testing.T) {
	slow := &spyProvider{name: "ipapi", wait: time.Second, res: geo.Result{City: "Slow", Latitude: fptr(1), Longitude: fptr(1)}}
	fast := &spyProvider{name: "ipinfo", res: geo.Result{City: "Fast", Latitude: fptr(2), Longitude: fptr(2)}}
	r := newResolver(geo.Options{ProviderTimeout: 20 * time.Millisecond}, slow, fast)

	start := time.Now()
	loc := r.Resolve(context.Background(), geo.Query{IP: "9.9.9.9"})

	if loc.City != "Fast" {
		t.Errorf("expected fast provider, got %+v", loc)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("slow provider was not cut off")
	}
}

func TestResolver_ProviderNames(t *testing.T) {
	r := newResolver(geo.Options{}, &spyProvider{name: "ipapi"}, &spyProvider{name: "ipinfo"})
	got := r.ProviderNames()
	if len(got) != 2 || got[0] != "ipapi" || got[1] != "ipinfo" {
		t.Errorf("ProviderNames = %v", got)
	}
}
