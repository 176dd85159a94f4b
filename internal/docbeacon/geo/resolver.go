// Package geo turns a client IP and an optional browser GPS reading into a
// single best-effort location.
package geo

import (
	"context"
	"errors"
	"math"
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
	"github.com/BrandonDHaskell/docbeacon/internal/metrics"
)

const (
	LocalNetworkAccuracy = 50000.0
	UnavailableAccuracy  = 100000.0
)

// GPSReading is what the browser geolocation API reported.
type GPSReading struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
}

// Query is the input for one resolution.
type Query struct {
	IP  string
	GPS *GPSReading
}

// ProviderEntry pairs a provider with the accuracy attributed to its
// answers.
type ProviderEntry struct {
	Provider                 Provider
	CoordinateAccuracyMeters float64
	PlaceAccuracyMeters      float64
}

type Options struct {
	GPSDefaultAccuracy float64       // default 50
	GPSAccuracyCeiling float64       // default 10000
	EnrichGPSWithIP    bool          // copy place names from IP lookup into GPS records
	ProviderTimeout    time.Duration // per provider call, default 5s
}

type Resolver struct {
	providers []ProviderEntry
	opts      Options
	logger    zerolog.Logger
}

func NewResolver(providers []ProviderEntry, opts Options, logger zerolog.Logger) *Resolver {
	if opts.GPSDefaultAccuracy <= 0 {
		opts.GPSDefaultAccuracy = 50
	}
	if opts.GPSAccuracyCeiling <= 0 {
		opts.GPSAccuracyCeiling = 10000
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 5 * time.Second
	}
	for i := range providers {
		if providers[i].CoordinateAccuracyMeters <= 0 {
			providers[i].CoordinateAccuracyMeters = DefaultCoordinateAccuracy
		}
		if providers[i].PlaceAccuracyMeters <= 0 {
			providers[i].PlaceAccuracyMeters = DefaultPlaceAccuracy
		}
	}
	return &Resolver{
		providers: providers,
		opts:      opts,
		logger:    logger.With().Str("component", "geo").Logger(),
	}
}

// ProviderNames returns the configured lookup order.
func (r *Resolver) ProviderNames() []string {
	out := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p.Provider.Name())
	}
	return out
}

// Resolve never fails; when nothing is known the result is the unavailable
// record.
func (r *Resolver) Resolve(ctx context.Context, q Query) types.Location {
	var loc types.Location

	if gps, ok := r.gpsLocation(q.GPS); ok {
		loc = gps
		if r.opts.EnrichGPSWithIP {
			if ipLoc := r.resolveIP(ctx, q.IP); ipLoc.Source == types.SourceIPGeolocation {
				loc.Country, loc.Region, loc.City = ipLoc.Country, ipLoc.Region, ipLoc.City
			}
		}
	} else {
		loc = r.resolveIP(ctx, q.IP)
	}

	loc = loc.Normalized()
	metrics.RecordLocationSource(string(loc.Source))
	return loc
}

func (r *Resolver) gpsLocation(g *GPSReading) (types.Location, bool) {
	if g == nil || !ValidCoordinates(g.Latitude, g.Longitude) {
		return types.Location{}, false
	}

	acc := g.AccuracyMeters
	switch {
	case math.IsNaN(acc) || acc <= 0:
		acc = r.opts.GPSDefaultAccuracy
	case acc > r.opts.GPSAccuracyCeiling:
		acc = r.opts.GPSAccuracyCeiling
	}

	lat, lon := g.Latitude, g.Longitude
	return types.Location{
		Country:        types.Unknown,
		Region:         types.Unknown,
		City:           types.Unknown,
		Latitude:       &lat,
		Longitude:      &lon,
		AccuracyMeters: acc,
		Source:         types.SourceGPS,
	}, true
}

func (r *Resolver) resolveIP(ctx context.Context, raw string) types.Location {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return unavailable()
	}
	addr = addr.Unmap()

	if IsLocal(addr) {
		return types.Location{
			Country:        "Local",
			Region:         types.Unknown,
			City:           "Internal",
			AccuracyMeters: LocalNetworkAccuracy,
			Source:         types.SourceLocalNetwork,
		}
	}

	var fallback *types.Location
	for _, entry := range r.providers {
		if ctx.Err() != nil {
			break
		}
		res, ok := r.lookup(ctx, entry.Provider, addr)
		if !ok {
			continue
		}

		if res.HasCoordinates() {
			loc := fromResult(res, entry.Provider.Name(), entry.CoordinateAccuracyMeters)
			loc.Latitude, loc.Longitude = res.Latitude, res.Longitude
			return loc
		}
		if fallback == nil && res.HasPlace() {
			loc := fromResult(res, entry.Provider.Name(), entry.PlaceAccuracyMeters)
			fallback = &loc
		}
	}

	if fallback != nil {
		return *fallback
	}
	return unavailable()
}

func (r *Resolver) lookup(ctx context.Context, p Provider, addr netip.Addr) (Result, bool) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.ProviderTimeout)
	defer cancel()

	res, err := p.Lookup(callCtx, addr)
	switch {
	case errors.Is(err, ErrBreakerOpen):
		metrics.RecordGeoLookup(p.Name(), "breaker_open")
		return Result{}, false
	case err != nil:
		metrics.RecordGeoLookup(p.Name(), "error")
		r.logger.Debug().Err(err).Str("provider", p.Name()).Msg("geo lookup failed")
		return Result{}, false
	case res.HasCoordinates():
		metrics.RecordGeoLookup(p.Name(), "coordinates")
	case res.HasPlace():
		metrics.RecordGeoLookup(p.Name(), "text")
	default:
		metrics.RecordGeoLookup(p.Name(), "empty")
	}
	return res, true
}

// sharedAddressSpace is the carrier-grade NAT range (RFC 6598).
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// IsLocal reports whether addr belongs to a private, shared (CGNAT),
// loopback, link-local or unspecified range.
func IsLocal(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsPrivate() ||
		sharedAddressSpace.Contains(addr) ||
		addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}

func fromResult(res Result, provider string, accuracy float64) types.Location {
	return types.Location{
		Country:        placeOrUnknown(res.Country),
		Region:         placeOrUnknown(res.Region),
		City:           placeOrUnknown(res.City),
		AccuracyMeters: accuracy,
		Source:         types.SourceIPGeolocation,
		Provider:       provider,
	}
}

func placeOrUnknown(s string) string {
	if !known(s) {
		return types.Unknown
	}
	return strings.TrimSpace(s)
}

func unavailable() types.Location {
	return types.Location{
		Country:        types.Unknown,
		Region:         types.Unknown,
		City:           types.Unknown,
		AccuracyMeters: UnavailableAccuracy,
		Source:         types.SourceUnavailable,
	}
}
