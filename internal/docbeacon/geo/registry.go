package geo

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

const (
	DefaultCoordinateAccuracy = 1000.0
	DefaultPlaceAccuracy      = 5000.0
)

// ProviderConfig selects and configures the IP geolocation providers.
type ProviderConfig struct {
	// Names is the lookup order, e.g. ipapi, ipinfo, geoplugin.
	Names       []string
	IPInfoToken string
	// BaseURLs overrides a provider's endpoint by name.
	BaseURLs map[string]string
	Breaker  BreakerSettings
}

// KnownProviders lists the provider names BuildProviders accepts.
func KnownProviders() []string {
	return []string{"ipapi", "ipinfo", "geoplugin", "ip-api"}
}

// BuildProviders constructs the ordered provider list, each wrapped in its
// own circuit breaker.
func BuildProviders(cfg ProviderConfig, client *http.Client, logger zerolog.Logger) ([]ProviderEntry, error) {
	if client == nil {
		client = &http.Client{}
	}

	out := make([]ProviderEntry, 0, len(cfg.Names))
	seen := make(map[string]bool)
	for _, raw := range cfg.Names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		base := cfg.BaseURLs[name]
		entry := ProviderEntry{
			CoordinateAccuracyMeters: DefaultCoordinateAccuracy,
			PlaceAccuracyMeters:      DefaultPlaceAccuracy,
		}
		var p Provider
		switch name {
		case "ipapi":
			p = NewIPAPI(base, client)
		case "ipinfo":
			p = NewIPInfo(base, cfg.IPInfoToken, client)
		case "geoplugin":
			p = NewGeoPlugin(base, client)
			entry.CoordinateAccuracyMeters = 2000
		case "ip-api":
			p = NewIPAPICom(base, client)
		default:
			return nil, fmt.Errorf("unknown geo provider %q (known: %s)", raw, strings.Join(KnownProviders(), ", "))
		}
		entry.Provider = WithBreaker(p, cfg.Breaker, logger)
		out = append(out, entry)
	}
	return out, nil
}
