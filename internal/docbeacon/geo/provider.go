package geo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
)

// maxBody caps how much of a provider response is read.
const maxBody = 64 << 10

// ErrNoData is returned by a provider that answered but knows nothing
// about the address (reserved range, quota notice, "fail" status).
var ErrNoData = errors.New("geo: provider returned no data")

// Result is what one IP geolocation provider knows about an address.
// Empty strings mean unknown.
type Result struct {
	Country   string
	Region    string
	City      string
	Latitude  *float64
	Longitude *float64
}

func (r Result) HasCoordinates() bool {
	return r.Latitude != nil && r.Longitude != nil
}

func (r Result) HasPlace() bool {
	return known(r.City) || known(r.Country)
}

func known(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && !strings.EqualFold(s, types.Unknown)
}

// Provider looks up one address. Implementations must honour ctx.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, ip netip.Addr) (Result, error)
}

// HTTPProvider is a JSON-over-HTTP geolocation API.
type HTTPProvider struct {
	name   string
	client *http.Client
	urlFor func(ip netip.Addr) string
	decode func(body []byte) (Result, error)
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) Lookup(ctx context.Context, ip netip.Addr) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.urlFor(ip), nil)
	if err != nil {
		return Result{}, fmt.Errorf("%s: build request: %w", p.name, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "docbeacon/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return Result{}, fmt.Errorf("%s: http status %d", p.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Result{}, fmt.Errorf("%s: read body: %w", p.name, err)
	}

	res, err := p.decode(body)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", p.name, err)
	}
	return sanitize(res), nil
}

// sanitize drops coordinate pairs that are half-set, out of range, or
// exactly 0,0 (what several providers report for "unknown").
func sanitize(r Result) Result {
	r.Country = strings.TrimSpace(r.Country)
	r.Region = strings.TrimSpace(r.Region)
	r.City = strings.TrimSpace(r.City)

	if !r.HasCoordinates() || !ValidCoordinates(*r.Latitude, *r.Longitude) ||
		(*r.Latitude == 0 && *r.Longitude == 0) {
		r.Latitude, r.Longitude = nil, nil
	}
	return r
}

// ValidCoordinates reports whether lat/lon are finite and in range.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// flexFloat accepts a JSON number, a numeric string, an empty string or null.
type flexFloat struct {
	v  float64
	ok bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	f.v, f.ok = v, true
	return nil
}

func (f flexFloat) ptr() *float64 {
	if !f.ok {
		return nil
	}
	v := f.v
	return &v
}

// ── ipapi.co ────────────────────────────────────────────────────────────────

type ipapiResponse struct {
	Error       bool      `json:"error"`
	Reason      string    `json:"reason"`
	Reserved    bool      `json:"reserved"`
	CountryName string    `json:"country_name"`
	Region      string    `json:"region"`
	City        string    `json:"city"`
	Latitude    flexFloat `json:"latitude"`
	Longitude   flexFloat `json:"longitude"`
}

func NewIPAPI(baseURL string, client *http.Client) *HTTPProvider {
	baseURL = strings.TrimRight(orDefault(baseURL, "https://ipapi.co"), "/")
	return &HTTPProvider{
		name:   "ipapi",
		client: client,
		urlFor: func(ip netip.Addr) string { return baseURL + "/" + ip.String() + "/json/" },
		decode: func(body []byte) (Result, error) {
			var r ipapiResponse
			if err := json.Unmarshal(body, &r); err != nil {
				return Result{}, fmt.Errorf("decode: %w", err)
			}
			if r.Error || r.Reserved {
				return Result{}, fmt.Errorf("%w: %s", ErrNoData, r.Reason)
			}
			return Result{
				Country:   r.CountryName,
				Region:    r.Region,
				City:      r.City,
				Latitude:  r.Latitude.ptr(),
				Longitude: r.Longitude.ptr(),
			}, nil
		},
	}
}

// ── ipinfo.io ───────────────────────────────────────────────────────────────

type ipinfoResponse struct {
	Bogon   bool   `json:"bogon"`
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
	Loc     string `json:"loc"` // "lat,lng"
}

func NewIPInfo(baseURL, token string, client *http.Client) *HTTPProvider {
	baseURL = strings.TrimRight(orDefault(baseURL, "https://ipinfo.io"), "/")
	return &HTTPProvider{
		name:   "ipinfo",
		client: client,
		urlFor: func(ip netip.Addr) string {
			u := baseURL + "/" + ip.String() + "/json"
			if token != "" {
				u += "?token=" + url.QueryEscape(token)
			}
			return u
		},
		decode: func(body []byte) (Result, error) {
			var r ipinfoResponse
			if err := json.Unmarshal(body, &r); err != nil {
				return Result{}, fmt.Errorf("decode: %w", err)
			}
			if r.Bogon {
				return Result{}, ErrNoData
			}
			res := Result{Country: r.Country, Region: r.Region, City: r.City}
			if latStr, lonStr, ok := strings.Cut(r.Loc, ","); ok {
				lat, errLat := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
				lon, errLon := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
				if errLat == nil && errLon == nil {
					res.Latitude, res.Longitude = &lat, &lon
				}
			}
			return res, nil
		},
	}
}

// ── geoplugin.net ───────────────────────────────────────────────────────────

type geopluginResponse struct {
	Status      flexFloat `json:"geoplugin_status"`
	CountryName string    `json:"geoplugin_countryName"`
	Region      string    `json:"geoplugin_region"`
	City        string    `json:"geoplugin_city"`
	Latitude    flexFloat `json:"geoplugin_latitude"`
	Longitude   flexFloat `json:"geoplugin_longitude"`
}

func NewGeoPlugin(baseURL string, client *http.Client) *HTTPProvider {
	baseURL = strings.TrimRight(orDefault(baseURL, "http://www.geoplugin.net"), "/")
	return &HTTPProvider{
		name:   "geoplugin",
		client: client,
		urlFor: func(ip netip.Addr) string { return baseURL + "/json.gp?ip=" + url.QueryEscape(ip.String()) },
		decode: func(body []byte) (Result, error) {
			var r geopluginResponse
			if err := json.Unmarshal(body, &r); err != nil {
				return Result{}, fmt.Errorf("decode: %w", err)
			}
			if r.Status.ok && r.Status.v >= 400 {
				return Result{}, fmt.Errorf("%w: status %.0f", ErrNoData, r.Status.v)
			}
			return Result{
				Country:   r.CountryName,
				Region:    r.Region,
				City:      r.City,
				Latitude:  r.Latitude.ptr(),
				Longitude: r.Longitude.ptr(),
			}, nil
		},
	}
}

// ── ip-api.com ──────────────────────────────────────────────────────────────

type ipAPIComResponse struct {
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	Country    string    `json:"country"`
	RegionName string    `json:"regionName"`
	City       string    `json:"city"`
	Lat        flexFloat `json:"lat"`
	Lon        flexFloat `json:"lon"`
}

func NewIPAPICom(baseURL string, client *http.Client) *HTTPProvider {
	baseURL = strings.TrimRight(orDefault(baseURL, "http://ip-api.com"), "/")
	return &HTTPProvider{
		name:   "ip-api",
		client: client,
		urlFor: func(ip netip.Addr) string {
			return baseURL + "/json/" + ip.String() + "?fields=status,message,country,regionName,city,lat,lon"
		},
		decode: func(body []byte) (Result, error) {
			var r ipAPIComResponse
			if err := json.Unmarshal(body, &r); err != nil {
				return Result{}, fmt.Errorf("decode: %w", err)
			}
			if r.Status != "success" {
				return Result{}, fmt.Errorf("%w: %s", ErrNoData, r.Message)
			}
			return Result{
				Country:   r.Country,
				Region:    r.RegionName,
				City:      r.City,
				Latitude:  r.Lat.ptr(),
				Longitude: r.Lon.ptr(),
			}, nil
		},
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
