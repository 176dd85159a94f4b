package httpapi

import (
	"io"
	"math"
	"net/http"

	json "github.com/goccy/go-json"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/geo"
)

// gpsPayload is the JSON body the document's geolocation script posts.
type gpsPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
	Timestamp string   `json:"timestamp"`
}

// gpsFromRequest decodes a GPS report from r. Any malformed or incomplete
// body yields nil; the pipeline then falls back to the IP path.
func gpsFromRequest(r *http.Request) *geo.GPSReading {
	if r.Body == nil {
		return nil
	}
	if isProtobuf(r) {
		var s structpb.Struct
		if err := readProto(r, &s); err != nil {
			return nil
		}
		return gpsFromStruct(&s)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil || len(body) == 0 {
		return nil
	}
	var p gpsPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil
	}
	return gpsFromPayload(p)
}

func gpsFromPayload(p gpsPayload) *geo.GPSReading {
	if p.Latitude == nil || p.Longitude == nil {
		return nil
	}
	g := &geo.GPSReading{Latitude: *p.Latitude, Longitude: *p.Longitude}
	if p.Accuracy != nil {
		g.AccuracyMeters = *p.Accuracy
	}
	if !finite(g.Latitude) || !finite(g.Longitude) {
		return nil
	}
	return g
}

// gpsFromStruct reads the same keys as the JSON body from a
// google.protobuf.Struct.
func gpsFromStruct(s *structpb.Struct) *geo.GPSReading {
	fields := s.GetFields()
	lat, okLat := numberField(fields, "latitude")
	lon, okLon := numberField(fields, "longitude")
	if !okLat || !okLon {
		return nil
	}
	p := gpsPayload{Latitude: &lat, Longitude: &lon}
	if acc, ok := numberField(fields, "accuracy"); ok {
		p.Accuracy = &acc
	}
	return gpsFromPayload(p)
}

func numberField(fields map[string]*structpb.Value, key string) (float64, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return n.NumberValue, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
