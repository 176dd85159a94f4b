package httpapi

import (
	"encoding/base64"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/geo"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/service"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
)

// transparentGIF is a 1x1 transparent GIF.
var transparentGIF, _ = base64.StdEncoding.DecodeString("R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

// handleTrackPixel records an open without GPS and serves the pixel. The
// response never depends on what the pipeline does.
func (s *Server) handleTrackPixel(w http.ResponseWriter, r *http.Request) {
	s.capture(r, nil)

	h := w.Header()
	h.Set("Content-Type", "image/gif")
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(transparentGIF)
}

// handleTrackLocation records an open with whatever GPS reading the body
// carries. A bad body is treated as no GPS.
func (s *Server) handleTrackLocation(w http.ResponseWriter, r *http.Request) {
	s.capture(r, gpsFromRequest(r))
	writeJSON(w, http.StatusOK, types.TrackAck{Success: true, Message: "location received"})
}

func (s *Server) capture(r *http.Request, gps *geo.GPSReading) {
	req := service.TrackRequest{
		DocumentID:     pathParam(r, "documentID"),
		RecipientLabel: pathParam(r, "recipient"),
		SourceIP:       clientIP(r),
		UserAgent:      r.UserAgent(),
		GPS:            gps,
	}
	if !s.tracking.Capture(req) {
		s.logger.Warn().
			Str("document_id", req.DocumentID).
			Str("recipient", req.RecipientLabel).
			Msg("tracking job not accepted")
	}
}

// pathParam returns the decoded value of a chi URL parameter. chi routes on
// RawPath when it is set, so only those values are still escaped.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}
