package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/service"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
)

// maxDocumentBody caps /create-document bodies.
const maxDocumentBody = 1 << 20

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req types.CreateDocumentRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxDocumentBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	base := s.publicBaseURL
	if base == "" {
		base = requestBaseURL(r)
	}

	resp, err := s.documents.Create(req, base)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrContentRequired):
			writeError(w, http.StatusBadRequest, "content_required", err.Error())
		case errors.Is(err, service.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			s.logger.Error().Err(err).Msg("create document")
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	s.logger.Info().
		Str("document_id", resp.DocumentID).
		Str("recipient", resp.RecipientLabel).
		Msg("document created")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	resp, err := s.tracking.Analytics(r.Context(), pathParam(r, "documentID"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidDocumentID) {
			writeError(w, http.StatusBadRequest, "invalid_document_id", err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("analytics")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.healthPingLimit)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("health: database ping failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": "database unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleConfigStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.configStatus)
}

// handleTestChannel sends a sample notification synchronously through one
// channel and reports its status.
func (s *Server) handleTestChannel(w http.ResponseWriter, r *http.Request) {
	channel := pathParam(r, "channel")

	status, err := s.tracking.TestChannel(r.Context(), channel)
	if err != nil {
		if errors.Is(err, service.ErrUnknownChannel) {
			writeError(w, http.StatusNotFound, "unknown_channel", err.Error())
			return
		}
		s.logger.Error().Err(err).Str("channel", channel).Msg("channel test")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	writeJSON(w, http.StatusOK, types.ChannelTestResponse{
		Success: status.Kind == types.StatusSent,
		Channel: channel,
		Status:  status,
	})
}
