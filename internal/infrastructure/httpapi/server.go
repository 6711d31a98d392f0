package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"newsdigest/internal/usecase"
)

// CollectRequest is the /collect body. Manual is caller bookkeeping only.
type CollectRequest struct {
	Manual bool `json:"manual"`
}

// DispatchRequest is the /dispatch body.
type DispatchRequest struct {
	Immediate bool `json:"immediate"`
}

// Server exposes the two pipeline entry points as JSON endpoints.
type Server struct {
	collector     *usecase.Collector
	dispatcher    *usecase.Dispatcher
	validateCreds func() error
	logger        *slog.Logger
}

// New constructs the HTTP boundary. validateCreds runs before any dispatch
// network call so missing configuration fails fast.
func New(collector *usecase.Collector, dispatcher *usecase.Dispatcher, validateCreds func() error, logger *slog.Logger) *Server {
	return &Server{
		collector:     collector,
		dispatcher:    dispatcher,
		validateCreds: validateCreds,
		logger:        logger,
	}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/collect", s.handleCollect)
	mux.HandleFunc("/dispatch", s.handleDispatch)
	return withCORS(mux)
}

// withCORS mirrors permissive browser access: every response carries the
// headers, and preflight requests get an empty success response.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"success": false, "error": "method not allowed"})
		return
	}

	var req CollectRequest
	decodeBody(r, &req)

	processed, err := s.collector.Collect(r.Context())
	if err != nil {
		s.logger.Error("collection failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"message":           "News collection completed",
		"articlesProcessed": processed,
	})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"success": false, "error": "method not allowed"})
		return
	}

	if err := s.validateCreds(); err != nil {
		s.logger.Error("dispatch configuration invalid", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}

	var req DispatchRequest
	decodeBody(r, &req)

	if req.Immediate {
		result, err := s.dispatcher.ProcessImmediate(r.Context())
		if err != nil {
			s.logger.Error("immediate dispatch failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
			return
		}

		resp := map[string]any{"success": true, "message": result.Message}
		if result.TweetID != "" {
			resp["tweet_id"] = result.TweetID
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	retry, err := s.dispatcher.RetryRecentFailures(r.Context())
	if err != nil {
		s.logger.Error("retry pass failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}

	posting, err := s.dispatcher.ProcessPending(r.Context())
	if err != nil {
		s.logger.Error("batch dispatch failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"retry":   retry,
			"posting": posting,
		},
	})
}

// decodeBody parses the request body, tolerating an absent or malformed one
// so each field keeps its validated default.
func decodeBody(r *http.Request, v any) {
	if r.Body == nil {
		return
	}
	_ = json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
