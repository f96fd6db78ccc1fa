package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Veraticus/autolinks/pkg/pattern"
	"github.com/Veraticus/autolinks/pkg/render"
	"github.com/Veraticus/autolinks/pkg/skipzone"
	"github.com/Veraticus/autolinks/pkg/types"
)

// ValidateRequest asks whether a pattern can be used in a rule.
type ValidateRequest struct {
	Pattern string `json:"pattern"`
}

// LinksRequest asks for the engine matches in a text. Rules default to the
// configured rules when omitted.
type LinksRequest struct {
	Text  string       `json:"text"`
	Rules []types.Rule `json:"rules,omitempty"`
}

// LinksResponse carries engine matches, not filtered by skip zones.
type LinksResponse struct {
	Matches []types.Match `json:"matches"`
}

// ZonesRequest asks for the skip zones of a text.
type ZonesRequest struct {
	Text string `json:"text"`
}

// ZonesResponse carries merged skip zones.
type ZonesResponse struct {
	Zones []types.TextRange `json:"zones"`
}

// RenderRequest asks for text rendered with links in a format.
type RenderRequest struct {
	Text   string       `json:"text"`
	Rules  []types.Rule `json:"rules,omitempty"`
	Format string       `json:"format,omitempty"`
}

// RenderResponse carries rendered output and the matches that were linked.
type RenderResponse struct {
	Output  string        `json:"output"`
	Matches []types.Match `json:"matches"`
}

// ErrorResponse represents an error.
type ErrorResponse struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
}

// handleValidate handles POST /v1/validate requests.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.sendJSON(w, pattern.Validate(req.Pattern), http.StatusOK)
}

// handleLinks handles POST /v1/links requests.
func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	var req LinksRequest
	if !s.decode(w, r, &req) {
		return
	}
	matches := s.matcher.FindAutoLinks(req.Text, s.rulesFor(req.Rules))
	s.sendJSON(w, LinksResponse{Matches: matches}, http.StatusOK)
}

// handleZones handles POST /v1/zones requests.
func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	var req ZonesRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.sendJSON(w, ZonesResponse{Zones: skipzone.FindSkipZones(req.Text)}, http.StatusOK)
}

// handleRender handles POST /v1/render requests.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if !s.decode(w, r, &req) {
		return
	}

	out, matches, err := s.renderer.Render(req.Format, req.Text, s.rulesFor(req.Rules))
	if err != nil {
		if errors.Is(err, render.ErrUnknownFormat) {
			s.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("render failed", "error", err)
		s.sendError(w, "render failed", http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []types.Match{}
	}

	s.sendJSON(w, RenderResponse{Output: out, Matches: matches}, http.StatusOK)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status": "ok",
		"rules":  len(s.rules),
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	s.sendJSON(w, health, http.StatusOK)
}

func (s *Server) rulesFor(requested []types.Rule) []types.Rule {
	if requested != nil {
		return requested
	}
	return s.rules
}

// decode reads a JSON body into dst and writes the error response itself
// when that fails.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		s.logger.Debug("failed to decode request", "error", err)
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	s.sendJSON(w, ErrorResponse{Error: message, StatusCode: statusCode}, statusCode)
}
