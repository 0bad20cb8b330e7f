package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/dmorgan81/beamshim/internal/event"
	"github.com/dmorgan81/beamshim/internal/image"
	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/dmorgan81/beamshim/internal/page"
	"github.com/samber/lo"
)

type messageResponse struct {
	Message string `json:"message"`
}

type dataResponse struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Image string `json:"image"`
}

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Hello from Beam!"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Server is healthy"})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body is not valid JSON"})
		return
	}
	if body[0] != '{' && body[0] != '[' {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body must be a JSON object or array"})
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Message: "Data received successfully", Data: body})
}

// handleDeployment authenticates, lists deployments and relays the first
// one's response body.
func (s *Server) handleDeployment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := log.FromContextOrDiscard(ctx).WithGroup("deployment")

	lister, err := s.Connect(ctx)
	if err != nil {
		log.Error("failed to authenticate", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	handles, err := lister.List(ctx)
	if err != nil {
		log.Error("failed to list deployments", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	if len(handles) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no deployments"})
		return
	}

	first := handles[0].Info()
	log.Info("calling first deployment", "id", first.ID, "name", first.Name)
	body, err := handles[0].Call(ctx, nil)
	if err != nil {
		log.Error("deployment call failed", "id", first.ID, "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", lo.Ternary(json.Valid(body), "application/json", "text/plain; charset=utf-8"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := log.FromContextOrDiscard(ctx).WithGroup("generate")

	if s.Generator == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "image backend not configured"})
		return
	}

	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	if req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "prompt is required"})
		return
	}

	switch res := s.Generator.Generate(ctx, req.Prompt).(type) {
	case image.Success:
		if s.Publisher != nil {
			if _, err := s.Publisher.Publish(ctx, event.Generated{Prompt: req.Prompt, Image: res.Image, Origin: "proxy"}); err != nil {
				log.Error("failed to publish event", "error", err)
			}
		}
		writeJSON(w, http.StatusOK, generateResponse{Image: res.Image})
	case image.Failure:
		log.Error("image generation failed", "error", res.Reason)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: res.Error()})
	default:
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "no result"})
	}
}

// handleIndex renders the deployments page, loading the list on first view.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.Browser.Loaded() {
		_ = s.Browser.Load(ctx)
	}

	params := page.Params{
		Rows:     s.Browser.Rows(),
		Response: s.Browser.LastResponse(),
	}
	if err := s.Browser.Err(); err != nil {
		params.Error = err.Error()
	}

	html, err := s.Templator.Template(ctx, params)
	if err != nil {
		log.FromContextOrDiscard(ctx).Error("failed to render page", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(html)
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	// failures are kept in the browser and rendered by the index page
	_ = s.Browser.Invoke(r.Context(), r.PathValue("id"))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if s.Feed == nil {
		http.NotFound(w, r)
		return
	}
	rss, err := s.Feed.Generate(r.Context())
	if err != nil {
		log.FromContextOrDiscard(r.Context()).Error("failed to generate feed", "error", err)
		http.Error(w, "failed to generate feed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	_, _ = w.Write(rss)
}

// writeJSON leaves HTML characters unescaped so echoed payloads round-trip.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	data := []byte(`{"error":"failed to encode response"}`)
	if err := enc.Encode(v); err != nil {
		statusCode = http.StatusInternalServerError
	} else {
		data = bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(data)
}
