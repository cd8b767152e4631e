package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hwblueprint/pcigraph/pkg/buildinfo"
	"github.com/hwblueprint/pcigraph/pkg/cache"
	"github.com/hwblueprint/pcigraph/pkg/diag"
	"github.com/hwblueprint/pcigraph/pkg/dot"
	"github.com/hwblueprint/pcigraph/pkg/pipeline"
)

// graphRequest is the body of POST /v1/graph and /v1/render.
type graphRequest struct {
	// Devices is the lspci -nnvv text. Required.
	Devices string `json:"devices"`

	// Slots is the dmidecode text. Optional.
	Slots string `json:"slots,omitempty"`

	// Clusters enables locality clusters in the output.
	Clusters bool `json:"clusters,omitempty"`
}

// graphResponse carries the document plus every non-fatal diagnostic.
type graphResponse struct {
	DOT         string     `json:"dot"`
	DeviceCount int        `json:"device_count"`
	Diagnostics []diagJSON `json:"diagnostics,omitempty"`
}

type diagJSON struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": buildinfo.Version,
		"commit":  buildinfo.Commit,
	})
}

// handleGraph runs the pipeline and returns the DOT document as JSON.
// Responses are cached by input hash so repeated submissions of the same
// enumeration skip the transform.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	key := graphCacheKey(req)
	if data, ok, err := s.cache.Get(r.Context(), key); err == nil && ok {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	} else if err != nil {
		s.logger.Warn("cache get failed", "err", err)
	}

	result, ok := s.run(w, r, req)
	if !ok {
		return
	}
	resp := graphResponse{
		DOT:         result.DOT,
		DeviceCount: result.Topology.DeviceCount(),
		Diagnostics: toDiagJSON(result.Report),
	}
	if data, err := json.Marshal(resp); err == nil {
		if err := s.cache.Set(r.Context(), key, data, s.cacheTTL); err != nil {
			s.logger.Warn("cache set failed", "err", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// graphCacheKey keys a graph response by the hashes of both input texts and
// the emission options, scoped by release so a parser change invalidates
// old entries.
func graphCacheKey(req graphRequest) string {
	slotHash := ""
	if req.Slots != "" {
		slotHash = cache.Hash([]byte(req.Slots))
	}
	key := cache.GraphKey(cache.Hash([]byte(req.Devices)), slotHash, req.Clusters)
	return cache.Scoped(buildinfo.Version, key)
}

// handleRender runs the pipeline and renders the document in the requested
// format. Renders are served from cache when the same document was rendered
// before.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = dot.FormatSVG
	}
	if err := dot.ValidateFormat(format); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}

	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	result, ok := s.run(w, r, req)
	if !ok {
		return
	}

	data, err := s.renderCached(r.Context(), result.DOT, format)
	if err != nil {
		s.logger.Error("render failed", "id", RequestID(r.Context()), "err", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("render failed"), "")
		return
	}

	w.Header().Set("Content-Type", contentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// decodeRequest reads and validates the request body, writing the error
// response itself on failure.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (graphRequest, bool) {
	var req graphRequest
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err), "")
		return req, false
	}
	if strings.TrimSpace(req.Devices) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("devices text is required"), "")
		return req, false
	}
	return req, true
}

// run executes the transform, writing the error response itself on failure.
func (s *Server) run(w http.ResponseWriter, r *http.Request, req graphRequest) (*pipeline.Result, bool) {
	opts := pipeline.Options{
		DeviceInput: strings.NewReader(req.Devices),
		Clusters:    req.Clusters,
		Logger:      s.logger,
	}
	if req.Slots != "" {
		opts.SlotInput = strings.NewReader(req.Slots)
	}

	result, err := pipeline.Run(r.Context(), opts)
	if err != nil {
		status := http.StatusInternalServerError
		kind := ""
		if diag.Is(err, diag.KindEmptyInput) {
			status = http.StatusUnprocessableEntity
			kind = string(diag.KindEmptyInput)
		}
		writeError(w, status, err, kind)
		return nil, false
	}
	return result, true
}

func (s *Server) renderCached(ctx context.Context, dotSrc, format string) ([]byte, error) {
	key := cache.Scoped(buildinfo.Version, cache.RenderKey(dotSrc, format))

	if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return data, nil
	} else if err != nil {
		s.logger.Warn("cache get failed", "err", err)
	}

	data, err := dot.Render(ctx, dotSrc, format)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn("cache set failed", "err", err)
	}
	return data, nil
}

func toDiagJSON(report diag.Report) []diagJSON {
	ds := report.Diagnostics()
	if len(ds) == 0 {
		return nil
	}
	out := make([]diagJSON, len(ds))
	for i, d := range ds {
		out[i] = diagJSON{Kind: string(d.Kind), Subject: d.Subject, Message: d.Message}
	}
	return out
}

func contentType(format string) string {
	switch format {
	case dot.FormatSVG:
		return "image/svg+xml"
	case dot.FormatPNG:
		return "image/png"
	default:
		return "text/vnd.graphviz; charset=utf-8"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error, kind string) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

// RequestID returns the request id from the context, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
