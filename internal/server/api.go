// LOCATION: internal/server/api.go

package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ag-botkit/ringstore/internal/errors"
	"github.com/ag-botkit/ringstore/internal/logging"
	"github.com/ag-botkit/ringstore/internal/metrics"
	"github.com/ag-botkit/ringstore/internal/validation"
)

// =============================================================================
// Response Shapes
// =============================================================================

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

type ingestResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

type seriesList struct {
	Series []metrics.SeriesInfo `json:"series"`
	Count  int                  `json:"count"`
}

type pointsResult struct {
	Series string          `json:"series"`
	Points []metrics.Point `json:"points"`
	Count  int             `json:"count"`
}

type statsResponse struct {
	Store         metrics.Stats `json:"store"`
	Hub           HubStats      `json:"hub"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Version       string        `json:"version"`
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "ringstored",
		"version": s.cfg.Version,
		"endpoints": []string{
			"GET /metrics (websocket ingest)",
			"GET /dashboard (websocket live feed)",
			"POST /api/ingest",
			"GET /api/series",
			"GET /api/series/{name}",
			"GET /api/series/{name}/last?n=N",
			"GET /api/series/{name}/range?start=MS&end=MS&max=N",
			"GET /api/stats",
		},
	})
}

// handleIngest accepts one point or an array of points. Invalid points
// are counted and skipped: like the ingest socket, one bad sample does
// not void the batch.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		writeError(w, r, errors.Wrapf(errors.ErrInvalidRequest, "read body: %v", err))
		return
	}

	points, err := decodePoints(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var accepted, rejected int
	for _, p := range points {
		if err := s.store.Append(p); err != nil {
			rejected++
			logging.WithContext(r.Context()).Warn("rejected point", "series", p.Name, "error", err)
			continue
		}
		accepted++
		s.hub.Broadcast(p)
	}

	writeJSON(w, http.StatusOK, ingestResult{Accepted: accepted, Rejected: rejected})
}

// decodePoints accepts either a single JSON object or an array of objects.
func decodePoints(body []byte) ([]metrics.Point, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "empty body")
	}

	if body[0] == '[' {
		var pts []metrics.Point
		if err := json.Unmarshal(body, &pts); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "decode body: %v", err)
		}
		return pts, nil
	}

	var p metrics.Point
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "decode body: %v", err)
	}
	return []metrics.Point{p}, nil
}

// handleSeriesList returns every series with its metadata. Concurrent
// calls share one scan through the singleflight group.
func (s *Server) handleSeriesList(w http.ResponseWriter, r *http.Request) {
	v, _, _ := s.sf.Do("describe", func() (interface{}, error) {
		return s.store.Describe(), nil
	})

	infos := v.([]metrics.SeriesInfo)
	if infos == nil {
		infos = []metrics.SeriesInfo{}
	}
	writeJSON(w, http.StatusOK, seriesList{Series: infos, Count: len(infos)})
}

func (s *Server) handleSeriesInfo(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	info, ok := s.store.Info(name)
	if !ok {
		writeError(w, r, errors.NewSeriesNotFound(name))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleSeriesLast returns the newest n points of a series, newest first.
func (s *Server) handleSeriesLast(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	n := defaultLastN
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, r, errors.Wrapf(errors.ErrInvalidRequest, "parameter n=%q: want a positive integer", raw))
			return
		}
		n = v
	}

	if _, ok := s.store.Info(name); !ok {
		writeError(w, r, errors.NewSeriesNotFound(name))
		return
	}

	points := s.store.Last(name, n)
	if points == nil {
		points = []metrics.Point{}
	}
	writeJSON(w, http.StatusOK, pointsResult{Series: name, Points: points, Count: len(points)})
}

// handleSeriesRange returns points with start <= timestamp <= end in
// chronological order. Both bounds are required and accept unix
// milliseconds, RFC3339, "now", or relative offsets like "-5m".
func (s *Server) handleSeriesRange(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	q := r.URL.Query()
	now := time.Now()

	start, err := parseBound(q.Get("start"), "start", now)
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := parseBound(q.Get("end"), "end", now)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := 0
	if raw := q.Get("max"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, r, errors.Wrapf(errors.ErrInvalidRequest, "parameter max=%q: want a non-negative integer", raw))
			return
		}
		limit = v
	}

	if _, ok := s.store.Info(name); !ok {
		writeError(w, r, errors.NewSeriesNotFound(name))
		return
	}

	points := s.store.Range(name, start, end, limit)
	if points == nil {
		points = []metrics.Point{}
	}
	writeJSON(w, http.StatusOK, pointsResult{Series: name, Points: points, Count: len(points)})
}

func parseBound(raw, param string, now time.Time) (int64, error) {
	if raw == "" {
		return 0, errors.Wrapf(errors.ErrInvalidRequest, "parameter %s is required", param)
	}
	ms, err := validation.ParseTimestamp(raw, now)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrInvalidRequest, "parameter %s: %v", param, err)
	}
	return ms, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Store:         s.store.Stats(),
		Hub:           s.hub.Stats(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Version:       s.cfg.Version,
	})
}

// =============================================================================
// Response Helpers
// =============================================================================

// writeJSON writes v with the given status. Encoding failures end up in
// the log; the headers are already gone by then.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("encode response", "error", err)
	}
}

// writeError maps err to its HTTP status and writes the standard error
// body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	logging.WithContext(r.Context()).Warn("request failed", "status", status, "error", err)
	writeJSON(w, status, errorBody{Error: err.Error()})
}
