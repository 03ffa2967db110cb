package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/cropsense/internal/assess"
	"github.com/sells-group/cropsense/internal/geo"
	"github.com/sells-group/cropsense/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

// sampleRequest is the POST /api/sample body.
type sampleRequest struct {
	Points []geo.Coordinate `json:"points"`
}

// sampleResult is one entry of the POST /api/sample response.
type sampleResult struct {
	Index   int             `json:"index"`
	Outcome *assess.Outcome `json:"outcome,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type sampleResponse struct {
	Results []sampleResult `json:"results"`
}

type historyResponse struct {
	Outcomes []assess.Outcome `json:"outcomes"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"layers":  len(s.engine.Layers()),
		"history": s.recorder.Enabled(),
	})
}

// coordinateParam reads lat and lon from the query string.
func coordinateParam(r *http.Request) (geo.Coordinate, error) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lat")), 64)
	if err != nil {
		return geo.Coordinate{}, errors.New("lat must be a number")
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lon")), 64)
	if err != nil {
		return geo.Coordinate{}, errors.New("lon must be a number")
	}
	return geo.Coordinate{Lat: lat, Lon: lon}, nil
}

// evaluate runs one point and writes a 400 for bad input. It returns nil
// once a response has been written.
func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) *assess.Outcome {
	c, err := coordinateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	out, err := s.engine.Evaluate(r.Context(), c)
	if err != nil {
		if errors.Is(err, geo.ErrInvalidCoordinate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return nil
		}
		s.log.Error("evaluate failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "evaluation failed")
		return nil
	}
	s.recorder.Record(r.Context(), out)
	return out
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	if out := s.evaluate(w, r); out != nil {
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleSampleGeoJSON(w http.ResponseWriter, r *http.Request) {
	out := s.evaluate(w, r)
	if out == nil {
		return
	}
	data, err := out.Feature()
	if err != nil {
		s.log.Error("encode feature failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "encode failed")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleSampleBatch(w http.ResponseWriter, r *http.Request) {
	var req sampleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case len(req.Points) == 0:
		writeError(w, http.StatusBadRequest, "points is required")
		return
	case len(req.Points) > MaxBatchPoints:
		writeError(w, http.StatusRequestEntityTooLarge, "too many points (max "+strconv.Itoa(MaxBatchPoints)+")")
		return
	}

	results, err := s.engine.EvaluateMany(r.Context(), req.Points, s.cfg.Concurrency)
	if err != nil {
		s.log.Warn("batch evaluate aborted", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}

	resp := sampleResponse{Results: make([]sampleResult, len(results))}
	outcomes := make([]*assess.Outcome, 0, len(results))
	for i, res := range results {
		resp.Results[i] = sampleResult{Index: res.Index, Outcome: res.Outcome}
		if res.Err != nil {
			resp.Results[i].Error = res.Err.Error()
		}
		if res.Outcome != nil {
			outcomes = append(outcomes, res.Outcome)
		}
	}
	s.recorder.Record(r.Context(), outcomes...)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLayers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"layers": s.engine.Layers()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.recorder.Enabled() {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	outcomes, err := s.recorder.Store().ListOutcomes(r.Context(), limit)
	if err != nil {
		s.log.Error("list history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if outcomes == nil {
		outcomes = []assess.Outcome{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Outcomes: outcomes})
}

func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	if !s.recorder.Enabled() {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	out, err := s.recorder.Store().GetOutcome(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "outcome not found")
			return
		}
		s.log.Error("get history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, out)
}
