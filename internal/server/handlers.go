package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/piiredact/internal/adapter"
	"github.com/dativo-io/piiredact/internal/audit"
	"github.com/dativo-io/piiredact/internal/classifier"
	"github.com/dativo-io/piiredact/internal/otel"
	"github.com/dativo-io/piiredact/internal/policy"
	"github.com/dativo-io/piiredact/internal/requestctx"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startTime).String(),
	}
	if r.URL.Query().Get("detail") == "true" {
		components := map[string]interface{}{
			"engine":            "ok",
			"audit_log_entries": s.engine.AuditLog().Len(),
		}
		if s.store == nil {
			components["report_store"] = "disabled"
		} else {
			components["report_store"] = "ok"
		}
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}

type sectorView struct {
	policy.Sector
	Categories []classifier.Category `json:"categories"`
}

func (s *Server) handleSectors(w http.ResponseWriter, r *http.Request) {
	pols := s.engine.Policies()
	var out []sectorView
	for _, sec := range pols.Sectors() {
		out = append(out, sectorView{Sector: sec, Categories: pols.ResolveCategories(sec.ID)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sectors":             out,
		"scan_all_categories": pols.ScanAll(),
	})
}

type textRequest struct {
	Text   string          `json:"text"`
	Data   json.RawMessage `json:"data,omitempty"`
	Sector string          `json:"sector"`
}

// decodeBody reads a bounded JSON body into v and writes the error response
// itself when that fails.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large",
				"request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	res := s.engine.Resolve(req.Sector)
	detections := s.engine.Detect(r.Context(), req.Text, res.Categories)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sector":      res.Sector,
		"strict_mode": res.Strict,
		"count":       len(detections),
		"detections":  detections,
	})
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()
	res := s.engine.Resolve(req.Sector)

	var (
		redacted interface{}
		stats    classifier.Stats
		units    int
	)
	if len(req.Data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(req.Data))
		dec.UseNumber()
		var data interface{}
		if err := dec.Decode(&data); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid data: "+err.Error())
			return
		}
		redacted, stats, units = adapter.RedactTree(ctx, s.engine, res, data)
	} else {
		redacted, stats = s.engine.ProcessResolved(ctx, req.Text, res)
		units = 1
	}
	s.metrics.ObserveRedactions(s.engine.Registry(), stats, units)

	log.Debug().
		Str("caller", requestctx.Caller(ctx)).
		Str("sector", res.Sector).
		Int("total_redactions", stats.TotalRedactions).
		Func(otel.LogTraceFields(ctx)).
		Msg("api_redaction_completed")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"redacted":    redacted,
		"statistics":  stats,
		"sector":      res.Sector,
		"strict_mode": res.Strict,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	stats, units := s.engine.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"statistics":        stats,
		"units_processed":   units,
		"audit_log_entries": s.engine.AuditLog().Len(),
		"recommendations":   s.engine.Recommend(stats),
	})
}

func (s *Server) handleReportRotate(w http.ResponseWriter, r *http.Request) {
	if s.rotator == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "report store is disabled")
		return
	}
	rep, err := s.rotator.Rotate(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if rep == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"rotated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rotated":          true,
		"report_id":        rep.ID,
		"total_redactions": rep.Statistics.TotalRedactions,
		"entries":          len(rep.Log),
	})
}

func (s *Server) handleReportsList(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "report store is disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	list, err := s.store.List(r.Context(), r.URL.Query().Get("sector"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if list == nil {
		list = []audit.Index{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": list})
}

func (s *Server) handleReportGet(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "report store is disabled")
		return
	}
	rep, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, audit.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleReportVerify(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "report store is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	valid, err := s.store.Verify(r.Context(), id)
	if errors.Is(err, audit.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "valid": valid})
}
