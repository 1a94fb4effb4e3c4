package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/mapping"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/reconcile"
	"github.com/sells-group/recon-cli/internal/store"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	lookback := 24
	if v := r.URL.Query().Get("lookback_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "lookback_hours must be an integer")
			return
		}
		lookback = n
	}
	snap, err := s.metrics.Collect(r.Context(), r.URL.Query().Get("session"), lookback)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Sessions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// putSessionRequest is the body of PUT /sessions/{id}.
type putSessionRequest struct {
	Name               string                 `json:"name"`
	Presentation       []model.ExtractedValue `json:"presentation"`
	Sources            []model.ExtractedValue `json:"sources"`
	ExtractionComplete *bool                  `json:"extraction_complete"`
}

func (s *Server) putSession(w http.ResponseWriter, r *http.Request) {
	var req putSessionRequest
	if !decode(w, r, &req, false) {
		return
	}
	in := &model.Session{
		ID:                 chi.URLParam(r, "sessionID"),
		Name:               req.Name,
		Presentation:       req.Presentation,
		Sources:            req.Sources,
		ExtractionComplete: req.ExtractionComplete == nil || *req.ExtractionComplete,
	}
	sess, err := s.svc.Import(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Session(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.Summary(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeMessage(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := s.svc.Runs(r.Context(), chi.URLParam(r, "sessionID"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	var opts reconcile.Options
	if !decode(w, r, &opts, true) {
		return
	}
	if m := r.URL.Query().Get("mode"); m != "" {
		opts.Mode = model.Mode(m)
	}

	sessionID := chi.URLParam(r, "sessionID")
	out, err := s.svc.Reconcile(r.Context(), sessionID, opts)
	if err != nil {
		if out == nil {
			writeError(w, err)
			return
		}
		// The run was cut short but its completed batches were persisted.
		zap.L().Warn("api: partial run",
			zap.String("session_id", sessionID),
			zap.String("run_id", out.Run.ID),
			zap.Error(err),
		)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) updateValue(w http.ResponseWriter, r *http.Request) {
	origin := model.Origin(chi.URLParam(r, "origin"))
	if !origin.Valid() {
		writeMessage(w, http.StatusBadRequest, "origin must be presentation or source")
		return
	}
	var patch model.ValuePatch
	if !decode(w, r, &patch, false) {
		return
	}
	v, err := s.svc.UpdateValue(r.Context(), chi.URLParam(r, "sessionID"), origin, chi.URLParam(r, "valueID"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) listMappings(w http.ResponseWriter, r *http.Request) {
	ms, err := s.svc.Mappings(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) suggest(w http.ResponseWriter, r *http.Request) {
	ms, err := s.svc.Suggest(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) addMapping(w http.ResponseWriter, r *http.Request) {
	var ref model.PairRef
	if !decode(w, r, &ref, false) {
		return
	}
	m, err := s.svc.AddMapping(r.Context(), chi.URLParam(r, "sessionID"), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Confirm(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "mappingID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Reject(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "mappingID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// editRequest is the body of POST .../mappings/{id}/edit.
type editRequest struct {
	SourceValueID *string        `json:"source_value_id"`
	Locator       *model.Locator `json:"locator"`
}

func (s *Server) edit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decode(w, r, &req, false) {
		return
	}
	m, err := s.svc.Edit(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "mappingID"), mapping.Edit{
		SourceValueID: req.SourceValueID,
		Locator:       req.Locator,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.Run(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.Records(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// decode reads a JSON body into v. An empty body is accepted when
// optional is set.
func decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF) && optional:
		return true
	case errors.Is(err, io.EOF):
		writeMessage(w, http.StatusBadRequest, "request body is required")
	default:
		writeMessage(w, http.StatusBadRequest, "invalid request body")
	}
	return false
}

// statusOf maps domain errors onto HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, reconcile.ErrSessionNotFound),
		errors.Is(err, reconcile.ErrValueNotFound),
		errors.Is(err, reconcile.ErrNoRuns),
		errors.Is(err, mapping.ErrMappingNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, reconcile.ErrRunInProgress),
		errors.Is(err, mapping.ErrInvalidMappingState):
		return http.StatusConflict
	case errors.Is(err, reconcile.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, reconcile.ErrExtractionUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
		writeMessage(w, code, "internal error")
		return
	}
	writeMessage(w, code, err.Error())
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
