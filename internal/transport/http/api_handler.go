package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"chart-abtest-service/internal/app"
	"chart-abtest-service/internal/domain"
	"chart-abtest-service/internal/render"
	"github.com/sirupsen/logrus"
)

// APIHandler exposes the session control operations as JSON endpoints.
type APIHandler struct {
	service   *app.TrialService
	validator *payloadValidator
	log       logrus.FieldLogger
}

func NewAPIHandler(service *app.TrialService, log logrus.FieldLogger) *APIHandler {
	return &APIHandler{service: service, validator: newPayloadValidator(), log: log}
}

type answerPayload struct {
	Name string `json:"name" validate:"required"`
}

type resultsPayload struct {
	Results []domain.ResultRecord `json:"results"`
	Summary []domain.SummaryRow   `json:"summary"`
}

// Register mounts the API under /api on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.createSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.snapshot)
	mux.HandleFunc("POST /api/sessions/{id}/renew", h.newSession)
	mux.HandleFunc("POST /api/sessions/{id}/trial", h.startTrial)
	mux.HandleFunc("GET /api/sessions/{id}/trial", h.tick)
	mux.HandleFunc("DELETE /api/sessions/{id}/trial", h.resetTrial)
	mux.HandleFunc("POST /api/sessions/{id}/answers", h.submitAnswer)
	mux.HandleFunc("GET /api/sessions/{id}/results", h.results)
	mux.HandleFunc("DELETE /api/sessions/{id}/results", h.clearResults)
	mux.HandleFunc("GET /api/sessions/{id}/chart.png", h.trialChart)
	mux.HandleFunc("GET /api/sessions/{id}/summary.png", h.summaryChart)
}

func (h *APIHandler) createSession(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.service.CreateSession(r.Context()))
}

func (h *APIHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeSuccess(w, snapshot)
}

func (h *APIHandler) newSession(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.service.NewSession(r.Context(), r.PathValue("id")))
}

func (h *APIHandler) startTrial(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.StartTrial(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeSuccess(w, view)
}

func (h *APIHandler) tick(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Tick(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeSuccess(w, view)
}

func (h *APIHandler) resetTrial(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.ResetTrial(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeSuccess(w, view)
}

func (h *APIHandler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var payload answerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "invalid answer payload"})
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		var fields *FieldsError
		if errors.As(err, &fields) {
			writeJSON(w, http.StatusBadRequest, response{Message: fields.Error(), Error: fields.Fields})
			return
		}
		writeError(w, h.log, err)
		return
	}

	result, err := h.service.SubmitAnswer(r.Context(), r.PathValue("id"), payload.Name)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeSuccess(w, result)
}

func (h *APIHandler) results(w http.ResponseWriter, r *http.Request) {
	records, summary, err := h.service.Results(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeSuccess(w, resultsPayload{Results: records, Summary: summary})
}

func (h *APIHandler) clearResults(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearResults(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeSuccess(w, resultsPayload{Results: []domain.ResultRecord{}, Summary: []domain.SummaryRow{}})
}

func (h *APIHandler) trialChart(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if snapshot.Trial.Status == domain.TrialIdle {
		writeError(w, h.log, domain.ErrNoActiveTrial)
		return
	}
	img, err := render.TrialChart(snapshot.Trial.Variant, snapshot.Title, snapshot.Trial.Ranked)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writePNG(w, img)
}

func (h *APIHandler) summaryChart(w http.ResponseWriter, r *http.Request) {
	_, summary, err := h.service.Results(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if len(summary) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	img, err := render.SummaryChart(summary)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writePNG(w, img)
}

func writePNG(w http.ResponseWriter, img []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img)
}
