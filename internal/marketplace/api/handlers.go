package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskmesh/taskmesh-backend/internal/marketplace/controller"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/metrics"
	"github.com/taskmesh/taskmesh-backend/pkg/logging"
	"github.com/taskmesh/taskmesh-backend/pkg/types"
)

type Handler struct {
	ctrl   *controller.Controller
	logger logging.Logger
}

func NewHandler(ctrl *controller.Controller, logger logging.Logger) *Handler {
	return &Handler{ctrl: ctrl, logger: logger}
}

func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) {
	var req types.PostJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error decoding request: "+err.Error(), http.StatusBadRequest)
		return
	}

	view, err := h.ctrl.PostJob(r.Context(), &req)
	h.respond(w, "post", view, err)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.ctrl.GetJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

func (h *Handler) AcceptJob(w http.ResponseWriter, r *http.Request) {
	var req types.AcceptJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error decoding request: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.JobID = mux.Vars(r)["id"]

	view, err := h.ctrl.AcceptJob(r.Context(), &req)
	h.respond(w, "accept", view, err)
}

func (h *Handler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error decoding request: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.JobID = mux.Vars(r)["id"]

	view, err := h.ctrl.SubmitResult(r.Context(), &req)
	h.respond(w, "submit", view, err)
}

func (h *Handler) ValidateJob(w http.ResponseWriter, r *http.Request) {
	var req types.ValidateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error decoding request: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.JobID = mux.Vars(r)["id"]

	view, err := h.ctrl.ValidateJob(r.Context(), &req)
	h.respond(w, "validate", view, err)
}

func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	var req types.CancelJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error decoding request: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.JobID = mux.Vars(r)["id"]

	view, err := h.ctrl.CancelJob(r.Context(), &req)
	h.respond(w, "cancel", view, err)
}

func (h *Handler) ClaimTimeout(w http.ResponseWriter, r *http.Request) {
	var req types.ClaimTimeoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error decoding request: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.JobID = mux.Vars(r)["id"]

	view, err := h.ctrl.ClaimTimeout(r.Context(), &req)
	h.respond(w, "timeout", view, err)
}

func (h *Handler) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error decoding request: "+err.Error(), http.StatusBadRequest)
		return
	}

	agent, err := h.ctrl.RegisterAgent(r.Context(), &req)
	if err != nil {
		metrics.JobOperationsTotal.WithLabelValues("register", statusLabel(err)).Inc()
		h.writeError(w, err)
		return
	}
	metrics.JobOperationsTotal.WithLabelValues("register", "ok").Inc()
	h.writeJSON(w, http.StatusCreated, agent)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respond(w http.ResponseWriter, operation string, view *types.JobView, err error) {
	if err != nil {
		metrics.JobOperationsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
		h.writeError(w, err)
		return
	}
	metrics.JobOperationsTotal.WithLabelValues(operation, "ok").Inc()
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, controller.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, controller.ErrStateConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Errorf("Request failed: %v", err)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Errorf("Error encoding response: %v", err)
	}
}

func statusLabel(err error) string {
	if errors.Is(err, controller.ErrValidation) || errors.Is(err, controller.ErrStateConflict) {
		return "rejected"
	}
	return "error"
}
