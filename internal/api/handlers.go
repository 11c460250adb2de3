package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/walmartlabs/concord-sub001/internal/lifecycle"
	"github.com/walmartlabs/concord-sub001/internal/orchestrator"
	"github.com/walmartlabs/concord-sub001/internal/store"
	"github.com/walmartlabs/concord-sub001/internal/variables"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	depth, err := s.stats.Depth(r.Context())
	if err != nil {
		s.logger.Error("failed to compute queue depth", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute queue depth")
		return
	}
	counts, err := s.stats.CountByStatus(r.Context())
	if err != nil {
		s.logger.Error("failed to count instances", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to count instances")
		return
	}

	s.writeJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    depth,
		AgentsLive:    s.registry.Len(),
		Instances:     counts,
	})
}

// handleSubmit handles POST /api/v1/process.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.WorkflowRef == "" {
		s.writeError(w, http.StatusBadRequest, "workflow_ref is required")
		return
	}

	id, err := s.submitter.Submit(r.Context(), orchestrator.SubmitRequest{
		WorkflowRef:  req.WorkflowRef,
		Project:      req.Project,
		Profile:      req.Profile,
		Requirements: req.Requirements,
		Arguments:    req.Arguments,
		OutVars:      req.OutVars,
		Timeout:      time.Duration(req.TimeoutSec) * time.Second,
		InitiatedBy:  "api",
	})
	if err != nil {
		if errors.Is(err, variables.ErrUnknownProfile) || errors.Is(err, orchestrator.ErrUnknownProject) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("submission failed", "workflow_ref", req.WorkflowRef, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit process")
		return
	}

	s.writeJSON(w, http.StatusAccepted, SubmitProcessResponse{
		InstanceID: id,
		Status:     "ENQUEUED",
	})
}

// handleStatus handles GET /api/v1/process/{instanceID}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")

	res, err := s.submitter.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "process instance not found")
			return
		}
		s.logger.Error("status query failed", "instance_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load process instance")
		return
	}

	resp := ProcessStatusResponse{
		InstanceID:  res.InstanceID,
		Status:      string(res.Status),
		WorkflowRef: res.WorkflowRef,
		Kind:        string(res.Kind),
		ParentID:    res.ParentID,
		Variables:   res.Variables,
		LastError:   res.LastError,
		CreatedAt:   res.CreatedAt,
		StartedAt:   res.StartedAt,
		CompletedAt: res.CompletedAt,
	}
	if res.Wait != nil {
		resp.WaitType = string(res.Wait.Type)
		resp.WaitKey = res.Wait.Key
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleCancel handles POST /api/v1/process/{instanceID}/cancel.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")

	if err := s.submitter.Cancel(r.Context(), id); err != nil {
		s.writeLifecycleError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResumeEvent handles POST /api/v1/process/{instanceID}/event/{eventName}.
func (s *Server) handleResumeEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")
	name := chi.URLParam(r, "eventName")

	payload := map[string]any{}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.writeError(w, http.StatusBadRequest, "payload must be a JSON object")
			return
		}
	}

	if err := s.lifecycle.ResumeEvent(r.Context(), id, name, payload); err != nil {
		s.writeLifecycleError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmitForm handles POST /api/v1/process/{instanceID}/form/{formID}.
func (s *Server) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")
	formID := chi.URLParam(r, "formID")

	values := map[string]any{}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			s.writeError(w, http.StatusBadRequest, "form values must be a JSON object")
			return
		}
	}

	if err := s.lifecycle.ResumeForm(r.Context(), id, formID, values); err != nil {
		s.writeLifecycleError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeLifecycleError maps store/lifecycle sentinels to HTTP statuses.
func (s *Server) writeLifecycleError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "process instance not found")
	case errors.Is(err, store.ErrNotWaiting):
		s.writeError(w, http.StatusConflict, "process instance is not waiting")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("lifecycle operation failed", "instance_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "operation failed")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
