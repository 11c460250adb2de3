package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/walmartlabs/concord-sub001/internal/process"
)

// handleAgentPoll handles POST /api/v1/agent/poll. Every poll doubles as a
// heartbeat; the response is either a pending assignment or 204.
func (s *Server) handleAgentPoll(w http.ResponseWriter, r *http.Request) {
	var req AgentPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AgentID == "" {
		s.writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	if !s.registry.Heartbeat(req.AgentID, req.Capabilities) {
		s.writeError(w, http.StatusServiceUnavailable, "agent registry is full")
		return
	}

	a, ok := s.registry.Take(req.AgentID)
	if !ok || a.Instance == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	inst := a.Instance
	s.writeJSON(w, http.StatusOK, AgentAssignmentResponse{
		InstanceID:   inst.ID,
		WorkflowRef:  inst.WorkflowRef,
		Variables:    inst.Variables,
		Requirements: inst.Requirements,
		SessionKey:   inst.SessionKey,
		Deadline:     inst.Deadline,
	})
}

// handleAgentAck handles POST /api/v1/agent/process/{instanceID}/ack.
func (s *Server) handleAgentAck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")
	if err := s.lifecycle.Acknowledge(r.Context(), id); err != nil {
		s.writeLifecycleError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAgentSuspend handles POST /api/v1/agent/process/{instanceID}/suspend.
func (s *Server) handleAgentSuspend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")

	var req AgentSuspendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.WaitKey == "" {
		s.writeError(w, http.StatusBadRequest, "wait_key is required")
		return
	}
	waitType := process.WaitType(req.WaitType)
	if waitType != process.WaitEvent && waitType != process.WaitForm {
		s.writeError(w, http.StatusBadRequest, "wait_type must be \"event\" or \"form\"")
		return
	}

	cond := process.WaitCondition{
		Type: waitType,
		Key:  req.WaitKey,
	}
	if err := s.lifecycle.Suspend(r.Context(), id, cond); err != nil {
		s.writeLifecycleError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAgentFinish handles POST /api/v1/agent/process/{instanceID}/finish.
func (s *Server) handleAgentFinish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")

	var req AgentFinishRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	if err := s.lifecycle.Finish(r.Context(), id, req.OutVariables); err != nil {
		s.writeLifecycleError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAgentFail handles POST /api/v1/agent/process/{instanceID}/fail.
func (s *Server) handleAgentFail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")

	var req AgentFailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Reason == "" {
		req.Reason = "unspecified agent failure"
	}

	if err := s.lifecycle.Fail(r.Context(), id, req.Reason); err != nil {
		s.writeLifecycleError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
