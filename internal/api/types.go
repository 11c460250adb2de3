package api

import (
	"time"

	"github.com/walmartlabs/concord-sub001/internal/process"
)

// SubmitProcessRequest is the JSON body for POST /api/v1/process.
type SubmitProcessRequest struct {
	WorkflowRef  string            `json:"workflow_ref"`
	Project      string            `json:"project,omitempty"`
	Profile      string            `json:"profile,omitempty"`
	Requirements map[string]string `json:"requirements,omitempty"`
	Arguments    map[string]any    `json:"arguments,omitempty"`
	OutVars      []string          `json:"out_vars,omitempty"`
	TimeoutSec   int               `json:"timeout_sec,omitempty"`
}

// SubmitProcessResponse is returned on successful submission.
type SubmitProcessResponse struct {
	InstanceID string `json:"instance_id"`
	Status     string `json:"status"`
}

// ProcessStatusResponse is returned by GET /api/v1/process/{instanceID}.
type ProcessStatusResponse struct {
	InstanceID  string         `json:"instance_id"`
	Status      string         `json:"status"`
	WorkflowRef string         `json:"workflow_ref"`
	Kind        string         `json:"kind,omitempty"`
	ParentID    *string        `json:"parent_id,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	WaitType    string         `json:"wait_type,omitempty"`
	WaitKey     string         `json:"wait_key,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// AgentPollRequest is the JSON body for POST /api/v1/agent/poll.
type AgentPollRequest struct {
	AgentID      string            `json:"agent_id"`
	Capabilities map[string]string `json:"capabilities,omitempty"`
}

// AgentAssignmentResponse is returned when an instance is assigned.
type AgentAssignmentResponse struct {
	InstanceID   string            `json:"instance_id"`
	WorkflowRef  string            `json:"workflow_ref"`
	Variables    map[string]any    `json:"variables,omitempty"`
	Requirements map[string]string `json:"requirements,omitempty"`
	SessionKey   string            `json:"session_key"`
	Deadline     *time.Time        `json:"deadline,omitempty"`
}

// AgentSuspendRequest reports a suspend with its wait condition.
type AgentSuspendRequest struct {
	WaitType string `json:"wait_type"` // "event" or "form"
	WaitKey  string `json:"wait_key"`
}

// AgentFinishRequest reports success with out variables.
type AgentFinishRequest struct {
	OutVariables map[string]any `json:"out_variables,omitempty"`
}

// AgentFailRequest reports an unrecoverable error.
type AgentFailRequest struct {
	Reason string `json:"reason"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string                 `json:"status"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	QueueDepth    int                    `json:"queue_depth"`
	AgentsLive    int                    `json:"agents_live"`
	Instances     map[process.Status]int `json:"instances"`
}
