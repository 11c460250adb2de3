package process

import (
	"time"
)

// Status is the lifecycle state of a process instance. Transitions between
// statuses go through the lifecycle manager; nothing else writes them.
type Status string

const (
	StatusEnqueued  Status = "ENQUEUED"
	StatusStarting  Status = "STARTING"
	StatusRunning   Status = "RUNNING"
	StatusSuspended Status = "SUSPENDED"
	StatusResuming  Status = "RESUMING"
	StatusFinished  Status = "FINISHED"
	StatusFailed    Status = "FAILED"
	StatusTimedOut  Status = "TIMED_OUT"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}

// Schedulable reports whether the dispatcher may claim an instance in this
// status. RESUMING instances re-enter normal capability matching rather than
// being handed back to their previous agent.
func (s Status) Schedulable() bool {
	return s == StatusEnqueued || s == StatusResuming
}

// Kind tags instances spawned by the engine itself rather than submitted by a
// caller. An empty kind is a regular submission.
type Kind string

const (
	// KindTimeoutHandler marks a child instance spawned when its parent's
	// deadline elapsed.
	KindTimeoutHandler Kind = "TIMEOUT_HANDLER"
)

// WaitType discriminates what a suspended instance is waiting for.
type WaitType string

const (
	WaitEvent WaitType = "event"
	WaitForm  WaitType = "form"
)

// WaitCondition is present only while an instance is SUSPENDED.
type WaitCondition struct {
	Type WaitType `json:"type"`
	Key  string   `json:"key"` // event name or form ID
}

// Instance is one schedulable unit of workflow work.
type Instance struct {
	ID          string
	WorkflowRef string
	Status      Status

	// Requirements are capability tags an agent must advertise to claim this
	// instance. An empty set matches any agent.
	Requirements map[string]string

	// Variables is the fully resolved configuration visible to the workflow.
	// It is total before the instance reaches RUNNING and mutated only when a
	// completion report writes declared out variables, or when a resume
	// attaches an event payload / form values.
	Variables map[string]any

	// OutVars restricts which variable paths are copied into query responses
	// once the instance finishes. Empty means no variables are exposed.
	OutVars []string

	// Deadline, when set, is enforced by the timeout sweeper. Nil means no
	// timeout.
	Deadline *time.Time

	// ParentID and Kind link engine-spawned children to their parent. A child
	// never owns its parent.
	ParentID *string
	Kind     Kind

	Wait *WaitCondition

	ClaimedBy   string
	InitiatedBy string
	Org         string
	Project     string
	SessionKey  string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	LastError string
}

// Satisfies reports whether the given capability tags cover every requirement
// tag-for-tag. Matching is exact equality, not prefix or range matching.
func Satisfies(capabilities, requirements map[string]string) bool {
	for k, v := range requirements {
		if capabilities[k] != v {
			return false
		}
	}
	return true
}
