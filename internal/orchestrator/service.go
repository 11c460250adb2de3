// Package orchestrator is the submission-facing service: it resolves variable
// layers, persists new process instances, and answers status queries.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/walmartlabs/concord-sub001/internal/config"
	"github.com/walmartlabs/concord-sub001/internal/events"
	"github.com/walmartlabs/concord-sub001/internal/lifecycle"
	"github.com/walmartlabs/concord-sub001/internal/log"
	"github.com/walmartlabs/concord-sub001/internal/process"
	"github.com/walmartlabs/concord-sub001/internal/store"
	"github.com/walmartlabs/concord-sub001/internal/variables"
)

// ErrUnknownProject is returned when a submission names a project the
// configuration does not define.
var ErrUnknownProject = errors.New("unknown project")

// Service accepts submissions and serves queries over process instances.
type Service struct {
	store  *store.Store
	mgr    *lifecycle.Manager
	hub    *events.Hub
	cfg    *config.Config
	logger *slog.Logger
}

func New(st *store.Store, mgr *lifecycle.Manager, hub *events.Hub, cfg *config.Config) *Service {
	return &Service{
		store:  st,
		mgr:    mgr,
		hub:    hub,
		cfg:    cfg,
		logger: log.WithComponent("orchestrator"),
	}
}

// SubmitRequest carries everything a caller supplies at submission time.
type SubmitRequest struct {
	WorkflowRef  string
	Project      string
	Profile      string
	Requirements map[string]string
	Arguments    map[string]any
	OutVars      []string
	Timeout      time.Duration
	InitiatedBy  string
}

// Submit resolves the variable layers for a new instance and enqueues it.
// Configuration errors (an unknown project or profile) fail synchronously; an
// unsatisfiable requirement set does not: the instance simply stays
// ENQUEUED until a qualifying agent appears or the caller cancels it.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.WorkflowRef == "" {
		return "", fmt.Errorf("workflow ref is empty")
	}

	proj, ok := s.cfg.Projects[req.Project]
	if req.Project != "" && !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProject, req.Project)
	}
	wf := s.cfg.Workflows[req.WorkflowRef]

	vars, err := variables.Resolve(wf.Defaults, proj.Variables, proj.Profiles, req.Profile, req.Arguments)
	if err != nil {
		return "", fmt.Errorf("resolve variables for project %q: %w", req.Project, err)
	}

	// Workflow-level requirement tags apply unless the submission overrides
	// them key-by-key.
	requirements := make(map[string]string, len(wf.Requirements)+len(req.Requirements))
	for k, v := range wf.Requirements {
		requirements[k] = v
	}
	for k, v := range req.Requirements {
		requirements[k] = v
	}

	outVars := req.OutVars
	if len(outVars) == 0 {
		outVars = wf.OutVars
	}

	now := time.Now().UTC()
	var deadline *time.Time
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = wf.Timeout
	}
	if timeout > 0 {
		t := now.Add(timeout)
		deadline = &t
	}

	inst := &process.Instance{
		ID:           uuid.NewString(),
		WorkflowRef:  req.WorkflowRef,
		Status:       process.StatusEnqueued,
		Requirements: requirements,
		Variables:    vars,
		OutVars:      outVars,
		Deadline:     deadline,
		InitiatedBy:  req.InitiatedBy,
		Org:          proj.Org,
		Project:      req.Project,
		SessionKey:   uuid.NewString(),
		CreatedAt:    now,
	}

	if err := s.store.Create(ctx, inst); err != nil {
		return "", fmt.Errorf("enqueue instance: %w", err)
	}

	s.logger.Info("instance submitted",
		"instance_id", inst.ID, "workflow_ref", inst.WorkflowRef,
		"project", req.Project, "profile", req.Profile)
	s.hub.PublishTransition(inst)
	return inst.ID, nil
}

// StatusResult is the caller-visible view of one instance.
type StatusResult struct {
	InstanceID  string
	Status      process.Status
	Kind        process.Kind
	ParentID    *string
	WorkflowRef string

	// Variables holds the declared out variable subset, populated only once
	// the instance has FINISHED.
	Variables map[string]any

	Wait        *process.WaitCondition
	LastError   string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Status returns the current state of an instance and, when finished, the
// declared out variables.
func (s *Service) Status(ctx context.Context, id string) (*StatusResult, error) {
	inst, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &StatusResult{
		InstanceID:  inst.ID,
		Status:      inst.Status,
		Kind:        inst.Kind,
		ParentID:    inst.ParentID,
		WorkflowRef: inst.WorkflowRef,
		Wait:        inst.Wait,
		LastError:   inst.LastError,
		CreatedAt:   inst.CreatedAt,
		StartedAt:   inst.StartedAt,
		CompletedAt: inst.CompletedAt,
	}
	if inst.Status == process.StatusFinished {
		res.Variables = variables.ExtractOut(inst.Variables, inst.OutVars)
	}
	return res, nil
}

// Cancel requests explicit external cancellation of a non-terminal instance.
func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.mgr.Cancel(ctx, id)
}
