// Package lifecycle owns the process instance state machine.
//
// Every legal transition is a single conditional update in the store; races
// between the dispatcher, reporting agents, the sweeper, and cancellation are
// resolved by whichever conditional update commits first. Losers see a false
// claim result and re-read current state; nothing retries a lost CAS
// blindly.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/walmartlabs/concord-sub001/internal/config"
	"github.com/walmartlabs/concord-sub001/internal/events"
	"github.com/walmartlabs/concord-sub001/internal/log"
	"github.com/walmartlabs/concord-sub001/internal/process"
	"github.com/walmartlabs/concord-sub001/internal/store"
	"github.com/walmartlabs/concord-sub001/internal/variables"
)

// ErrInvalidTransition is returned when a reported transition is not legal
// from the instance's current status. Late agent reports against TIMED_OUT or
// CANCELLED instances surface as this error and are otherwise discarded.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrNotWaiting mirrors the store sentinel for resume attempts against a
// missing or already-consumed wait record.
var ErrNotWaiting = store.ErrNotWaiting

// Manager drives process instances through their legal status transitions.
type Manager struct {
	store  *store.Store
	hub    *events.Hub
	cfg    *config.Config
	logger *slog.Logger
}

func New(st *store.Store, hub *events.Hub, cfg *config.Config) *Manager {
	return &Manager{
		store:  st,
		hub:    hub,
		cfg:    cfg,
		logger: log.WithComponent("lifecycle"),
	}
}

// Acknowledge records that the claiming agent has begun execution
// (STARTING -> RUNNING).
func (m *Manager) Acknowledge(ctx context.Context, id string) error {
	ok, err := m.store.Transition(ctx, id, process.StatusStarting, process.StatusRunning, nil)
	if err != nil {
		return fmt.Errorf("acknowledge %s: %w", id, err)
	}
	if !ok {
		return m.discard(ctx, id, "acknowledge")
	}
	m.publish(ctx, id)
	return nil
}

// Suspend records a wait condition reported by the executing agent
// (RUNNING -> SUSPENDED). The wait record is written atomically with the
// transition.
func (m *Manager) Suspend(ctx context.Context, id string, cond process.WaitCondition) error {
	if cond.Type != process.WaitEvent && cond.Type != process.WaitForm {
		return fmt.Errorf("unknown wait type %q", cond.Type)
	}
	ok, err := m.store.Suspend(ctx, id, cond)
	if err != nil {
		return fmt.Errorf("suspend %s: %w", id, err)
	}
	if !ok {
		return m.discard(ctx, id, "suspend")
	}
	m.publish(ctx, id)
	return nil
}

// ResumeEvent resolves a NamedEvent wait record (SUSPENDED -> RESUMING). The
// event payload is attached to the instance's variables under a reserved key.
// Resuming a missing or already-consumed wait record fails with ErrNotWaiting.
func (m *Manager) ResumeEvent(ctx context.Context, id, name string, payload map[string]any) error {
	cond := process.WaitCondition{Type: process.WaitEvent, Key: name}
	_, err := m.store.ResumeWait(ctx, id, cond, func(vars map[string]any) map[string]any {
		if payload == nil {
			payload = map[string]any{}
		}
		return variables.Merge(vars, map[string]any{variables.EventPayloadKey: payload})
	})
	if err != nil {
		if errors.Is(err, store.ErrNotWaiting) || errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("resume %s by event %q: %w", id, name, err)
	}
	m.publish(ctx, id)
	return nil
}

// ResumeForm resolves a PendingForm wait record (SUSPENDED -> RESUMING),
// merging the submitted values as the highest-precedence variable layer for
// subsequent execution.
func (m *Manager) ResumeForm(ctx context.Context, id, formID string, values map[string]any) error {
	cond := process.WaitCondition{Type: process.WaitForm, Key: formID}
	_, err := m.store.ResumeWait(ctx, id, cond, func(vars map[string]any) map[string]any {
		return variables.Merge(vars, values)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotWaiting) || errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("resume %s by form %q: %w", id, formID, err)
	}
	m.publish(ctx, id)
	return nil
}

// Finish records successful completion (RUNNING -> FINISHED). Out variables
// reported by the agent are merged into the instance's variable set; the
// declared out paths restrict what queries later expose.
func (m *Manager) Finish(ctx context.Context, id string, outVars map[string]any) error {
	ok, err := m.store.Transition(ctx, id, process.StatusRunning, process.StatusFinished, func(inst *process.Instance) {
		if len(outVars) > 0 {
			inst.Variables = variables.Merge(inst.Variables, outVars)
		}
	})
	if err != nil {
		return fmt.Errorf("finish %s: %w", id, err)
	}
	if !ok {
		return m.discard(ctx, id, "finish")
	}
	m.publish(ctx, id)
	return nil
}

// Fail records an unrecoverable error reported by the agent
// (RUNNING -> FAILED).
func (m *Manager) Fail(ctx context.Context, id, reason string) error {
	ok, err := m.store.Transition(ctx, id, process.StatusRunning, process.StatusFailed, func(inst *process.Instance) {
		inst.LastError = reason
	})
	if err != nil {
		return fmt.Errorf("fail %s: %w", id, err)
	}
	if !ok {
		return m.discard(ctx, id, "fail")
	}
	m.publish(ctx, id)
	return nil
}

// Cancel moves any non-terminal instance to CANCELLED. Already-terminal
// instances return ErrInvalidTransition, except a repeated cancel which is a
// no-op.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	for attempt := 0; attempt < 3; attempt++ {
		inst, err := m.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if inst.Status == process.StatusCancelled {
			return nil
		}
		if inst.Status.Terminal() {
			return fmt.Errorf("%w: cannot cancel %s instance %s", ErrInvalidTransition, inst.Status, id)
		}
		ok, err := m.store.Transition(ctx, id, inst.Status, process.StatusCancelled, func(i *process.Instance) {
			i.Wait = nil
		})
		if err != nil {
			return fmt.Errorf("cancel %s: %w", id, err)
		}
		if ok {
			m.publish(ctx, id)
			return nil
		}
		// Lost a race; re-read and decide again.
	}
	return fmt.Errorf("%w: cancel of %s kept losing transition races", ErrInvalidTransition, id)
}

// Timeout enforces an elapsed deadline: the instance moves to TIMED_OUT (at
// most once, regardless of concurrent sweepers) and a timeout handler child
// is spawned. The parent's TIMED_OUT status is never rolled back; a failed
// child spawn is retried by the sweeper's next pass.
func (m *Manager) Timeout(ctx context.Context, id string) error {
	fired, err := m.store.MarkTimedOut(ctx, id)
	if err != nil {
		return fmt.Errorf("timeout %s: %w", id, err)
	}
	if !fired {
		// Completed, cancelled, or already timed out concurrently.
		return nil
	}
	m.publish(ctx, id)

	parent, err := m.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load timed out parent %s: %w", id, err)
	}
	if err := m.EnsureTimeoutHandler(ctx, parent); err != nil {
		// Fire-and-forget: the parent stays TIMED_OUT and the sweeper
		// retries the spawn.
		m.logger.Error("failed to spawn timeout handler", "instance_id", id, "error", err)
	}
	return nil
}

// EnsureTimeoutHandler spawns the TIMEOUT_HANDLER child for a TIMED_OUT
// parent if it does not exist yet. Safe under concurrent sweepers: the store
// enforces at most one handler per parent.
func (m *Manager) EnsureTimeoutHandler(ctx context.Context, parent *process.Instance) error {
	if parent.Kind == process.KindTimeoutHandler {
		// Handlers do not get handlers of their own.
		return nil
	}

	handlerRef := m.cfg.Service.TimeoutHandlerRef
	var handlerConf config.WorkflowConf
	if wf, ok := m.cfg.Workflows[parent.WorkflowRef]; ok && wf.OnTimeout != "" {
		handlerRef = wf.OnTimeout
	}
	if wf, ok := m.cfg.Workflows[handlerRef]; ok {
		handlerConf = wf
	}

	parentCtx := map[string]any{
		"parent": map[string]any{
			"id":          parent.ID,
			"workflowRef": parent.WorkflowRef,
			"org":         parent.Org,
			"project":     parent.Project,
			"sessionKey":  parent.SessionKey,
			"initiator":   parent.InitiatedBy,
		},
	}

	child := &process.Instance{
		ID:           uuid.NewString(),
		WorkflowRef:  handlerRef,
		Status:       process.StatusEnqueued,
		Requirements: handlerConf.Requirements,
		Variables:    variables.Merge(handlerConf.Defaults, parentCtx),
		OutVars:      handlerConf.OutVars,
		ParentID:     &parent.ID,
		Kind:         process.KindTimeoutHandler,
		InitiatedBy:  parent.InitiatedBy,
		Org:          parent.Org,
		Project:      parent.Project,
		SessionKey:   parent.SessionKey,
		CreatedAt:    time.Now().UTC(),
	}

	created, err := m.store.AppendChild(ctx, child)
	if err != nil {
		return fmt.Errorf("append timeout handler for %s: %w", parent.ID, err)
	}
	if created {
		m.logger.Info("timeout handler spawned",
			"parent_id", parent.ID, "child_id", child.ID, "workflow_ref", handlerRef)
		m.hub.PublishTransition(child)
	}
	return nil
}

// discard logs a report that lost its transition race and maps it to
// ErrInvalidTransition with the current status attached.
func (m *Manager) discard(ctx context.Context, id, op string) error {
	inst, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	m.logger.Warn("discarding late report",
		"instance_id", id, "op", op, "status", inst.Status)
	return fmt.Errorf("%w: %s not applicable to %s instance %s",
		ErrInvalidTransition, op, inst.Status, id)
}

func (m *Manager) publish(ctx context.Context, id string) {
	inst, err := m.store.Get(ctx, id)
	if err != nil {
		m.logger.Debug("skipping transition event", "instance_id", id, "error", err)
		return
	}
	m.hub.PublishTransition(inst)
}
