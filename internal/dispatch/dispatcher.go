// Package dispatch matches schedulable process instances to live agents and
// claims them atomically.
//
// The dispatcher polls the store for ENQUEUED and RESUMING instances in
// submission order, asks the agent registry for a capability match, and
// attempts the store's conditional claim. Losing a claim race is not an
// error: the instance is simply skipped and re-examined next pass. An
// instance whose requirements no agent satisfies stays queued indefinitely;
// submission never fails for lack of a matching agent.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/walmartlabs/concord-sub001/internal/agent"
	"github.com/walmartlabs/concord-sub001/internal/events"
	"github.com/walmartlabs/concord-sub001/internal/log"
	"github.com/walmartlabs/concord-sub001/internal/process"
)

//go:generate mockgen -destination=mocks/mock_services.go -package=mocks github.com/walmartlabs/concord-sub001/internal/dispatch StoreService,AgentMatcher

// StoreService is the slice of the record store the dispatcher uses.
type StoreService interface {
	QuerySchedulable(ctx context.Context, limit int) ([]*process.Instance, error)
	TryClaim(ctx context.Context, id, claimant string) (bool, error)
	Transition(ctx context.Context, id string, from, to process.Status, mutate func(*process.Instance)) (bool, error)
	RequeueStaleStarting(ctx context.Context, olderThan time.Time) (int, error)
}

// AgentMatcher is the slice of the agent registry the dispatcher uses.
type AgentMatcher interface {
	Match(requirements map[string]string) string
	Deliver(agentID string, a agent.Assignment) bool
}

// Config tunes the dispatch loop.
type Config struct {
	// PollInterval is the base cadence between scans.
	PollInterval time.Duration

	// MaxPollInterval caps the idle backoff. When a full scan claims
	// nothing the interval doubles up to this cap, and resets on any claim.
	MaxPollInterval time.Duration

	// ClaimBatch caps how many candidates one scan examines.
	ClaimBatch int

	// StaleClaimAfter requeues STARTING instances that were never
	// acknowledged, e.g. because the claiming agent was evicted.
	StaleClaimAfter time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 1 * time.Second
	}
	if c.MaxPollInterval < c.PollInterval {
		c.MaxPollInterval = 30 * time.Second
	}
	if c.ClaimBatch <= 0 {
		c.ClaimBatch = 50
	}
	if c.StaleClaimAfter <= 0 {
		c.StaleClaimAfter = 1 * time.Minute
	}
}

// Dispatcher runs the claim loop. Multiple dispatchers may run in parallel;
// correctness relies entirely on the store's conditional updates.
type Dispatcher struct {
	store    StoreService
	registry AgentMatcher
	hub      *events.Hub
	cfg      Config
	logger   *slog.Logger
}

func New(st StoreService, reg AgentMatcher, hub *events.Hub, cfg Config) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		store:    st,
		registry: reg,
		hub:      hub,
		cfg:      cfg,
		logger:   log.WithComponent("dispatch"),
	}
}

// Start runs the dispatch loop until ctx is cancelled. Cancellation is
// cooperative: it is checked between scan passes, never mid-claim.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("dispatch loop started", "poll_interval", d.cfg.PollInterval)
	defer d.logger.Info("dispatch loop stopped")

	interval := d.cfg.PollInterval
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			claimed, err := d.pass(ctx)
			if err != nil {
				// Transient store failures are retried next pass, never
				// dropped.
				d.logger.Error("dispatch pass failed", "error", err)
			}
			if claimed > 0 {
				interval = d.cfg.PollInterval
			} else {
				interval = min(interval*2, d.cfg.MaxPollInterval)
			}
			timer.Reset(interval)
		}
	}
}

// pass performs one scan over schedulable instances and returns how many
// claims succeeded.
func (d *Dispatcher) pass(ctx context.Context) (int, error) {
	if n, err := d.store.RequeueStaleStarting(ctx, time.Now().Add(-d.cfg.StaleClaimAfter)); err != nil {
		d.logger.Error("stale claim requeue failed", "error", err)
	} else if n > 0 {
		d.logger.Warn("requeued unacknowledged claims", "count", n)
	}

	candidates, err := d.store.QuerySchedulable(ctx, d.cfg.ClaimBatch)
	if err != nil {
		return 0, err
	}

	claimed := 0
	for _, inst := range candidates {
		agentID := d.registry.Match(inst.Requirements)
		if agentID == "" {
			// No qualifying agent right now; the instance stays queued and
			// is retried next pass.
			continue
		}

		ok, err := d.store.TryClaim(ctx, inst.ID, agentID)
		if err != nil {
			d.logger.Error("claim failed", "instance_id", inst.ID, "error", err)
			continue
		}
		if !ok {
			// Lost the race to another dispatcher or the sweeper.
			continue
		}

		inst.Status = process.StatusStarting
		inst.ClaimedBy = agentID
		if !d.registry.Deliver(agentID, agent.Assignment{Instance: inst}) {
			// The agent vanished between match and delivery. Release the
			// claim so another agent can pick the instance up.
			d.release(ctx, inst.ID)
			continue
		}

		claimed++
		instLogger := log.WithInstance(inst.ID).With("agent_id", agentID, "workflow_ref", inst.WorkflowRef)
		instLogger.Info("instance assigned")
		d.hub.PublishTransition(inst)
	}
	return claimed, nil
}

func (d *Dispatcher) release(ctx context.Context, id string) {
	ok, err := d.store.Transition(ctx, id, process.StatusStarting, process.StatusEnqueued, func(inst *process.Instance) {
		inst.ClaimedBy = ""
		inst.StartedAt = nil
	})
	if err != nil {
		d.logger.Error("claim release failed", "instance_id", id, "error", err)
		return
	}
	if !ok {
		d.logger.Warn("claim release lost a transition race", "instance_id", id)
	}
}
