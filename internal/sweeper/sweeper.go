// Package sweeper enforces process instance deadlines.
//
// A background loop scans for instances whose deadline elapsed in a
// timeout-eligible state and hands each to the lifecycle manager's timeout
// transition. The scan is idempotent: the conditional update behind the
// transition fires at most once per instance no matter how many sweepers run
// or how often they scan. A second phase retries timeout handler spawns that
// failed on a previous pass.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/walmartlabs/concord-sub001/internal/log"
	"github.com/walmartlabs/concord-sub001/internal/process"
)

//go:generate mockgen -destination=mocks/mock_services.go -package=mocks github.com/walmartlabs/concord-sub001/internal/sweeper StoreService,LifecycleService

// StoreService is the slice of the record store the sweeper uses.
type StoreService interface {
	QueryExpired(ctx context.Context, now time.Time, limit int) ([]*process.Instance, error)
	QueryTimedOutMissingHandler(ctx context.Context, limit int) ([]*process.Instance, error)
}

// LifecycleService is the slice of the lifecycle manager the sweeper uses.
type LifecycleService interface {
	Timeout(ctx context.Context, id string) error
	EnsureTimeoutHandler(ctx context.Context, parent *process.Instance) error
}

// Config tunes the sweep loop.
type Config struct {
	Interval  time.Duration
	ScanBatch int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.ScanBatch <= 0 {
		c.ScanBatch = 50
	}
}

// Sweeper runs the deadline enforcement loop.
type Sweeper struct {
	store     StoreService
	lifecycle LifecycleService
	cfg       Config
	logger    *slog.Logger
	nowFunc   func() time.Time
}

func New(st StoreService, lc LifecycleService, cfg Config) *Sweeper {
	cfg.applyDefaults()
	return &Sweeper{
		store:     st,
		lifecycle: lc,
		cfg:       cfg,
		logger:    log.WithComponent("sweeper"),
		nowFunc:   time.Now,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("timeout sweeper started", "interval", s.cfg.Interval)
	defer s.logger.Info("timeout sweeper stopped")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs a single pass: fire elapsed deadlines, then retry any
// missing handler spawns. Errors are logged and retried next pass, never
// propagated; a failed spawn must not roll back the parent's TIMED_OUT
// status.
func (s *Sweeper) Sweep(ctx context.Context) {
	expired, err := s.store.QueryExpired(ctx, s.nowFunc(), s.cfg.ScanBatch)
	if err != nil {
		s.logger.Error("expired scan failed", "error", err)
		return
	}
	for _, inst := range expired {
		if err := s.lifecycle.Timeout(ctx, inst.ID); err != nil {
			s.logger.Error("timeout transition failed", "instance_id", inst.ID, "error", err)
		}
	}

	orphaned, err := s.store.QueryTimedOutMissingHandler(ctx, s.cfg.ScanBatch)
	if err != nil {
		s.logger.Error("missing handler scan failed", "error", err)
		return
	}
	for _, parent := range orphaned {
		if err := s.lifecycle.EnsureTimeoutHandler(ctx, parent); err != nil {
			s.logger.Error("timeout handler spawn retry failed", "instance_id", parent.ID, "error", err)
		}
	}
}
