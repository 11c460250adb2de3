package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walmartlabs/concord-sub001/internal/config"
	"github.com/walmartlabs/concord-sub001/internal/events"
	"github.com/walmartlabs/concord-sub001/internal/lifecycle"
	"github.com/walmartlabs/concord-sub001/internal/process"
	"github.com/walmartlabs/concord-sub001/internal/storage"
	"github.com/walmartlabs/concord-sub001/internal/store"
	"github.com/walmartlabs/concord-sub001/internal/variables"
)

func newTestService(t *testing.T, cfg *config.Config) (*Service, *store.Store, *lifecycle.Manager) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "orchd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.BootstrapSQLite(ctx, db))

	if cfg == nil {
		cfg = &config.Config{}
	}
	st := store.New(db)
	hub := events.NewHub(64)
	mgr := lifecycle.New(st, hub, cfg)
	return New(st, mgr, hub, cfg), st, mgr
}

func testConfig() *config.Config {
	return &config.Config{
		Projects: map[string]config.ProjectConf{
			"payments": {
				Org:       "acme",
				Variables: map[string]any{"region": "us-east", "smtp": map[string]any{"host": "mail.internal", "port": float64(25)}},
				Profiles: map[string]map[string]any{
					"production": {"region": "us-east-prod"},
				},
			},
		},
		Workflows: map[string]config.WorkflowConf{
			"deploy": {
				Defaults:     map[string]any{"replicas": float64(1), "region": "default"},
				OutVars:      []string{"result.status"},
				Timeout:      time.Hour,
				Requirements: map[string]string{"flavor": "docker"},
			},
		},
	}
}

func TestSubmitResolvesVariableLayers(t *testing.T) {
	svc, st, _ := newTestService(t, testConfig())
	ctx := context.Background()

	id, err := svc.Submit(ctx, SubmitRequest{
		WorkflowRef: "deploy",
		Project:     "payments",
		Profile:     "production",
		Arguments:   map[string]any{"replicas": float64(3)},
		InitiatedBy: "alice",
	})
	require.NoError(t, err)

	inst, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, process.StatusEnqueued, inst.Status)
	assert.Equal(t, "acme", inst.Org)
	assert.Equal(t, "payments", inst.Project)
	assert.Equal(t, "alice", inst.InitiatedBy)
	assert.NotEmpty(t, inst.SessionKey)

	// defaults < project < profile < args
	assert.Equal(t, float64(3), inst.Variables["replicas"])
	assert.Equal(t, "us-east-prod", inst.Variables["region"])
	assert.Equal(t, "mail.internal", inst.Variables["smtp"].(map[string]any)["host"])

	assert.Equal(t, map[string]string{"flavor": "docker"}, inst.Requirements)
	assert.Equal(t, []string{"result.status"}, inst.OutVars)
	require.NotNil(t, inst.Deadline)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), *inst.Deadline, 5*time.Second)
}

func TestSubmitUnknownProfileFailsSynchronously(t *testing.T) {
	svc, st, _ := newTestService(t, testConfig())
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitRequest{
		WorkflowRef: "deploy",
		Project:     "payments",
		Profile:     "no-such-profile",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, variables.ErrUnknownProfile))

	// Nothing was enqueued.
	depth, err := st.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestSubmitUnknownProjectFailsSynchronously(t *testing.T) {
	svc, st, _ := newTestService(t, testConfig())
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitRequest{
		WorkflowRef: "deploy",
		Project:     "no-such-project",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownProject))

	depth, err := st.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)

	// No project layer at all is fine; only a named-but-unconfigured project
	// is a configuration error.
	_, err = svc.Submit(ctx, SubmitRequest{WorkflowRef: "deploy"})
	assert.NoError(t, err)
}

func TestSubmitUnsatisfiableRequirementsStillEnqueues(t *testing.T) {
	svc, st, _ := newTestService(t, nil)
	ctx := context.Background()

	id, err := svc.Submit(ctx, SubmitRequest{
		WorkflowRef:  "deploy",
		Requirements: map[string]string{"gpu": "a100", "region": "mars"},
	})
	require.NoError(t, err)

	inst, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, process.StatusEnqueued, inst.Status)
}

func TestSubmitRequirementOverride(t *testing.T) {
	svc, st, _ := newTestService(t, testConfig())
	ctx := context.Background()

	id, err := svc.Submit(ctx, SubmitRequest{
		WorkflowRef:  "deploy",
		Requirements: map[string]string{"flavor": "k8s", "region": "us-west"},
	})
	require.NoError(t, err)

	inst, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"flavor": "k8s", "region": "us-west"}, inst.Requirements)
}

func TestSubmitRequestTimeoutWinsOverWorkflow(t *testing.T) {
	svc, st, _ := newTestService(t, testConfig())
	ctx := context.Background()

	id, err := svc.Submit(ctx, SubmitRequest{
		WorkflowRef: "deploy",
		Timeout:     10 * time.Minute,
	})
	require.NoError(t, err)

	inst, err := st.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, inst.Deadline)
	assert.WithinDuration(t, time.Now().UTC().Add(10*time.Minute), *inst.Deadline, 5*time.Second)
}

func TestSubmitNoTimeoutMeansNoDeadline(t *testing.T) {
	svc, st, _ := newTestService(t, nil)
	ctx := context.Background()

	id, err := svc.Submit(ctx, SubmitRequest{WorkflowRef: "adhoc"})
	require.NoError(t, err)

	inst, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, inst.Deadline)
}

func TestSubmitEmptyWorkflowRef(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	_, err := svc.Submit(context.Background(), SubmitRequest{})
	assert.Error(t, err)
}

func TestStatusExposesOutVariablesOnlyWhenFinished(t *testing.T) {
	svc, st, mgr := newTestService(t, testConfig())
	ctx := context.Background()

	id, err := svc.Submit(ctx, SubmitRequest{WorkflowRef: "deploy"})
	require.NoError(t, err)

	res, err := svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, process.StatusEnqueued, res.Status)
	assert.Nil(t, res.Variables)

	// Drive to FINISHED with a reported result.
	ok, err := st.TryClaim(ctx, id, "agent-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mgr.Acknowledge(ctx, id))
	require.NoError(t, mgr.Finish(ctx, id, map[string]any{
		"result":  map[string]any{"status": "ok"},
		"scratch": "hidden",
	}))

	res, err = svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, process.StatusFinished, res.Status)
	assert.Equal(t, map[string]any{"result.status": "ok"}, res.Variables)
	assert.NotNil(t, res.CompletedAt)
}

func TestStatusNotFound(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	_, err := svc.Status(context.Background(), "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestCancelViaService(t *testing.T) {
	svc, st, _ := newTestService(t, nil)
	ctx := context.Background()

	id, err := svc.Submit(ctx, SubmitRequest{WorkflowRef: "adhoc"})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, id))

	inst, err := st.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, process.StatusCancelled, inst.Status)
}
