package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walmartlabs/concord-sub001/internal/config"
	"github.com/walmartlabs/concord-sub001/internal/events"
	"github.com/walmartlabs/concord-sub001/internal/process"
	"github.com/walmartlabs/concord-sub001/internal/storage"
	"github.com/walmartlabs/concord-sub001/internal/store"
	"github.com/walmartlabs/concord-sub001/internal/variables"
)

func newTestManager(t *testing.T, cfg *config.Config) (*Manager, *store.Store) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "orchd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.BootstrapSQLite(ctx, db))

	if cfg == nil {
		cfg = &config.Config{}
	}
	if cfg.Service.TimeoutHandlerRef == "" {
		cfg.Service.TimeoutHandlerRef = "onTimeout"
	}

	st := store.New(db)
	return New(st, events.NewHub(64), cfg), st
}

func seedInstance(t *testing.T, st *store.Store, status process.Status) *process.Instance {
	t.Helper()
	inst := &process.Instance{
		ID:          uuid.NewString(),
		WorkflowRef: "deploy",
		Status:      status,
		InitiatedBy: "tester",
		Org:         "acme",
		Project:     "payments",
		SessionKey:  uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.Create(context.Background(), inst))
	return inst
}

func TestAcknowledge(t *testing.T) {
	m, st := newTestManager(t, nil)
	ctx := context.Background()

	inst := seedInstance(t, st, process.StatusStarting)
	require.NoError(t, m.Acknowledge(ctx, inst.ID))

	got, err := st.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusRunning, got.Status)

	// Repeating the acknowledgement is a late report.
	err = m.Acknowledge(ctx, inst.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestSuspendResumeEventRoundTrip(t *testing.T) {
	m, st := newTestManager(t, nil)
	ctx := context.Background()

	inst := seedInstance(t, st, process.StatusRunning)

	cond := process.WaitCondition{Type: process.WaitEvent, Key: "paymentConfirmed"}
	require.NoError(t, m.Suspend(ctx, inst.ID, cond))

	got, err := st.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusSuspended, got.Status)
	require.NotNil(t, got.Wait)
	assert.Equal(t, cond, *got.Wait)

	payload := map[string]any{"amount": float64(99)}
	require.NoError(t, m.ResumeEvent(ctx, inst.ID, "paymentConfirmed", payload))

	got, err = st.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusResuming, got.Status)
	assert.Nil(t, got.Wait)
	attached, ok := got.Variables[variables.EventPayloadKey].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(99), attached["amount"])

	// The wait record was consumed; a duplicate event delivery errors.
	err = m.ResumeEvent(ctx, inst.ID, "paymentConfirmed", payload)
	assert.True(t, errors.Is(err, ErrNotWaiting))
}

func TestResumeEventWrongName(t *testing.T) {
	m, st := newTestManager(t, nil)
	ctx := context.Background()

	inst := seedInstance(t, st, process.StatusRunning)
	require.NoError(t, m.Suspend(ctx, inst.ID, process.WaitCondition{Type: process.WaitEvent, Key: "expected"}))

	err := m.ResumeEvent(ctx, inst.ID, "other", nil)
	assert.True(t, errors.Is(err, ErrNotWaiting))
}

func TestResumeFormMergesValuesHighestPrecedence(t *testing.T) {
	m, st := newTestManager(t, nil)
	ctx := context.Background()

	inst := &process.Instance{
		ID:          uuid.NewString(),
		WorkflowRef: "approval",
		Status:      process.StatusRunning,
		Variables:   map[string]any{"approver": "nobody", "env": "prod"},
		SessionKey:  uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.Create(ctx, inst))
	require.NoError(t, m.Suspend(ctx, inst.ID, process.WaitCondition{Type: process.WaitForm, Key: "approvalForm"}))

	require.NoError(t, m.ResumeForm(ctx, inst.ID, "approvalForm", map[string]any{"approver": "alice"}))

	got, err := st.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusResuming, got.Status)
	assert.Equal(t, "alice", got.Variables["approver"])
	assert.Equal(t, "prod", got.Variables["env"])
}

func TestSuspendRejectsUnknownWaitType(t *testing.T) {
	m, st := newTestManager(t, nil)
	inst := seedInstance(t, st, process.StatusRunning)

	err := m.Suspend(context.Background(), inst.ID, process.WaitCondition{Type: "timer", Key: "x"})
	assert.Error(t, err)
}

func TestFinishMergesOutVariables(t *testing.T) {
	m, st := newTestManager(t, nil)
	ctx := context.Background()

	inst := seedInstance(t, st, process.StatusRunning)
	require.NoError(t, m.Finish(ctx, inst.ID, map[string]any{"result": map[string]any{"status": "ok"}}))

	got, err := st.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusFinished, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, "ok", got.Variables["result"].(map[string]any)["status"])
}

func TestFailRecordsReason(t *testing.T) {
	m, st := newTestManager(t, nil)
	ctx := context.Background()

	inst := seedInstance(t, st, process.StatusRunning)
	require.NoError(t, m.Fail(ctx, inst.ID, "step 3 exploded"))

	got, err := st.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusFailed, got.Status)
	assert.Equal(t, "step 3 exploded", got.LastError)
}

func TestCancel(t *testing.T) {
	m, st := newTestManager(t, nil)
	ctx := context.Background()

	inst := seedInstance(t, st, process.StatusEnqueued)
	require.NoError(t, m.Cancel(ctx, inst.ID))

	got, err := st.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusCancelled, got.Status)

	// Repeated cancel is a no-op.
	require.NoError(t, m.Cancel(ctx, inst.ID))

	// Cancelling a finished instance is rejected.
	done := seedInstance(t, st, process.StatusRunning)
	require.NoError(t, m.Finish(ctx, done.ID, nil))
	err = m.Cancel(ctx, done.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestCancelClearsWaitRecord(t *testing.T) {
	m, st := newTestManager(t, nil)
	ctx := context.Background()

	inst := seedInstance(t, st, process.StatusRunning)
	require.NoError(t, m.Suspend(ctx, inst.ID, process.WaitCondition{Type: process.WaitEvent, Key: "never"}))
	require.NoError(t, m.Cancel(ctx, inst.ID))

	got, err := st.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusCancelled, got.Status)
	assert.Nil(t, got.Wait)

	_, err = st.ResumeWait(ctx, inst.ID, process.WaitCondition{Type: process.WaitEvent, Key: "never"}, nil)
	assert.True(t, errors.Is(err, ErrNotWaiting))
}

func TestTimeoutSpawnsHandlerWithParentContext(t *testing.T) {
	cfg := &config.Config{
		Workflows: map[string]config.WorkflowConf{
			"onTimeout": {
				Defaults:     map[string]any{"notify": "#ops"},
				Requirements: map[string]string{"flavor": "docker"},
			},
		},
	}
	m, st := newTestManager(t, cfg)
	ctx := context.Background()

	parent := seedInstance(t, st, process.StatusRunning)
	require.NoError(t, m.Timeout(ctx, parent.ID))

	got, err := st.Get(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusTimedOut, got.Status)

	children, err := st.QuerySchedulable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, children, 1)
	child := children[0]

	assert.Equal(t, "onTimeout", child.WorkflowRef)
	assert.Equal(t, process.KindTimeoutHandler, child.Kind)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)
	assert.Equal(t, parent.Org, child.Org)
	assert.Equal(t, parent.Project, child.Project)
	assert.Equal(t, parent.SessionKey, child.SessionKey)
	assert.Equal(t, parent.InitiatedBy, child.InitiatedBy)
	assert.Equal(t, map[string]string{"flavor": "docker"}, child.Requirements)
	assert.Nil(t, child.Deadline)

	pctx, ok := child.Variables["parent"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, parent.ID, pctx["id"])
	assert.Equal(t, parent.WorkflowRef, pctx["workflowRef"])
	assert.Equal(t, "#ops", child.Variables["notify"])
}

func TestTimeoutIdempotentSingleHandler(t *testing.T) {
	m, st := newTestManager(t, nil)
	ctx := context.Background()

	parent := seedInstance(t, st, process.StatusRunning)
	require.NoError(t, m.Timeout(ctx, parent.ID))
	require.NoError(t, m.Timeout(ctx, parent.ID))
	require.NoError(t, m.Timeout(ctx, parent.ID))

	children, err := st.QuerySchedulable(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, children, 1)
}

func TestTimeoutUsesWorkflowOnTimeoutOverride(t *testing.T) {
	cfg := &config.Config{
		Workflows: map[string]config.WorkflowConf{
			"deploy":        {OnTimeout: "deployCleanup"},
			"deployCleanup": {},
		},
	}
	m, st := newTestManager(t, cfg)
	ctx := context.Background()

	parent := seedInstance(t, st, process.StatusRunning)
	require.NoError(t, m.Timeout(ctx, parent.ID))

	children, err := st.QuerySchedulable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "deployCleanup", children[0].WorkflowRef)
}

func TestTimeoutOnTerminalInstanceIsNoOp(t *testing.T) {
	m, st := newTestManager(t, nil)
	ctx := context.Background()

	inst := seedInstance(t, st, process.StatusRunning)
	require.NoError(t, m.Finish(ctx, inst.ID, nil))
	require.NoError(t, m.Timeout(ctx, inst.ID))

	got, err := st.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusFinished, got.Status)

	children, err := st.QuerySchedulable(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestHandlerChildDoesNotGetOwnHandler(t *testing.T) {
	m, st := newTestManager(t, nil)
	ctx := context.Background()

	parent := seedInstance(t, st, process.StatusRunning)
	require.NoError(t, m.Timeout(ctx, parent.ID))

	children, err := st.QuerySchedulable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, children, 1)
	handler := children[0]

	// Drive the handler to RUNNING and time it out.
	ok, err := st.TryClaim(ctx, handler.ID, "agent-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, m.Acknowledge(ctx, handler.ID))
	require.NoError(t, m.Timeout(ctx, handler.ID))

	got, err := st.Get(ctx, handler.ID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusTimedOut, got.Status)

	// No grandchild was spawned.
	remaining, err := st.QuerySchedulable(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestLateReportAfterTimeoutDiscarded(t *testing.T) {
	m, st := newTestManager(t, nil)
	ctx := context.Background()

	inst := seedInstance(t, st, process.StatusRunning)
	require.NoError(t, m.Timeout(ctx, inst.ID))

	err := m.Finish(ctx, inst.ID, map[string]any{"late": true})
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	got, err := st.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusTimedOut, got.Status)
	_, present := got.Variables["late"]
	assert.False(t, present)

	err = m.Fail(ctx, inst.ID, "late failure")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	got, err = st.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LastError)
}
