// Package store persists process instance records in SQLite and is the sole
// arbiter of claim exclusivity. Every status change goes through a single
// conditional UPDATE guarded by the expected current status; concurrent
// callers race on that guard and the loser sees claimed=false rather than an
// error.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/walmartlabs/concord-sub001/internal/process"
)

var (
	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("process instance not found")

	// ErrNotWaiting is returned when a resume targets an instance that is not
	// suspended on the given wait condition, or whose wait record was already
	// consumed.
	ErrNotWaiting = errors.New("process instance is not waiting")
)

const instanceColumns = `
  id, workflow_ref, status, requirements, variables, out_vars, deadline,
  parent_id, kind, wait_type, wait_key, claimed_by, initiated_by, org, project,
  session_key, created_at, started_at, completed_at, last_error`

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create persists a new instance record. The caller assigns the id and the
// initial status (normally ENQUEUED, with variables fully resolved).
func (s *Store) Create(ctx context.Context, inst *process.Instance) error {
	if inst.ID == "" {
		return fmt.Errorf("instance id is empty")
	}
	if inst.WorkflowRef == "" {
		return fmt.Errorf("workflow ref is empty")
	}

	reqJSON, err := marshalMapString(inst.Requirements)
	if err != nil {
		return fmt.Errorf("marshal requirements: %w", err)
	}
	varsJSON, err := marshalMap(inst.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	outJSON, err := marshalStringSlice(inst.OutVars)
	if err != nil {
		return fmt.Errorf("marshal out_vars: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO process_instance(`+instanceColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL);
`,
		inst.ID, inst.WorkflowRef, inst.Status, reqJSON, varsJSON, outJSON,
		formatTimePtr(inst.Deadline), inst.ParentID, string(inst.Kind),
		inst.ClaimedBy, inst.InitiatedBy, inst.Org, inst.Project,
		inst.SessionKey, formatTime(inst.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert process instance: %w", err)
	}
	return nil
}

// Get loads a single instance by id.
func (s *Store) Get(ctx context.Context, id string) (*process.Instance, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+instanceColumns+`
FROM process_instance
WHERE id = ?;
`, id)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load process instance: %w", err)
	}
	return inst, nil
}

// TryClaim atomically moves a schedulable instance (ENQUEUED or RESUMING) to
// STARTING on behalf of claimant. Returns false when the instance was already
// claimed or left the schedulable state; exactly one concurrent caller wins.
func (s *Store) TryClaim(ctx context.Context, id, claimant string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
UPDATE process_instance
SET status = ?, claimed_by = ?, started_at = ?
WHERE id = ? AND status IN (?, ?);
`, process.StatusStarting, claimant, formatTime(now), id,
		process.StatusEnqueued, process.StatusResuming)
	if err != nil {
		return false, fmt.Errorf("claim process instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return n == 1, nil
}

// Transition performs a conditional status change from -> to, optionally
// mutating record fields inside the same transaction. Returns false (without
// error) when the guard fails; the caller must re-read current state rather
// than retry blindly.
func (s *Store) Transition(ctx context.Context, id string, from, to process.Status, mutate func(*process.Instance)) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
SELECT `+instanceColumns+`
FROM process_instance
WHERE id = ?;
`, id)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("load process instance: %w", err)
	}
	if inst.Status != from {
		return false, nil
	}

	inst.Status = to
	if mutate != nil {
		mutate(inst)
	}
	if to.Terminal() && inst.CompletedAt == nil {
		now := time.Now().UTC()
		inst.CompletedAt = &now
	}

	ok, err := updateInstanceTx(ctx, tx, inst, from)
	if err != nil {
		return false, err
	}
	if !ok {
		// Lost a race between our read and the guarded update.
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

// Suspend moves a RUNNING instance to SUSPENDED and records its wait
// condition atomically. Returns false when the instance is not RUNNING.
func (s *Store) Suspend(ctx context.Context, id string, cond process.WaitCondition) (bool, error) {
	if cond.Key == "" {
		return false, fmt.Errorf("wait condition key is empty")
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE process_instance
SET status = ?, wait_type = ?, wait_key = ?
WHERE id = ? AND status = ?;
`, process.StatusSuspended, string(cond.Type), cond.Key, id, process.StatusRunning)
	if err != nil {
		return false, fmt.Errorf("suspend process instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("suspend rows affected: %w", err)
	}
	return n == 1, nil
}

// ResumeWait consumes the wait record of a SUSPENDED instance matching the
// given condition, merges attach into its variables, and moves it to
// RESUMING, all in one transaction. The wait record is consumed exactly once;
// a second resume on the same condition returns ErrNotWaiting.
func (s *Store) ResumeWait(ctx context.Context, id string, cond process.WaitCondition, merge func(vars map[string]any) map[string]any) (*process.Instance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
SELECT `+instanceColumns+`
FROM process_instance
WHERE id = ?;
`, id)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load process instance: %w", err)
	}
	if inst.Status != process.StatusSuspended || inst.Wait == nil ||
		inst.Wait.Type != cond.Type || inst.Wait.Key != cond.Key {
		return nil, ErrNotWaiting
	}

	inst.Status = process.StatusResuming
	inst.Wait = nil
	if merge != nil {
		inst.Variables = merge(inst.Variables)
	}

	ok, err := updateInstanceTx(ctx, tx, inst, process.StatusSuspended)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent resume or timeout consumed the wait record first.
		return nil, ErrNotWaiting
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return inst, nil
}

// QuerySchedulable returns claimable instances (ENQUEUED or RESUMING), oldest
// submission first.
func (s *Store) QuerySchedulable(ctx context.Context, limit int) ([]*process.Instance, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+instanceColumns+`
FROM process_instance
WHERE status IN (?, ?)
ORDER BY created_at ASC, rowid ASC
LIMIT ?;
`, process.StatusEnqueued, process.StatusResuming, limit)
	if err != nil {
		return nil, fmt.Errorf("query schedulable instances: %w", err)
	}
	defer rows.Close()
	return collectInstances(rows)
}

// QueryExpired returns timeout-eligible instances whose deadline elapsed at
// or before now. RESUMING counts as ENQUEUED here; STARTING instances are
// left to the stale-claim requeue, which returns them to ENQUEUED.
func (s *Store) QueryExpired(ctx context.Context, now time.Time, limit int) ([]*process.Instance, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+instanceColumns+`
FROM process_instance
WHERE deadline IS NOT NULL
  AND deadline <= ?
  AND status IN (?, ?, ?, ?)
ORDER BY deadline ASC
LIMIT ?;
`, formatTime(now.UTC()),
		process.StatusEnqueued, process.StatusRunning,
		process.StatusSuspended, process.StatusResuming, limit)
	if err != nil {
		return nil, fmt.Errorf("query expired instances: %w", err)
	}
	defer rows.Close()
	return collectInstances(rows)
}

// MarkTimedOut atomically moves a timeout-eligible instance to TIMED_OUT.
// The conditional update makes repeated sweeps idempotent: a race with normal
// completion or a concurrent sweeper fires the transition at most once.
func (s *Store) MarkTimedOut(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
UPDATE process_instance
SET status = ?, wait_type = NULL, wait_key = NULL, completed_at = ?
WHERE id = ? AND status IN (?, ?, ?, ?);
`, process.StatusTimedOut, formatTime(now), id,
		process.StatusEnqueued, process.StatusRunning,
		process.StatusSuspended, process.StatusResuming)
	if err != nil {
		return false, fmt.Errorf("mark timed out: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("timeout rows affected: %w", err)
	}
	return n == 1, nil
}

// RequeueStaleStarting returns STARTING instances whose claim was never
// acknowledged (agent crashed or was evicted with the assignment pending) to
// ENQUEUED. Returns the number of requeued instances.
func (s *Store) RequeueStaleStarting(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE process_instance
SET status = ?, claimed_by = '', started_at = NULL
WHERE status = ? AND started_at IS NOT NULL AND started_at <= ?;
`, process.StatusEnqueued, process.StatusStarting, formatTime(olderThan.UTC()))
	if err != nil {
		return 0, fmt.Errorf("requeue stale claims: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue rows affected: %w", err)
	}
	return int(n), nil
}

// QueryTimedOutMissingHandler returns TIMED_OUT parents that do not yet have
// a timeout handler child, so the sweeper can retry a failed spawn.
func (s *Store) QueryTimedOutMissingHandler(ctx context.Context, limit int) ([]*process.Instance, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+instanceColumns+`
FROM process_instance p
WHERE p.status = ?
  AND p.kind != ?
  AND NOT EXISTS (
    SELECT 1 FROM process_instance c
    WHERE c.parent_id = p.id AND c.kind = ?
  )
ORDER BY p.completed_at ASC
LIMIT ?;
`, process.StatusTimedOut, string(process.KindTimeoutHandler),
		string(process.KindTimeoutHandler), limit)
	if err != nil {
		return nil, fmt.Errorf("query timed out instances without handler: %w", err)
	}
	defer rows.Close()
	return collectInstances(rows)
}

// AppendChild inserts an engine-spawned child record. For timeout handlers a
// unique index on (parent_id) guarantees at most one child per parent; a
// conflicting insert is a no-op and AppendChild reports created=false.
func (s *Store) AppendChild(ctx context.Context, child *process.Instance) (bool, error) {
	if child.ParentID == nil || *child.ParentID == "" {
		return false, fmt.Errorf("child has no parent id")
	}

	reqJSON, err := marshalMapString(child.Requirements)
	if err != nil {
		return false, fmt.Errorf("marshal requirements: %w", err)
	}
	varsJSON, err := marshalMap(child.Variables)
	if err != nil {
		return false, fmt.Errorf("marshal variables: %w", err)
	}
	outJSON, err := marshalStringSlice(child.OutVars)
	if err != nil {
		return false, fmt.Errorf("marshal out_vars: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO process_instance(`+instanceColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL);
`,
		child.ID, child.WorkflowRef, child.Status, reqJSON, varsJSON, outJSON,
		formatTimePtr(child.Deadline), child.ParentID, string(child.Kind),
		child.ClaimedBy, child.InitiatedBy, child.Org, child.Project,
		child.SessionKey, formatTime(child.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert child instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("child rows affected: %w", err)
	}
	return n == 1, nil
}

// CountByStatus returns instance counts per status for observability.
func (s *Store) CountByStatus(ctx context.Context) (map[process.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT status, COUNT(*) FROM process_instance GROUP BY status;
`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[process.Status]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[process.Status(st)] = n
	}
	return out, rows.Err()
}

// Depth returns the number of schedulable instances.
func (s *Store) Depth(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM process_instance WHERE status IN (?, ?);
`, process.StatusEnqueued, process.StatusResuming).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

func updateInstanceTx(ctx context.Context, tx *sql.Tx, inst *process.Instance, guard process.Status) (bool, error) {
	varsJSON, err := marshalMap(inst.Variables)
	if err != nil {
		return false, fmt.Errorf("marshal variables: %w", err)
	}

	var waitType, waitKey any
	if inst.Wait != nil {
		waitType = string(inst.Wait.Type)
		waitKey = inst.Wait.Key
	}

	res, err := tx.ExecContext(ctx, `
UPDATE process_instance
SET status = ?, variables = ?, wait_type = ?, wait_key = ?, claimed_by = ?,
    started_at = ?, completed_at = ?, last_error = ?
WHERE id = ? AND status = ?;
`, inst.Status, varsJSON, waitType, waitKey, inst.ClaimedBy,
		formatTimePtr(inst.StartedAt), formatTimePtr(inst.CompletedAt),
		nullIfEmpty(inst.LastError), inst.ID, guard)
	if err != nil {
		return false, fmt.Errorf("update process instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update rows affected: %w", err)
	}
	return n == 1, nil
}

func collectInstances(rows *sql.Rows) ([]*process.Instance, error) {
	var out []*process.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan process instance: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(row scanner) (*process.Instance, error) {
	var (
		inst         process.Instance
		statusS      string
		kindS        string
		reqJSON      sql.NullString
		varsJSON     sql.NullString
		outJSON      sql.NullString
		deadlineS    sql.NullString
		parentID     sql.NullString
		waitType     sql.NullString
		waitKey      sql.NullString
		createdAtS   string
		startedAtS   sql.NullString
		completedAtS sql.NullString
		lastError    sql.NullString
	)
	err := row.Scan(
		&inst.ID, &inst.WorkflowRef, &statusS, &reqJSON, &varsJSON, &outJSON,
		&deadlineS, &parentID, &kindS, &waitType, &waitKey, &inst.ClaimedBy,
		&inst.InitiatedBy, &inst.Org, &inst.Project, &inst.SessionKey,
		&createdAtS, &startedAtS, &completedAtS, &lastError,
	)
	if err != nil {
		return nil, err
	}

	inst.Status = process.Status(statusS)
	inst.Kind = process.Kind(kindS)

	if reqJSON.Valid && reqJSON.String != "" {
		if err := json.Unmarshal([]byte(reqJSON.String), &inst.Requirements); err != nil {
			return nil, fmt.Errorf("unmarshal requirements: %w", err)
		}
	}
	if varsJSON.Valid && varsJSON.String != "" {
		if err := json.Unmarshal([]byte(varsJSON.String), &inst.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal variables: %w", err)
		}
	}
	if outJSON.Valid && outJSON.String != "" {
		if err := json.Unmarshal([]byte(outJSON.String), &inst.OutVars); err != nil {
			return nil, fmt.Errorf("unmarshal out_vars: %w", err)
		}
	}
	if deadlineS.Valid {
		inst.Deadline = parseTimePtr(deadlineS.String)
	}
	if parentID.Valid {
		inst.ParentID = &parentID.String
	}
	if waitType.Valid && waitKey.Valid {
		inst.Wait = &process.WaitCondition{
			Type: process.WaitType(waitType.String),
			Key:  waitKey.String,
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		inst.CreatedAt = t
	}
	if startedAtS.Valid {
		inst.StartedAt = parseTimePtr(startedAtS.String)
	}
	if completedAtS.Valid {
		inst.CompletedAt = parseTimePtr(completedAtS.String)
	}
	if lastError.Valid {
		inst.LastError = lastError.String
	}
	return &inst, nil
}

func marshalMap(m map[string]any) (any, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func marshalMapString(m map[string]string) (any, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func marshalStringSlice(s []string) (any, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// timeFormat pads the fraction to a fixed width so the stored strings order
// lexicographically; deadline scans compare them directly in SQL.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTimePtr(s string) *time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}
