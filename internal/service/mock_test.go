package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/agent"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/recovery"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/task"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/domain/workflow"
	"github.com/JyX33/agentic-technical-watch-sub001/internal/port/database"
)

// memStore is an in-memory database.Store with the same invariant
// semantics as the Postgres adapter: CAS transitions, the active-
// fingerprint uniqueness check, and the single-active-recovery check.
type memStore struct {
	mu         sync.Mutex
	seq        int
	tasks      map[string]*task.Task
	taskOrder  []string
	workflows  map[string]*workflow.Workflow
	recoveries map[string]*recovery.Record
	agents     map[string]*agent.State
	hashes     map[string]time.Time
	now        func() time.Time

	// recoveryLookupErr, when set, fails every GetActiveRecovery call.
	recoveryLookupErr error
}

func newMemStore() *memStore {
	return &memStore{
		tasks:      make(map[string]*task.Task),
		workflows:  make(map[string]*workflow.Workflow),
		recoveries: make(map[string]*recovery.Record),
		agents:     make(map[string]*agent.State),
		hashes:     make(map[string]time.Time),
		now:        time.Now,
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func copyTask(t *task.Task) *task.Task {
	c := *t
	return &c
}

func (m *memStore) CreateTask(_ context.Context, req task.CreateRequest) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := task.HashParams(req.Params)
	for _, t := range m.tasks {
		if t.AgentType == req.AgentType && t.Skill == req.Skill && t.ParamsHash == hash &&
			(t.Status == task.StatusPending || t.Status == task.StatusRunning) {
			return nil, fmt.Errorf("task %s/%s: %w", req.AgentType, req.Skill, domain.ErrDuplicateTask)
		}
	}

	now := m.now()
	t := &task.Task{
		ID:            m.nextID("task"),
		WorkflowID:    req.WorkflowID,
		AgentType:     req.AgentType,
		Skill:         req.Skill,
		Params:        req.Params,
		ParamsHash:    hash,
		Status:        task.StatusPending,
		Priority:      req.Priority,
		MaxAttempts:   req.MaxAttempts,
		CorrelationID: req.CorrelationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.tasks[t.ID] = t
	m.taskOrder = append(m.taskOrder, t.ID)
	return copyTask(t), nil
}

func (m *memStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return copyTask(t), nil
}

func (m *memStore) ListWorkflowTasks(_ context.Context, workflowID string) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []task.Task
	for _, id := range m.taskOrder {
		if t := m.tasks[id]; t.WorkflowID == workflowID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) TransitionTask(_ context.Context, id string, from, to task.Status, mut database.TaskMutation) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	if t.Status != from {
		return nil, fmt.Errorf("task %s is %s, expected %s: %w", id, t.Status, from, domain.ErrStaleState)
	}
	t.Status = to
	if mut.Result != nil {
		t.Result = mut.Result
	}
	if mut.ErrorDetail != "" {
		t.ErrorDetail = mut.ErrorDetail
	}
	if mut.Attempt != nil {
		t.Attempt = *mut.Attempt
	}
	if mut.NextRetryAt != nil {
		t.NextRetryAt = *mut.NextRetryAt
	}
	if mut.ClearRetryAt {
		t.NextRetryAt = time.Time{}
	}
	t.UpdatedAt = m.now()
	return copyTask(t), nil
}

func (m *memStore) FindActiveTaskByFingerprint(_ context.Context, fp task.Fingerprint) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.taskOrder {
		t := m.tasks[id]
		if t.AgentType == fp.AgentType && t.Skill == fp.Skill && t.ParamsHash == fp.ParamsHash &&
			(t.Status == task.StatusPending || t.Status == task.StatusRunning) {
			return copyTask(t), nil
		}
	}
	return nil, fmt.Errorf("active task %s/%s: %w", fp.AgentType, fp.Skill, domain.ErrNotFound)
}

func (m *memStore) ListPendingTasks(_ context.Context, agentType string) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []task.Task
	for _, id := range m.taskOrder {
		if t := m.tasks[id]; t.AgentType == agentType && t.Status == task.StatusPending {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) ListDueRetries(_ context.Context, now time.Time) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []task.Task
	for _, id := range m.taskOrder {
		t := m.tasks[id]
		if t.Status == task.StatusPending && !t.NextRetryAt.IsZero() && !t.NextRetryAt.After(now) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func copyWorkflow(w *workflow.Workflow) *workflow.Workflow {
	c := *w
	return &c
}

func (m *memStore) CreateWorkflow(_ context.Context, wfType string, config map[string]any) (*workflow.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	w := &workflow.Workflow{
		ID:        m.nextID("wf"),
		Type:      wfType,
		Config:    config,
		Status:    workflow.StatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.workflows[w.ID] = w
	return copyWorkflow(w), nil
}

func (m *memStore) GetWorkflow(_ context.Context, id string) (*workflow.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, domain.ErrNotFound)
	}
	return copyWorkflow(w), nil
}

func (m *memStore) TransitionWorkflow(_ context.Context, id string, from, to workflow.Status, mut database.WorkflowMutation) (*workflow.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, domain.ErrNotFound)
	}
	if w.Status != from {
		return nil, fmt.Errorf("workflow %s is %s, expected %s: %w", id, w.Status, from, domain.ErrStaleState)
	}
	w.Status = to
	if mut.CurrentStage != nil {
		w.CurrentStage = *mut.CurrentStage
	}
	if mut.Metrics != nil {
		w.Metrics = *mut.Metrics
	}
	if mut.StartedAt != nil {
		w.StartedAt = *mut.StartedAt
	}
	if mut.CompletedAt != nil {
		w.CompletedAt = *mut.CompletedAt
	}
	w.UpdatedAt = m.now()
	return copyWorkflow(w), nil
}

func (m *memStore) ListStaleRunning(_ context.Context, updatedBefore time.Time) ([]workflow.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []workflow.Workflow
	for _, w := range m.workflows {
		if w.Status == workflow.StatusRunning && w.UpdatedAt.Before(updatedBefore) {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CountByStatus(_ context.Context, status workflow.Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, w := range m.workflows {
		if w.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreateRecovery(_ context.Context, rec *recovery.Record) (*recovery.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recoveries {
		if r.TaskID == rec.TaskID && !r.Resolved {
			return nil, fmt.Errorf("recovery for task %s: %w", rec.TaskID, domain.ErrConflict)
		}
	}
	c := *rec
	c.ID = m.nextID("rec")
	c.CreatedAt = m.now()
	m.recoveries[c.ID] = &c
	out := c
	return &out, nil
}

func (m *memStore) AppendRecoveryAttempt(_ context.Context, taskID string, strategy recovery.Strategy, checkpoint map[string]any, attempt recovery.AttemptInfo) (*recovery.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recoveries {
		if r.TaskID == taskID && !r.Resolved {
			r.Strategy = strategy
			if checkpoint != nil {
				r.Checkpoint = checkpoint
			}
			r.Reason = attempt.Reason
			r.Detail = attempt.Detail
			r.Attempts = append(r.Attempts, attempt)
			c := *r
			return &c, nil
		}
	}
	return nil, fmt.Errorf("active recovery for task %s: %w", taskID, domain.ErrNotFound)
}

func (m *memStore) GetActiveRecovery(_ context.Context, taskID string) (*recovery.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recoveryLookupErr != nil {
		return nil, m.recoveryLookupErr
	}
	for _, r := range m.recoveries {
		if r.TaskID == taskID && !r.Resolved {
			c := *r
			return &c, nil
		}
	}
	return nil, fmt.Errorf("active recovery for task %s: %w", taskID, domain.ErrNotFound)
}

func (m *memStore) ResolveRecovery(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recoveries[id]
	if !ok {
		return fmt.Errorf("recovery %s: %w", id, domain.ErrNotFound)
	}
	r.Resolved = true
	return nil
}

func (m *memStore) CountAwaitingManual(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.recoveries {
		if !r.Resolved && r.Strategy == recovery.StrategyManual {
			n++
		}
	}
	return n, nil
}

func (m *memStore) activeRecoveries() []recovery.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []recovery.Record
	for _, r := range m.recoveries {
		if !r.Resolved {
			out = append(out, *r)
		}
	}
	return out
}

func (m *memStore) UpsertAgentState(_ context.Context, req agent.RegisterRequest) (*agent.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	st, ok := m.agents[req.InstanceID]
	if !ok {
		st = &agent.State{InstanceID: req.InstanceID, RegisteredAt: now}
		m.agents[req.InstanceID] = st
	}
	st.AgentType = req.AgentType
	st.Endpoint = req.Endpoint
	st.Capabilities = req.Capabilities
	st.Health = agent.HealthHealthy
	st.LastHeartbeat = now
	c := *st
	return &c, nil
}

func (m *memStore) TouchAgentHeartbeat(_ context.Context, instanceID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.agents[instanceID]
	if !ok {
		return fmt.Errorf("touch heartbeat %s: %w", instanceID, domain.ErrUnknownInstance)
	}
	st.LastHeartbeat = at
	st.Health = agent.HealthHealthy
	return nil
}

func (m *memStore) SetAgentHealth(_ context.Context, instanceID string, health agent.Health) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.agents[instanceID]
	if !ok {
		return fmt.Errorf("set agent health %s: %w", instanceID, domain.ErrUnknownInstance)
	}
	st.Health = health
	return nil
}

func (m *memStore) AdjustAgentLoad(_ context.Context, instanceID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.agents[instanceID]
	if !ok {
		return fmt.Errorf("adjust agent load %s: %w", instanceID, domain.ErrUnknownInstance)
	}
	st.Load += delta
	if st.Load < 0 {
		st.Load = 0
	}
	return nil
}

func (m *memStore) ListAgentStates(_ context.Context, agentType string) ([]agent.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []agent.State
	for _, st := range m.agents {
		if st.AgentType == agentType {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out, nil
}

func (m *memStore) ListAllAgentStates(_ context.Context) ([]agent.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []agent.State
	for _, st := range m.agents {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out, nil
}

func (m *memStore) DeleteAgentState(_ context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[instanceID]; !ok {
		return fmt.Errorf("delete agent state %s: %w", instanceID, domain.ErrUnknownInstance)
	}
	delete(m.agents, instanceID)
	return nil
}

func (m *memStore) RecordContentHash(_ context.Context, hash string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hashes[hash]; ok {
		return false, nil
	}
	m.hashes[hash] = at
	return true, nil
}

func (m *memStore) SweepContentHashes(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for h, seen := range m.hashes {
		if seen.Before(olderThan) {
			delete(m.hashes, h)
			removed++
		}
	}
	return removed, nil
}

// memLocker is an in-memory lock.Locker with real contention semantics.
type memLocker struct {
	mu    sync.Mutex
	seq   int
	held  map[string]string    // name -> token
	until map[string]time.Time // name -> expiry
	now   func() time.Time
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string), until: make(map[string]time.Time), now: time.Now}
}

func (l *memLocker) Acquire(_ context.Context, name string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; ok && l.until[name].After(l.now()) {
		return "", fmt.Errorf("lock %s: %w", name, domain.ErrLockHeld)
	}
	l.seq++
	token := fmt.Sprintf("tok-%d", l.seq)
	l.held[name] = token
	l.until[name] = l.now().Add(ttl)
	return token, nil
}

func (l *memLocker) Release(_ context.Context, name, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] != token {
		return true, nil
	}
	delete(l.held, name)
	delete(l.until, name)
	return false, nil
}

func (l *memLocker) Renew(_ context.Context, name, token string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] != token {
		return fmt.Errorf("lock %s: %w", name, domain.ErrLockHeld)
	}
	l.until[name] = l.now().Add(ttl)
	return nil
}

// mockInvoker scripts per-skill error sequences; once a script is
// consumed the skill succeeds.
type mockInvoker struct {
	mu      sync.Mutex
	scripts map[string][]error
	results map[string]map[string]any
	blocks  map[string]chan struct{}
	calls   []invocation
}

type invocation struct {
	AgentType string
	Skill     string
	Params    map[string]any
}

func newMockInvoker() *mockInvoker {
	return &mockInvoker{
		scripts: make(map[string][]error),
		results: make(map[string]map[string]any),
		blocks:  make(map[string]chan struct{}),
	}
}

func (m *mockInvoker) failWith(skill string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[skill] = append(m.scripts[skill], errs...)
}

func (m *mockInvoker) resultFor(skill string, result map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[skill] = result
}

func (m *mockInvoker) blockOn(skill string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{})
	m.blocks[skill] = ch
	return ch
}

func (m *mockInvoker) Invoke(ctx context.Context, agentType, _, skillName string, params map[string]any) (map[string]any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, invocation{AgentType: agentType, Skill: skillName, Params: params})
	var next error
	if script := m.scripts[skillName]; len(script) > 0 {
		next = script[0]
		m.scripts[skillName] = script[1:]
	}
	block := m.blocks[skillName]
	result := m.results[skillName]
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if next != nil {
		return nil, next
	}
	if result == nil {
		result = map[string]any{"ok": true}
	}
	return result, nil
}

func (m *mockInvoker) HealthCheck(context.Context, string) bool { return true }

// skillsByType mirrors the built-in watch pipeline's capability
// advertisements. Types outside the map register without capabilities
// and accept any skill.
var skillsByType = map[string][]string{
	"retrieval": {"fetch-updates"},
	"filter":    {"filter-content"},
	"summarise": {"summarise-content"},
	"alert":     {"send-alert"},
}

func agentRequest(agentType, instanceID string) agent.RegisterRequest {
	return agent.RegisterRequest{
		AgentType:    agentType,
		InstanceID:   instanceID,
		Endpoint:     "http://" + instanceID + ":9000",
		Capabilities: skillsByType[agentType],
	}
}

func databaseTaskAttempt(n int) database.TaskMutation {
	return database.TaskMutation{Attempt: &n}
}

func databaseTaskResult() database.TaskMutation {
	return database.TaskMutation{Result: map[string]any{"ok": true}}
}

func databaseWorkflowNoop() database.WorkflowMutation {
	return database.WorkflowMutation{}
}

func (m *mockInvoker) callsFor(skill string) []invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []invocation
	for _, c := range m.calls {
		if c.Skill == skill {
			out = append(out, c)
		}
	}
	return out
}
