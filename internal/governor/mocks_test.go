package governor

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/tokengov/internal/clock"
	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
	"github.com/mrz1836/tokengov/internal/ratelimit"
	"github.com/mrz1836/tokengov/internal/usage"
)

// memStore is an in-memory ProjectStore, TaskStore, UsageLedger and
// CheckpointRecorder with error injection.
type memStore struct {
	mu       sync.Mutex
	projects map[string]*domain.Project
	tasks    map[string]*domain.Task
	usage    []*domain.UsageRecord
	recorded []*domain.Checkpoint

	sumErr    error
	listErr   error
	updateErr error
	appendErr error
	updates   int

	// listGate, when set, blocks ListTasksByStatus until it is closed.
	listGate  chan struct{}
	listCalls int
}

func newMemStore() *memStore {
	return &memStore{
		projects: make(map[string]*domain.Project),
		tasks:    make(map[string]*domain.Task),
	}
}

func (m *memStore) GetProject(_ context.Context, id string) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, tgerrors.Wrapf(tgerrors.ErrProjectNotFound, "project %s", id)
	}
	c := *p
	return &c, nil
}

func (m *memStore) CreateProject(_ context.Context, p *domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; ok {
		return tgerrors.Wrapf(tgerrors.ErrProjectExists, "project %s", p.ID)
	}
	c := *p
	m.projects[p.ID] = &c
	return nil
}

func (m *memStore) UpdateProject(_ context.Context, p *domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return tgerrors.Wrapf(tgerrors.ErrProjectNotFound, "project %s", p.ID)
	}
	c := *p
	m.projects[p.ID] = &c
	return nil
}

func (m *memStore) ListProjects(_ context.Context) ([]*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Project, 0, len(m.projects))
	for _, p := range m.projects {
		c := *p
		out = append(out, &c)
	}
	return out, nil
}

func (m *memStore) deleteProject(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projects, id)
}

func (m *memStore) GetTask(_ context.Context, id string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, tgerrors.Wrapf(tgerrors.ErrTaskNotFound, "task %s", id)
	}
	return t.Clone(), nil
}

func (m *memStore) CreateTask(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; ok {
		return tgerrors.Wrapf(tgerrors.ErrTaskExists, "task %s", t.ID)
	}
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *memStore) UpdateTask(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.tasks[t.ID]; !ok {
		return tgerrors.Wrapf(tgerrors.ErrTaskNotFound, "task %s", t.ID)
	}
	m.updates++
	m.tasks[t.ID] = t.Clone()
	return nil
}

func (m *memStore) ListTasksByProject(_ context.Context, projectID string) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*domain.Task
	for _, t := range m.tasks {
		if t.ProjectID == projectID {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (m *memStore) ListTasksByStatus(_ context.Context, status constants.TaskStatus) ([]*domain.Task, error) {
	m.mu.Lock()
	gate := m.listGate
	m.listCalls++
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*domain.Task
	for _, t := range m.tasks {
		if t.Status == status {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (m *memStore) AppendUsage(_ context.Context, r *domain.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	c := *r
	m.usage = append(m.usage, &c)
	return nil
}

func (m *memStore) SumForProject(_ context.Context, projectID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sumErr != nil {
		return 0, m.sumErr
	}
	var total int64
	for _, r := range m.usage {
		if r.ProjectID == projectID {
			total += r.TokensUsed
		}
	}
	return total, nil
}

func (m *memStore) RecordCheckpoint(_ context.Context, cp *domain.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, cp)
	return nil
}

func (m *memStore) task(t *testing.T, id string) *domain.Task {
	t.Helper()
	task, err := m.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task
}

func (m *memStore) usageRecords() []*domain.UsageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.UsageRecord(nil), m.usage...)
}

func (m *memStore) setAppendErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendErr = err
}

func (m *memStore) setListGate(gate chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listGate = gate
}

func (m *memStore) listCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

func (m *memStore) setListErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// fakeCheckpointer hands out sequential URIs and can be told to fail or panic.
type fakeCheckpointer struct {
	mu      sync.Mutex
	n       int
	fail    bool
	panics  bool
	created []string
}

func (f *fakeCheckpointer) PrepareURI(task *domain.Task) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return "mem://" + task.ID + "_" + strconv.Itoa(f.n)
}

func (f *fakeCheckpointer) CreateCheckpoint(_ context.Context, task *domain.Task) (*domain.Checkpoint, bool) {
	f.mu.Lock()
	fail, panics := f.fail, f.panics
	f.mu.Unlock()
	if panics {
		panic("checkpoint store exploded")
	}
	if fail {
		return nil, false
	}

	uri := f.PrepareURI(task)
	f.mu.Lock()
	f.created = append(f.created, task.ID)
	f.mu.Unlock()

	task.CheckpointState = constants.CheckpointSaved
	task.CheckpointURI = uri
	return &domain.Checkpoint{ID: "ckpt-" + task.ID, TaskID: task.ID, URI: uri, SizeBytes: 64}, true
}

func (f *fakeCheckpointer) set(fail, panics bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail, f.panics = fail, panics
}

func (f *fakeCheckpointer) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// alertSink collects alerts delivered to the engine's handler.
type alertSink struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (s *alertSink) handle(_ context.Context, a domain.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

func (s *alertSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

var testStart = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // fixed test epoch

type harness struct {
	engine    *Engine
	store     *memStore
	clock     *clock.Mock
	limiter   *ratelimit.Limiter
	cps       *fakeCheckpointer
	estimator *usage.Estimator
	alerts    *alertSink
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		store:  newMemStore(),
		clock:  clock.NewMock(testStart),
		cps:    &fakeCheckpointer{},
		alerts: &alertSink{},
	}
	h.limiter = ratelimit.New(ratelimit.WithClock(h.clock), ratelimit.WithDefaultLimit(100))

	oplog, err := usage.NewFileLog(filepath.Join(t.TempDir(), "operations.jsonl"), zerolog.Nop())
	require.NoError(t, err)
	h.estimator = usage.New(oplog, usage.WithClock(h.clock))

	base := []Option{
		WithClock(h.clock),
		WithLogger(zerolog.Nop()),
		WithAlertHandler(h.alerts.handle),
		WithCheckpointRecorder(h.store),
	}
	h.engine, err = New(Deps{
		Projects:    h.store,
		Tasks:       h.store,
		Usage:       h.store,
		Limiter:     h.limiter,
		Checkpoints: h.cps,
		Estimator:   h.estimator,
	}, append(base, opts...)...)
	require.NoError(t, err)
	return h
}

func (h *harness) project(t *testing.T, id string, budget int64) {
	t.Helper()
	_, err := h.engine.RegisterProject(context.Background(), &domain.Project{
		ID:          id,
		Name:        id,
		TokenBudget: budget,
		Owner:       "alice",
	})
	require.NoError(t, err)
}

func (h *harness) task(t *testing.T, id, projectID string, complexity constants.Complexity, estimate int64) {
	t.Helper()
	_, err := h.engine.RegisterTask(context.Background(), &domain.Task{
		ID:              id,
		ProjectID:       projectID,
		Name:            id,
		Complexity:      complexity,
		EstimatedTokens: estimate,
	})
	require.NoError(t, err)
}

// spend appends a usage record directly, as if earlier tasks had completed.
func (h *harness) spend(t *testing.T, projectID string, tokens int64) {
	t.Helper()
	require.NoError(t, h.store.AppendUsage(context.Background(), &domain.UsageRecord{
		ProjectID:  projectID,
		TokensUsed: tokens,
		Timestamp:  h.clock.Now(),
	}))
}
