package governor

import (
	"sort"
	"sync"

	"github.com/mrz1836/tokengov/internal/usage"
)

// pauseEntry records why a task sits in the paused set.
type pauseEntry struct {
	projectID   string
	rateLimited bool
}

// workingSet is the engine-owned in-memory state shared by admission calls
// and the monitor loops. Every method is safe for concurrent use; no method
// performs I/O while holding the lock.
type workingSet struct {
	mu           sync.Mutex
	active       map[string]struct{}
	paused       map[string]pauseEntry
	reservations map[string]map[string]int64
	tracking     map[string]*usage.Tracking
}

func newWorkingSet() *workingSet {
	return &workingSet{
		active:       make(map[string]struct{}),
		paused:       make(map[string]pauseEntry),
		reservations: make(map[string]map[string]int64),
		tracking:     make(map[string]*usage.Tracking),
	}
}

func (w *workingSet) activate(projectID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active[projectID] = struct{}{}
}

func (w *workingSet) deactivate(projectID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.active, projectID)
}

func (w *workingSet) isActive(projectID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.active[projectID]
	return ok
}

// activeProjects returns a sorted snapshot of the active set.
func (w *workingSet) activeProjects() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.active))
	for id := range w.active {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (w *workingSet) pause(taskID, projectID string, rateLimited bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused[taskID] = pauseEntry{projectID: projectID, rateLimited: rateLimited}
}

func (w *workingSet) unpause(taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.paused, taskID)
}

func (w *workingSet) isPaused(taskID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.paused[taskID]
	return ok
}

// rateLimited returns a sorted snapshot of task ids paused by the rate limiter.
func (w *workingSet) rateLimited() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for id, e := range w.paused {
		if e.rateLimited {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// pausedProject returns the project of a paused task.
func (w *workingSet) pausedProject(taskID string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.paused[taskID]
	return e.projectID, ok
}

func (w *workingSet) pausedCount(projectID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, e := range w.paused {
		if e.projectID == projectID {
			n++
		}
	}
	return n
}

// reserve holds tokens of projectID's budget for an admitted task until it
// completes or fails.
func (w *workingSet) reserve(projectID, taskID string, tokens int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := w.reservations[projectID]
	if m == nil {
		m = make(map[string]int64)
		w.reservations[projectID] = m
	}
	m[taskID] = tokens
}

func (w *workingSet) release(projectID, taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := w.reservations[projectID]
	delete(m, taskID)
	if len(m) == 0 {
		delete(w.reservations, projectID)
	}
}

// reservedExcept sums the reservations of projectID other than taskID's.
func (w *workingSet) reservedExcept(projectID, taskID string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var total int64
	for id, n := range w.reservations[projectID] {
		if id != taskID {
			total += n
		}
	}
	return total
}

func (w *workingSet) setTracking(taskID string, tr *usage.Tracking) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracking[taskID] = tr
}

// takeTracking removes and returns the open estimator tracking for taskID.
func (w *workingSet) takeTracking(taskID string) *usage.Tracking {
	w.mu.Lock()
	defer w.mu.Unlock()
	tr := w.tracking[taskID]
	delete(w.tracking, taskID)
	return tr
}

// projectLocks hands out one mutex per project. Admission and every task
// mutation for a project run under it.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (p *projectLocks) lock(projectID string) func() {
	p.mu.Lock()
	if p.locks == nil {
		p.locks = make(map[string]*sync.Mutex)
	}
	m, ok := p.locks[projectID]
	if !ok {
		m = &sync.Mutex{}
		p.locks[projectID] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}
