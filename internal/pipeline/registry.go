package pipeline

import (
	"sync"
	"time"

	"github.com/niteshatinception/for-monday/internal/models"
	"github.com/niteshatinception/for-monday/internal/ratelimit"
)

// itemState is the per-item processing record. At most one drain loop owns an
// item key at any time; the busy flag is the single-flight guard.
type itemState struct {
	scenario        string
	busy            bool
	startedAt       time.Time
	processed       int
	processedAssets map[int64]bool
	ceiling         *time.Timer
}

// registry owns all per-item pipeline state: queues, processing records,
// cached credentials, per-scenario rate windows and in-flight counts. Nothing
// here survives a restart.
type registry struct {
	mu          sync.Mutex
	queues      map[string][]*models.TransferTask
	states      map[string]*itemState
	credentials map[string]string
	windows     map[string]*ratelimit.SlidingWindow
	inflight    map[string]int
}

func newRegistry() *registry {
	return &registry{
		queues:      make(map[string][]*models.TransferTask),
		states:      make(map[string]*itemState),
		credentials: make(map[string]string),
		windows:     make(map[string]*ratelimit.SlidingWindow),
		inflight:    make(map[string]int),
	}
}

// enqueue appends a task to its item queue in FIFO order. It reports whether
// this call created the item's state (caller arms the teardown ceiling) and
// whether it claimed the drain loop (caller starts one).
func (r *registry) enqueue(task *models.TransferTask, now time.Time) (created, claimed bool) {
	key := task.ItemKey()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.queues[key] = append(r.queues[key], task)
	if task.Token != "" {
		r.credentials[key] = task.Token
	}

	st, ok := r.states[key]
	if !ok {
		st = &itemState{
			scenario:        task.Scenario,
			startedAt:       now,
			processedAssets: make(map[int64]bool),
		}
		r.states[key] = st
		created = true
	}
	if !st.busy {
		st.busy = true
		claimed = true
	}
	return created, claimed
}

// peek returns the head task without removing it, or nil when the queue is
// empty or gone.
func (r *registry) peek(key string) *models.TransferTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q := r.queues[key]; len(q) > 0 {
		return q[0]
	}
	return nil
}

func (r *registry) pop(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q := r.queues[key]; len(q) > 0 {
		r.queues[key] = q[1:]
	}
}

func (r *registry) markProcessed(key string, assetID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[key]; ok {
		st.processedAssets[assetID] = true
		st.processed++
	}
}

func (r *registry) isProcessed(key string, assetID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[key]
	return ok && st.processedAssets[assetID]
}

// active reports whether the item still has a processing record. A forced
// teardown clears it while a drain loop may still be running; the loop checks
// this and exits.
func (r *registry) active(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.states[key]
	return ok
}

func (r *registry) credential(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.credentials[key]
}

// finish tears the item down if its queue is empty. When tasks were enqueued
// after the last peek, it reports false and the drain loop keeps going.
func (r *registry) finish(key string) (*itemState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queues[key]) > 0 {
		return nil, false
	}
	st, ok := r.states[key]
	if !ok {
		return nil, false
	}
	r.remove(key)
	return st, true
}

// forceRemove drops all state for an item regardless of queue contents. Used
// by the wall-clock ceiling.
func (r *registry) forceRemove(key string) (*itemState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[key]
	if !ok {
		return nil, false
	}
	r.remove(key)
	return st, true
}

// remove deletes queue, state, credential and rate window entries for an item.
// Caller must hold r.mu.
func (r *registry) remove(key string) {
	if st, ok := r.states[key]; ok && st.ceiling != nil {
		st.ceiling.Stop()
	}
	delete(r.queues, key)
	delete(r.states, key)
	delete(r.credentials, key)
	for _, w := range r.windows {
		w.Clear(key)
	}
}

func (r *registry) setCeiling(key string, t *time.Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[key]; ok {
		st.ceiling = t
	} else {
		// State vanished before the timer was attached; nothing to guard.
		t.Stop()
	}
}

// tryAcquire reserves one concurrency slot for a scenario.
func (r *registry) tryAcquire(scenario string, limit int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[scenario] >= limit {
		return false
	}
	r.inflight[scenario]++
	return true
}

func (r *registry) release(scenario string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[scenario] > 0 {
		r.inflight[scenario]--
	}
}

// window returns the scenario's sliding window, creating it on first use.
func (r *registry) window(scenario string, size time.Duration, max int) *ratelimit.SlidingWindow {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[scenario]
	if !ok {
		w = ratelimit.NewSlidingWindow(size, max)
		r.windows[scenario] = w
	}
	return w
}

// ItemStatus is a point-in-time view of one in-flight item for the status
// endpoint.
type ItemStatus struct {
	Key       string    `json:"key"`
	Scenario  string    `json:"scenario"`
	Queued    int       `json:"queued"`
	Processed int       `json:"processed"`
	Busy      bool      `json:"busy"`
	StartedAt time.Time `json:"started_at"`
}

func (r *registry) snapshot() []ItemStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ItemStatus, 0, len(r.states))
	for key, st := range r.states {
		out = append(out, ItemStatus{
			Key:       key,
			Scenario:  st.scenario,
			Queued:    len(r.queues[key]),
			Processed: st.processed,
			Busy:      st.busy,
			StartedAt: st.startedAt,
		})
	}
	return out
}
