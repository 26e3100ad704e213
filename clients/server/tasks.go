package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of an asynchronous render.
type TaskStatus string

const (
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

type task struct {
	ID      string
	Status  TaskStatus
	Err     string
	Poster  []byte // encoded PNG once completed
	Created time.Time
	Updated time.Time
}

// taskStore keeps render tasks in memory. Finished tasks expire after ttl.
type taskStore struct {
	mu    sync.RWMutex
	tasks map[string]*task
	ttl   time.Duration
	now   func() time.Time
}

func newTaskStore(ttl time.Duration) *taskStore {
	return &taskStore{
		tasks: make(map[string]*task),
		ttl:   ttl,
		now:   time.Now,
	}
}

// create registers a new processing task and returns its id.
func (ts *taskStore) create() string {
	id := uuid.NewString()
	now := ts.now()
	ts.mu.Lock()
	ts.tasks[id] = &task{ID: id, Status: StatusProcessing, Created: now, Updated: now}
	ts.mu.Unlock()
	return id
}

func (ts *taskStore) complete(id string, poster []byte) {
	ts.finish(id, func(t *task) {
		t.Status = StatusCompleted
		t.Poster = poster
	})
}

func (ts *taskStore) fail(id string, err error) {
	ts.finish(id, func(t *task) {
		t.Status = StatusFailed
		t.Err = err.Error()
	})
}

func (ts *taskStore) finish(id string, fn func(*task)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.tasks[id]; ok && t.Status == StatusProcessing {
		fn(t)
		t.Updated = ts.now()
	}
}

// get returns a copy of the task.
func (ts *taskStore) get(id string) (task, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.tasks[id]
	if !ok {
		return task{}, false
	}
	return *t, true
}

// sweep drops finished tasks older than the TTL and returns how many were
// removed. Processing tasks are never dropped.
func (ts *taskStore) sweep() int {
	cutoff := ts.now().Add(-ts.ttl)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	n := 0
	for id, t := range ts.tasks {
		if t.Status != StatusProcessing && t.Updated.Before(cutoff) {
			delete(ts.tasks, id)
			n++
		}
	}
	return n
}

func (ts *taskStore) count() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.tasks)
}
