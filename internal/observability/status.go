package observability

import (
	"sort"
	"sync"
	"time"
)

type Role string

const (
	RoleIdle     Role = "IDLE"
	RolePipeline Role = "PIPELINE"
	RoleChat     Role = "CHAT"
	RoleBatch    Role = "BATCH"
)

// Activity is one piece of work in flight: a pipeline run, a chat reply or a
// batch. Done/Total count stages for a run and cases for a batch.
type Activity struct {
	ID      string    `json:"id"`
	Role    Role      `json:"role"`
	Step    string    `json:"step,omitempty"`
	Done    int       `json:"done"`
	Total   int       `json:"total"`
	Attempt int       `json:"attempt,omitempty"`
	Failed  int       `json:"failed,omitempty"`
	Started time.Time `json:"started"`
}

// Snapshot is a copy of the process status.
type Snapshot struct {
	// Role is the role of the most recently started activity, or IDLE.
	Role          Role       `json:"role"`
	Active        []Activity `json:"active"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
}

type registry struct {
	mu            sync.RWMutex
	next          uint64
	active        map[uint64]*Activity
	lastHeartbeat time.Time
}

var status = &registry{
	active:        make(map[uint64]*Activity),
	lastHeartbeat: time.Now(),
}

// Tracker updates a registered activity. End must be called once the work is
// over; other activities are unaffected.
type Tracker struct {
	key uint64
}

// Track registers a new activity and returns its tracker.
func Track(role Role, id string, total int) *Tracker {
	status.mu.Lock()
	defer status.mu.Unlock()
	status.next++
	status.active[status.next] = &Activity{
		ID:      id,
		Role:    role,
		Total:   total,
		Started: time.Now(),
	}
	return &Tracker{key: status.next}
}

func (t *Tracker) update(fn func(a *Activity)) {
	status.mu.Lock()
	defer status.mu.Unlock()
	if a, ok := status.active[t.key]; ok {
		fn(a)
	}
}

// Step records the step being worked on, how many came before it and the
// current attempt.
func (t *Tracker) Step(step string, done, attempt int) {
	t.update(func(a *Activity) {
		a.Step, a.Done, a.Attempt = step, done, attempt
	})
}

// Progress records finished and failed items.
func (t *Tracker) Progress(done, failed int) {
	t.update(func(a *Activity) {
		a.Done, a.Failed = done, failed
	})
}

func (t *Tracker) End() {
	status.mu.Lock()
	defer status.mu.Unlock()
	delete(status.active, t.key)
}

// Current returns the activities in flight, oldest first.
func Current() Snapshot {
	status.mu.RLock()
	defer status.mu.RUnlock()

	snap := Snapshot{
		Role:          RoleIdle,
		Active:        make([]Activity, 0, len(status.active)),
		LastHeartbeat: status.lastHeartbeat,
	}
	keys := make([]uint64, 0, len(status.active))
	for k := range status.active {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		snap.Active = append(snap.Active, *status.active[k])
	}
	if n := len(snap.Active); n > 0 {
		snap.Role = snap.Active[n-1].Role
	}
	return snap
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	status.mu.Lock()
	defer status.mu.Unlock()
	status.lastHeartbeat = time.Now()
}
