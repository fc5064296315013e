package curation

import (
	"sync"
	"time"
)

// RunStatus is the live status of the current (or most recent) run.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// TaskStatus is the status of one profile's progress entry.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
)

// Sentinel task handles bracketing the per-profile tasks.
const (
	TaskInitializing = "INITIALIZING"
	TaskFinalizing   = "DONE"
)

// Task is one profile's (or sentinel's) progress entry within a run.
type Task struct {
	Handle  string     `json:"handle"`
	Status  TaskStatus `json:"status"`
	Message string     `json:"message,omitempty"`
}

// Progress is a snapshot of the current run's state. It is a single
// overwrite-in-place cell, not a log: only the most recent run is ever
// visible, and it resets to idle on process restart.
type Progress struct {
	Status        RunStatus `json:"status"`
	TotalProfiles int       `json:"totalProfiles"`
	Tasks         []Task    `json:"tasks"`
	CuratedCount  int       `json:"curatedCount"`
	StartTime     int64     `json:"startTime,omitempty"` // unix millis
	EndTime       int64     `json:"endTime,omitempty"`   // unix millis
	Error         string    `json:"error,omitempty"`
}

// Tracker owns the process-wide progress cell. All mutation goes through
// the orchestrator; pollers only ever read snapshots.
type Tracker struct {
	mu  sync.Mutex
	cur Progress
	now func() time.Time
}

// NewTracker returns a tracker in the idle state.
func NewTracker() *Tracker {
	return &Tracker{
		cur: Progress{Status: RunIdle, Tasks: []Task{}},
		now: time.Now,
	}
}

// Init transitions to running with one pending task per handle, bracketed
// by the two sentinel tasks. The leading sentinel starts as processing.
func (t *Tracker) Init(handles []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tasks := make([]Task, 0, len(handles)+2)
	tasks = append(tasks, Task{Handle: TaskInitializing, Status: TaskProcessing})
	for _, h := range handles {
		tasks = append(tasks, Task{Handle: h, Status: TaskPending})
	}
	tasks = append(tasks, Task{Handle: TaskFinalizing, Status: TaskPending})

	t.cur = Progress{
		Status:        RunRunning,
		TotalProfiles: len(handles),
		Tasks:         tasks,
		StartTime:     t.now().UnixMilli(),
	}
}

// UpdateTask mutates the task matching handle. An unmatched handle is a
// no-op, never an error.
func (t *Tracker) UpdateTask(handle string, status TaskStatus, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.cur.Tasks {
		if t.cur.Tasks[i].Handle != handle {
			continue
		}
		t.cur.Tasks[i].Status = status
		if message != "" {
			t.cur.Tasks[i].Message = message
		}
		return
	}
}

// AddCurated adds to the curated-post counter.
func (t *Tracker) AddCurated(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur.CuratedCount += n
}

// Complete marks the run terminal: failed when err is non-nil, completed
// otherwise.
func (t *Tracker) Complete(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cur.EndTime = t.now().UnixMilli()
	if err != nil {
		t.cur.Status = RunFailed
		t.cur.Error = err.Error()
	} else {
		t.cur.Status = RunCompleted
	}
}

// Reset returns the tracker to idle from any state. Callers invoke this
// after they have displayed a terminal state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur = Progress{Status: RunIdle, Tasks: []Task{}}
}

// Snapshot returns a copy of the current progress. Readers are
// eventually consistent with the orchestrator's last write.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.cur
	snap.Tasks = make([]Task, len(t.cur.Tasks))
	copy(snap.Tasks, t.cur.Tasks)
	return snap
}

// Status returns just the current run status.
func (t *Tracker) Status() RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur.Status
}
