package api

import (
	"sync"
	"time"

	"harborplan/internal/planner"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

const maxRetainedJobs = 256

// Job tracks one asynchronous optimization. Its id is the run id.
type Job struct {
	ID        string       `json:"id"`
	Status    JobStatus    `json:"status"`
	Error     string       `json:"error,omitempty"`
	Result    *runResponse `json:"result,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`

	events []planner.Event
	held   *planner.Event
}

type jobRegistry struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	order []string
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: map[string]*Job{}}
}

// create registers a pending job and returns a snapshot of it. The stored job
// is only touched under r.mu.
func (r *jobRegistry) create(id string) Job {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	j := &Job{ID: id, Status: JobPending, CreatedAt: now, UpdatedAt: now}
	r.jobs[id] = j
	r.order = append(r.order, id)
	r.evict()
	return *j
}

// evict drops the oldest finished jobs beyond the retention cap.
func (r *jobRegistry) evict() {
	for i := 0; len(r.jobs) > maxRetainedJobs && i < len(r.order); {
		j := r.jobs[r.order[i]]
		if j != nil && (j.Status == JobPending || j.Status == JobRunning) {
			i++
			continue
		}
		delete(r.jobs, r.order[i])
		r.order = append(r.order[:i], r.order[i+1:]...)
	}
}

// get returns a copy safe to serialize.
func (r *jobRegistry) get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	cp := *j
	cp.events, cp.held = nil, nil
	return cp, true
}

func (r *jobRegistry) update(id string, fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		fn(j)
		j.UpdatedAt = time.Now().UTC()
	}
}

// record appends evt to the job's history and reports whether it should be
// published now. A terminal event of an unfinished job is held until finish,
// so a stream never ends before the job result is stored.
func (r *jobRegistry) record(evt planner.Event) bool {
	publish := true
	r.update(evt.RunID, func(j *Job) {
		if evt.Terminal() && !j.Status.done() {
			j.held = &evt
			publish = false
			return
		}
		j.events = append(j.events, evt)
		if evt.Type == planner.EventRunStarted && j.Status == JobPending {
			j.Status = JobRunning
		}
	})
	return publish
}

// history returns the events recorded so far and whether the job is known.
func (r *jobRegistry) history(id string) ([]planner.Event, JobStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, "", false
	}
	return append([]planner.Event(nil), j.events...), j.Status, true
}

// finish stores the outcome and returns the terminal event to publish: the
// held planner event, or a synthetic one when the run failed before it
// started.
func (r *jobRegistry) finish(id string, res *runResponse, err error) (planner.Event, bool) {
	var evt planner.Event
	found := false
	r.update(id, func(j *Job) {
		found = true
		if err != nil {
			j.Status, j.Error = JobFailed, err.Error()
		} else {
			j.Status, j.Result = JobCompleted, res
		}
		switch {
		case j.held != nil:
			evt = *j.held
			j.held = nil
		case err != nil:
			evt = planner.Event{RunID: id, Type: planner.EventRunFailed, Data: map[string]any{"error": err.Error()}, At: time.Now().UTC()}
		default:
			evt = planner.Event{RunID: id, Type: planner.EventRunCompleted, Strategy: res.Best.Strategy, At: time.Now().UTC()}
		}
		j.events = append(j.events, evt)
	})
	return evt, found
}

func (s JobStatus) done() bool { return s == JobCompleted || s == JobFailed }
