package store

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/Lllllllleong/restorationflow/internal/models"
)

// MemoryJobStore keeps jobs in process. Loads and change notifications hand
// out deep copies so callers never share state with the store.
type MemoryJobStore struct {
	mu     sync.Mutex
	jobs   map[string]*models.Job
	subs   map[string]map[int]func(*models.Job)
	nextID int
	now    func() time.Time
}

// NewMemoryJobStore returns an empty store seeded with jobs.
func NewMemoryJobStore(jobs ...*models.Job) *MemoryJobStore {
	s := &MemoryJobStore{
		jobs: make(map[string]*models.Job),
		subs: make(map[string]map[int]func(*models.Job)),
		now:  time.Now,
	}
	for _, j := range jobs {
		s.Put(j)
	}
	return s
}

// Put stores a copy of job, replacing any job with the same id.
func (s *MemoryJobStore) Put(job *models.Job) {
	s.mu.Lock()
	s.jobs[job.ID] = CloneJob(job)
	s.mu.Unlock()
}

func (s *MemoryJobStore) Load(ctx context.Context, jobID string) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, &models.NotFoundError{Kind: "job", ID: jobID}
	}
	return CloneJob(job), nil
}

// Save applies updates in order. Either all updates apply or none do.
func (s *MemoryJobStore) Save(ctx context.Context, jobID string, updates []FieldUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return &models.NotFoundError{Kind: "job", ID: jobID}
	}
	next := CloneJob(job)
	for _, u := range updates {
		if err := apply(next, u); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	next.UpdatedAt = s.now()
	s.jobs[jobID] = next
	subs := make([]func(*models.Job), 0, len(s.subs[jobID]))
	for _, fn := range s.subs[jobID] {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(CloneJob(next))
	}
	return nil
}

func (s *MemoryJobStore) Subscribe(ctx context.Context, jobID string, onChange func(*models.Job)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return nil, &models.NotFoundError{Kind: "job", ID: jobID}
	}
	if s.subs[jobID] == nil {
		s.subs[jobID] = make(map[int]func(*models.Job))
	}
	id := s.nextID
	s.nextID++
	s.subs[jobID][id] = onChange

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[jobID], id)
			s.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return cancel, nil
}

// apply sets one field path on job. Only the paths the core writes are
// understood; anything else is rejected so typos surface in tests.
func apply(job *models.Job, u FieldUpdate) error {
	bad := func() error {
		return models.NewValidationError(u.Key(), "unsupported value %T for field path", u.Value)
	}
	if len(u.Path) == 0 {
		return models.NewValidationError("path", "field path is empty")
	}
	switch u.Path[0] {
	case "currentPhase":
		p, ok := u.Value.(models.Phase)
		if !ok || len(u.Path) != 1 {
			return bad()
		}
		job.CurrentPhase = p
	case "lastError":
		msg, ok := u.Value.(string)
		if !ok || len(u.Path) != 1 {
			return bad()
		}
		job.LastError = msg
	case "rooms":
		rooms, ok := u.Value.([]models.Room)
		if !ok || len(u.Path) != 1 {
			return bad()
		}
		job.Rooms = append([]models.Room(nil), rooms...)
	case "chambers":
		chambers, ok := u.Value.([]models.DryingChamber)
		if !ok || len(u.Path) != 1 {
			return bad()
		}
		job.Chambers = cloneEach(chambers, models.DryingChamber.Clone)
	case "materials":
		recs, ok := u.Value.([]models.MaterialTrackingRecord)
		if !ok || len(u.Path) != 1 {
			return bad()
		}
		job.Materials = cloneEach(recs, models.MaterialTrackingRecord.Clone)
	case "workflowStates":
		return applyWorkflowState(job, u, bad)
	default:
		return models.NewValidationError(u.Key(), "unknown field path")
	}
	return nil
}

func applyWorkflowState(job *models.Job, u FieldUpdate, bad func() error) error {
	if job.WorkflowStates == nil {
		job.WorkflowStates = map[string]models.WorkflowPhaseState{}
	}
	switch {
	case len(u.Path) == 2:
		st, ok := u.Value.(models.WorkflowPhaseState)
		if !ok {
			return bad()
		}
		job.WorkflowStates[u.Path[1]] = st.Clone()
	case len(u.Path) == 4 && u.Path[2] == "photos":
		res, ok := u.Value.(models.PhotoResult)
		if !ok {
			return bad()
		}
		st, ok := job.WorkflowStates[u.Path[1]]
		if !ok {
			st = models.WorkflowPhaseState{Phase: models.Phase(u.Path[1])}
		}
		st = st.Clone()
		if st.Photos == nil {
			st.Photos = map[string]models.PhotoResult{}
		}
		st.Photos[u.Path[3]] = res
		job.WorkflowStates[u.Path[1]] = st
	default:
		return bad()
	}
	return nil
}

// CloneJob deep-copies the parts of a job the core mutates.
func CloneJob(job *models.Job) *models.Job {
	out := *job
	out.Customer = maps.Clone(job.Customer)
	out.Rooms = append([]models.Room(nil), job.Rooms...)
	out.Chambers = cloneEach(job.Chambers, models.DryingChamber.Clone)
	out.Materials = cloneEach(job.Materials, models.MaterialTrackingRecord.Clone)
	if job.WorkflowStates != nil {
		out.WorkflowStates = make(map[string]models.WorkflowPhaseState, len(job.WorkflowStates))
		for k, st := range job.WorkflowStates {
			out.WorkflowStates[k] = st.Clone()
		}
	}
	return &out
}

func cloneEach[T any](in []T, clone func(T) T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = clone(v)
	}
	return out
}
