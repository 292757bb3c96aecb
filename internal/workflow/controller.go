// Package workflow drives the ordered phase and step state machine of a job
// and accumulates the data each step saves.
//
// States are step indices [0, N-1] of the active phase. Advance and Retreat
// move by exactly one and stop at the ends; JumpToStep may move to any step.
// Leaving a phase is an external event: the controller reports readiness and
// the caller decides whether to call CompletePhase.
package workflow

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Lllllllleong/restorationflow/internal/models"
)

// KeyCurrentPhase is the dirty key marked when the job moves to a new phase.
const KeyCurrentPhase = "currentPhase"

// StateKey is the dirty key marked when a phase's workflow state changes.
func StateKey(p models.Phase) string {
	return "workflowStates/" + string(p)
}

// DirtyMarker receives a key each time the controller mutates state.
// *Debouncer satisfies it.
type DirtyMarker interface {
	Mark(key string)
}

// Controller is the workflow state machine of one job. A single technician
// drives it; the mutex only protects snapshots taken by an asynchronous flush
// while edits continue.
type Controller struct {
	mu           sync.Mutex
	jobID        string
	catalog      Catalog
	states       map[models.Phase]*models.WorkflowPhaseState
	active       models.Phase
	currentPhase models.Phase
	dirty        DirtyMarker
	now          func() time.Time
	logger       *slog.Logger
}

// Option customises a Controller.
type Option func(*Controller)

// WithClock replaces time.Now for state timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the logger used for step transitions.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithDirtyMarker routes change notifications to m, usually a Debouncer.
func WithDirtyMarker(m DirtyMarker) Option {
	return func(c *Controller) { c.dirty = m }
}

// NewController builds a controller from the job's saved workflow states.
// The job itself is not retained.
func NewController(job *models.Job, catalog Catalog, opts ...Option) *Controller {
	c := &Controller{
		jobID:        job.ID,
		catalog:      catalog,
		states:       make(map[models.Phase]*models.WorkflowPhaseState, len(job.WorkflowStates)),
		currentPhase: job.CurrentPhase,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	for key, st := range job.WorkflowStates {
		st := st.Clone()
		if st.Phase == "" {
			st.Phase = models.Phase(key)
		}
		c.states[st.Phase] = &st
	}
	if c.currentPhase == "" {
		c.currentPhase = models.PhaseInstall
	}
	return c
}

// StartPhase makes phase the active phase. A phase with no saved state
// starts at step 0; otherwise it resumes at the saved step.
func (c *Controller) StartPhase(jobID string, phase models.Phase, actorID string) (models.WorkflowPhaseState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if jobID != c.jobID {
		return models.WorkflowPhaseState{}, models.NewValidationError("jobId", "controller belongs to job %s, got %s", c.jobID, jobID)
	}
	def, ok := c.catalog.Phase(phase)
	if !ok {
		return models.WorkflowPhaseState{}, models.NewValidationError("phase", "no step definitions for phase %q", phase)
	}
	logCtx := c.logger.With("jobId", c.jobID, "phase", phase, "actorId", actorID)

	st, resumed := c.states[phase]
	if resumed {
		c.syncSteps(st, def)
		logCtx.Debug("Resuming phase.", "step", st.CurrentStepID(), "index", st.CurrentStep)
	} else {
		now := c.now()
		st = &models.WorkflowPhaseState{
			Phase:     phase,
			Steps:     def.StepIDs(),
			Data:      map[string]interface{}{},
			StartedBy: actorID,
			StartedAt: now,
			UpdatedAt: now,
		}
		c.states[phase] = st
		c.markLocked(phase)
		logCtx.Debug("Starting phase.", "stepCount", len(st.Steps))
	}
	c.active = phase
	return st.Clone(), nil
}

// syncSteps refreshes a resumed state's step list from the catalog, keeping
// the pointer on the same step id when it still exists and clamping it into
// range otherwise.
func (c *Controller) syncSteps(st *models.WorkflowPhaseState, def PhaseDefinition) {
	current := st.CurrentStepID()
	st.Steps = def.StepIDs()
	if st.Data == nil {
		st.Data = map[string]interface{}{}
	}
	for i, id := range st.Steps {
		if id == current {
			st.CurrentStep = i
			return
		}
	}
	switch {
	case st.CurrentStep < 0:
		st.CurrentStep = 0
	case st.CurrentStep >= len(st.Steps):
		st.CurrentStep = len(st.Steps) - 1
	}
}

// SaveStepData merges partial into the active phase's data one top-level key
// at a time. Keys not present in partial keep their earlier values.
func (c *Controller) SaveStepData(partial map[string]interface{}) (models.WorkflowPhaseState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.activeLocked()
	if err != nil {
		return models.WorkflowPhaseState{}, err
	}
	for k, v := range partial {
		st.Data[k] = v
	}
	st.UpdatedAt = c.now()
	c.markLocked(st.Phase)
	return st.Clone(), nil
}

// Advance moves to the next step. At the last step it returns the state
// unchanged. A step that requires a photo cannot be left until a photo
// result has been recorded for it.
func (c *Controller) Advance() (models.WorkflowPhaseState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.activeLocked()
	if err != nil {
		return models.WorkflowPhaseState{}, err
	}
	if st.CurrentStep >= len(st.Steps)-1 {
		return st.Clone(), nil
	}
	stepID := st.CurrentStepID()
	if def, ok := c.stepLocked(st.Phase, stepID); ok && def.RequiresPhoto && !st.Photos[stepID].Resolved() {
		return st.Clone(), models.NewValidationError("photo", "step %s requires a photo upload or an explicit skip", stepID)
	}
	return c.moveLocked(st, st.CurrentStep+1), nil
}

// Retreat moves to the previous step. At step 0 it returns the state
// unchanged.
func (c *Controller) Retreat() (models.WorkflowPhaseState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.activeLocked()
	if err != nil {
		return models.WorkflowPhaseState{}, err
	}
	if st.CurrentStep <= 0 {
		return st.Clone(), nil
	}
	return c.moveLocked(st, st.CurrentStep-1), nil
}

// JumpToStep moves directly to stepID without checking earlier steps.
// Required steps are still reported by Readiness.
func (c *Controller) JumpToStep(stepID string) (models.WorkflowPhaseState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.activeLocked()
	if err != nil {
		return models.WorkflowPhaseState{}, err
	}
	for i, id := range st.Steps {
		if id == stepID {
			return c.moveLocked(st, i), nil
		}
	}
	return st.Clone(), models.NewValidationError("stepId", "phase %s has no step %q", st.Phase, stepID)
}

func (c *Controller) moveLocked(st *models.WorkflowPhaseState, to int) models.WorkflowPhaseState {
	from := st.CurrentStepID()
	st.CurrentStep = to
	st.UpdatedAt = c.now()
	c.logger.Debug("Step changed.", "jobId", c.jobID, "phase", st.Phase, "from", from, "to", st.CurrentStepID())
	c.markLocked(st.Phase)
	return st.Clone()
}

// RecordPhotoResult resolves the photo requirement of a step with an
// uploaded URL or an explicit skip. The phase must have been started; it
// need not be the active one, since uploads finish asynchronously.
func (c *Controller) RecordPhotoResult(phase models.Phase, stepID string, result models.PhotoResult) (models.WorkflowPhaseState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[phase]
	if !ok {
		return models.WorkflowPhaseState{}, models.NewValidationError("phase", "phase %q has not been started", phase)
	}
	if _, ok := c.stepLocked(phase, stepID); !ok {
		return st.Clone(), models.NewValidationError("stepId", "phase %s has no step %q", phase, stepID)
	}
	if !result.Resolved() {
		return st.Clone(), models.NewValidationError("photo", "result for step %s has neither a URL nor a skip", stepID)
	}
	if result.RecordedAt.IsZero() {
		result.RecordedAt = c.now()
	}
	if st.Photos == nil {
		st.Photos = map[string]models.PhotoResult{}
	}
	st.Photos[stepID] = result
	st.UpdatedAt = c.now()
	c.markLocked(phase)
	return st.Clone(), nil
}

// ProgressPercent is round((current+1)/total*100) for the active phase, or 0
// when no phase is active.
func (c *Controller) ProgressPercent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.activeLocked()
	if err != nil {
		return 0
	}
	return progress(st.CurrentStep, len(st.Steps))
}

func progress(index, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(index+1) / float64(total) * 100))
}

// CompletePhase records the end of the active phase and moves the job to the
// next phase. It is only valid at the last step; readiness is the caller's
// decision.
func (c *Controller) CompletePhase() (models.WorkflowPhaseState, models.Phase, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.activeLocked()
	if err != nil {
		return models.WorkflowPhaseState{}, "", err
	}
	if st.CurrentStep != len(st.Steps)-1 {
		return st.Clone(), c.currentPhase, &models.InvariantViolation{
			Invariant: "phase completes at its last step",
			Detail:    fmt.Sprintf("phase %s is at step %d of %d", st.Phase, st.CurrentStep+1, len(st.Steps)),
		}
	}
	now := c.now()
	st.CompletedAt = &now
	st.UpdatedAt = now
	if next, ok := st.Phase.Next(); ok {
		c.currentPhase = next
	} else {
		c.currentPhase = st.Phase
	}
	c.markLocked(st.Phase)
	c.mark(KeyCurrentPhase)
	c.logger.Info("Phase completed.", "jobId", c.jobID, "phase", st.Phase, "nextPhase", c.currentPhase)
	return st.Clone(), c.currentPhase, nil
}

// State returns the active phase's state.
func (c *Controller) State() (models.WorkflowPhaseState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.activeLocked()
	if err != nil {
		return models.WorkflowPhaseState{}, err
	}
	return st.Clone(), nil
}

// StateOf returns the state of any phase that has been started.
func (c *Controller) StateOf(p models.Phase) (models.WorkflowPhaseState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[p]
	if !ok {
		return models.WorkflowPhaseState{}, false
	}
	return st.Clone(), true
}

// ActivePhase returns the phase last passed to StartPhase.
func (c *Controller) ActivePhase() models.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// CurrentPhase returns the job's current phase, which moves forward when a
// phase is completed.
func (c *Controller) CurrentPhase() models.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentPhase
}

// Snapshot returns copies of every started phase state keyed by phase name,
// in the shape stored on the job.
func (c *Controller) Snapshot() map[string]models.WorkflowPhaseState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]models.WorkflowPhaseState, len(c.states))
	for p, st := range c.states {
		out[string(p)] = st.Clone()
	}
	return out
}

func (c *Controller) activeLocked() (*models.WorkflowPhaseState, error) {
	if c.active == "" {
		return nil, models.NewValidationError("phase", "no phase has been started")
	}
	return c.states[c.active], nil
}

func (c *Controller) stepLocked(p models.Phase, stepID string) (StepDefinition, bool) {
	def, ok := c.catalog.Phase(p)
	if !ok {
		return StepDefinition{}, false
	}
	return def.Step(stepID)
}

func (c *Controller) markLocked(p models.Phase) {
	c.mark(StateKey(p))
}

func (c *Controller) mark(key string) {
	if c.dirty != nil {
		c.dirty.Mark(key)
	}
}
