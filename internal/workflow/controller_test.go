package workflow

import (
	"testing"
	"time"

	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalogYAML = `
phases:
  - phase: install
    steps:
      - id: arrival
        required: true
      - id: rooms
        required: true
        required_fields: [count]
      - id: equipment
        requires_photo: true
      - id: signoff
        required: true
  - phase: demo
    steps:
      - id: scope
      - id: removal
`

type keyRecorder struct {
	keys []string
}

func (k *keyRecorder) Mark(key string) { k.keys = append(k.keys, key) }

func testCatalog(t *testing.T) Catalog {
	t.Helper()
	c, err := ParseCatalog([]byte(testCatalogYAML))
	require.NoError(t, err)
	return c
}

func newTestController(t *testing.T, job *models.Job) (*Controller, *keyRecorder) {
	t.Helper()
	rec := &keyRecorder{}
	clock := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	c := NewController(job, testCatalog(t),
		WithDirtyMarker(rec),
		WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}),
	)
	return c, rec
}

func TestStartPhaseFresh(t *testing.T) {
	c, rec := newTestController(t, &models.Job{ID: "job-1"})

	st, err := c.StartPhase("job-1", models.PhaseInstall, "tech-7")
	require.NoError(t, err)
	assert.Equal(t, 0, st.CurrentStep)
	assert.Equal(t, []string{"arrival", "rooms", "equipment", "signoff"}, st.Steps)
	assert.Equal(t, "tech-7", st.StartedBy)
	assert.Equal(t, models.PhaseInstall, c.ActivePhase())
	assert.Equal(t, []string{StateKey(models.PhaseInstall)}, rec.keys)
	assert.Equal(t, 25, c.ProgressPercent())
}

func TestStartPhaseRejectsBadInput(t *testing.T) {
	c, _ := newTestController(t, &models.Job{ID: "job-1"})

	_, err := c.StartPhase("job-2", models.PhaseInstall, "tech")
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = c.StartPhase("job-1", models.PhasePull, "tech")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = c.Advance()
	assert.ErrorIs(t, err, models.ErrValidation, "no active phase")
	assert.Equal(t, 0, c.ProgressPercent())
}

func TestStartPhaseResumesSavedStep(t *testing.T) {
	job := &models.Job{
		ID: "job-1",
		WorkflowStates: map[string]models.WorkflowPhaseState{
			"install": {
				Steps:       []string{"arrival", "rooms", "equipment", "signoff"},
				CurrentStep: 2,
				Data:        map[string]interface{}{"arrival": map[string]interface{}{"at": "08:00"}},
			},
		},
	}
	c, rec := newTestController(t, job)
	st, err := c.StartPhase("job-1", models.PhaseInstall, "tech")
	require.NoError(t, err)
	assert.Equal(t, 2, st.CurrentStep)
	assert.Equal(t, models.PhaseInstall, st.Phase)
	assert.Contains(t, st.Data, "arrival")
	assert.Empty(t, rec.keys, "resuming does not dirty the job")
}

func TestStartPhaseResumeFollowsStepIDWhenCatalogChanges(t *testing.T) {
	job := &models.Job{
		ID: "job-1",
		WorkflowStates: map[string]models.WorkflowPhaseState{
			"install": {Phase: models.PhaseInstall, Steps: []string{"arrival", "legacy", "equipment"}, CurrentStep: 2},
			"demo":    {Phase: models.PhaseDemo, Steps: []string{"a", "b", "c", "d", "e"}, CurrentStep: 4},
		},
	}
	c, _ := newTestController(t, job)
	st, err := c.StartPhase("job-1", models.PhaseInstall, "tech")
	require.NoError(t, err)
	assert.Equal(t, "equipment", st.CurrentStepID())

	st, err = c.StartPhase("job-1", models.PhaseDemo, "tech")
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentStep, "pointer clamped into the shorter list")
	assert.NotNil(t, st.Data)
}

func TestAdvanceRetreatBounds(t *testing.T) {
	c, _ := newTestController(t, &models.Job{ID: "job-1"})
	_, err := c.StartPhase("job-1", models.PhaseDemo, "tech")
	require.NoError(t, err)

	st, err := c.Retreat()
	require.NoError(t, err)
	assert.Equal(t, 0, st.CurrentStep, "retreat at 0 is a no-op")

	st, err = c.Advance()
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentStep)
	assert.Equal(t, 100, c.ProgressPercent())

	st, err = c.Advance()
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentStep, "advance at the last step is a no-op")

	st, err = c.Retreat()
	require.NoError(t, err)
	assert.Equal(t, 0, st.CurrentStep)
}

func TestAdvanceBlockedByRequiredPhoto(t *testing.T) {
	c, _ := newTestController(t, &models.Job{ID: "job-1"})
	_, err := c.StartPhase("job-1", models.PhaseInstall, "tech")
	require.NoError(t, err)

	_, err = c.JumpToStep("equipment")
	require.NoError(t, err)
	st, err := c.Advance()
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, "equipment", st.CurrentStepID())

	_, err = c.RecordPhotoResult(models.PhaseInstall, "equipment", models.PhotoResult{})
	assert.ErrorIs(t, err, models.ErrValidation, "unresolved result is rejected")

	_, err = c.RecordPhotoResult(models.PhaseInstall, "equipment", models.PhotoResult{Skipped: true, SkipReason: "camera broken"})
	require.NoError(t, err)
	st, err = c.Advance()
	require.NoError(t, err)
	assert.Equal(t, "signoff", st.CurrentStepID())
}

func TestRecordPhotoResultValidation(t *testing.T) {
	c, _ := newTestController(t, &models.Job{ID: "job-1"})
	_, err := c.RecordPhotoResult(models.PhaseInstall, "equipment", models.PhotoResult{URL: "gs://b/o"})
	assert.ErrorIs(t, err, models.ErrValidation, "phase not started")

	_, err = c.StartPhase("job-1", models.PhaseInstall, "tech")
	require.NoError(t, err)
	_, err = c.RecordPhotoResult(models.PhaseInstall, "nope", models.PhotoResult{URL: "gs://b/o"})
	assert.ErrorIs(t, err, models.ErrValidation)

	st, err := c.RecordPhotoResult(models.PhaseInstall, "equipment", models.PhotoResult{URL: "gs://b/o"})
	require.NoError(t, err)
	assert.False(t, st.Photos["equipment"].RecordedAt.IsZero())
}

func TestJumpToStep(t *testing.T) {
	c, _ := newTestController(t, &models.Job{ID: "job-1"})
	_, err := c.StartPhase("job-1", models.PhaseInstall, "tech")
	require.NoError(t, err)

	st, err := c.JumpToStep("signoff")
	require.NoError(t, err)
	assert.Equal(t, 3, st.CurrentStep)

	st, err = c.JumpToStep("arrival")
	require.NoError(t, err)
	assert.Equal(t, 0, st.CurrentStep)

	st, err = c.JumpToStep("missing")
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, 0, st.CurrentStep)
}

func TestSaveStepDataShallowMerge(t *testing.T) {
	c, rec := newTestController(t, &models.Job{ID: "job-1"})
	_, err := c.StartPhase("job-1", models.PhaseInstall, "tech")
	require.NoError(t, err)

	_, err = c.SaveStepData(map[string]interface{}{
		"arrival": map[string]interface{}{"at": "08:00", "weather": "rain"},
		"rooms":   map[string]interface{}{"count": 3},
	})
	require.NoError(t, err)

	st, err := c.SaveStepData(map[string]interface{}{
		"arrival": map[string]interface{}{"at": "08:15"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"at": "08:15"}, st.Data["arrival"], "top-level key replaced as a whole")
	assert.Equal(t, map[string]interface{}{"count": 3}, st.Data["rooms"], "sibling step untouched")

	// Mutating the returned copy leaves the controller intact.
	st.Data["rooms"] = "clobbered"
	again, err := c.State()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"count": 3}, again.Data["rooms"])

	assert.Len(t, rec.keys, 3)
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		index, total, want int
	}{
		{0, 4, 25}, {1, 4, 50}, {3, 4, 100},
		{0, 15, 7}, {7, 15, 53}, {14, 15, 100},
		{0, 7, 14}, {2, 8, 38}, {0, 0, 0},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, progress(tt.index, tt.total), "progress(%d, %d)", tt.index, tt.total)
	}
}

func TestCompletePhase(t *testing.T) {
	c, rec := newTestController(t, &models.Job{ID: "job-1", CurrentPhase: models.PhaseInstall})
	_, err := c.StartPhase("job-1", models.PhaseInstall, "tech")
	require.NoError(t, err)

	_, next, err := c.CompletePhase()
	assert.ErrorIs(t, err, models.ErrInvariant)
	assert.Equal(t, models.PhaseInstall, next)

	_, err = c.JumpToStep("signoff")
	require.NoError(t, err)
	st, next, err := c.CompletePhase()
	require.NoError(t, err)
	require.NotNil(t, st.CompletedAt)
	assert.Equal(t, models.PhaseDemo, next)
	assert.Equal(t, models.PhaseDemo, c.CurrentPhase())
	assert.Contains(t, rec.keys, KeyCurrentPhase)

	snap := c.Snapshot()
	require.Contains(t, snap, "install")
	assert.NotNil(t, snap["install"].CompletedAt)
}

func TestNewControllerDefaultsCurrentPhase(t *testing.T) {
	c, _ := newTestController(t, &models.Job{ID: "job-1"})
	assert.Equal(t, models.PhaseInstall, c.CurrentPhase())
	_, ok := c.StateOf(models.PhaseDemo)
	assert.False(t, ok)
}
