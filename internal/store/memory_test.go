package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedJob() *models.Job {
	return &models.Job{
		ID:           "job-1",
		CurrentPhase: models.PhaseInstall,
		Rooms:        []models.Room{{ID: "r1", Name: "Kitchen", Length: 10, Width: 10, Height: 8}},
		WorkflowStates: map[string]models.WorkflowPhaseState{
			"install": {Phase: models.PhaseInstall, Steps: []string{"a", "b"}, Data: map[string]interface{}{"a": "x"}},
		},
	}
}

func TestMemoryJobStoreLoadIsolation(t *testing.T) {
	s := NewMemoryJobStore(seedJob())
	ctx := context.Background()

	job, err := s.Load(ctx, "job-1")
	require.NoError(t, err)
	job.Rooms[0].Name = "changed"
	job.WorkflowStates["install"].Data["a"] = "changed"

	again, err := s.Load(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", again.Rooms[0].Name)
	assert.Equal(t, "x", again.WorkflowStates["install"].Data["a"])

	_, err = s.Load(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryJobStoreSaveMergesFieldPaths(t *testing.T) {
	s := NewMemoryJobStore(seedJob())
	ctx := context.Background()

	err := s.Save(ctx, "job-1", []FieldUpdate{
		{Path: []string{"workflowStates", "demo"}, Value: models.WorkflowPhaseState{Phase: models.PhaseDemo, Steps: []string{"scope"}}},
		{Path: []string{"workflowStates", "install", "photos", "b"}, Value: models.PhotoResult{URL: "gs://p/1.jpg"}},
		{Path: []string{"currentPhase"}, Value: models.PhaseDemo},
	})
	require.NoError(t, err)

	job, err := s.Load(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseDemo, job.CurrentPhase)
	assert.Len(t, job.Rooms, 1, "untouched fields survive")
	assert.Equal(t, "x", job.WorkflowStates["install"].Data["a"], "sibling data survives a photo update")
	assert.Equal(t, "gs://p/1.jpg", job.WorkflowStates["install"].Photos["b"].URL)
	assert.Equal(t, []string{"scope"}, job.WorkflowStates["demo"].Steps)
	assert.False(t, job.UpdatedAt.IsZero())
}

func TestMemoryJobStoreSaveIsAllOrNothing(t *testing.T) {
	s := NewMemoryJobStore(seedJob())
	ctx := context.Background()

	err := s.Save(ctx, "job-1", []FieldUpdate{
		{Path: []string{"currentPhase"}, Value: models.PhasePull},
		{Path: []string{"rooms"}, Value: "not rooms"},
	})
	assert.ErrorIs(t, err, models.ErrValidation)

	job, err := s.Load(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseInstall, job.CurrentPhase)

	err = s.Save(ctx, "job-1", []FieldUpdate{{Path: []string{"nope"}, Value: 1}})
	assert.ErrorIs(t, err, models.ErrValidation)
	err = s.Save(ctx, "missing", nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryJobStoreSubscribe(t *testing.T) {
	s := NewMemoryJobStore(seedJob())
	ctx := context.Background()

	var seen []models.Phase
	cancel, err := s.Subscribe(ctx, "job-1", func(j *models.Job) { seen = append(seen, j.CurrentPhase) })
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "job-1", []FieldUpdate{{Path: []string{"currentPhase"}, Value: models.PhaseDemo}}))
	cancel()
	require.NoError(t, s.Save(ctx, "job-1", []FieldUpdate{{Path: []string{"currentPhase"}, Value: models.PhasePull}}))

	assert.Equal(t, []models.Phase{models.PhaseDemo}, seen)

	_, err = s.Subscribe(ctx, "missing", func(*models.Job) {})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryJobStoreSubscribeEndsWithContext(t *testing.T) {
	s := NewMemoryJobStore(seedJob())
	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.Subscribe(ctx, "job-1", func(*models.Job) {})
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.subs["job-1"]) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestPhotoUploadError(t *testing.T) {
	cause := errors.New("503 backend error")
	err := error(&PhotoUploadError{Location: "install/containment", Transient: true, Err: cause})
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "transient")

	assert.False(t, IsTransient(&PhotoUploadError{Err: cause}))
	assert.False(t, IsTransient(cause))
	assert.Equal(t, "install/containment", PhotoLocation(models.PhaseInstall, "containment"))
}

func TestSwitchNetwork(t *testing.T) {
	n := NewSwitchNetwork(false)
	var got []bool
	cancel := n.Subscribe(func(online bool) { got = append(got, online) })

	n.Set(true)
	n.Set(true)
	n.Set(false)
	cancel()
	n.Set(true)

	assert.Equal(t, []bool{true, false}, got)
	assert.True(t, n.Online())
}
