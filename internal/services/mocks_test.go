package services

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/Lllllllleong/restorationflow/internal/store"
	"github.com/Lllllllleong/restorationflow/internal/workflow"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockJobStore is a testify mock of store.JobStore.
type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) Load(ctx context.Context, jobID string) (*models.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *MockJobStore) Save(ctx context.Context, jobID string, updates []store.FieldUpdate) error {
	args := m.Called(ctx, jobID, updates)
	return args.Error(0)
}

func (m *MockJobStore) Subscribe(ctx context.Context, jobID string, onChange func(*models.Job)) (func(), error) {
	args := m.Called(ctx, jobID, onChange)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

// MockPhotoStore is a testify mock of store.PhotoStore.
type MockPhotoStore struct {
	mock.Mock
}

func (m *MockPhotoStore) Upload(ctx context.Context, data []byte, jobID, location, category, actorID string) (string, error) {
	args := m.Called(ctx, data, jobID, location, category, actorID)
	return args.String(0), args.Error(1)
}

// MockWorkflowStarter is a testify mock of WorkflowStarter.
type MockWorkflowStarter struct {
	mock.Mock
}

func (m *MockWorkflowStarter) Trigger(ctx context.Context, payload interface{}) (string, error) {
	args := m.Called(ctx, payload)
	return args.String(0), args.Error(1)
}

// MockNarrator is a testify mock of Narrator.
type MockNarrator struct {
	mock.Mock
}

func (m *MockNarrator) Narrate(ctx context.Context, dryingLog string) (string, error) {
	args := m.Called(ctx, dryingLog)
	return args.String(0), args.Error(1)
}

// manualTimers holds debounce callbacks until the test fires them.
type manualTimers struct {
	mu      sync.Mutex
	pending []func()
}

type manualTimer struct{}

func (manualTimer) Stop() bool { return true }

func (m *manualTimers) afterFunc(_ time.Duration, f func()) workflow.Timer {
	m.mu.Lock()
	m.pending = append(m.pending, f)
	m.mu.Unlock()
	return manualTimer{}
}

// fire runs every scheduled callback; superseded ones are ignored by the
// debouncer.
func (m *manualTimers) fire() {
	m.mu.Lock()
	fs := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, f := range fs {
		f()
	}
}

const testCatalogYAML = `
phases:
  - phase: install
    steps:
      - id: arrival
        required: true
      - id: containment
        requires_photo: true
      - id: signoff
        required: true
  - phase: demo
    steps:
      - id: scope
  - phase: check-service
    steps:
      - id: visit
  - phase: pull
    steps:
      - id: final-moisture
      - id: pull-signoff
`

func testCatalog(t *testing.T) workflow.Catalog {
	t.Helper()
	c, err := workflow.ParseCatalog([]byte(testCatalogYAML))
	require.NoError(t, err)
	return c
}

func testClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}
