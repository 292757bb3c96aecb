package workflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	require.NoError(t, c.Validate())

	want := map[models.Phase]int{
		models.PhaseInstall:      15,
		models.PhaseDemo:         9,
		models.PhaseCheckService: 7,
		models.PhasePull:         9,
	}
	for phase, n := range want {
		def, ok := c.Phase(phase)
		require.Truef(t, ok, "phase %s missing", phase)
		assert.Lenf(t, def.Steps, n, "phase %s", phase)
	}

	def, _ := c.Phase(models.PhaseInstall)
	step, ok := def.Step("equipment-placement")
	require.True(t, ok)
	assert.True(t, step.RequiresPhoto)
	assert.True(t, step.Required)
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"empty", "   ", "catalog payload is empty"},
		{"no phases", "phases: []", "catalog has no phases"},
		{"unknown phase", "phases:\n  - phase: mitigation\n    steps: [{id: a}]", "unknown phase"},
		{"no steps", "phases:\n  - phase: pull\n    steps: []", "at least one step is required"},
		{"duplicate step", "phases:\n  - phase: pull\n    steps: [{id: a}, {id: a}]", "duplicate step id a"},
		{"missing id", "phases:\n  - phase: pull\n    steps: [{title: x}]", "id is required"},
		{"duplicate phase", "phases:\n  - phase: pull\n    steps: [{id: a}]\n  - phase: pull\n    steps: [{id: b}]", "duplicate phase"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.payload))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "phases.yaml")
	const payload = `
phases:
  - phase: demo
    steps:
      - id: arrive
        required: true
      - id: tear-out
        requires_photo: true
`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	c, err := LoadCatalogFile(path)
	require.NoError(t, err)
	def, ok := c.Phase(models.PhaseDemo)
	require.True(t, ok)
	assert.Equal(t, []string{"arrive", "tear-out"}, def.StepIDs())

	_, err = LoadCatalogFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	c, err = LoadCatalogReader(strings.NewReader(payload))
	require.NoError(t, err)
	assert.Len(t, c.Phases, 1)
}
