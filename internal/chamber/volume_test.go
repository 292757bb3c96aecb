package chamber

import (
	"testing"

	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/Lllllllleong/restorationflow/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeVolume_InsetsOffsetsAndClamp(t *testing.T) {
	r := models.Room{ID: "r1", Length: 10, Width: 10, Height: 8, InsetsCuFt: 50, OffsetsCuFt: 20}
	assert.Equal(t, 830.0, r.Volume())

	c := models.DryingChamber{ID: "a", RoomIDs: []string{"r1"}}
	assert.Equal(t, 830.0, ComputeVolume(c, []models.Room{r}))

	c.Containment = models.Containment{Enabled: true, SpaceReductionCuFt: 900}
	assert.Equal(t, 0.0, ComputeVolume(c, []models.Room{r}))
	assert.Equal(t, 830.0, RawVolume(c, []models.Room{r}))

	c.Containment.SpaceReductionCuFt = 30
	assert.Equal(t, 800.0, ComputeVolume(c, []models.Room{r}))
}

func TestComputeVolume_NeverNegative(t *testing.T) {
	rooms := []models.Room{
		{ID: "a", Length: 5, Width: 5, Height: 8},
		{ID: "b", Length: 1, Width: 1, Height: 1, OffsetsCuFt: 500},
	}
	for _, reduction := range []float64{0, 10, 199, 200, 10000} {
		c := models.DryingChamber{RoomIDs: []string{"a", "b", "ghost"}, Containment: models.Containment{SpaceReductionCuFt: reduction}}
		assert.GreaterOrEqual(t, ComputeVolume(c, rooms), 0.0)
	}
	assert.Equal(t, 0.0, ComputeVolume(models.DryingChamber{}, rooms))
}

func TestRecomputeVolumes(t *testing.T) {
	rooms := []models.Room{{ID: "r1", Length: 10, Width: 10, Height: 8}}
	chambers := []models.DryingChamber{{ID: "a", RoomIDs: []string{"r1"}}, {ID: "b"}}
	got := RecomputeVolumes(chambers, rooms)
	assert.Equal(t, 800.0, got[0].TotalVolumeCuFt)
	assert.Equal(t, 0.0, got[1].TotalVolumeCuFt)
	assert.Equal(t, 0.0, chambers[0].TotalVolumeCuFt)
}

func TestComputeOverallDamageClass(t *testing.T) {
	rooms := []models.Room{{DamageClass: 1}, {DamageClass: 2}, {DamageClass: 3}, {}}
	class, ok := ComputeOverallDamageClass(rooms)
	assert.True(t, ok)
	assert.Equal(t, 3, class)

	class, ok = ComputeOverallDamageClass([]models.Room{{}, {}})
	assert.False(t, ok)
	assert.Equal(t, 0, class)

	_, ok = ComputeOverallDamageClass(nil)
	assert.False(t, ok)
}

func TestGetUnassigned(t *testing.T) {
	rooms := []models.Room{
		{ID: "r1", Name: "Kitchen", Status: models.RoomAffected},
		{ID: "r2", Name: "Den", Status: models.RoomUnaffected},
		{ID: "r3", Name: "Hall", Status: models.RoomPartial},
		{ID: "r4", Name: "Bath", Status: models.RoomAffected},
		{ID: "r5", Name: "Office"},
	}
	chambers := []models.DryingChamber{{ID: "a", RoomIDs: []string{"r4"}}}
	u := GetUnassigned(chambers, rooms)

	var affected, baseline []string
	for _, r := range u.Affected {
		affected = append(affected, r.ID)
	}
	for _, r := range u.Baseline {
		baseline = append(baseline, r.ID)
	}
	assert.Equal(t, []string{"r1", "r3", "r5"}, affected)
	assert.Equal(t, []string{"r2"}, baseline)
	assert.True(t, u.Blocking())

	warnings := u.Warnings()
	require.Len(t, warnings, 3)
	assert.ErrorIs(t, warnings[0], models.ErrConsistency)
	assert.Contains(t, warnings[0].Error(), "Kitchen")

	all := []models.DryingChamber{{ID: "a", RoomIDs: []string{"r1", "r3", "r4", "r5"}}}
	assert.False(t, GetUnassigned(all, rooms).Blocking())
}

func TestSizeDehumidification(t *testing.T) {
	a := NewAssigner(policy.Default())
	s, err := a.SizeDehumidification(2000, 2, policy.DehuLGR)
	require.NoError(t, err)
	assert.Equal(t, 40.0, s.PintsPerDay)
	assert.Equal(t, 50.0, s.ChartFactor)

	s, err = a.SizeDehumidification(1000, 3, policy.DehuConventional)
	require.NoError(t, err)
	assert.Equal(t, 34.0, s.PintsPerDay, "rounded up from 33.3")

	_, err = a.SizeDehumidification(-1, 2, policy.DehuLGR)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = a.SizeDehumidification(100, 0, policy.DehuLGR)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSummarize(t *testing.T) {
	a := NewAssigner(policy.Default())
	rooms := []models.Room{
		{ID: "r1", Length: 10, Width: 10, Height: 8, DamageClass: 2},
		{ID: "r2", Length: 10, Width: 10, Height: 8, DamageClass: 3},
		{ID: "r3", Length: 10, Width: 10, Height: 8},
	}
	chambers := []models.DryingChamber{
		{ID: "a", Name: "Chamber A", RoomIDs: []string{"r1", "r2"}},
		{ID: "b", Name: "Chamber B", RoomIDs: []string{"r3"}},
	}
	sums, err := a.Summarize(chambers, rooms, policy.DehuLGR)
	require.NoError(t, err)
	require.Len(t, sums, 2)

	assert.Equal(t, 1600.0, sums[0].VolumeCuFt)
	assert.Equal(t, 3, sums[0].DamageClass)
	require.NotNil(t, sums[0].Sizing)
	assert.Equal(t, 40.0, sums[0].Sizing.PintsPerDay)

	assert.True(t, sums[1].MissingClass)
	assert.Nil(t, sums[1].Sizing)
}

func TestSummarize_UnknownKindWithoutClasses(t *testing.T) {
	a := NewAssigner(policy.Default())
	rooms := []models.Room{{ID: "r1", Length: 10, Width: 10, Height: 8}}
	chambers := []models.DryingChamber{{ID: "a", Name: "Chamber A", RoomIDs: []string{"r1"}}}

	_, err := a.Summarize(chambers, rooms, "turbo")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = a.Summarize(chambers, rooms, "LGR")
	assert.NoError(t, err)
}
