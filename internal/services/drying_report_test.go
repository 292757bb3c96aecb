package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/Lllllllleong/restorationflow/internal/policy"
	"github.com/Lllllllleong/restorationflow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func reportJob() *models.Job {
	day := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	reading := func(pct float64, days int) models.MoistureReadingEntry {
		return models.MoistureReadingEntry{MoisturePercent: pct, RecordedAt: day.AddDate(0, 0, days)}
	}
	room := kitchen()
	room.DamageClass = 2
	return &models.Job{
		ID:           "job-1",
		CurrentPhase: models.PhaseCheckService,
		Rooms: []models.Room{
			room,
			{ID: "den", Name: "Den", Status: models.RoomAffected, Length: 10, Width: 10, Height: 8},
		},
		Chambers: []models.DryingChamber{{ID: "c1", Name: "Chamber A", Floor: "1st Floor", RoomIDs: []string{"kitchen"}}},
		Materials: []models.MaterialTrackingRecord{
			{ID: "m1", RoomID: "kitchen", MaterialType: "Drywall", Location: "north wall", DryStandard: 10,
				Readings: []models.MoistureReadingEntry{reading(35, 0), reading(20, 1), reading(11, 2)}},
			{ID: "m0", RoomID: "kitchen", MaterialType: "Drywall", Location: "north wall", DryStandard: 12,
				Readings: []models.MoistureReadingEntry{reading(35, 0)}, SupersededBy: "m1"},
			{ID: "m2", RoomID: "kitchen", MaterialType: "Subfloor", DryStandard: 15,
				Readings: []models.MoistureReadingEntry{reading(40, 0)}},
		},
	}
}

func TestBuildDryingLog(t *testing.T) {
	log, err := BuildDryingLog(policy.Default(), reportJob(), policy.DehuLGR)
	require.NoError(t, err)

	assert.Contains(t, log.Markdown, "# Drying report for job job-1")
	assert.Contains(t, log.Markdown, "- Overall damage class: 2")
	assert.Contains(t, log.Markdown, "| Chamber A | 1st Floor | Kitchen | 800 | 2 | 16 |")
	assert.Contains(t, log.Markdown, "| Drywall | north wall | 10% | 35 → 20 → 11 | dry | improving |")
	assert.Contains(t, log.Markdown, "| Subfloor |  | 15% | 40 | wet | unknown |")
	assert.NotContains(t, log.Markdown, "| 12% |", "superseded records are left out")
	assert.False(t, log.AllDry)

	var codes []string
	for _, w := range log.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []string{models.WarnUnassignedAffectedRoom, models.WarnMaterialNotDry}, codes)
}

func TestBuildDryingLogWithoutClassOrMaterials(t *testing.T) {
	job := &models.Job{ID: "job-2", Rooms: []models.Room{{ID: "r1", Name: "Hall", Length: 1, Width: 1, Height: 1}}}
	log, err := BuildDryingLog(policy.Default(), job, policy.DehuConventional)
	require.NoError(t, err)
	assert.Contains(t, log.Markdown, "- Overall damage class: not set")
	assert.Contains(t, log.Markdown, "No drying chambers recorded.")
	assert.Contains(t, log.Markdown, "No materials tracked.")
	assert.True(t, log.AllDry)
	require.Len(t, log.Warnings, 1)
	assert.Equal(t, models.WarnNoDamageClass, log.Warnings[0].Code)
}

func TestComposeReport(t *testing.T) {
	dl := DryingLog{Markdown: "# Drying report\n"}
	narrator := &MockNarrator{}
	narrator.On("Narrate", mock.Anything, dl.Markdown).Return("Kitchen drywall dried in two days.", nil).Once()

	out := ComposeReport(context.Background(), slog.Default(), narrator, dl)
	assert.Equal(t, "# Drying report\n\n## Narrative\n\nKitchen drywall dried in two days.\n", out)

	narrator.On("Narrate", mock.Anything, dl.Markdown).Return("", errors.New("quota")).Once()
	out = ComposeReport(context.Background(), slog.Default(), narrator, dl)
	assert.Contains(t, out, "_Narrative not generated._")
	narrator.AssertExpectations(t)

	assert.Contains(t, ComposeReport(context.Background(), slog.Default(), nil, dl), "_Narrative not generated._")
}

func TestImageObjects(t *testing.T) {
	got := imageObjects([]string{
		"jobs/job-1/install/containment/a.JPG",
		"jobs/job-1/install/containment/notes.txt",
		"jobs/job-1/pull/final-photos/b.png",
	})
	assert.Equal(t, []string{"jobs/job-1/install/containment/a.JPG", "jobs/job-1/pull/final-photos/b.png"}, got)
}

func TestDryingReportEachRunWritesNewReport(t *testing.T) {
	ctx := context.Background()
	jobs := store.NewMemoryJobStore(reportJob())
	saved := map[string]string{}
	save := func(_ context.Context, objectName, content string) error {
		if _, ok := saved[objectName]; ok {
			return nil
		}
		saved[objectName] = content
		return nil
	}
	f := NewDryingReportWith(jobs, nil, policy.Default(), "reports", save, testClock())

	first, err := f.Process(ctx, &models.DryingReportRequest{JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, "gs://reports/job-1/reports/20260302T090100.000Z/drying-report.md", first.ReportGCSUri)
	assert.False(t, first.AllDry)

	job, err := jobs.Load(ctx, "job-1")
	require.NoError(t, err)
	mats := job.Materials
	mats[2].Readings = append(mats[2].Readings, models.MoistureReadingEntry{
		MoisturePercent: 14, RecordedAt: mats[2].Readings[0].RecordedAt.Add(24 * time.Hour),
	})
	require.NoError(t, jobs.Save(ctx, "job-1", []store.FieldUpdate{{Path: []string{"materials"}, Value: mats}}))

	second, err := f.Process(ctx, &models.DryingReportRequest{JobID: "job-1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ReportGCSUri, second.ReportGCSUri)
	assert.True(t, second.AllDry)
	assert.Contains(t, saved["job-1/reports/20260302T090200.000Z/drying-report.md"], "| Subfloor |  | 15% | 40 → 14 | dry |")
	assert.Contains(t, saved["job-1/reports/20260302T090100.000Z/drying-report.md"], "| Subfloor |  | 15% | 40 | wet |")
}

func TestReportPrefix(t *testing.T) {
	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.FixedZone("AEST", 10*3600))
	assert.Equal(t, "job-1/reports/exec-7", ReportPrefix("job-1", "projects/p/locations/l/workflows/w/executions/exec-7", started))
	assert.Equal(t, "job-1/reports/exec-7", ReportPrefix("job-1", "exec-7", started))
	assert.Equal(t, "job-1/reports/20260301T230000.000Z", ReportPrefix("job-1", "", started))
}

func TestDryingReportRejectsUnknownKind(t *testing.T) {
	job := &models.Job{ID: "job-2", Rooms: []models.Room{{ID: "r1", Name: "Hall", Length: 1, Width: 1, Height: 1}}}
	save := func(context.Context, string, string) error {
		t.Fatal("report must not be written")
		return nil
	}
	f := NewDryingReportWith(store.NewMemoryJobStore(job), nil, policy.Default(), "reports", save, testClock())

	_, err := f.Process(context.Background(), &models.DryingReportRequest{JobID: "job-2", DehumidifierKind: "turbo"})
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}
