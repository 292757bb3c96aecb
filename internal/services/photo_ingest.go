package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/restorationflow/internal/gcp"
	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/Lllllllleong/restorationflow/internal/store"
	"github.com/Lllllllleong/restorationflow/internal/workflow"
)

// GCSEvent is the payload of a storage object finalize event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// PhotoRef identifies the workflow step a photo object belongs to.
type PhotoRef struct {
	JobID  string
	Phase  models.Phase
	StepID string
	File   string
}

// ParsePhotoObject splits jobs/<jobId>/<phase>/<stepId>/<file>.
func ParsePhotoObject(name string) (PhotoRef, bool) {
	parts := strings.Split(name, "/")
	if len(parts) != 5 || parts[0] != "jobs" {
		return PhotoRef{}, false
	}
	for _, p := range parts[1:] {
		if p == "" {
			return PhotoRef{}, false
		}
	}
	return PhotoRef{JobID: parts[1], Phase: models.Phase(parts[2]), StepID: parts[3], File: parts[4]}, true
}

type PhotoIngestConfig struct {
	ProjectID      string
	CollectionName string
}

// PhotoIngestFunction records photos uploaded straight to the photo bucket
// against the step they document.
type PhotoIngestFunction struct {
	jobs    store.JobStore
	catalog workflow.Catalog
	now     func() time.Time
	config  PhotoIngestConfig
}

func NewPhotoIngest(ctx context.Context) (*PhotoIngestFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	config := PhotoIngestConfig{
		ProjectID:      projectID,
		CollectionName: gcp.GetEnv("FIRESTORE_COLLECTION", "jobs"),
	}
	_, catalog, err := loadRules()
	if err != nil {
		return nil, err
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	slog.Info("Photo ingest logic initialized.", "collection", config.CollectionName)
	f := NewPhotoIngestWith(gcp.NewFirestoreJobStore(firestoreClient, config.CollectionName), catalog, time.Now)
	f.config = config
	return f, nil
}

// NewPhotoIngestWith wires a PhotoIngestFunction from existing collaborators.
func NewPhotoIngestWith(jobs store.JobStore, catalog workflow.Catalog, now func() time.Time) *PhotoIngestFunction {
	return &PhotoIngestFunction{jobs: jobs, catalog: catalog, now: now}
}

// Process records the object as the photo result of its step. Objects
// outside the photo layout, unknown steps and deleted jobs are skipped
// without error so the event is not redelivered.
func (f *PhotoIngestFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	ref, ok := ParsePhotoObject(e.Name)
	if !ok {
		logCtx.Info("Object is not a step photo. Skipping.")
		return nil
	}
	logCtx = logCtx.With("jobId", ref.JobID, "phase", ref.Phase, "stepId", ref.StepID)
	def, ok := f.catalog.Phase(ref.Phase)
	if !ok {
		logCtx.Warn("Photo for unknown phase. Skipping.")
		return nil
	}
	if _, ok := def.Step(ref.StepID); !ok {
		logCtx.Warn("Photo for unknown step. Skipping.")
		return nil
	}

	result := models.PhotoResult{
		URL:        fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name),
		RecordedAt: f.now(),
	}
	update := []store.FieldUpdate{{
		Path:  []string{"workflowStates", string(ref.Phase), "photos", ref.StepID},
		Value: result,
	}}
	if err := f.jobs.Save(ctx, ref.JobID, update); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			logCtx.Warn("Job no longer exists. Skipping.")
			return nil
		}
		logCtx.Error("Failed to record photo on job", "error", err)
		return err
	}
	logCtx.Info("Photo recorded.", "url", result.URL)
	return nil
}
