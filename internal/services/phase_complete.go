package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/restorationflow/internal/gcp"
	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/Lllllllleong/restorationflow/internal/policy"
	"github.com/Lllllllleong/restorationflow/internal/store"
	"github.com/Lllllllleong/restorationflow/internal/workflow"
)

// Phase completion statuses.
const (
	StatusCompleted = "completed"
	StatusBlocked   = "blocked"
)

// WorkflowStarter starts the post-phase orchestration. *gcp.WorkflowTrigger
// satisfies it.
type WorkflowStarter interface {
	Trigger(ctx context.Context, payload interface{}) (string, error)
}

type PhaseCompleteConfig struct {
	ProjectID        string
	CollectionName   string
	WorkflowID       string
	WorkflowLocation string
}

// PhaseCompleteFunction evaluates readiness for a job's current phase and
// moves the job on when the phase is ready or completion is forced.
type PhaseCompleteFunction struct {
	jobs    store.JobStore
	trigger WorkflowStarter
	policy  policy.Policy
	catalog workflow.Catalog
	config  PhaseCompleteConfig
}

// NewPhaseComplete creates a PhaseCompleteFunction from the environment.
// The post-phase workflow is optional; without WORKFLOW_ID no execution is
// started.
func NewPhaseComplete(ctx context.Context) (*PhaseCompleteFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	config := PhaseCompleteConfig{
		ProjectID:        projectID,
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "jobs"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
	}
	p, catalog, err := loadRules()
	if err != nil {
		return nil, err
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	f := &PhaseCompleteFunction{
		jobs:    gcp.NewFirestoreJobStore(firestoreClient, config.CollectionName),
		policy:  p,
		catalog: catalog,
		config:  config,
	}
	if config.WorkflowID != "" {
		trigger, err := gcp.NewWorkflowTrigger(ctx, config.ProjectID, config.WorkflowLocation, config.WorkflowID)
		if err != nil {
			return nil, err
		}
		f.trigger = trigger
	}
	slog.Info("Phase complete logic initialized.", "collection", config.CollectionName, "workflowId", config.WorkflowID)
	return f, nil
}

// NewPhaseCompleteWith wires a PhaseCompleteFunction from existing
// collaborators. trigger may be nil.
func NewPhaseCompleteWith(jobs store.JobStore, trigger WorkflowStarter, p policy.Policy, catalog workflow.Catalog) *PhaseCompleteFunction {
	return &PhaseCompleteFunction{jobs: jobs, trigger: trigger, policy: p, catalog: catalog}
}

// Process completes req.Phase. A phase with open warnings is reported as
// blocked without error unless req.Force is set.
func (f *PhaseCompleteFunction) Process(ctx context.Context, req *models.PhaseCompleteRequest) (*models.PhaseCompleteResponse, error) {
	logCtx := slog.With("jobId", req.JobID, "phase", req.Phase, "actorId", req.ActorID)
	logCtx.Info("Starting phase completion.", "force", req.Force)

	if req.JobID == "" {
		return nil, models.NewValidationError("jobId", "job id is required")
	}
	if !req.Phase.Valid() {
		return nil, models.NewValidationError("phase", "unknown phase %q", req.Phase)
	}

	session, err := OpenSession(ctx, req.JobID, f.jobs, nil, nil, SessionConfig{
		Policy:    f.policy,
		Catalog:   f.catalog,
		ActorID:   req.ActorID,
		AfterFunc: noAutoSave,
	})
	if err != nil {
		logCtx.Error("Failed to open job", "error", err)
		return nil, err
	}
	defer session.Close()

	if current := session.CurrentPhase(); current != req.Phase {
		return nil, models.NewValidationError("phase", "job is in phase %s, not %s", current, req.Phase)
	}
	if _, err := session.StartPhase(req.Phase); err != nil {
		return nil, err
	}

	readiness, next, err := session.CompletePhase(req.Force)
	resp := &models.PhaseCompleteResponse{
		Phase:     req.Phase,
		NextPhase: next,
		Ready:     readiness.Ready,
		Warnings:  readiness.Warnings,
	}
	var blocked *models.InvariantViolation
	if errors.As(err, &blocked) && !readiness.Ready {
		logCtx.Info("Phase not ready; completion blocked.", "warnings", len(readiness.Warnings))
		resp.Status = StatusBlocked
		return resp, nil
	}
	if err != nil {
		return nil, f.handleError(ctx, logCtx, req.JobID, "failed to complete phase", err)
	}

	if err := session.Flush(ctx); err != nil {
		return nil, f.handleError(ctx, logCtx, req.JobID, "failed to save completed phase", err)
	}
	resp.Status = StatusCompleted

	if f.trigger != nil {
		name, err := f.trigger.Trigger(ctx, models.PostPhaseWorkflowArgs{
			JobID:          req.JobID,
			CompletedPhase: req.Phase,
			NextPhase:      next,
			ActorID:        req.ActorID,
		})
		if err != nil {
			return nil, f.handleError(ctx, logCtx, req.JobID, "failed to trigger post-phase workflow", err)
		}
		resp.ExecutionName = name
	}
	logCtx.Info("Phase completion finished.", "nextPhase", next, "executionName", resp.ExecutionName)
	return resp, nil
}

// handleError logs the failure and records it on the job so the field app
// can surface it.
func (f *PhaseCompleteFunction) handleError(ctx context.Context, logCtx *slog.Logger, jobID, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	update := []store.FieldUpdate{{Path: []string{"lastError"}, Value: fullError}}
	if err := f.jobs.Save(ctx, jobID, update); err != nil {
		logCtx.Error("CRITICAL: Failed to record error on job after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}
