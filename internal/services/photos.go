package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/Lllllllleong/restorationflow/internal/store"
	"golang.org/x/sync/errgroup"
)

// QueuedPhoto is a step photo waiting for connectivity or for a transient
// upload failure to clear.
type QueuedPhoto struct {
	ID       string
	Phase    models.Phase
	StepID   string
	Category string
	Data     []byte
	QueuedAt time.Time
	Attempts int
}

// PhotoOutcome reports what happened to an attached photo.
type PhotoOutcome struct {
	URL    string
	Queued bool
}

// AttachPhoto uploads a photo for a step of a started phase and resolves
// the step's photo requirement with its URL. Offline, or on a transient
// upload failure, the photo is queued instead and the step stays unresolved
// until the queue drains.
func (s *Session) AttachPhoto(ctx context.Context, phase models.Phase, stepID, category string, data []byte) (PhotoOutcome, error) {
	if len(data) == 0 {
		return PhotoOutcome{}, models.NewValidationError("data", "photo is empty")
	}
	if err := s.checkPhotoStep(phase, stepID); err != nil {
		return PhotoOutcome{}, err
	}
	q := QueuedPhoto{
		ID:       s.cfg.NewID(),
		Phase:    phase,
		StepID:   stepID,
		Category: category,
		Data:     data,
		QueuedAt: s.cfg.Now(),
	}
	if !s.online() {
		s.enqueue(q)
		s.logger.Info("Offline; photo queued.", "phase", phase, "stepId", stepID, "photoId", q.ID)
		return PhotoOutcome{Queued: true}, nil
	}

	url, err := s.upload(ctx, &q)
	if err != nil {
		if store.IsTransient(err) {
			s.enqueue(q)
			s.logger.Warn("Photo upload failed; queued for retry.", "phase", phase, "stepId", stepID, "error", err)
			return PhotoOutcome{Queued: true}, nil
		}
		return PhotoOutcome{}, err
	}
	return PhotoOutcome{URL: url}, nil
}

// SkipPhoto resolves a step's photo requirement without a photo. A reason
// is required.
func (s *Session) SkipPhoto(phase models.Phase, stepID, reason string) (models.WorkflowPhaseState, error) {
	if strings.TrimSpace(reason) == "" {
		return models.WorkflowPhaseState{}, models.NewValidationError("skipReason", "a reason is required to skip a photo")
	}
	return s.controller.RecordPhotoResult(phase, stepID, models.PhotoResult{Skipped: true, SkipReason: reason})
}

// QueuedPhotos returns how many photos are waiting to upload.
func (s *Session) QueuedPhotos() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// DrainPhotoQueue uploads every queued photo concurrently. Photos that fail
// transiently go back on the queue; permanent failures are dropped and
// returned joined.
func (s *Session) DrainPhotoQueue(ctx context.Context) error {
	s.mu.Lock()
	batch := s.queue
	s.queue = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	logCtx := s.logger.With("queued", len(batch))
	logCtx.Info("Draining photo queue.")

	var (
		mu       sync.Mutex
		requeue  []QueuedPhoto
		failures []error
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.PhotoWorkers)
	for i := range batch {
		q := batch[i]
		eg.Go(func() error {
			_, err := s.upload(gctx, &q)
			if err == nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if store.IsTransient(err) {
				requeue = append(requeue, q)
			} else {
				failures = append(failures, fmt.Errorf("photo %s for %s: %w", q.ID, store.PhotoLocation(q.Phase, q.StepID), err))
			}
			return nil
		})
	}
	_ = eg.Wait()

	if len(requeue) > 0 {
		s.mu.Lock()
		s.queue = append(requeue, s.queue...)
		s.mu.Unlock()
	}
	logCtx.Info("Photo queue drained.", "uploaded", len(batch)-len(requeue)-len(failures), "requeued", len(requeue), "failed", len(failures))
	return errors.Join(failures...)
}

func (s *Session) upload(ctx context.Context, q *QueuedPhoto) (string, error) {
	location := store.PhotoLocation(q.Phase, q.StepID)
	if s.photos == nil {
		return "", &store.PhotoUploadError{Location: location, Transient: true, Err: errors.New("no photo store configured")}
	}
	q.Attempts++
	url, err := s.photos.Upload(ctx, q.Data, s.jobID, location, q.Category, s.cfg.ActorID)
	if err != nil {
		return "", err
	}
	if _, err := s.controller.RecordPhotoResult(q.Phase, q.StepID, models.PhotoResult{URL: url}); err != nil {
		return "", fmt.Errorf("photo uploaded to %s but not recorded: %w", url, err)
	}
	return url, nil
}

func (s *Session) checkPhotoStep(phase models.Phase, stepID string) error {
	st, ok := s.controller.StateOf(phase)
	if !ok {
		return models.NewValidationError("phase", "phase %q has not been started", phase)
	}
	for _, id := range st.Steps {
		if id == stepID {
			return nil
		}
	}
	return models.NewValidationError("stepId", "phase %s has no step %q", phase, stepID)
}

func (s *Session) enqueue(q QueuedPhoto) {
	s.mu.Lock()
	s.queue = append(s.queue, q)
	s.mu.Unlock()
}

func (s *Session) online() bool {
	return s.network == nil || s.network.Online()
}

// onNetwork drains the photo queue when connectivity returns.
func (s *Session) onNetwork(online bool) {
	if !online {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.DrainPhotoQueue(ctx); err != nil {
			s.logger.Error("Photo uploads failed after reconnect.", "error", err)
		}
	}()
}
