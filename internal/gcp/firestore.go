package gcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/Lllllllleong/restorationflow/internal/store"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreJobStore persists jobs as documents in one collection.
type FirestoreJobStore struct {
	client     *firestore.Client
	collection string
}

var _ store.JobStore = (*FirestoreJobStore)(nil)

// NewFirestoreJobStore wraps client for the named collection.
func NewFirestoreJobStore(client *firestore.Client, collection string) *FirestoreJobStore {
	return &FirestoreJobStore{client: client, collection: collection}
}

func (s *FirestoreJobStore) doc(jobID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(jobID)
}

// Load reads the job document. A missing document is a NotFoundError.
func (s *FirestoreJobStore) Load(ctx context.Context, jobID string) (*models.Job, error) {
	snap, err := s.doc(jobID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, &models.NotFoundError{Kind: "job", ID: jobID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", jobID, err)
	}
	return decodeJob(snap)
}

// Save applies the updates as one Firestore update call, so the write is
// atomic and fields outside the given paths are preserved.
func (s *FirestoreJobStore) Save(ctx context.Context, jobID string, updates []store.FieldUpdate) error {
	fsUpdates := make([]firestore.Update, 0, len(updates)+1)
	for _, u := range updates {
		fsUpdates = append(fsUpdates, firestore.Update{FieldPath: firestore.FieldPath(u.Path), Value: u.Value})
	}
	fsUpdates = append(fsUpdates, firestore.Update{Path: "updatedAt", Value: firestore.ServerTimestamp})

	_, err := s.doc(jobID).Update(ctx, fsUpdates)
	if status.Code(err) == codes.NotFound {
		return &models.NotFoundError{Kind: "job", ID: jobID}
	}
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	return nil
}

// Subscribe listens to document snapshots on a background goroutine.
// Deleted documents are skipped; the listener ends on cancel or ctx end.
func (s *FirestoreJobStore) Subscribe(ctx context.Context, jobID string, onChange func(*models.Job)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.doc(jobID).Snapshots(ctx)
	logCtx := slog.With("jobId", jobID, "collection", s.collection)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled || ctx.Err() != nil {
					return
				}
				logCtx.Error("Job snapshot listener failed.", "error", err)
				return
			}
			if !snap.Exists() {
				continue
			}
			job, err := decodeJob(snap)
			if err != nil {
				logCtx.Warn("Skipping undecodable job snapshot.", "error", err)
				continue
			}
			onChange(job)
		}
	}()
	return cancel, nil
}

func decodeJob(snap *firestore.DocumentSnapshot) (*models.Job, error) {
	var job models.Job
	if err := snap.DataTo(&job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", snap.Ref.ID, err)
	}
	job.ID = snap.Ref.ID
	return &job, nil
}
