// Package store defines the persistence and connectivity boundaries of the
// restoration core and an in-memory job store for tests and local runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Lllllllleong/restorationflow/internal/models"
)

// FieldUpdate sets the value at a field path of a job document. Paths are
// split into segments so map keys containing dots stay intact.
type FieldUpdate struct {
	Path  []string
	Value interface{}
}

// Key joins the path with dots for logging.
func (u FieldUpdate) Key() string {
	return strings.Join(u.Path, ".")
}

// JobStore loads and partially updates job documents. Save merges each
// update at its field path and leaves every other field alone.
type JobStore interface {
	Load(ctx context.Context, jobID string) (*models.Job, error)
	Save(ctx context.Context, jobID string, updates []FieldUpdate) error
	// Subscribe calls onChange with each new version of the job until the
	// returned cancel func is called or ctx ends.
	Subscribe(ctx context.Context, jobID string, onChange func(*models.Job)) (cancel func(), err error)
}

// PhotoStore uploads a photo and returns its durable URL. Location names the
// workflow step the photo documents, as "<phase>/<stepId>".
type PhotoStore interface {
	Upload(ctx context.Context, data []byte, jobID, location, category, actorID string) (string, error)
}

// NetworkMonitor reports connectivity of the device running a session.
type NetworkMonitor interface {
	Online() bool
	// Subscribe calls fn on every change. The returned func unsubscribes.
	Subscribe(fn func(online bool)) (cancel func())
}

// PhotoUploadError is returned by PhotoStore implementations. Transient
// failures are queued for a later retry; permanent ones are surfaced.
type PhotoUploadError struct {
	Location  string
	Transient bool
	Err       error
}

func (e *PhotoUploadError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s photo upload failure for %s: %v", kind, e.Location, e.Err)
}

func (e *PhotoUploadError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a PhotoUploadError marked transient.
func IsTransient(err error) bool {
	var pe *PhotoUploadError
	return errors.As(err, &pe) && pe.Transient
}

// PhotoLocation builds the location string used for a step photo.
func PhotoLocation(phase models.Phase, stepID string) string {
	return string(phase) + "/" + stepID
}
