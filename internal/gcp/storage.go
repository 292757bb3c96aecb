package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/restorationflow/internal/store"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
// An existing object is not a failure; report generation is idempotent per job.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, content string) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := io.Copy(writer, strings.NewReader(content)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("Object already exists, skipping write.", "object", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// GCSPhotoStore uploads step photos under jobs/<jobId>/<phase>/<stepId>/.
type GCSPhotoStore struct {
	bucket     *storage.BucketHandle
	bucketName string
	maxRetries int
	backoff    time.Duration
	newID      func() string
}

var _ store.PhotoStore = (*GCSPhotoStore)(nil)

// NewGCSPhotoStore uploads into bucketName.
func NewGCSPhotoStore(client *storage.Client, bucketName string) *GCSPhotoStore {
	return &GCSPhotoStore{
		bucket:     client.Bucket(bucketName),
		bucketName: bucketName,
		maxRetries: 4,
		backoff:    time.Second,
		newID:      uuid.NewString,
	}
}

// PhotoObjectName is the object path a step photo is written to.
func PhotoObjectName(jobID, location, fileName string) string {
	return path.Join("jobs", jobID, location, fileName)
}

// Upload writes data with a content type sniffed from its first bytes and
// retries transient failures with exponential backoff. The returned error is
// always a *store.PhotoUploadError.
func (s *GCSPhotoStore) Upload(ctx context.Context, data []byte, jobID, location, category, actorID string) (string, error) {
	contentType := http.DetectContentType(data)
	objectName := PhotoObjectName(jobID, location, s.newID()+photoExt(contentType))
	logCtx := slog.With("jobId", jobID, "gcsObject", objectName)

	backoff := s.backoff
	var lastErr error
	for i := 0; i < s.maxRetries; i++ {
		err := s.write(ctx, objectName, data, contentType, map[string]string{
			"jobId":    jobID,
			"category": category,
			"actorId":  actorID,
		})
		if err == nil {
			return fmt.Sprintf("gs://%s/%s", s.bucketName, objectName), nil
		}
		lastErr = err
		if !transientStorageError(err) {
			logCtx.Error("Photo upload failed permanently.", "error", err)
			return "", &store.PhotoUploadError{Location: location, Err: err}
		}
		logCtx.Warn("Photo upload failed, will retry.", "attempt", i+1, "maxRetries", s.maxRetries, "backoff", backoff.String(), "error", err)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return "", &store.PhotoUploadError{Location: location, Transient: true, Err: ctx.Err()}
		}
	}
	logCtx.Error("Photo upload failed after all retries.", "error", lastErr)
	return "", &store.PhotoUploadError{Location: location, Transient: true, Err: lastErr}
}

func (s *GCSPhotoStore) write(ctx context.Context, objectName string, data []byte, contentType string, metadata map[string]string) error {
	writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
	defer cancel()

	w := s.bucket.Object(objectName).NewWriter(writeCtx)
	w.ContentType = contentType
	w.Metadata = metadata
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write to GCS failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
	}
	return nil
}

// transientStorageError treats throttling, server errors and timeouts as
// retryable.
func transientStorageError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	return false
}

func photoExt(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}

// ListObjects returns the names of every object under prefix.
func ListObjects(ctx context.Context, bucket *storage.BucketHandle, prefix string) ([]string, error) {
	var names []string
	it := bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		names = append(names, attrs.Name)
	}
}

// DownloadObject streams an object to destPath.
func DownloadObject(ctx context.Context, bucket *storage.BucketHandle, object, destPath string) error {
	r, err := bucket.Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for %s: %w", object, err)
	}
	defer r.Close()
	return writeLocalFile(r, destPath)
}

// writeLocalFile copies r into a new file at destPath. The file's Close
// error is returned since it can report a failed write.
func writeLocalFile(r io.Reader, destPath string) (err error) {
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create local file at %s: %w", destPath, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close local file %s: %w", destPath, cerr)
		}
	}()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return nil
}

func UploadFile(ctx context.Context, bucket *storage.BucketHandle, localPath, object, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("could not open local file %s: %w", localPath, err)
	}
	defer f.Close()
	w := bucket.Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("io.Copy to GCS failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
	}
	return nil
}
