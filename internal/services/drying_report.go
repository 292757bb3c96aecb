package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/restorationflow/internal/gcp"
	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/Lllllllleong/restorationflow/internal/policy"
	"github.com/Lllllllleong/restorationflow/internal/store"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"golang.org/x/sync/errgroup"
)

// Narrator turns a drying log into prose. *gcp.VertexClient satisfies it.
type Narrator interface {
	Narrate(ctx context.Context, dryingLog string) (string, error)
}

type DryingReportConfig struct {
	ProjectID      string
	CollectionName string
	VertexAIRegion string
	PhotoBucket    string
	ReportBucket   string
}

// SaveReportFunc writes report content to an object in the report bucket.
type SaveReportFunc func(ctx context.Context, objectName, content string) error

// DryingReportFunction writes the drying report of a job and a PDF
// appendix of its step photos to the report bucket. Each run writes under
// its own prefix so earlier reports are never overwritten or reused.
type DryingReportFunction struct {
	storageClient *storage.Client
	jobs          store.JobStore
	narrator      Narrator
	policy        policy.Policy
	saveReport    SaveReportFunc
	now           func() time.Time
	config        DryingReportConfig
}

// NewDryingReport creates a new DryingReportFunction instance.
func NewDryingReport(ctx context.Context) (*DryingReportFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	config := DryingReportConfig{
		ProjectID:      projectID,
		CollectionName: gcp.GetEnv("FIRESTORE_COLLECTION", "jobs"),
		VertexAIRegion: gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		PhotoBucket:    gcp.GetEnv("PHOTO_BUCKET", ""),
		ReportBucket:   gcp.GetEnv("REPORT_BUCKET", ""),
	}
	if config.ReportBucket == "" {
		return nil, fmt.Errorf("REPORT_BUCKET must be set")
	}
	p, _, err := loadRules()
	if err != nil {
		return nil, err
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	reportBucket := storageClient.Bucket(config.ReportBucket)
	return &DryingReportFunction{
		storageClient: storageClient,
		jobs:          gcp.NewFirestoreJobStore(firestoreClient, config.CollectionName),
		narrator:      vertexClient,
		policy:        p,
		saveReport: func(ctx context.Context, objectName, content string) error {
			return gcp.SaveToGCSAtomically(ctx, reportBucket, objectName, content)
		},
		now:    time.Now,
		config: config,
	}, nil
}

// NewDryingReportWith wires a DryingReportFunction without GCS. No photo
// appendix is built.
func NewDryingReportWith(jobs store.JobStore, narrator Narrator, p policy.Policy, reportBucket string, save SaveReportFunc, now func() time.Time) *DryingReportFunction {
	return &DryingReportFunction{
		jobs:       jobs,
		narrator:   narrator,
		policy:     p,
		saveReport: save,
		now:        now,
		config:     DryingReportConfig{ReportBucket: reportBucket},
	}
}

// ReportPrefix returns the object prefix for one report run. Runs of the
// same workflow execution share a prefix; runs without one are keyed by
// their UTC start time.
func ReportPrefix(jobID, executionID string, started time.Time) string {
	run := executionID
	if i := strings.LastIndex(run, "/"); i >= 0 {
		run = run[i+1:]
	}
	if run == "" {
		run = started.UTC().Format("20060102T150405.000Z")
	}
	return path.Join(jobID, "reports", run)
}

// Process builds the report for req.JobID. A failed narrative does not fail
// the report; the deterministic log is always written.
func (f *DryingReportFunction) Process(ctx context.Context, req *models.DryingReportRequest) (*models.DryingReportResponse, error) {
	logCtx := slog.With("jobId", req.JobID, "executionId", req.ExecutionID)
	logCtx.Info("Starting drying report.")

	kind := req.DehumidifierKind
	if kind == "" {
		kind = policy.DehuLGR
	}
	job, err := f.jobs.Load(ctx, req.JobID)
	if err != nil {
		logCtx.Error("Failed to load job", "error", err)
		return nil, err
	}
	dryingLog, err := BuildDryingLog(f.policy, job, kind)
	if err != nil {
		logCtx.Error("Failed to build drying log", "error", err)
		return nil, err
	}

	content := ComposeReport(ctx, logCtx, f.narrator, dryingLog)
	prefix := ReportPrefix(req.JobID, req.ExecutionID, f.now())
	objectName := prefix + "/drying-report.md"
	if err := f.saveReport(ctx, objectName, content); err != nil {
		logCtx.Error("Failed to save drying report to GCS", "error", err, "bucket", f.config.ReportBucket, "object", objectName)
		return nil, err
	}

	resp := &models.DryingReportResponse{
		Status:       "success",
		ReportGCSUri: fmt.Sprintf("gs://%s/%s", f.config.ReportBucket, objectName),
		AllDry:       dryingLog.AllDry,
		WarningCount: len(dryingLog.Warnings),
	}
	if f.config.PhotoBucket != "" && f.storageClient != nil {
		uri, pages, err := f.buildPhotoAppendix(ctx, logCtx, req.JobID, prefix)
		if err != nil {
			logCtx.Error("Failed to build photo appendix", "error", err)
			return nil, err
		}
		resp.AppendixGCSUri, resp.AppendixPages = uri, pages
	}
	logCtx.Info("Drying report complete.", "reportGcsUri", resp.ReportGCSUri, "appendixPages", resp.AppendixPages)
	return resp, nil
}

// ComposeReport appends the model narrative to the drying log.
func ComposeReport(ctx context.Context, logCtx *slog.Logger, narrator Narrator, dryingLog DryingLog) string {
	var b strings.Builder
	b.WriteString(dryingLog.Markdown)
	b.WriteString("\n## Narrative\n\n")
	if narrator == nil {
		b.WriteString("_Narrative not generated._\n")
		return b.String()
	}
	narrative, err := narrator.Narrate(ctx, dryingLog.Markdown)
	if err != nil || strings.TrimSpace(narrative) == "" {
		logCtx.Warn("Narrative unavailable; writing report without it.", "error", err)
		b.WriteString("_Narrative not generated._\n")
		return b.String()
	}
	b.WriteString(narrative)
	b.WriteString("\n")
	return b.String()
}

// buildPhotoAppendix downloads the job's step photos and imports them one
// per page into a PDF in the report bucket. Jobs without photos get no
// appendix.
func (f *DryingReportFunction) buildPhotoAppendix(ctx context.Context, logCtx *slog.Logger, jobID, prefix string) (string, int, error) {
	photoBucket := f.storageClient.Bucket(f.config.PhotoBucket)
	names, err := gcp.ListObjects(ctx, photoBucket, path.Join("jobs", jobID)+"/")
	if err != nil {
		return "", 0, err
	}
	names = imageObjects(names)
	if len(names) == 0 {
		logCtx.Info("No photos found; skipping appendix.")
		return "", 0, nil
	}

	tempDir, err := os.MkdirTemp("", "drying-report-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	local := make([]string, len(names))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(8)
	for i, name := range names {
		local[i] = filepath.Join(tempDir, fmt.Sprintf("%05d%s", i, path.Ext(name)))
		eg.Go(func() error {
			return gcp.DownloadObject(gctx, photoBucket, name, local[i])
		})
	}
	if err := eg.Wait(); err != nil {
		return "", 0, fmt.Errorf("one or more photos failed to download: %w", err)
	}

	appendixPath := filepath.Join(tempDir, "photo-appendix.pdf")
	pages, err := renderAppendix(local, appendixPath)
	if err != nil {
		return "", 0, err
	}
	objectName := prefix + "/photo-appendix.pdf"
	if err := gcp.UploadFile(ctx, f.storageClient.Bucket(f.config.ReportBucket), appendixPath, objectName, "application/pdf"); err != nil {
		return "", 0, err
	}
	return fmt.Sprintf("gs://%s/%s", f.config.ReportBucket, objectName), pages, nil
}

func renderAppendix(images []string, outPath string) (int, error) {
	if err := api.ImportImagesFile(images, outPath, pdfcpu.DefaultImportConfig(), nil); err != nil {
		return 0, fmt.Errorf("failed to import photos into PDF: %w", err)
	}
	pages, err := api.PageCountFile(outPath)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return pages, nil
}

// imageObjects keeps the objects pdfcpu can import.
func imageObjects(names []string) []string {
	var out []string
	for _, n := range names {
		switch strings.ToLower(path.Ext(n)) {
		case ".jpg", ".jpeg", ".png", ".webp", ".tif", ".tiff":
			out = append(out, n)
		}
	}
	return out
}
