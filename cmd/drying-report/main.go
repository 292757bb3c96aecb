package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/Lllllllleong/restorationflow/internal/services"
)

var (
	dryingReportInstance *services.DryingReportFunction
	once                 sync.Once
	initErr              error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleDryingReport", handleDryingReport)
}

func main() {}

func handleDryingReport(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		dryingReportInstance, initErr = services.NewDryingReport(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: drying report initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.DryingReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := dryingReportInstance.Process(r.Context(), &req)
	if err != nil {
		// Process has already logged the failure with job context.
		http.Error(w, err.Error(), services.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error(
			"Failed to write response",
			"error", err,
			"jobId", req.JobID,
			"executionId", req.ExecutionID,
		)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
