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
	phaseCompleteInstance *services.PhaseCompleteFunction
	once                  sync.Once
	initErr               error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleCompletePhase", handleCompletePhase)
}

func main() {}

// handleCompletePhase checks readiness of a job's current phase and moves
// the job to the next phase.
func handleCompletePhase(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		phaseCompleteInstance, initErr = services.NewPhaseComplete(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: phase complete initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.PhaseCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := phaseCompleteInstance.Process(r.Context(), &req)
	if err != nil {
		http.Error(w, err.Error(), services.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err, "jobId", req.JobID)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
