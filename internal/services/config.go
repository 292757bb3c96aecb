package services

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Lllllllleong/restorationflow/internal/gcp"
	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/Lllllllleong/restorationflow/internal/policy"
	"github.com/Lllllllleong/restorationflow/internal/workflow"
)

// loadRules reads the policy and phase catalog named by POLICY_FILE and
// CATALOG_FILE, falling back to the built-in defaults when unset.
func loadRules() (policy.Policy, workflow.Catalog, error) {
	p := policy.Default()
	if path := gcp.GetEnv("POLICY_FILE", ""); path != "" {
		loaded, err := policy.Load(path)
		if err != nil {
			return policy.Policy{}, workflow.Catalog{}, fmt.Errorf("failed to load policy: %w", err)
		}
		p = loaded
	}
	c := workflow.DefaultCatalog()
	if path := gcp.GetEnv("CATALOG_FILE", ""); path != "" {
		loaded, err := workflow.LoadCatalogFile(path)
		if err != nil {
			return policy.Policy{}, workflow.Catalog{}, fmt.Errorf("failed to load phase catalog: %w", err)
		}
		c = loaded
	}
	return p, c, nil
}

// noAutoSave never fires. Request-scoped sessions flush explicitly.
func noAutoSave(time.Duration, func()) workflow.Timer {
	return stoppedTimer{}
}

type stoppedTimer struct{}

func (stoppedTimer) Stop() bool { return false }

// HTTPStatus maps a processing error to the status code a handler returns.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvariant):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
