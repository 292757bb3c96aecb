package workflow

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/restorationflow/internal/models"
)

// Signals are facts derived by the moisture tracker and chamber assigner
// that bear on whether a phase can be left.
type Signals struct {
	// UnassignedAffectedRooms names affected rooms with no drying chamber.
	UnassignedAffectedRooms []string
	// WetMaterials names tracked materials that are not dry yet.
	WetMaterials []string
	// DamageClassMissing is set when no room has a damage class.
	DamageClassMissing bool
}

// Readiness reports whether the active phase looks complete. It never
// blocks navigation; the caller decides whether to allow exit.
type Readiness struct {
	Phase           models.Phase                     `json:"phase"`
	Ready           bool                             `json:"ready"`
	AtLastStep      bool                             `json:"atLastStep"`
	ProgressPercent int                              `json:"progressPercent"`
	IncompleteSteps []string                         `json:"incompleteSteps,omitempty"`
	PendingPhotos   []string                         `json:"pendingPhotos,omitempty"`
	Warnings        []*models.DataConsistencyWarning `json:"warnings,omitempty"`
}

// Readiness evaluates the active phase against its step definitions and the
// supplied signals.
func (c *Controller) Readiness(sig Signals) (Readiness, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, err := c.activeLocked()
	if err != nil {
		return Readiness{}, err
	}
	def, _ := c.catalog.Phase(st.Phase)

	r := Readiness{
		Phase:           st.Phase,
		AtLastStep:      st.CurrentStep == len(st.Steps)-1,
		ProgressPercent: progress(st.CurrentStep, len(st.Steps)),
	}
	warn := func(code, msg, subject string) {
		r.Warnings = append(r.Warnings, &models.DataConsistencyWarning{Code: code, Message: msg, Subject: subject})
	}

	if !r.AtLastStep {
		warn(models.WarnNotAtLastStep, fmt.Sprintf("phase is at step %d of %d", st.CurrentStep+1, len(st.Steps)), st.CurrentStepID())
	}
	for _, step := range def.Steps {
		if step.Required && !stepComplete(step, st.Data) {
			r.IncompleteSteps = append(r.IncompleteSteps, step.ID)
			warn(models.WarnRequiredStepIncomplete, "required step has no saved data", step.ID)
		}
		if step.RequiresPhoto && !st.Photos[step.ID].Resolved() {
			r.PendingPhotos = append(r.PendingPhotos, step.ID)
			warn(models.WarnRequiredPhotoPending, "step requires a photo or an explicit skip", step.ID)
		}
	}
	for _, room := range sig.UnassignedAffectedRooms {
		warn(models.WarnUnassignedAffectedRoom, "affected room is not assigned to a drying chamber", room)
	}
	for _, m := range sig.WetMaterials {
		warn(models.WarnMaterialNotDry, "material has not reached its dry standard", m)
	}
	if sig.DamageClassMissing {
		warn(models.WarnNoDamageClass, "no room has a damage class; equipment cannot be sized", "")
	}
	r.Ready = len(r.Warnings) == 0
	return r, nil
}

// stepComplete reports whether a step has saved data and every required
// field inside it is non-empty.
func stepComplete(step StepDefinition, data map[string]interface{}) bool {
	v, ok := data[step.ID]
	if !ok || isEmpty(v) {
		return false
	}
	if len(step.RequiredFields) == 0 {
		return true
	}
	fields, ok := v.(map[string]interface{})
	if !ok {
		return false
	}
	for _, f := range step.RequiredFields {
		if isEmpty(fields[f]) {
			return false
		}
	}
	return true
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}
