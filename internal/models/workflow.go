package models

import (
	"maps"
	"slices"
	"time"
)

// PhotoResult resolves the photo requirement of a step. A step whose photo
// is required cannot be left until either URL is set or Skipped is true.
type PhotoResult struct {
	URL        string    `firestore:"url,omitempty" json:"url,omitempty"`
	Skipped    bool      `firestore:"skipped,omitempty" json:"skipped,omitempty"`
	SkipReason string    `firestore:"skipReason,omitempty" json:"skipReason,omitempty"`
	RecordedAt time.Time `firestore:"recordedAt" json:"recordedAt"`
}

// Resolved reports whether the photo was uploaded or explicitly skipped.
func (p PhotoResult) Resolved() bool {
	return p.URL != "" || p.Skipped
}

// WorkflowPhaseState is the step pointer and accumulated data of one phase.
// CurrentStep is always a valid index into Steps.
type WorkflowPhaseState struct {
	Phase       Phase                  `firestore:"phase" json:"phase"`
	Steps       []string               `firestore:"steps" json:"steps"`
	CurrentStep int                    `firestore:"currentStep" json:"currentStep"`
	Data        map[string]interface{} `firestore:"data" json:"data"`
	Photos      map[string]PhotoResult `firestore:"photos,omitempty" json:"photos,omitempty"`
	StartedBy   string                 `firestore:"startedBy,omitempty" json:"startedBy,omitempty"`
	StartedAt   time.Time              `firestore:"startedAt" json:"startedAt"`
	UpdatedAt   time.Time              `firestore:"updatedAt" json:"updatedAt"`
	CompletedAt *time.Time             `firestore:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// CurrentStepID returns the identifier at the step pointer.
func (s WorkflowPhaseState) CurrentStepID() string {
	if s.CurrentStep < 0 || s.CurrentStep >= len(s.Steps) {
		return ""
	}
	return s.Steps[s.CurrentStep]
}

// Clone returns a copy with its own step list, top-level data map and photo
// map. Nested values in Data are shared.
func (s WorkflowPhaseState) Clone() WorkflowPhaseState {
	out := s
	out.Steps = slices.Clone(s.Steps)
	out.Data = maps.Clone(s.Data)
	if out.Data == nil {
		out.Data = map[string]interface{}{}
	}
	out.Photos = maps.Clone(s.Photos)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
