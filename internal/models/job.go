package models

import "time"

// Phase names one of the four field documentation stages of a job.
type Phase string

const (
	PhaseInstall      Phase = "install"
	PhaseDemo         Phase = "demo"
	PhaseCheckService Phase = "check-service"
	PhasePull         Phase = "pull"
)

// Phases lists every phase in the order a job moves through them.
var Phases = []Phase{PhaseInstall, PhaseDemo, PhaseCheckService, PhasePull}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Next returns the phase that follows p. The second value is false for the
// pull phase, which has no successor.
func (p Phase) Next() (Phase, bool) {
	for i, known := range Phases {
		if p == known && i+1 < len(Phases) {
			return Phases[i+1], true
		}
	}
	return "", false
}

// Job is the persisted record for one restoration job in Firestore. The core
// never creates or deletes jobs; it only mutates workflow states, rooms,
// chambers and material tracking records. Each phase's data blob is the Data
// map of its workflow state.
type Job struct {
	ID             string                        `firestore:"-" json:"id"`
	Customer       map[string]interface{}        `firestore:"customer,omitempty" json:"customer,omitempty"`
	CurrentPhase   Phase                         `firestore:"currentPhase,omitempty" json:"currentPhase,omitempty"`
	WorkflowStates map[string]WorkflowPhaseState `firestore:"workflowStates,omitempty" json:"workflowStates,omitempty"`
	Rooms          []Room                        `firestore:"rooms,omitempty" json:"rooms,omitempty"`
	Chambers       []DryingChamber               `firestore:"chambers,omitempty" json:"chambers,omitempty"`
	Materials      []MaterialTrackingRecord      `firestore:"materials,omitempty" json:"materials,omitempty"`
	LastError      string                        `firestore:"lastError,omitempty" json:"lastError,omitempty"`
	CreatedAt      time.Time                     `firestore:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt      time.Time                     `firestore:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Room looks up a room by id.
func (j *Job) Room(id string) (Room, bool) {
	for _, r := range j.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return Room{}, false
}
