package models

import (
	"slices"
	"time"
)

// MaterialStatus is the derived dryness state of a tracked material.
type MaterialStatus string

const (
	MaterialWet    MaterialStatus = "wet"
	MaterialDrying MaterialStatus = "drying"
	MaterialDry    MaterialStatus = "dry"
)

// Trend is the derived direction of the last two moisture readings.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendWorsening Trend = "worsening"
	TrendUnknown   Trend = "unknown"
)

// MoistureReadingEntry is one meter reading. Entries are never edited once
// appended to a record.
type MoistureReadingEntry struct {
	RecordedAt       time.Time `firestore:"recordedAt" json:"recordedAt"`
	MoisturePercent  float64   `firestore:"moisturePercent" json:"moisturePercent"`
	TemperatureF     *float64  `firestore:"temperatureF,omitempty" json:"temperatureF,omitempty"`
	RelativeHumidity *float64  `firestore:"relativeHumidity,omitempty" json:"relativeHumidity,omitempty"`
	PhotoURL         string    `firestore:"photoUrl,omitempty" json:"photoUrl,omitempty"`
	TechnicianID     string    `firestore:"technicianId,omitempty" json:"technicianId,omitempty"`
	Phase            Phase     `firestore:"phase,omitempty" json:"phase,omitempty"`
	Visit            int       `firestore:"visit,omitempty" json:"visit,omitempty"`
	Notes            string    `firestore:"notes,omitempty" json:"notes,omitempty"`
}

// MaterialTrackingRecord follows one material at one location across visits.
// DryStandard is fixed when the record is created; a correction produces a
// new record and links it through SupersededBy.
type MaterialTrackingRecord struct {
	ID           string                 `firestore:"id" json:"id"`
	RoomID       string                 `firestore:"roomId" json:"roomId"`
	MaterialType string                 `firestore:"materialType" json:"materialType"`
	Location     string                 `firestore:"location,omitempty" json:"location,omitempty"`
	DryStandard  float64                `firestore:"dryStandard" json:"dryStandard"`
	Readings     []MoistureReadingEntry `firestore:"readings" json:"readings"`
	Status       MaterialStatus         `firestore:"status" json:"status"`
	Trend        Trend                  `firestore:"trend" json:"trend"`
	SupersededBy string                 `firestore:"supersededBy,omitempty" json:"supersededBy,omitempty"`
	CreatedAt    time.Time              `firestore:"createdAt" json:"createdAt"`
}

// LastReading returns the most recent reading, if any.
func (m MaterialTrackingRecord) LastReading() (MoistureReadingEntry, bool) {
	if len(m.Readings) == 0 {
		return MoistureReadingEntry{}, false
	}
	return m.Readings[len(m.Readings)-1], true
}

// Clone returns a copy that shares no reading slice with m.
func (m MaterialTrackingRecord) Clone() MaterialTrackingRecord {
	out := m
	out.Readings = slices.Clone(m.Readings)
	return out
}
