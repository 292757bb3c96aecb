// Package moisture tracks per-material dry standards and reading histories
// and derives dryness status and drying trend from them.
package moisture

import (
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/Lllllllleong/restorationflow/internal/policy"
	"github.com/google/uuid"
)

// Tracker owns the material tracking records of one job. It performs no I/O;
// callers persist Records() after mutating.
type Tracker struct {
	policy  policy.Policy
	rooms   map[string]struct{}
	records []models.MaterialTrackingRecord
	index   map[string]int
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now for reading and record timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDGenerator replaces the random record id generator.
func WithIDGenerator(newID func() string) Option {
	return func(t *Tracker) { t.newID = newID }
}

// WithLogger sets the logger used for record lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker builds a tracker over the job's rooms and any records already
// persisted for it. Derived status and trend are recomputed on load.
func NewTracker(p policy.Policy, rooms []models.Room, records []models.MaterialTrackingRecord, opts ...Option) *Tracker {
	t := &Tracker{
		policy: p,
		rooms:  make(map[string]struct{}, len(rooms)),
		index:  make(map[string]int, len(records)),
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	for _, r := range rooms {
		t.rooms[r.ID] = struct{}{}
	}
	for _, rec := range records {
		rec = rec.Clone()
		rec.Status, rec.Trend = Evaluate(p, rec)
		t.index[rec.ID] = len(t.records)
		t.records = append(t.records, rec)
	}
	return t
}

// AddRoom makes a room known to the tracker so materials can be registered
// against it.
func (t *Tracker) AddRoom(roomID string) {
	t.rooms[roomID] = struct{}{}
}

// RegisterMaterial creates a tracking record whose first reading is initial.
// The initial reading is the first wet reading of the material.
func (t *Tracker) RegisterMaterial(roomID, materialType, location string, dryStandardPercent float64, initial models.MoistureReadingEntry) (models.MaterialTrackingRecord, error) {
	if dryStandardPercent < 0 {
		return models.MaterialTrackingRecord{}, models.NewValidationError("dryStandard", "must not be negative, got %v", dryStandardPercent)
	}
	if _, ok := t.rooms[roomID]; !ok {
		return models.MaterialTrackingRecord{}, models.NewValidationError("roomId", "room %q does not exist", roomID)
	}
	if strings.TrimSpace(materialType) == "" {
		return models.MaterialTrackingRecord{}, models.NewValidationError("materialType", "material type is required")
	}
	if initial.MoisturePercent < 0 {
		return models.MaterialTrackingRecord{}, models.NewValidationError("moisturePercent", "must not be negative, got %v", initial.MoisturePercent)
	}

	now := t.now()
	if initial.RecordedAt.IsZero() {
		initial.RecordedAt = now
	}
	rec := models.MaterialTrackingRecord{
		ID:           t.newID(),
		RoomID:       roomID,
		MaterialType: strings.TrimSpace(materialType),
		Location:     location,
		DryStandard:  dryStandardPercent,
		Readings:     []models.MoistureReadingEntry{initial},
		CreatedAt:    now,
	}
	rec.Status, rec.Trend = Evaluate(t.policy, rec)

	t.index[rec.ID] = len(t.records)
	t.records = append(t.records, rec)
	t.logger.Debug("Material registered.", "materialId", rec.ID, "roomId", roomID, "materialType", rec.MaterialType, "dryStandard", dryStandardPercent)
	return rec.Clone(), nil
}

// AppendReading adds a reading to the end of a record's history and
// recomputes its status and trend. Readings older than the latest one are
// rejected so the history stays ordered by recording time.
func (t *Tracker) AppendReading(materialID string, reading models.MoistureReadingEntry) (models.MaterialTrackingRecord, error) {
	i, ok := t.index[materialID]
	if !ok {
		return models.MaterialTrackingRecord{}, &models.NotFoundError{Kind: "material", ID: materialID}
	}
	rec := &t.records[i]
	if rec.SupersededBy != "" {
		return rec.Clone(), &models.InvariantViolation{
			Invariant: "superseded record is read-only",
			Detail:    "material " + materialID + " was replaced by " + rec.SupersededBy,
		}
	}
	if reading.MoisturePercent < 0 {
		return rec.Clone(), models.NewValidationError("moisturePercent", "must not be negative, got %v", reading.MoisturePercent)
	}
	if reading.RecordedAt.IsZero() {
		reading.RecordedAt = t.now()
	}
	if last, ok := rec.LastReading(); ok && reading.RecordedAt.Before(last.RecordedAt) {
		return rec.Clone(), &models.InvariantViolation{
			Invariant: "readings ordered by recording time",
			Detail:    "reading at " + reading.RecordedAt.Format(time.RFC3339) + " precedes " + last.RecordedAt.Format(time.RFC3339),
		}
	}

	rec.Readings = append(rec.Readings, reading)
	rec.Status, rec.Trend = Evaluate(t.policy, *rec)
	t.logger.Debug("Reading appended.", "materialId", materialID, "moisture", reading.MoisturePercent, "status", rec.Status, "trend", rec.Trend)
	return rec.Clone(), nil
}

// Supersede retires a record whose dry standard was wrong and starts a new
// one for the same material and location. The old record and its readings
// are kept.
func (t *Tracker) Supersede(materialID string, dryStandardPercent float64, initial models.MoistureReadingEntry) (models.MaterialTrackingRecord, error) {
	i, ok := t.index[materialID]
	if !ok {
		return models.MaterialTrackingRecord{}, &models.NotFoundError{Kind: "material", ID: materialID}
	}
	old := t.records[i]
	if old.SupersededBy != "" {
		return models.MaterialTrackingRecord{}, &models.InvariantViolation{
			Invariant: "superseded record is read-only",
			Detail:    "material " + materialID + " was already replaced by " + old.SupersededBy,
		}
	}
	rec, err := t.RegisterMaterial(old.RoomID, old.MaterialType, old.Location, dryStandardPercent, initial)
	if err != nil {
		return models.MaterialTrackingRecord{}, err
	}
	t.records[i].SupersededBy = rec.ID
	return rec, nil
}

// Get returns a copy of the record with the given id.
func (t *Tracker) Get(materialID string) (models.MaterialTrackingRecord, error) {
	i, ok := t.index[materialID]
	if !ok {
		return models.MaterialTrackingRecord{}, &models.NotFoundError{Kind: "material", ID: materialID}
	}
	return t.records[i].Clone(), nil
}

// Records returns copies of all records in registration order.
func (t *Tracker) Records() []models.MaterialTrackingRecord {
	out := make([]models.MaterialTrackingRecord, len(t.records))
	for i, rec := range t.records {
		out[i] = rec.Clone()
	}
	return out
}

// IsDry reports whether the record's latest reading meets the dry rule.
func (t *Tracker) IsDry(rec models.MaterialTrackingRecord) bool {
	return IsDry(t.policy, rec)
}

// GetTrend returns the trend of the record's last two readings.
func (t *Tracker) GetTrend(rec models.MaterialTrackingRecord) models.Trend {
	return TrendOf(t.policy, rec)
}
