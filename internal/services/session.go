package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/restorationflow/internal/chamber"
	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/Lllllllleong/restorationflow/internal/moisture"
	"github.com/Lllllllleong/restorationflow/internal/policy"
	"github.com/Lllllllleong/restorationflow/internal/store"
	"github.com/Lllllllleong/restorationflow/internal/workflow"
	"github.com/google/uuid"
)

// Dirty keys for job fields owned by the session rather than the workflow
// controller.
const (
	KeyRooms     = "rooms"
	KeyChambers  = "chambers"
	KeyMaterials = "materials"
)

// SessionConfig holds the collaborators and tunables of a Session. Zero
// values fall back to defaults.
type SessionConfig struct {
	Policy       policy.Policy
	Catalog      workflow.Catalog
	ActorID      string
	PhotoWorkers int
	// FlushTimeout bounds each debounced flush.
	FlushTimeout time.Duration
	AfterFunc    workflow.AfterFunc
	Now          func() time.Time
	NewID        func() string
	Logger       *slog.Logger
}

func (c *SessionConfig) applyDefaults() {
	if c.Policy.ChartFactors == nil {
		c.Policy = policy.Default()
	}
	if len(c.Catalog.Phases) == 0 {
		c.Catalog = workflow.DefaultCatalog()
	}
	if c.PhotoWorkers <= 0 {
		c.PhotoWorkers = 4
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is one technician's editing session on a job. It owns the
// moisture tracker, chamber assigner and workflow controller, routes every
// mutation through them and writes changed fields back to the JobStore
// after a quiet period or on an explicit Flush.
type Session struct {
	mu    sync.Mutex
	jobID string
	cfg   SessionConfig

	jobs    store.JobStore
	photos  store.PhotoStore
	network store.NetworkMonitor

	tracker    *moisture.Tracker
	assigner   *chamber.Assigner
	controller *workflow.Controller
	debounce   *workflow.Debouncer

	rooms    []models.Room
	chambers []models.DryingChamber

	flushMu sync.Mutex
	failed  map[string]struct{}
	lastErr error

	queue       []QueuedPhoto
	unsubscribe func()
	logger      *slog.Logger
}

// OpenSession loads the job and builds the engines over it. photos and
// network may be nil: without a photo store every photo is queued, and
// without a monitor the session assumes it is online.
func OpenSession(ctx context.Context, jobID string, jobs store.JobStore, photos store.PhotoStore, network store.NetworkMonitor, cfg SessionConfig) (*Session, error) {
	cfg.applyDefaults()
	job, err := jobs.Load(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to open session for job %s: %w", jobID, err)
	}
	logger := cfg.Logger.With("jobId", jobID)

	s := &Session{
		jobID:   jobID,
		cfg:     cfg,
		jobs:    jobs,
		photos:  photos,
		network: network,
		rooms:   slices.Clone(job.Rooms),
		failed:  make(map[string]struct{}),
		logger:  logger,
	}
	s.debounce = workflow.NewDebouncer(jobID, cfg.Policy.AutoSaveDelay, s.onDirty, cfg.AfterFunc)
	s.tracker = moisture.NewTracker(cfg.Policy, job.Rooms, job.Materials,
		moisture.WithClock(cfg.Now),
		moisture.WithIDGenerator(cfg.NewID),
		moisture.WithLogger(logger),
	)
	s.assigner = chamber.NewAssigner(cfg.Policy,
		chamber.WithIDGenerator(cfg.NewID),
		chamber.WithLogger(logger),
	)
	s.controller = workflow.NewController(job, cfg.Catalog,
		workflow.WithClock(cfg.Now),
		workflow.WithLogger(logger),
		workflow.WithDirtyMarker(s.debounce),
	)
	s.chambers = chamber.RecomputeVolumes(job.Chambers, job.Rooms)
	if network != nil {
		s.unsubscribe = network.Subscribe(s.onNetwork)
	}
	logger.Info("Session opened.", "currentPhase", s.controller.CurrentPhase(), "rooms", len(s.rooms), "chambers", len(s.chambers))
	return s, nil
}

// JobID returns the id of the job being edited.
func (s *Session) JobID() string { return s.jobID }

// Close stops auto-save and the network subscription. Edits that were not
// flushed are discarded.
func (s *Session) Close() {
	if s.Dirty() {
		s.logger.Warn("Closing session with unsaved edits.")
	}
	s.debounce.Stop()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// --- Workflow ---

// StartPhase starts or resumes phase for the session's actor.
func (s *Session) StartPhase(phase models.Phase) (models.WorkflowPhaseState, error) {
	return s.controller.StartPhase(s.jobID, phase, s.cfg.ActorID)
}

func (s *Session) SaveStepData(partial map[string]interface{}) (models.WorkflowPhaseState, error) {
	return s.controller.SaveStepData(partial)
}

func (s *Session) Advance() (models.WorkflowPhaseState, error) { return s.controller.Advance() }

func (s *Session) Retreat() (models.WorkflowPhaseState, error) { return s.controller.Retreat() }

func (s *Session) JumpToStep(stepID string) (models.WorkflowPhaseState, error) {
	return s.controller.JumpToStep(stepID)
}

func (s *Session) ProgressPercent() int { return s.controller.ProgressPercent() }

// Readiness evaluates the active phase with signals from the tracker and
// the assigner.
func (s *Session) Readiness() (workflow.Readiness, error) {
	s.mu.Lock()
	sig := s.signalsLocked(s.controller.ActivePhase())
	s.mu.Unlock()
	return s.controller.Readiness(sig)
}

// signalsLocked gathers facts for readiness. Wet materials only matter when
// pulling equipment; earlier phases expect materials to still be wet.
func (s *Session) signalsLocked(phase models.Phase) workflow.Signals {
	var sig workflow.Signals
	for _, r := range chamber.GetUnassigned(s.chambers, s.rooms).Affected {
		sig.UnassignedAffectedRooms = append(sig.UnassignedAffectedRooms, roomLabel(r))
	}
	if phase == models.PhasePull {
		for _, rec := range moisture.PendingMaterials(s.cfg.Policy, s.tracker.Records()) {
			sig.WetMaterials = append(sig.WetMaterials, s.materialLabelLocked(rec))
		}
	}
	_, hasClass := chamber.ComputeOverallDamageClass(s.rooms)
	sig.DamageClassMissing = !hasClass
	return sig
}

// CompletePhase completes the active phase when it is ready, or regardless
// of warnings when force is set. The readiness that was evaluated is always
// returned.
func (s *Session) CompletePhase(force bool) (workflow.Readiness, models.Phase, error) {
	r, err := s.Readiness()
	if err != nil {
		return r, s.controller.CurrentPhase(), err
	}
	if !r.Ready && !force {
		return r, s.controller.CurrentPhase(), &models.InvariantViolation{
			Invariant: "phase is ready to complete",
			Detail:    fmt.Sprintf("phase %s has %d open warnings", r.Phase, len(r.Warnings)),
		}
	}
	if !r.AtLastStep {
		// Forced completion jumps to the last step first.
		st, err := s.controller.State()
		if err != nil {
			return r, s.controller.CurrentPhase(), err
		}
		if _, err := s.controller.JumpToStep(st.Steps[len(st.Steps)-1]); err != nil {
			return r, s.controller.CurrentPhase(), err
		}
	}
	_, next, err := s.controller.CompletePhase()
	if err != nil {
		return r, next, err
	}
	s.logger.Info("Phase completed.", "phase", r.Phase, "nextPhase", next, "forced", !r.Ready)
	return r, next, nil
}

// State returns the active phase's state.
func (s *Session) State() (models.WorkflowPhaseState, error) { return s.controller.State() }

// CurrentPhase returns the job's current phase.
func (s *Session) CurrentPhase() models.Phase { return s.controller.CurrentPhase() }

// --- Rooms ---

// AddRoom validates and adds a room, assigning an id when it has none.
func (s *Session) AddRoom(room models.Room) (models.Room, error) {
	if room.ID == "" {
		room.ID = s.cfg.NewID()
	}
	if err := room.Validate(); err != nil {
		return models.Room{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomIndexLocked(room.ID) >= 0 {
		return models.Room{}, models.NewValidationError("id", "room %q already exists", room.ID)
	}
	s.rooms = append(s.rooms, room)
	s.tracker.AddRoom(room.ID)
	s.debounce.Mark(KeyRooms)
	return room, nil
}

// UpdateRoom replaces a room and refreshes the volume of its chamber.
func (s *Session) UpdateRoom(room models.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.roomIndexLocked(room.ID)
	if i < 0 {
		return &models.NotFoundError{Kind: "room", ID: room.ID}
	}
	s.rooms[i] = room
	s.debounce.Mark(KeyRooms)
	if chamber.ChamberOf(s.chambers, room.ID) != "" {
		s.chambers = chamber.RecomputeVolumes(s.chambers, s.rooms)
		s.debounce.Mark(KeyChambers)
	}
	return nil
}

// ClassifyRoom sets a room's damage class from its affected-surface
// percentage and returns the class.
func (s *Session) ClassifyRoom(roomID string, percentAffected float64) (int, error) {
	class, err := s.cfg.Policy.ClassifyDamage(percentAffected)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.roomIndexLocked(roomID)
	if i < 0 {
		return 0, &models.NotFoundError{Kind: "room", ID: roomID}
	}
	s.rooms[i].DamageClass = class
	s.debounce.Mark(KeyRooms)
	return class, nil
}

// Rooms returns a copy of the job's rooms.
func (s *Session) Rooms() []models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rooms)
}

func (s *Session) roomIndexLocked(id string) int {
	for i, r := range s.rooms {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// --- Chambers ---

// AutoGroup assigns rooms to one chamber per floor. Existing chambers keep
// their ids and containment; none are removed.
func (s *Session) AutoGroup() []models.DryingChamber {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chambers = s.assigner.Regroup(s.chambers, s.rooms)
	s.debounce.Mark(KeyChambers)
	return cloneChambers(s.chambers)
}

// AddChamber appends an empty chamber and returns it.
func (s *Session) AddChamber() models.DryingChamber {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chambers = s.assigner.AddChamber(s.chambers)
	s.debounce.Mark(KeyChambers)
	return s.chambers[len(s.chambers)-1].Clone()
}

func (s *Session) DeleteChamber(chamberID string) error {
	return s.updateChambers(func(cs []models.DryingChamber) ([]models.DryingChamber, error) {
		return s.assigner.DeleteChamber(cs, chamberID)
	})
}

// AssignRoom moves an existing room into a chamber.
func (s *Session) AssignRoom(roomID, chamberID string) error {
	s.mu.Lock()
	known := s.roomIndexLocked(roomID) >= 0
	s.mu.Unlock()
	if !known {
		return &models.NotFoundError{Kind: "room", ID: roomID}
	}
	return s.updateChambers(func(cs []models.DryingChamber) ([]models.DryingChamber, error) {
		return s.assigner.AssignRoom(cs, roomID, chamberID)
	})
}

func (s *Session) UnassignRoom(roomID string) error {
	return s.updateChambers(func(cs []models.DryingChamber) ([]models.DryingChamber, error) {
		return chamber.UnassignRoom(cs, roomID), nil
	})
}

func (s *Session) RenameChamber(chamberID, name string) error {
	return s.updateChambers(func(cs []models.DryingChamber) ([]models.DryingChamber, error) {
		return chamber.RenameChamber(cs, chamberID, name)
	})
}

func (s *Session) SetContainment(chamberID string, c models.Containment) error {
	return s.updateChambers(func(cs []models.DryingChamber) ([]models.DryingChamber, error) {
		return chamber.SetContainment(cs, chamberID, c)
	})
}

// updateChambers applies fn and recomputes volumes. On error the chambers
// are left as they were.
func (s *Session) updateChambers(fn func([]models.DryingChamber) ([]models.DryingChamber, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.chambers)
	if err != nil {
		return err
	}
	s.chambers = chamber.RecomputeVolumes(next, s.rooms)
	s.debounce.Mark(KeyChambers)
	return nil
}

// Chambers returns a copy of the job's chambers.
func (s *Session) Chambers() []models.DryingChamber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneChambers(s.chambers)
}

// ChamberSummaries sizes dehumidification for every chamber.
func (s *Session) ChamberSummaries(kind string) ([]chamber.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assigner.Summarize(s.chambers, s.rooms, kind)
}

// --- Materials ---

// RegisterMaterial starts tracking a material. The initial reading is
// stamped with the active phase and the session's actor when unset.
func (s *Session) RegisterMaterial(roomID, materialType, location string, dryStandardPercent float64, initial models.MoistureReadingEntry) (models.MaterialTrackingRecord, error) {
	s.stampReading(&initial)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.tracker.RegisterMaterial(roomID, materialType, location, dryStandardPercent, initial)
	if err != nil {
		return rec, err
	}
	s.debounce.Mark(KeyMaterials)
	return rec, nil
}

// RecordReading appends a follow-up reading to a material.
func (s *Session) RecordReading(materialID string, reading models.MoistureReadingEntry) (models.MaterialTrackingRecord, error) {
	s.stampReading(&reading)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.tracker.AppendReading(materialID, reading)
	if err != nil {
		return rec, err
	}
	s.debounce.Mark(KeyMaterials)
	return rec, nil
}

// CorrectDryStandard supersedes a material record with a new dry standard.
func (s *Session) CorrectDryStandard(materialID string, dryStandardPercent float64, initial models.MoistureReadingEntry) (models.MaterialTrackingRecord, error) {
	s.stampReading(&initial)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.tracker.Supersede(materialID, dryStandardPercent, initial)
	if err != nil {
		return rec, err
	}
	s.debounce.Mark(KeyMaterials)
	return rec, nil
}

// Materials returns copies of every material record.
func (s *Session) Materials() []models.MaterialTrackingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Records()
}

func (s *Session) stampReading(r *models.MoistureReadingEntry) {
	if r.Phase == "" {
		r.Phase = s.controller.ActivePhase()
	}
	if r.TechnicianID == "" {
		r.TechnicianID = s.cfg.ActorID
	}
}

func (s *Session) materialLabelLocked(rec models.MaterialTrackingRecord) string {
	label := rec.MaterialType
	if i := s.roomIndexLocked(rec.RoomID); i >= 0 {
		label += " (" + roomLabel(s.rooms[i]) + ")"
	}
	if rec.Location != "" {
		label += " " + rec.Location
	}
	return label
}

// --- Persistence ---

// Dirty reports whether edits are waiting to be written, including edits
// whose last flush failed.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	failed := len(s.failed) > 0
	s.mu.Unlock()
	return failed || s.debounce.Pending()
}

// LastFlushError returns the error of the most recent flush, or nil when it
// succeeded.
func (s *Session) LastFlushError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Flush writes every pending edit now. On failure the edits stay pending and
// a *models.PersistenceError is returned; calling Flush again retries them.
func (s *Session) Flush(ctx context.Context) error {
	return s.flushKeys(ctx, s.debounce.Drain())
}

func (s *Session) onDirty(sig workflow.DirtySignal) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FlushTimeout)
	defer cancel()
	if err := s.flushKeys(ctx, sig.Keys); err != nil {
		s.logger.Error("Auto-save failed; edits kept for retry.", "error", err, "keys", sig.Keys, "edits", sig.Edits)
	}
}

func (s *Session) flushKeys(ctx context.Context, keys []string) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	pending := make(map[string]struct{}, len(keys)+len(s.failed))
	for _, k := range keys {
		pending[k] = struct{}{}
	}
	for k := range s.failed {
		pending[k] = struct{}{}
	}
	s.failed = make(map[string]struct{})
	all := make([]string, 0, len(pending))
	for k := range pending {
		all = append(all, k)
	}
	sort.Strings(all)
	updates := s.updatesLocked(all)
	s.mu.Unlock()

	if len(updates) == 0 {
		return nil
	}
	err := s.jobs.Save(ctx, s.jobID, updates)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		for _, k := range all {
			s.failed[k] = struct{}{}
		}
		s.lastErr = &models.PersistenceError{JobID: s.jobID, Err: err}
		return s.lastErr
	}
	s.lastErr = nil
	s.logger.Debug("Job flushed.", "fields", all)
	return nil
}

// updatesLocked snapshots the current value behind each dirty key.
func (s *Session) updatesLocked(keys []string) []store.FieldUpdate {
	updates := make([]store.FieldUpdate, 0, len(keys))
	for _, k := range keys {
		switch k {
		case KeyRooms:
			updates = append(updates, store.FieldUpdate{Path: []string{"rooms"}, Value: slices.Clone(s.rooms)})
		case KeyChambers:
			updates = append(updates, store.FieldUpdate{Path: []string{"chambers"}, Value: cloneChambers(s.chambers)})
		case KeyMaterials:
			updates = append(updates, store.FieldUpdate{Path: []string{"materials"}, Value: s.tracker.Records()})
		case workflow.KeyCurrentPhase:
			updates = append(updates, store.FieldUpdate{Path: []string{"currentPhase"}, Value: s.controller.CurrentPhase()})
		default:
			phase, ok := strings.CutPrefix(k, "workflowStates/")
			if !ok {
				s.logger.Warn("Ignoring unknown dirty key.", "key", k)
				continue
			}
			st, ok := s.controller.StateOf(models.Phase(phase))
			if !ok {
				continue
			}
			updates = append(updates, store.FieldUpdate{Path: []string{"workflowStates", phase}, Value: st})
		}
	}
	return updates
}

func roomLabel(r models.Room) string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

func cloneChambers(cs []models.DryingChamber) []models.DryingChamber {
	if cs == nil {
		return nil
	}
	out := make([]models.DryingChamber, len(cs))
	for i, c := range cs {
		out[i] = c.Clone()
	}
	return out
}
