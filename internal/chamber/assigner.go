// Package chamber groups rooms into drying chambers and computes the volume
// and damage class used to size dehumidification equipment.
//
// Every operation takes the current chamber list and returns a new one; the
// input slice is never modified, so a rejected operation leaves the caller's
// collection exactly as it was.
package chamber

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/Lllllllleong/restorationflow/internal/policy"
	"github.com/google/uuid"
)

const namePrefix = "Chamber "

// Assigner creates and edits chamber lists for one job.
type Assigner struct {
	policy policy.Policy
	newID  func() string
	logger *slog.Logger
}

// Option customises an Assigner.
type Option func(*Assigner)

// WithIDGenerator replaces the random chamber id generator.
func WithIDGenerator(newID func() string) Option {
	return func(a *Assigner) { a.newID = newID }
}

// WithLogger sets the logger used for chamber edits.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assigner) { a.logger = l }
}

// NewAssigner returns an Assigner using p for floor defaults and sizing.
func NewAssigner(p policy.Policy, opts ...Option) *Assigner {
	a := &Assigner{policy: p, newID: uuid.NewString, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AutoGroup builds one chamber per distinct floor, in the order floors are
// first seen, named Chamber A, Chamber B and so on. The result depends only
// on the order of rooms.
func (a *Assigner) AutoGroup(rooms []models.Room) []models.DryingChamber {
	var chambers []models.DryingChamber
	byFloor := make(map[string]int)
	for _, r := range rooms {
		floor := a.policy.FloorKey(r.Floor)
		i, ok := byFloor[floor]
		if !ok {
			i = len(chambers)
			byFloor[floor] = i
			chambers = append(chambers, models.DryingChamber{
				ID:      a.newID(),
				Name:    namePrefix + Label(i),
				Floor:   floor,
				RoomIDs: []string{},
			})
		}
		chambers[i].RoomIDs = append(chambers[i].RoomIDs, r.ID)
	}
	a.logger.Debug("Rooms grouped into chambers.", "roomCount", len(rooms), "chamberCount", len(chambers))
	return RecomputeVolumes(chambers, rooms)
}

// AddChamber appends an empty chamber named with the first unused letter.
func (a *Assigner) AddChamber(chambers []models.DryingChamber) []models.DryingChamber {
	out := clone(chambers)
	return append(out, models.DryingChamber{
		ID:      a.newID(),
		Name:    namePrefix + nextLabel(usedLabels(chambers)),
		RoomIDs: []string{},
	})
}

// Regroup assigns rooms to chambers by floor like AutoGroup but keeps the
// chambers that already exist. Each floor goes to the existing chamber on
// that floor, else to the first chamber with no floor yet, else to a new
// chamber. Reused chambers keep their id, name and containment; chambers
// left without a floor group are kept empty. With no existing chambers the
// result equals AutoGroup(rooms).
func (a *Assigner) Regroup(chambers []models.DryingChamber, rooms []models.Room) []models.DryingChamber {
	if len(chambers) == 0 {
		return a.AutoGroup(rooms)
	}
	out := clone(chambers)
	if len(rooms) == 0 {
		return out
	}

	var floors []string
	groups := make(map[string][]string)
	for _, r := range rooms {
		floor := a.policy.FloorKey(r.Floor)
		if _, ok := groups[floor]; !ok {
			floors = append(floors, floor)
		}
		groups[floor] = append(groups[floor], r.ID)
	}

	owner := make(map[string]int, len(floors))
	taken := make([]bool, len(out))
	for _, floor := range floors {
		for i, c := range out {
			if !taken[i] && c.Floor != "" && a.policy.FloorKey(c.Floor) == floor {
				owner[floor], taken[i] = i, true
				break
			}
		}
	}
	used := usedLabels(out)
	for _, floor := range floors {
		if _, ok := owner[floor]; ok {
			continue
		}
		i := -1
		for j, c := range out {
			if !taken[j] && c.Floor == "" {
				i = j
				break
			}
		}
		if i < 0 {
			label := nextLabel(used)
			used[label] = true
			out = append(out, models.DryingChamber{ID: a.newID(), Name: namePrefix + label})
			taken = append(taken, false)
			i = len(out) - 1
		}
		out[i].Floor = floor
		owner[floor], taken[i] = i, true
	}

	for i := range out {
		out[i].RoomIDs = []string{}
	}
	for _, floor := range floors {
		i := owner[floor]
		out[i].RoomIDs = append(out[i].RoomIDs, groups[floor]...)
	}
	a.logger.Debug("Rooms regrouped into chambers.", "roomCount", len(rooms), "chamberCount", len(out))
	return RecomputeVolumes(out, rooms)
}

func usedLabels(chambers []models.DryingChamber) map[string]bool {
	used := make(map[string]bool, len(chambers))
	for _, c := range chambers {
		if label, ok := strings.CutPrefix(c.Name, namePrefix); ok {
			used[label] = true
		}
	}
	return used
}

func nextLabel(used map[string]bool) string {
	i := 0
	for used[Label(i)] {
		i++
	}
	return Label(i)
}

// DeleteChamber removes a chamber. Its rooms become unassigned; they are not
// moved to another chamber. Deleting the only chamber is rejected.
func (a *Assigner) DeleteChamber(chambers []models.DryingChamber, chamberID string) ([]models.DryingChamber, error) {
	i := indexOf(chambers, chamberID)
	if i < 0 {
		return chambers, &models.NotFoundError{Kind: "chamber", ID: chamberID}
	}
	if len(chambers) == 1 {
		return chambers, &models.InvariantViolation{
			Invariant: "at least one chamber",
			Detail:    "cannot delete the only chamber " + chambers[i].Name,
		}
	}
	out := make([]models.DryingChamber, 0, len(chambers)-1)
	for j, c := range chambers {
		if j != i {
			out = append(out, c.Clone())
		}
	}
	a.logger.Debug("Chamber deleted.", "chamberId", chamberID, "releasedRooms", len(chambers[i].RoomIDs))
	return out, nil
}

// AssignRoom moves a room into the target chamber, removing it from any
// chamber that held it before.
func (a *Assigner) AssignRoom(chambers []models.DryingChamber, roomID, chamberID string) ([]models.DryingChamber, error) {
	if roomID == "" {
		return chambers, models.NewValidationError("roomId", "room id is required")
	}
	target := indexOf(chambers, chamberID)
	if target < 0 {
		return chambers, &models.NotFoundError{Kind: "chamber", ID: chamberID}
	}
	if chambers[target].HasRoom(roomID) {
		return clone(chambers), nil
	}
	out := UnassignRoom(chambers, roomID)
	out[target].RoomIDs = append(out[target].RoomIDs, roomID)
	return out, nil
}

// UnassignRoom removes a room from every chamber.
func UnassignRoom(chambers []models.DryingChamber, roomID string) []models.DryingChamber {
	out := clone(chambers)
	for i := range out {
		kept := out[i].RoomIDs[:0]
		for _, id := range out[i].RoomIDs {
			if id != roomID {
				kept = append(kept, id)
			}
		}
		out[i].RoomIDs = kept
	}
	return out
}

// RenameChamber changes a chamber's display name.
func RenameChamber(chambers []models.DryingChamber, chamberID, name string) ([]models.DryingChamber, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return chambers, models.NewValidationError("name", "chamber name is required")
	}
	i := indexOf(chambers, chamberID)
	if i < 0 {
		return chambers, &models.NotFoundError{Kind: "chamber", ID: chamberID}
	}
	out := clone(chambers)
	out[i].Name = name
	return out, nil
}

// SetContainment replaces a chamber's containment barrier record.
func SetContainment(chambers []models.DryingChamber, chamberID string, c models.Containment) ([]models.DryingChamber, error) {
	switch {
	case c.SquareFootage < 0:
		return chambers, models.NewValidationError("squareFootage", "must not be negative, got %v", c.SquareFootage)
	case c.PoleCount < 0:
		return chambers, models.NewValidationError("poleCount", "must not be negative, got %d", c.PoleCount)
	case c.SpaceReductionCuFt < 0:
		return chambers, models.NewValidationError("spaceReductionCuFt", "must not be negative, got %v", c.SpaceReductionCuFt)
	}
	i := indexOf(chambers, chamberID)
	if i < 0 {
		return chambers, &models.NotFoundError{Kind: "chamber", ID: chamberID}
	}
	out := clone(chambers)
	out[i].Containment = c
	out[i].Containment.PhotoURLs = slices.Clone(c.PhotoURLs)
	return out, nil
}

// ChamberOf returns the id of the chamber holding roomID, or "".
func ChamberOf(chambers []models.DryingChamber, roomID string) string {
	for _, c := range chambers {
		if c.HasRoom(roomID) {
			return c.ID
		}
	}
	return ""
}

// Label returns the spreadsheet-style letter for a zero-based index:
// A..Z, then AA, AB and so on.
func Label(i int) string {
	var b []byte
	for i >= 0 {
		b = append([]byte{byte('A' + i%26)}, b...)
		i = i/26 - 1
	}
	return string(b)
}

func indexOf(chambers []models.DryingChamber, id string) int {
	for i, c := range chambers {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func clone(chambers []models.DryingChamber) []models.DryingChamber {
	out := make([]models.DryingChamber, len(chambers))
	for i, c := range chambers {
		out[i] = c.Clone()
	}
	return out
}
