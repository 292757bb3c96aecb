package chamber

import (
	"math"

	"github.com/Lllllllleong/restorationflow/internal/models"
)

// ComputeVolume sums the volume of the chamber's rooms and subtracts the
// containment space reduction. The result is never negative. Room ids with
// no matching room are ignored.
func ComputeVolume(c models.DryingChamber, rooms []models.Room) float64 {
	v := RawVolume(c, rooms) - c.Containment.SpaceReductionCuFt
	return math.Max(v, 0)
}

// RawVolume is the chamber's room volume before containment reduction.
func RawVolume(c models.DryingChamber, rooms []models.Room) float64 {
	byID := make(map[string]models.Room, len(rooms))
	for _, r := range rooms {
		byID[r.ID] = r
	}
	var total float64
	for _, id := range c.RoomIDs {
		if r, ok := byID[id]; ok {
			total += r.Volume()
		}
	}
	return total
}

// RecomputeVolumes returns a copy of chambers with TotalVolumeCuFt refreshed.
func RecomputeVolumes(chambers []models.DryingChamber, rooms []models.Room) []models.DryingChamber {
	out := clone(chambers)
	for i := range out {
		out[i].TotalVolumeCuFt = ComputeVolume(out[i], rooms)
	}
	return out
}

// ComputeOverallDamageClass returns the highest damage class set on any
// room. The second value is false when no room has a class; callers must
// warn rather than assume class 1.
func ComputeOverallDamageClass(rooms []models.Room) (int, bool) {
	class := 0
	for _, r := range rooms {
		if r.HasDamageClass() && r.DamageClass > class {
			class = r.DamageClass
		}
	}
	return class, class > 0
}

// ChamberDamageClass is ComputeOverallDamageClass over the chamber's rooms.
func ChamberDamageClass(c models.DryingChamber, rooms []models.Room) (int, bool) {
	var members []models.Room
	for _, r := range rooms {
		if c.HasRoom(r.ID) {
			members = append(members, r)
		}
	}
	return ComputeOverallDamageClass(members)
}

// Unassigned lists rooms that belong to no chamber. Affected rooms block
// completion; baseline rooms are informational.
type Unassigned struct {
	Affected []models.Room
	Baseline []models.Room
}

// Blocking reports whether any affected room is unassigned.
func (u Unassigned) Blocking() bool {
	return len(u.Affected) > 0
}

// Warnings converts blocking rooms into consistency warnings.
func (u Unassigned) Warnings() []*models.DataConsistencyWarning {
	var warnings []*models.DataConsistencyWarning
	for _, r := range u.Affected {
		warnings = append(warnings, &models.DataConsistencyWarning{
			Code:    models.WarnUnassignedAffectedRoom,
			Message: "affected room is not assigned to a drying chamber",
			Subject: r.Name,
		})
	}
	return warnings
}

// GetUnassigned partitions the rooms with no chamber. Partial rooms count as
// affected.
func GetUnassigned(chambers []models.DryingChamber, rooms []models.Room) Unassigned {
	var u Unassigned
	for _, r := range rooms {
		if ChamberOf(chambers, r.ID) != "" {
			continue
		}
		if r.IsAffected() {
			u.Affected = append(u.Affected, r)
		} else {
			u.Baseline = append(u.Baseline, r)
		}
	}
	return u
}
