package moisture

import (
	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/Lllllllleong/restorationflow/internal/policy"
)

// Evaluate derives status and trend from a record's readings.
//
// A record is dry when its latest reading passes the policy's dry rule. It is
// drying when the latest reading is strictly below the previous follow-up
// reading; the initial reading only establishes how wet the material started,
// so one follow-up alone is never enough to call a material drying.
func Evaluate(p policy.Policy, rec models.MaterialTrackingRecord) (models.MaterialStatus, models.Trend) {
	return statusOf(p, rec), TrendOf(p, rec)
}

// IsDry reports whether the latest reading of rec passes the dry rule.
// A record without readings is never dry.
func IsDry(p policy.Policy, rec models.MaterialTrackingRecord) bool {
	last, ok := rec.LastReading()
	if !ok {
		return false
	}
	return p.IsDry(last.MoisturePercent, rec.DryStandard)
}

// TrendOf compares the last two readings. Fewer than two gives TrendUnknown.
func TrendOf(p policy.Policy, rec models.MaterialTrackingRecord) models.Trend {
	n := len(rec.Readings)
	if n < 2 {
		return models.TrendUnknown
	}
	return p.TrendOf(rec.Readings[n-2].MoisturePercent, rec.Readings[n-1].MoisturePercent)
}

func statusOf(p policy.Policy, rec models.MaterialTrackingRecord) models.MaterialStatus {
	if IsDry(p, rec) {
		return models.MaterialDry
	}
	n := len(rec.Readings)
	if n >= 3 && rec.Readings[n-1].MoisturePercent < rec.Readings[n-2].MoisturePercent {
		return models.MaterialDrying
	}
	return models.MaterialWet
}

// RoomGroup is the set of records tracked in one room.
type RoomGroup struct {
	RoomID  string
	Records []models.MaterialTrackingRecord
}

// GroupByRoom groups records by room id. Groups appear in the order their
// room was first seen and records keep their relative order.
func GroupByRoom(records []models.MaterialTrackingRecord) []RoomGroup {
	var groups []RoomGroup
	pos := make(map[string]int)
	for _, rec := range records {
		i, ok := pos[rec.RoomID]
		if !ok {
			i = len(groups)
			pos[rec.RoomID] = i
			groups = append(groups, RoomGroup{RoomID: rec.RoomID})
		}
		groups[i].Records = append(groups[i].Records, rec)
	}
	return groups
}

// PendingMaterials returns the active records that are not dry yet.
// Superseded records are historical and are skipped.
func PendingMaterials(p policy.Policy, records []models.MaterialTrackingRecord) []models.MaterialTrackingRecord {
	var pending []models.MaterialTrackingRecord
	for _, rec := range records {
		if rec.SupersededBy != "" {
			continue
		}
		if !IsDry(p, rec) {
			pending = append(pending, rec)
		}
	}
	return pending
}

// AllDry reports whether every active record is dry.
func AllDry(p policy.Policy, records []models.MaterialTrackingRecord) bool {
	return len(PendingMaterials(p, records)) == 0
}
