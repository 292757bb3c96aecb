package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Lllllllleong/restorationflow/internal/chamber"
	"github.com/Lllllllleong/restorationflow/internal/models"
	"github.com/Lllllllleong/restorationflow/internal/moisture"
	"github.com/Lllllllleong/restorationflow/internal/policy"
)

// DryingLog is the deterministic part of a drying report.
type DryingLog struct {
	Markdown string
	AllDry   bool
	Warnings []*models.DataConsistencyWarning
}

// BuildDryingLog renders chambers, sizing and moisture histories of a job as
// markdown. Superseded material records are left out.
func BuildDryingLog(p policy.Policy, job *models.Job, kind string) (DryingLog, error) {
	summaries, err := chamber.NewAssigner(p).Summarize(job.Chambers, job.Rooms, kind)
	if err != nil {
		return DryingLog{}, err
	}
	var active []models.MaterialTrackingRecord
	for _, rec := range job.Materials {
		if rec.SupersededBy == "" {
			active = append(active, rec)
		}
	}

	var log DryingLog
	log.Warnings = chamber.GetUnassigned(job.Chambers, job.Rooms).Warnings()
	overall, hasClass := chamber.ComputeOverallDamageClass(job.Rooms)
	if !hasClass {
		log.Warnings = append(log.Warnings, &models.DataConsistencyWarning{
			Code:    models.WarnNoDamageClass,
			Message: "no room has a damage class; equipment cannot be sized",
		})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Drying report for job %s\n\n", job.ID)
	fmt.Fprintf(&b, "- Current phase: %s\n", job.CurrentPhase)
	if hasClass {
		fmt.Fprintf(&b, "- Overall damage class: %d\n", overall)
	} else {
		b.WriteString("- Overall damage class: not set\n")
	}
	fmt.Fprintf(&b, "- Dehumidifier chart: %s\n\n", kind)

	b.WriteString("## Drying chambers\n\n")
	if len(summaries) == 0 {
		b.WriteString("No drying chambers recorded.\n\n")
	} else {
		b.WriteString("| Chamber | Floor | Rooms | Volume (cu ft) | Class | Pints/day |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, s := range summaries {
			class, pints := "not set", "-"
			if !s.MissingClass {
				class = strconv.Itoa(s.DamageClass)
				pints = formatNumber(s.Sizing.PintsPerDay)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				s.Chamber.Name, s.Chamber.Floor, roomNames(job, s.Chamber.RoomIDs), formatNumber(s.VolumeCuFt), class, pints)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Moisture readings\n\n")
	if len(active) == 0 {
		b.WriteString("No materials tracked.\n\n")
	}
	for _, group := range moisture.GroupByRoom(active) {
		name := group.RoomID
		if r, ok := job.Room(group.RoomID); ok {
			name = roomLabel(r)
		}
		fmt.Fprintf(&b, "### %s\n\n", name)
		b.WriteString("| Material | Location | Dry standard | Readings | Status | Trend |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, rec := range group.Records {
			status, trend := moisture.Evaluate(p, rec)
			fmt.Fprintf(&b, "| %s | %s | %s%% | %s | %s | %s |\n",
				rec.MaterialType, rec.Location, formatNumber(rec.DryStandard), readingSeries(rec), status, trend)
			if status != models.MaterialDry {
				log.Warnings = append(log.Warnings, &models.DataConsistencyWarning{
					Code:    models.WarnMaterialNotDry,
					Message: "material has not reached its dry standard",
					Subject: rec.MaterialType + " (" + name + ")",
				})
			}
		}
		b.WriteString("\n")
	}
	log.AllDry = moisture.AllDry(p, active)

	b.WriteString("## Warnings\n\n")
	if len(log.Warnings) == 0 {
		b.WriteString("None.\n")
	}
	for _, w := range log.Warnings {
		fmt.Fprintf(&b, "- %s\n", w.Error())
	}
	log.Markdown = b.String()
	return log, nil
}

func roomNames(job *models.Job, ids []string) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if r, ok := job.Room(id); ok {
			names = append(names, roomLabel(r))
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

func readingSeries(rec models.MaterialTrackingRecord) string {
	parts := make([]string, len(rec.Readings))
	for i, r := range rec.Readings {
		parts[i] = formatNumber(r.MoisturePercent)
	}
	return strings.Join(parts, " → ")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
