package chamber

import (
	"math"

	"github.com/Lllllllleong/restorationflow/internal/models"
)

// DehuSizing is the daily dehumidification capacity a chamber needs.
type DehuSizing struct {
	Kind        string  `json:"kind"`
	DamageClass int     `json:"damageClass"`
	VolumeCuFt  float64 `json:"volumeCuFt"`
	ChartFactor float64 `json:"chartFactor"`
	PintsPerDay float64 `json:"pintsPerDay"`
}

// SizeDehumidification divides the chamber volume by the chart factor for
// the dehumidifier kind and damage class, rounding up to whole pints.
func (a *Assigner) SizeDehumidification(volumeCuFt float64, damageClass int, kind string) (DehuSizing, error) {
	if volumeCuFt < 0 {
		return DehuSizing{}, models.NewValidationError("volumeCuFt", "must not be negative, got %v", volumeCuFt)
	}
	factor, err := a.policy.ChartFactor(kind, damageClass)
	if err != nil {
		return DehuSizing{}, err
	}
	return DehuSizing{
		Kind:        kind,
		DamageClass: damageClass,
		VolumeCuFt:  volumeCuFt,
		ChartFactor: factor,
		PintsPerDay: math.Ceil(volumeCuFt / factor),
	}, nil
}

// Summary is the equipment view of one chamber.
type Summary struct {
	Chamber       models.DryingChamber `json:"chamber"`
	RawVolumeCuFt float64              `json:"rawVolumeCuFt"`
	VolumeCuFt    float64              `json:"volumeCuFt"`
	DamageClass   int                  `json:"damageClass,omitempty"`
	Sizing        *DehuSizing          `json:"sizing,omitempty"`
	MissingClass  bool                 `json:"missingClass,omitempty"`
}

// Summarize computes volume, damage class and sizing for every chamber.
// Chambers whose rooms have no damage class get no sizing and are flagged.
// An unknown kind is rejected even when nothing would be sized.
func (a *Assigner) Summarize(chambers []models.DryingChamber, rooms []models.Room, kind string) ([]Summary, error) {
	if err := a.policy.CheckKind(kind); err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(chambers))
	for _, c := range chambers {
		s := Summary{
			Chamber:       c.Clone(),
			RawVolumeCuFt: RawVolume(c, rooms),
			VolumeCuFt:    ComputeVolume(c, rooms),
		}
		s.Chamber.TotalVolumeCuFt = s.VolumeCuFt
		class, ok := ChamberDamageClass(c, rooms)
		if !ok {
			s.MissingClass = true
			out = append(out, s)
			continue
		}
		s.DamageClass = class
		sizing, err := a.SizeDehumidification(s.VolumeCuFt, class, kind)
		if err != nil {
			return nil, err
		}
		s.Sizing = &sizing
		out = append(out, s)
	}
	return out, nil
}
