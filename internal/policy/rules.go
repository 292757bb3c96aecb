package policy

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/restorationflow/internal/models"
)

// IsDry reports whether a reading is acceptably dry for a material with the
// given dry standard. Either condition is sufficient.
func (p Policy) IsDry(reading, dryStandard float64) bool {
	return reading <= dryStandard+p.DryTolerance || reading <= p.AbsoluteDryFloor
}

// TrendOf compares the latest reading with the one before it.
func (p Policy) TrendOf(previous, latest float64) models.Trend {
	switch diff := latest - previous; {
	case diff < -p.TrendDelta:
		return models.TrendImproving
	case diff > p.TrendDelta:
		return models.TrendWorsening
	default:
		return models.TrendStable
	}
}

// ClassifyDamage maps the share of affected surfaces to a damage class.
func (p Policy) ClassifyDamage(percentAffected float64) (int, error) {
	if percentAffected < 0 || percentAffected > 100 {
		return 0, models.NewValidationError("percentAffected", "must be between 0 and 100, got %v", percentAffected)
	}
	switch {
	case percentAffected > p.Class3MinPercent:
		return 3, nil
	case percentAffected >= p.Class2MinPercent:
		return 2, nil
	default:
		return 1, nil
	}
}

// FloorKey normalises a room's floor label into the key rooms are grouped
// by. Blank labels fall back to DefaultFloor.
func (p Policy) FloorKey(floor string) string {
	if key := strings.TrimSpace(floor); key != "" {
		return key
	}
	return p.DefaultFloor
}

// ChartFactor returns the cubic feet per pint of daily capacity for a
// dehumidifier kind and damage class.
func (p Policy) ChartFactor(kind string, damageClass int) (float64, error) {
	if err := p.CheckKind(kind); err != nil {
		return 0, err
	}
	factors := p.ChartFactors[strings.ToLower(kind)]
	if damageClass < 1 || damageClass > 3 {
		return 0, models.NewValidationError("damageClass", "must be between 1 and 3, got %d", damageClass)
	}
	return factors[damageClass-1], nil
}

// String renders the thresholds for log lines.
func (p Policy) String() string {
	return fmt.Sprintf("dry<=std+%.1f|<=%.1f trend>%.1f", p.DryTolerance, p.AbsoluteDryFloor, p.TrendDelta)
}

// CheckKind returns a ValidationError unless the chart has factors for kind.
func (p Policy) CheckKind(kind string) error {
	if _, ok := p.ChartFactors[strings.ToLower(kind)]; !ok {
		return models.NewValidationError("dehumidifierKind", "unknown kind %q", kind)
	}
	return nil
}
