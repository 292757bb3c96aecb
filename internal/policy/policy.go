// Package policy holds the named thresholds and rules shared by the moisture
// tracker, the chamber assigner and the workflow controller.
package policy

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Dehumidifier kinds understood by the sizing chart.
const (
	DehuConventional = "conventional"
	DehuLGR          = "lgr"
)

// Policy is the set of thresholds a job is evaluated against. The zero value
// is not usable; start from Default or Parse.
type Policy struct {
	// DryTolerance is how far above its dry standard a reading may sit and
	// still count as dry, in percentage points.
	DryTolerance float64 `yaml:"dry_tolerance"`
	// AbsoluteDryFloor is the reading at or below which any material is dry.
	AbsoluteDryFloor float64 `yaml:"absolute_dry_floor"`
	// TrendDelta is the change between the last two readings needed to call
	// a trend improving or worsening.
	TrendDelta float64 `yaml:"trend_delta"`

	// Class2MinPercent and Class3MinPercent are the affected-surface
	// percentages at which a room moves to damage class 2 and above 3.
	Class2MinPercent float64 `yaml:"class2_min_percent"`
	Class3MinPercent float64 `yaml:"class3_min_percent"`

	DefaultFloor  string        `yaml:"default_floor"`
	AutoSaveDelay time.Duration `yaml:"auto_save_delay"`

	// ChartFactors maps dehumidifier kind to cubic feet per pint of daily
	// capacity for damage classes 1, 2 and 3.
	ChartFactors map[string][3]float64 `yaml:"chart_factors"`
}

// Default returns the IICRC-style thresholds used when no policy file is set.
func Default() Policy {
	p := Policy{}
	p.applyDefaults()
	return p
}

// Load reads a YAML policy file from path.
func Load(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Policy. The document is
// decoded over the defaults, so absent fields keep their default and an
// explicit zero is kept as zero. A blank default_floor falls back to the
// default, and chart kinds the document omits keep their default factors.
func Parse(data []byte) (Policy, error) {
	p := Default()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("policy: parse: %w", err)
	}
	p.fillRequired()
	if err := p.validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p *Policy) applyDefaults() {
	if p.DryTolerance == 0 {
		p.DryTolerance = 2.0
	}
	if p.AbsoluteDryFloor == 0 {
		p.AbsoluteDryFloor = 12.0
	}
	if p.TrendDelta == 0 {
		p.TrendDelta = 1.0
	}
	if p.Class2MinPercent == 0 {
		p.Class2MinPercent = 5
	}
	if p.Class3MinPercent == 0 {
		p.Class3MinPercent = 40
	}
	if p.AutoSaveDelay == 0 {
		p.AutoSaveDelay = 800 * time.Millisecond
	}
	p.fillRequired()
}

// fillRequired sets the values that have no meaningful zero.
func (p *Policy) fillRequired() {
	if strings.TrimSpace(p.DefaultFloor) == "" {
		p.DefaultFloor = "1st Floor"
	}
	if p.ChartFactors == nil {
		p.ChartFactors = map[string][3]float64{}
	}
	if _, ok := p.ChartFactors[DehuConventional]; !ok {
		p.ChartFactors[DehuConventional] = [3]float64{100, 40, 30}
	}
	if _, ok := p.ChartFactors[DehuLGR]; !ok {
		p.ChartFactors[DehuLGR] = [3]float64{100, 50, 40}
	}
}

func (p *Policy) validate() error {
	var errs []string
	if p.DryTolerance < 0 {
		errs = append(errs, "dry_tolerance must not be negative")
	}
	if p.AbsoluteDryFloor < 0 {
		errs = append(errs, "absolute_dry_floor must not be negative")
	}
	if p.TrendDelta < 0 {
		errs = append(errs, "trend_delta must not be negative")
	}
	if p.Class2MinPercent >= p.Class3MinPercent {
		errs = append(errs, "class2_min_percent must be below class3_min_percent")
	}
	if p.Class3MinPercent > 100 {
		errs = append(errs, "class3_min_percent must not exceed 100")
	}
	if p.AutoSaveDelay < 0 {
		errs = append(errs, "auto_save_delay must not be negative")
	}
	for kind, factors := range p.ChartFactors {
		for i, f := range factors {
			if f <= 0 {
				errs = append(errs, fmt.Sprintf("chart_factors.%s[%d] must be positive", kind, i))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("policy: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
