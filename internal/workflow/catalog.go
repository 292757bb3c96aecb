package workflow

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Lllllllleong/restorationflow/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed phases.yaml
var defaultCatalogYAML []byte

// StepDefinition describes one step of a phase. A step's data lives under
// the step id in the phase's data map.
type StepDefinition struct {
	ID             string   `yaml:"id" json:"id"`
	Title          string   `yaml:"title" json:"title"`
	Required       bool     `yaml:"required,omitempty" json:"required,omitempty"`
	RequiresPhoto  bool     `yaml:"requires_photo,omitempty" json:"requiresPhoto,omitempty"`
	RequiredFields []string `yaml:"required_fields,omitempty" json:"requiredFields,omitempty"`
}

// PhaseDefinition is the ordered step list of one phase.
type PhaseDefinition struct {
	Phase models.Phase     `yaml:"phase" json:"phase"`
	Steps []StepDefinition `yaml:"steps" json:"steps"`
}

// StepIDs returns the step identifiers in order.
func (d PhaseDefinition) StepIDs() []string {
	ids := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		ids[i] = s.ID
	}
	return ids
}

// Step looks up a step by id.
func (d PhaseDefinition) Step(id string) (StepDefinition, bool) {
	for _, s := range d.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StepDefinition{}, false
}

// Catalog holds the step definitions for every phase.
type Catalog struct {
	Phases []PhaseDefinition `yaml:"phases" json:"phases"`
}

// Phase returns the definition for p.
func (c Catalog) Phase(p models.Phase) (PhaseDefinition, bool) {
	for _, d := range c.Phases {
		if d.Phase == p {
			return d, true
		}
	}
	return PhaseDefinition{}, false
}

// Validate checks that phases are known and unique and that every phase has
// at least one step with a unique, non-empty id.
func (c Catalog) Validate() error {
	if len(c.Phases) == 0 {
		return fmt.Errorf("workflow: catalog has no phases")
	}
	seenPhase := map[models.Phase]struct{}{}
	for _, d := range c.Phases {
		if !d.Phase.Valid() {
			return fmt.Errorf("workflow: unknown phase %q", d.Phase)
		}
		if _, dup := seenPhase[d.Phase]; dup {
			return fmt.Errorf("workflow: duplicate phase %q", d.Phase)
		}
		seenPhase[d.Phase] = struct{}{}
		if len(d.Steps) == 0 {
			return fmt.Errorf("workflow: phase %s: at least one step is required", d.Phase)
		}
		seenStep := map[string]struct{}{}
		for i, s := range d.Steps {
			if s.ID == "" {
				return fmt.Errorf("workflow: phase %s step[%d]: id is required", d.Phase, i)
			}
			if _, dup := seenStep[s.ID]; dup {
				return fmt.Errorf("workflow: phase %s: duplicate step id %s", d.Phase, s.ID)
			}
			seenStep[s.ID] = struct{}{}
		}
	}
	return nil
}

// ParseCatalog decodes a catalog from YAML bytes and validates it.
func ParseCatalog(data []byte) (Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Catalog{}, fmt.Errorf("workflow: catalog payload is empty")
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("workflow: decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// LoadCatalogReader reads a catalog from r.
func LoadCatalogReader(r io.Reader) (Catalog, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Catalog{}, fmt.Errorf("workflow: read catalog: %w", err)
	}
	return ParseCatalog(content)
}

// LoadCatalogFile loads a catalog from a YAML file.
func LoadCatalogFile(path string) (Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	c, err := ParseCatalog(content)
	if err != nil {
		return Catalog{}, fmt.Errorf("workflow: %s: %w", path, err)
	}
	return c, nil
}

var defaultCatalog = sync.OnceValues(func() (Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
})

// DefaultCatalog returns the built-in install, demo, check-service and pull
// step lists.
func DefaultCatalog() Catalog {
	c, err := defaultCatalog()
	if err != nil {
		panic(fmt.Sprintf("workflow: embedded catalog is invalid: %v", err))
	}
	return c
}
