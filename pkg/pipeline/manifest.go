package pipeline

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/scribegate/pkg/template"
)

//go:embed default.yaml
var defaultManifest []byte

// LoadManifest reads a pipeline definition from a YAML file.
func LoadManifest(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// ParseManifest reads a pipeline definition from YAML bytes.
func ParseManifest(data []byte) (*Pipeline, error) {
	var pipeline Pipeline
	if err := yaml.Unmarshal(data, &pipeline); err != nil {
		return nil, err
	}
	return &pipeline, nil
}

// Default returns the built-in two-pass transcript review pipeline, wired
// against the built-in template catalog.
func Default() (*Pipeline, error) {
	return ParseManifest(defaultManifest)
}

// Validate checks the pipeline definition against the catalog: every stage
// references a known template, every dependency edge names a declared
// stage and a declared input variable, and the graph is acyclic.
func (p *Pipeline) Validate(catalog *template.Catalog) error {
	if p.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("pipeline must define at least one stage")
	}

	seen := make(map[string]*Stage, len(p.Stages))
	for _, stage := range p.Stages {
		if stage.ID == "" {
			return fmt.Errorf("stage id is required")
		}
		if _, ok := seen[stage.ID]; ok {
			return fmt.Errorf("duplicate stage id: %s", stage.ID)
		}
		seen[stage.ID] = stage

		if stage.Template == "" {
			return fmt.Errorf("stage %s must name a template", stage.ID)
		}
		tmpl, err := catalog.Get(stage.Template)
		if err != nil {
			return fmt.Errorf("stage %s: %w", stage.ID, err)
		}
		for _, dep := range stage.Needs {
			if dep.Stage == "" || dep.As == "" {
				return fmt.Errorf("stage %s has an incomplete dependency (stage and as are required)", stage.ID)
			}
			if dep.Stage == stage.ID {
				return fmt.Errorf("stage %s depends on itself", stage.ID)
			}
			if _, ok := tmpl.Input(dep.As); !ok {
				return fmt.Errorf("stage %s: template %s declares no input %s", stage.ID, stage.Template, dep.As)
			}
		}
	}

	for _, stage := range p.Stages {
		for _, dep := range stage.Needs {
			if _, ok := seen[dep.Stage]; !ok {
				return fmt.Errorf("stage %s depends on unknown stage %s", stage.ID, dep.Stage)
			}
		}
	}

	return p.checkAcyclic(seen)
}

func (p *Pipeline) checkAcyclic(stages map[string]*Stage) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(stages))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("dependency cycle through stage %s", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, dep := range stages[id].Needs {
			if err := visit(dep.Stage); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for _, stage := range p.Stages {
		if err := visit(stage.ID); err != nil {
			return err
		}
	}
	return nil
}
