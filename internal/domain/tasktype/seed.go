package tasktype

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nptracker/nptracker/internal/domain/cadence"
)

// seedFile is the layout of a task type seed file:
//
//	task_types:
//	  - name: Blood check
//	    stages: [1 month, 3 months, 6 months, 12 months]
//	  - name: Routine review
//	    stages: Monthly
//
// stages may be a list or a comma-separated string.
type seedFile struct {
	TaskTypes []seedEntry `yaml:"task_types"`
}

type seedEntry struct {
	Name   string     `yaml:"name"`
	Stages seedStages `yaml:"stages"`
}

type seedStages cadence.Stages

func (s *seedStages) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
	case yaml.ScalarNode:
		*s = seedStages(cadence.ParseStages(node.Value))
	default:
		return fmt.Errorf("line %d: stages must be a list or a comma-separated string", node.Line)
	}
	return nil
}

// ParseSeed reads task types from YAML.
func ParseSeed(r io.Reader) ([]*TaskType, error) {
	var f seedFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	types := make([]*TaskType, 0, len(f.TaskTypes))
	for i, e := range f.TaskTypes {
		t := &TaskType{Name: e.Name, Stages: cadence.Stages(e.Stages)}
		t.normalize()
		if err := validate(t); err != nil {
			return nil, fmt.Errorf("task type %d: %w", i+1, err)
		}
		types = append(types, t)
	}
	return types, nil
}

// LoadSeedFile reads task types from the YAML file at path.
func LoadSeedFile(path string) ([]*TaskType, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return ParseSeed(f)
}
