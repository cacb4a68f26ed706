package tasktype

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSeed(t *testing.T) {
	const doc = `
task_types:
  - name: Blood check
    stages: [1 month, 3 months, 6 months, 12 months]
  - name: "  Routine review "
    stages: Monthly
  - name: Wound review
    stages: "1 week, 2 weeks ,, 4 weeks"
`
	types, err := ParseSeed(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(types) != 3 {
		t.Fatalf("expected 3 task types, got %d", len(types))
	}
	if types[0].Name != "Blood check" || len(types[0].Stages) != 4 || types[0].Stages[3] != "12 months" {
		t.Errorf("unexpected first type: %+v", types[0])
	}
	if types[1].Name != "Routine review" || !types[1].Cyclic() {
		t.Errorf("expected cyclic Routine review, got %+v", types[1])
	}
	if len(types[2].Stages) != 3 || types[2].Stages[1] != "2 weeks" {
		t.Errorf("unexpected comma-separated stages: %v", types[2].Stages)
	}
}

func TestParseSeed_Empty(t *testing.T) {
	types, err := ParseSeed(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(types) != 0 {
		t.Errorf("expected no task types, got %d", len(types))
	}
}

func TestParseSeed_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing stages": "task_types:\n  - name: Review\n",
		"mapping stages": "task_types:\n  - name: Review\n    stages: {a: b}\n",
		"missing name":   "task_types:\n  - stages: [Monthly]\n",
		"not yaml":       "task_types: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseSeed(strings.NewReader(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task_types.yaml")
	if err := os.WriteFile(path, []byte("task_types:\n  - name: Weekly check\n    stages: [Weekly]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	types, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(types) != 1 || types[0].Name != "Weekly check" {
		t.Errorf("unexpected types: %+v", types)
	}

	if _, err := LoadSeedFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
