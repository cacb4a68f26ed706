package cadence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Stages is the ordered interval progression of a task type, e.g.
// ["1 month", "3 months", "6 months", "12 months"]. Order defines the
// progression; duplicates are kept and the first occurrence wins.
type Stages []string

// ParseStages splits a comma-joined stage list, dropping blank entries.
func ParseStages(joined string) Stages {
	var out Stages
	for _, part := range strings.Split(joined, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Index returns the position of the first stage equal to label after
// trimming and lower-casing both, or -1.
func (s Stages) Index(label string) int {
	want := normalizeLabel(label)
	for i, stage := range s {
		if normalizeLabel(stage) == want {
			return i
		}
	}
	return -1
}

// Next returns the stage after label. It reports false when label is not a
// stage or is the last one. The returned stage keeps its authored casing but
// is trimmed of surrounding whitespace.
func (s Stages) Next(label string) (string, bool) {
	i := s.Index(label)
	if i < 0 || i >= len(s)-1 {
		return "", false
	}
	return strings.TrimSpace(s[i+1]), true
}

// IsCyclic reports whether the progression has a single stage, meaning the
// task only ever repeats at the same cadence.
func (s Stages) IsCyclic() bool {
	return len(s) == 1
}

// HasContent reports whether at least one stage is non-blank.
func (s Stages) HasContent() bool {
	for _, stage := range s {
		if strings.TrimSpace(stage) != "" {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts either a JSON array of labels or the legacy
// comma-joined string form.
func (s *Stages) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("stages must be a list or a comma-separated string")
	}
	*s = ParseStages(joined)
	return nil
}

// Registry looks up the stage list of a task type by exact name. A missing
// task type is reported with ok=false and a nil error.
type Registry interface {
	LookupStages(ctx context.Context, taskName string) (stages Stages, ok bool, err error)
}

// RegistryFunc adapts a function to the Registry interface.
type RegistryFunc func(ctx context.Context, taskName string) (Stages, bool, error)

func (f RegistryFunc) LookupStages(ctx context.Context, taskName string) (Stages, bool, error) {
	return f(ctx, taskName)
}

// StaticRegistry is an in-memory Registry keyed by task name.
type StaticRegistry map[string]Stages

func (r StaticRegistry) LookupStages(_ context.Context, taskName string) (Stages, bool, error) {
	stages, ok := r[taskName]
	return stages, ok, nil
}

// NextStage returns the stage that follows current for the named task type.
// Unknown task types, unknown labels, exhausted progressions, empty stage
// lists and registry errors all report false.
func NextStage(ctx context.Context, reg Registry, taskName, current string) (string, bool) {
	if reg == nil {
		return "", false
	}
	stages, ok, err := reg.LookupStages(ctx, taskName)
	if err != nil || !ok {
		return "", false
	}
	return stages.Next(current)
}
