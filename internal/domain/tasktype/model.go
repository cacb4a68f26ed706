package tasktype

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nptracker/nptracker/internal/domain/cadence"
)

// TaskType maps to the task_type table. Stages is the ordered interval
// progression, stored as a TEXT[].
type TaskType struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	Stages    cadence.Stages `db:"stages" json:"stages"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Cyclic reports whether the type only ever repeats a single interval.
func (t *TaskType) Cyclic() bool {
	return t.Stages.IsCyclic()
}

// normalize trims the name and every stage and drops blank stages.
// Duplicate stages are kept in order.
func (t *TaskType) normalize() {
	t.Name = strings.TrimSpace(t.Name)
	stages := make(cadence.Stages, 0, len(t.Stages))
	for _, s := range t.Stages {
		if s = strings.TrimSpace(s); s != "" {
			stages = append(stages, s)
		}
	}
	t.Stages = stages
}

// NextStageResult answers "what comes after this interval" for a task type.
type NextStageResult struct {
	TaskName   string  `json:"task_name"`
	Interval   string  `json:"interval"`
	NextStage  *string `json:"next_stage"`
	CanAdvance bool    `json:"can_advance"`
}

// SeedResult reports what a seed run changed.
type SeedResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}
