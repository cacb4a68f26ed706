package tasktype

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nptracker/nptracker/internal/domain/cadence"
)

var (
	ErrNotFound      = errors.New("task type not found")
	ErrDuplicateName = errors.New("a task type with this name already exists")
)

type Service struct {
	types    Repository
	registry *Registry
	logger   zerolog.Logger
}

func NewService(types Repository, registry *Registry, logger zerolog.Logger) *Service {
	return &Service{
		types:    types,
		registry: registry,
		logger:   logger.With().Str("component", "tasktype").Logger(),
	}
}

var _ cadence.Registry = (*Service)(nil)

func validate(t *TaskType) error {
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !t.Stages.HasContent() {
		return fmt.Errorf("at least one stage is required")
	}
	return nil
}

func (s *Service) CreateTaskType(ctx context.Context, t *TaskType) error {
	t.normalize()
	if err := validate(t); err != nil {
		return err
	}
	if err := s.types.Create(ctx, t); err != nil {
		return err
	}
	s.registry.Invalidate(t.Name)
	return nil
}

func (s *Service) GetTaskType(ctx context.Context, id uuid.UUID) (*TaskType, error) {
	return s.types.GetByID(ctx, id)
}

func (s *Service) UpdateTaskType(ctx context.Context, t *TaskType) error {
	t.normalize()
	if err := validate(t); err != nil {
		return err
	}
	old, err := s.types.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	if err := s.types.Update(ctx, t); err != nil {
		return err
	}
	s.registry.Invalidate(old.Name, t.Name)
	return nil
}

func (s *Service) DeleteTaskType(ctx context.Context, id uuid.UUID) error {
	old, err := s.types.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.types.Delete(ctx, id); err != nil {
		return err
	}
	s.registry.Invalidate(old.Name)
	return nil
}

func (s *Service) ListTaskTypes(ctx context.Context, limit, offset int) ([]*TaskType, int, error) {
	return s.types.List(ctx, limit, offset)
}

func (s *Service) ListAllTaskTypes(ctx context.Context) ([]*TaskType, error) {
	return s.types.ListAll(ctx)
}

// LookupStages serves the stage progression of a task type to the cadence
// resolver. Registry failures are logged here; the resolver treats them as
// "no next stage".
func (s *Service) LookupStages(ctx context.Context, taskName string) (cadence.Stages, bool, error) {
	stages, ok, err := s.registry.LookupStages(ctx, taskName)
	if err != nil {
		s.logger.Warn().Err(err).Str("task_name", taskName).Msg("task type lookup failed")
	}
	return stages, ok, err
}

// NextStage returns the interval that follows current for the named task
// type, if there is one.
func (s *Service) NextStage(ctx context.Context, taskName, current string) (string, bool) {
	return cadence.NextStage(ctx, s, taskName, current)
}

// Describe wraps NextStage for API responses.
func (s *Service) Describe(ctx context.Context, taskName, current string) NextStageResult {
	res := NextStageResult{TaskName: taskName, Interval: current}
	if next, ok := s.NextStage(ctx, taskName, current); ok {
		res.NextStage = &next
		res.CanAdvance = true
	}
	return res
}

// Seed creates the given task types or replaces the stages of those that
// already exist by name.
func (s *Service) Seed(ctx context.Context, types []*TaskType) (SeedResult, error) {
	var res SeedResult
	for _, t := range types {
		t.normalize()
		if err := validate(t); err != nil {
			return res, fmt.Errorf("task type %q: %w", t.Name, err)
		}
		created, err := s.types.Upsert(ctx, t)
		if err != nil {
			return res, fmt.Errorf("seed task type %q: %w", t.Name, err)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	s.registry.Purge()
	s.logger.Info().Int("created", res.Created).Int("updated", res.Updated).Msg("task types seeded")
	return res, nil
}
