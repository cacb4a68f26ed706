package tasktype

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *TaskType) error
	GetByID(ctx context.Context, id uuid.UUID) (*TaskType, error)
	GetByName(ctx context.Context, name string) (*TaskType, error)
	Update(ctx context.Context, t *TaskType) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*TaskType, int, error)
	ListAll(ctx context.Context) ([]*TaskType, error)
	// Upsert creates t or replaces the stages of the type with the same
	// name. It reports whether a new row was created.
	Upsert(ctx context.Context, t *TaskType) (created bool, err error)
}
