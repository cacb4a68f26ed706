package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	CreateBatch(ctx context.Context, ps []*Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, facility string, limit, offset int) ([]*Patient, int, error)
	ListAll(ctx context.Context) ([]*Patient, error)
	Keys(ctx context.Context) (map[Key]bool, error)
}
