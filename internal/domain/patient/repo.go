package patient

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("patient not found")
	ErrExists   = errors.New("patient already exists")
)

// UpdateFunc derives the new version of a patient from the stored one.
type UpdateFunc func(current *Patient) (*Patient, error)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id string) (*Patient, error)
	// List returns every patient in registration order.
	List(ctx context.Context) ([]*Patient, error)
	// Update applies fn atomically with respect to other updates of id.
	Update(ctx context.Context, id string, fn UpdateFunc) (*Patient, error)
	Delete(ctx context.Context, id string) error
}
