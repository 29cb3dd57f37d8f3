package record

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrExists        = errors.New("record already exists")
	ErrInvalidRecord = errors.New("invalid record")
)

// UpdateFunc derives the new version of a record from the stored one.
type UpdateFunc func(current *Record) (*Record, error)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
	ListByPatient(ctx context.Context, patientID string) ([]*Record, error)
	// Update applies fn atomically with respect to other updates of id.
	Update(ctx context.Context, id string, fn UpdateFunc) (*Record, error)
	// Delete removes the record and returns what was stored.
	Delete(ctx context.Context, id string) (*Record, error)
}
