package patient

import (
	"context"
	"errors"

	"github.com/hsba/emr/internal/platform/memstore"
)

type memoryRepo struct {
	items *memstore.Collection[*Patient]
}

// NewMemoryRepo returns a repository that lives for the life of the
// process. Stored patients are never mutated; updates publish new values.
func NewMemoryRepo() Repository {
	return &memoryRepo{items: memstore.New(func(p *Patient) string { return p.ID })}
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, memstore.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, memstore.ErrExists):
		return ErrExists
	}
	return err
}

func (r *memoryRepo) Create(_ context.Context, p *Patient) error {
	cp := *p
	return mapErr(r.items.Insert(&cp))
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*Patient, error) {
	p, err := r.items.Get(id)
	return p, mapErr(err)
}

func (r *memoryRepo) List(_ context.Context) ([]*Patient, error) {
	return r.items.All(), nil
}

func (r *memoryRepo) Update(_ context.Context, id string, fn UpdateFunc) (*Patient, error) {
	p, err := r.items.Update(id, func(cur *Patient) (*Patient, error) { return fn(cur) })
	return p, mapErr(err)
}

func (r *memoryRepo) Delete(_ context.Context, id string) error {
	_, err := r.items.Remove(id)
	return mapErr(err)
}
