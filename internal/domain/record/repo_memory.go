package record

import (
	"context"
	"errors"

	"github.com/hsba/emr/internal/platform/memstore"
)

type memoryRepo struct {
	items *memstore.Collection[*Record]
}

func NewMemoryRepo() Repository {
	return &memoryRepo{items: memstore.New(func(r *Record) string { return r.ID })}
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

func (m *memoryRepo) Create(_ context.Context, r *Record) error {
	cp := *r
	return mapErr(m.items.Insert(&cp))
}

func (m *memoryRepo) GetByID(_ context.Context, id string) (*Record, error) {
	r, err := m.items.Get(id)
	return r, mapErr(err)
}

func (m *memoryRepo) List(_ context.Context) ([]*Record, error) {
	return m.items.All(), nil
}

func (m *memoryRepo) ListByPatient(_ context.Context, patientID string) ([]*Record, error) {
	return m.items.Filter(func(r *Record) bool { return r.PatientID == patientID }), nil
}

func (m *memoryRepo) Update(_ context.Context, id string, fn UpdateFunc) (*Record, error) {
	r, err := m.items.Update(id, func(cur *Record) (*Record, error) { return fn(cur) })
	return r, mapErr(err)
}

func (m *memoryRepo) Delete(_ context.Context, id string) (*Record, error) {
	r, err := m.items.Remove(id)
	return r, mapErr(err)
}
