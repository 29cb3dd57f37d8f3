package account

import (
	"context"
	"errors"

	"github.com/hsba/emr/internal/platform/memstore"
)

type memoryRepo struct {
	items *memstore.Collection[*User]
}

func NewMemoryRepo() Repository {
	return &memoryRepo{items: memstore.New(func(u *User) string { return u.Username })}
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

func (r *memoryRepo) Create(_ context.Context, u *User) error {
	cp := *u
	return mapErr(r.items.Insert(&cp))
}

func (r *memoryRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	u, err := r.items.Get(username)
	return u, mapErr(err)
}

func (r *memoryRepo) List(_ context.Context) ([]*User, error) {
	return r.items.All(), nil
}

func (r *memoryRepo) Update(_ context.Context, username string, fn UpdateFunc) (*User, error) {
	u, err := r.items.Update(username, func(cur *User) (*User, error) { return fn(cur) })
	return u, mapErr(err)
}

func (r *memoryRepo) Delete(_ context.Context, username string) error {
	_, err := r.items.Remove(username)
	return mapErr(err)
}
