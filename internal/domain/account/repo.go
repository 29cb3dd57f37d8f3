package account

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("account not found")
	ErrExists   = errors.New("username already taken")
)

type UpdateFunc func(current *User) (*User, error)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, username string, fn UpdateFunc) (*User, error)
	Delete(ctx context.Context, username string) error
}
