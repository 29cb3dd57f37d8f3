package account

import (
	"time"

	"github.com/hsba/emr/internal/platform/auth"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// User is a login account. Password is accepted on writes only; the
// stored form is the bcrypt hash.
type User struct {
	Username     string    `json:"username"`
	Password     string    `json:"password,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u *User) Active() bool {
	return u.Status == StatusActive
}

// Public returns a copy safe to send to clients.
func (u *User) Public() *User {
	cp := *u
	cp.Password = ""
	cp.PasswordHash = ""
	return &cp
}

func validStatus(s string) bool {
	return s == StatusActive || s == StatusInactive
}

func validRole(r string) bool {
	return auth.ValidRole(r)
}
