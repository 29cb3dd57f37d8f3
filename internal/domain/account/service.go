package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

)

var (
	ErrInvalidAccount     = errors.New("invalid account")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrSelfDelete         = errors.New("cannot delete the signed-in account")
)

// MinPasswordLength applies to new and changed passwords.
const MinPasswordLength = 6

// TokenIssuer signs login tokens.
type TokenIssuer interface {
	Issue(username, role, name string) (string, time.Time, error)
}

type Service struct {
	repo   Repository
	tokens TokenIssuer
	logger zerolog.Logger
	cost   int
	now    func() time.Time
}

func NewService(repo Repository, tokens TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, logger: logger, cost: bcrypt.DefaultCost, now: time.Now}
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

// Login checks the password and issues a token. Unknown users and wrong
// passwords fail the same way.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn().Str("username", u.Username).Msg("login failed")
		return nil, ErrInvalidCredentials
	}
	if !u.Active() {
		return nil, ErrAccountInactive
	}
	token, exp, err := s.tokens.Issue(u.Username, u.Role, u.Name)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("username", u.Username).Str("role", u.Role).Msg("login")
	return &Session{Token: token, ExpiresAt: exp, User: u.Public()}, nil
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalidAccount, MinPasswordLength)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func (s *Service) Create(ctx context.Context, u *User) (*User, error) {
	if u == nil {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidAccount)
	}
	created := *u
	created.Username = strings.TrimSpace(created.Username)
	if created.Username == "" || strings.ContainsAny(created.Username, " /") {
		return nil, fmt.Errorf("%w: username is required and may not contain spaces or slashes", ErrInvalidAccount)
	}
	if !validRole(created.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidAccount, created.Role)
	}
	if created.Status == "" {
		created.Status = StatusActive
	}
	if !validStatus(created.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidAccount, created.Status)
	}
	hash, err := s.hash(created.Password)
	if err != nil {
		return nil, err
	}
	created.Password = ""
	created.PasswordHash = hash
	created.CreatedAt = s.now()

	if err := s.repo.Create(ctx, &created); err != nil {
		return nil, err
	}
	s.logger.Info().Str("username", created.Username).Str("role", created.Role).Msg("account created")
	return created.Public(), nil
}

func (s *Service) Get(ctx context.Context, username string) (*User, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return u.Public(), nil
}

func (s *Service) List(ctx context.Context, query, role string) ([]*User, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	matched := Filter(all, query, role)
	out := make([]*User, len(matched))
	for i, u := range matched {
		out[i] = u.Public()
	}
	return out, nil
}

// Update changes name, role and status. A non-empty Password replaces the
// stored one.
func (s *Service) Update(ctx context.Context, username string, in *User) (*User, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidAccount)
	}
	if in.Role != "" && !validRole(in.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidAccount, in.Role)
	}
	if in.Status != "" && !validStatus(in.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidAccount, in.Status)
	}
	var hash string
	if in.Password != "" {
		var err error
		if hash, err = s.hash(in.Password); err != nil {
			return nil, err
		}
	}
	updated, err := s.repo.Update(ctx, username, func(cur *User) (*User, error) {
		next := *cur
		if in.Name != "" {
			next.Name = in.Name
		}
		if in.Role != "" {
			next.Role = in.Role
		}
		if in.Status != "" {
			next.Status = in.Status
		}
		if hash != "" {
			next.PasswordHash = hash
		}
		return &next, nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Public(), nil
}

// Delete removes username. actor is the signed-in user, who cannot delete
// their own account.
func (s *Service) Delete(ctx context.Context, actor, username string) error {
	if actor != "" && actor == username {
		return ErrSelfDelete
	}
	if err := s.repo.Delete(ctx, username); err != nil {
		return err
	}
	s.logger.Info().Str("username", username).Str("by", actor).Msg("account deleted")
	return nil
}
