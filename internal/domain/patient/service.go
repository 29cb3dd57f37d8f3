package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hsba/emr/internal/platform/ids"
)

var ErrInvalidPatient = errors.New("invalid patient")

// Topic is the change-event topic for patients.
const Topic = "patients"

const (
	EventCreated = "patient.created"
	EventUpdated = "patient.updated"
	EventDeleted = "patient.deleted"
)

// Notifier receives change events after a successful write.
type Notifier interface {
	Notify(topic, kind string, payload any)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, any) {}

type Service struct {
	repo     Repository
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, notifier: nopNotifier{}, logger: logger, now: time.Now}
}

// SetNotifier replaces the change-event sink. A nil n disables events.
func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

func validate(p *Patient) error {
	if strings.TrimSpace(p.FullName) == "" {
		return fmt.Errorf("%w: fullName is required", ErrInvalidPatient)
	}
	return nil
}

// Create registers p under a new BN id, ignoring any client supplied id.
func (s *Service) Create(ctx context.Context, p *Patient) (*Patient, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPatient)
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	now := s.now()
	created := *p
	created.ID = ids.Next(ids.PrefixPatient, now)
	created.CreatedAt = now
	created.UpdatedAt = now
	created.normalize(now)

	if err := s.repo.Create(ctx, &created); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	s.logger.Info().Str("patient_id", created.ID).Msg("patient registered")
	s.notifier.Notify(Topic, EventCreated, &created)
	return &created, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns the patients matching query in registration order.
func (s *Service) List(ctx context.Context, query string) ([]*Patient, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return Filter(all, query), nil
}

// Replace overwrites the editable fields of patient id with p.
func (s *Service) Replace(ctx context.Context, id string, p *Patient) (*Patient, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPatient)
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, id, func(cur *Patient) (*Patient, error) {
		now := s.now()
		next := *p
		next.ID = cur.ID
		next.CreatedAt = cur.CreatedAt
		next.UpdatedAt = now
		next.normalize(now)
		return &next, nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(Topic, EventUpdated, updated)
	return updated, nil
}

// Apply runs actions in order against patient id. Either all of them are
// stored or none.
func (s *Service) Apply(ctx context.Context, id string, actions []SetField) (*Patient, error) {
	if len(actions) == 0 {
		return nil, fmt.Errorf("%w: no actions", ErrInvalidPatient)
	}
	updated, err := s.repo.Update(ctx, id, func(cur *Patient) (*Patient, error) {
		now := s.now()
		next := cur
		for _, a := range actions {
			var err error
			if next, err = Reduce(next, a, now); err != nil {
				return nil, err
			}
		}
		if err := validate(next); err != nil {
			return nil, err
		}
		if next == cur {
			cp := *cur
			next = &cp
		}
		next.UpdatedAt = now
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(Topic, EventUpdated, updated)
	return updated, nil
}

// Delete removes the patient. Records keep their snapshot of the patient.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", id).Msg("patient deleted")
	s.notifier.Notify(Topic, EventDeleted, map[string]string{"id": id})
	return nil
}
