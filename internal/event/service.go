// Package event manages submission windows: creation, editing, lookup and
// the date invariants that govern when contributions are accepted.
package event

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"magazine/internal/apperr"
	"magazine/internal/model"
)

// Store is the persistence surface the service needs.
type Store interface {
	Get(ctx context.Context, id string) (model.Event, error)
	List(ctx context.Context, facultyID string) ([]model.Event, error)
	SearchByName(ctx context.Context, name string) ([]model.Event, error)
	Insert(ctx context.Context, e model.Event) error
	Update(ctx context.Context, e model.Event) error
	Delete(ctx context.Context, id string) error
	CountContributions(ctx context.Context, id string) (int, error)
	Detail(ctx context.Context, id string) (model.EventDetail, error)
}

// Input carries the editable fields of an event.
type Input struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"due_date"`
	ClosureDate time.Time `json:"closure_date"`
	Enabled     *bool     `json:"is_enable"`
	FacultyID   *string   `json:"faculty_id"`
}

var (
	errNameRequired = apperr.Validation("name_required", "name", "Event name is required!")
	errDueDate      = apperr.Validation("invalid_due_date", "due_date", "Due date must be after the creation date!")
	errClosureDate  = apperr.Validation("invalid_closure_date", "closure_date", "Closure date must be after the due date!")
	errHasEntries   = apperr.Conflict("event_has_contributions", "Event still has contributions!")
)

// Service implements event operations.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (in Input) validate(created time.Time) error {
	if strings.TrimSpace(in.Name) == "" {
		return errNameRequired
	}
	if !in.DueDate.After(created) {
		return errDueDate
	}
	if !in.ClosureDate.After(in.DueDate) {
		return errClosureDate
	}
	return nil
}

func normalizeFaculty(id *string) *string {
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil
	}
	v := strings.TrimSpace(*id)
	return &v
}

// Create validates and stores a new event owned by creatorID.
func (s *Service) Create(ctx context.Context, creatorID string, in Input) (model.Event, error) {
	now := s.now()
	if err := in.validate(now); err != nil {
		return model.Event{}, err
	}
	e := model.Event{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		CreateDate:  now,
		DueDate:     in.DueDate.UTC(),
		ClosureDate: in.ClosureDate.UTC(),
		Enabled:     true,
		LastUpdate:  now,
		CreatedBy:   creatorID,
		FacultyID:   normalizeFaculty(in.FacultyID),
	}
	if in.Enabled != nil {
		e.Enabled = *in.Enabled
	}
	if err := s.store.Insert(ctx, e); err != nil {
		return model.Event{}, err
	}
	return e, nil
}

// mayEdit reports whether actor may change e. Admins may edit any event,
// coordinators only their own.
func mayEdit(e model.Event, actorID, role string) bool {
	return role == model.RoleAdmin || e.CreatedBy == actorID
}

// Update replaces the editable fields of an event.
func (s *Service) Update(ctx context.Context, actorID, role, id string, in Input) (model.Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Event{}, apperr.ErrInvalidID
	}
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	if !mayEdit(e, actorID, role) {
		return model.Event{}, apperr.ErrForbidden
	}
	if err := in.validate(e.CreateDate); err != nil {
		return model.Event{}, err
	}
	e.Name = strings.TrimSpace(in.Name)
	e.Description = in.Description
	e.DueDate = in.DueDate.UTC()
	e.ClosureDate = in.ClosureDate.UTC()
	e.FacultyID = normalizeFaculty(in.FacultyID)
	if in.Enabled != nil {
		e.Enabled = *in.Enabled
	}
	e.LastUpdate = s.now()
	if err := s.store.Update(ctx, e); err != nil {
		return model.Event{}, err
	}
	return e, nil
}

// Delete removes an event that has no contributions.
func (s *Service) Delete(ctx context.Context, actorID, role, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.ErrInvalidID
	}
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !mayEdit(e, actorID, role) {
		return apperr.ErrForbidden
	}
	n, err := s.store.CountContributions(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return errHasEntries
	}
	return s.store.Delete(ctx, id)
}

// Get returns one event.
func (s *Service) Get(ctx context.Context, id string) (model.Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Event{}, apperr.ErrInvalidID
	}
	return s.store.Get(ctx, id)
}

// List returns every event, or only the unscoped ones plus those of
// facultyID when it is set.
func (s *Service) List(ctx context.Context, facultyID string) ([]model.Event, error) {
	facultyID = strings.TrimSpace(facultyID)
	if facultyID != "" {
		if _, err := uuid.Parse(facultyID); err != nil {
			return nil, apperr.ErrInvalidID
		}
	}
	return s.store.List(ctx, facultyID)
}

// Search finds events whose name contains name, ignoring case.
func (s *Service) Search(ctx context.Context, name string) ([]model.Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errNameRequired
	}
	return s.store.SearchByName(ctx, name)
}

func (s *Service) Detail(ctx context.Context, id string) (model.EventDetail, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.EventDetail{}, apperr.ErrInvalidID
	}
	return s.store.Detail(ctx, id)
}
