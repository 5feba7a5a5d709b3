package event

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"magazine/internal/apperr"
	"magazine/internal/model"
)

type memStore struct {
	mu      sync.Mutex
	events  map[string]model.Event
	entries map[string]int
}

func newMemStore() *memStore {
	return &memStore{events: map[string]model.Event{}, entries: map[string]int{}}
}

func (m *memStore) Get(_ context.Context, id string) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return model.Event{}, apperr.ErrEventNotFound
	}
	return e, nil
}

func (m *memStore) List(_ context.Context, facultyID string) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Event
	for _, e := range m.events {
		if facultyID == "" || e.FacultyID == nil || *e.FacultyID == facultyID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) SearchByName(_ context.Context, name string) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Event
	for _, e := range m.events {
		if strings.Contains(strings.ToLower(e.Name), strings.ToLower(name)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) Insert(_ context.Context, e model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
	return nil
}

func (m *memStore) Update(_ context.Context, e model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; !ok {
		return apperr.ErrEventNotFound
	}
	m.events[e.ID] = e
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
	return nil
}

func (m *memStore) CountContributions(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[id], nil
}

func (m *memStore) Detail(ctx context.Context, id string) (model.EventDetail, error) {
	e, err := m.Get(ctx, id)
	if err != nil {
		return model.EventDetail{}, err
	}
	n, _ := m.CountContributions(ctx, id)
	return model.EventDetail{Event: e, ContributionCount: n}, nil
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService() (*Service, *memStore) {
	st := newMemStore()
	svc := NewService(st)
	svc.now = func() time.Time { return fixedNow }
	return svc, st
}

func validInput() Input {
	return Input{
		Name:        "Spring issue",
		DueDate:     fixedNow.Add(7 * 24 * time.Hour),
		ClosureDate: fixedNow.Add(14 * 24 * time.Hour),
	}
}

func TestCreateValidatesDates(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name string
		mod  func(*Input)
		code string
	}{
		{"ok", func(*Input) {}, ""},
		{"blank name", func(in *Input) { in.Name = "  " }, "name_required"},
		{"due in past", func(in *Input) { in.DueDate = fixedNow.Add(-time.Hour) }, "invalid_due_date"},
		{"due equals now", func(in *Input) { in.DueDate = fixedNow }, "invalid_due_date"},
		{"closure before due", func(in *Input) { in.ClosureDate = in.DueDate.Add(-time.Minute) }, "invalid_closure_date"},
		{"closure equals due", func(in *Input) { in.ClosureDate = in.DueDate }, "invalid_closure_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mod(&in)
			e, err := svc.Create(ctx, "coord", in)
			if tt.code == "" {
				if err != nil {
					t.Fatalf("Create: %v", err)
				}
				if !e.Enabled || e.CreatedBy != "coord" || !e.CreateDate.Equal(fixedNow) {
					t.Errorf("event = %+v", e)
				}
				return
			}
			var ae *apperr.Error
			if !errors.As(err, &ae) || ae.Code != tt.code {
				t.Fatalf("err = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestCreateBlankFacultyIsUnscoped(t *testing.T) {
	svc, _ := newTestService()
	in := validInput()
	blank := " "
	in.FacultyID = &blank
	e, err := svc.Create(context.Background(), "coord", in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.FacultyID != nil {
		t.Errorf("faculty = %v, want nil", *e.FacultyID)
	}
}

func TestUpdateAuthorization(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	e, err := svc.Create(ctx, "owner", validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	in := validInput()
	in.Name = "Renamed"
	if _, err := svc.Update(ctx, "other", model.RoleCoordinator, e.ID, in); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("other coordinator err = %v", err)
	}
	got, err := svc.Update(ctx, "admin", model.RoleAdmin, e.ID, in)
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if got.Name != "Renamed" || got.CreatedBy != "owner" {
		t.Errorf("updated = %+v", got)
	}
	if _, err := svc.Update(ctx, "owner", model.RoleCoordinator, "nope", in); !errors.Is(err, apperr.ErrInvalidID) {
		t.Errorf("bad id err = %v", err)
	}
	if _, err := svc.Update(ctx, "owner", model.RoleCoordinator, uuid.NewString(), in); !errors.Is(err, apperr.ErrEventNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestDeleteRefusedWithContributions(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()
	e, _ := svc.Create(ctx, "owner", validInput())
	st.entries[e.ID] = 2

	err := svc.Delete(ctx, "owner", model.RoleCoordinator, e.ID)
	if apperr.KindOf(err) != apperr.KindStateConflict {
		t.Fatalf("err = %v, want conflict", err)
	}

	st.entries[e.ID] = 0
	if err := svc.Delete(ctx, "owner", model.RoleCoordinator, e.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, e.ID); !errors.Is(err, apperr.ErrEventNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
}

func TestSearchRequiresName(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, _ = svc.Create(ctx, "c", validInput())

	if _, err := svc.Search(ctx, ""); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("empty search err = %v", err)
	}
	res, err := svc.Search(ctx, "SPRING")
	if err != nil || len(res) != 1 {
		t.Errorf("Search = %v, %v", res, err)
	}
}

func TestListFiltersByFaculty(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	faculty := uuid.NewString()

	open := validInput()
	if _, err := svc.Create(ctx, "admin", open); err != nil {
		t.Fatal(err)
	}
	scoped := validInput()
	scoped.FacultyID = &faculty
	if _, err := svc.Create(ctx, "admin", scoped); err != nil {
		t.Fatal(err)
	}
	other := validInput()
	otherID := uuid.NewString()
	other.FacultyID = &otherID
	if _, err := svc.Create(ctx, "admin", other); err != nil {
		t.Fatal(err)
	}

	all, _ := svc.List(ctx, "")
	if len(all) != 3 {
		t.Errorf("all = %d, want 3", len(all))
	}
	mine, err := svc.List(ctx, faculty)
	if err != nil || len(mine) != 2 {
		t.Errorf("faculty list = %d, %v", len(mine), err)
	}
	if _, err := svc.List(ctx, "engineering"); !errors.Is(err, apperr.ErrInvalidID) {
		t.Errorf("malformed faculty err = %v", err)
	}
}
