package event

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"magazine/internal/apperr"
	"magazine/internal/model"
)

var eventCols = []string{"id", "name", "description", "create_date", "due_date", "closure_date", "is_enable", "last_update", "create_by", "faculty_id"}

func newMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestRepositoryGet(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow("e1", "Spring", "", now, now.Add(time.Hour), now.Add(2*time.Hour), true, now, "u1", "f1"))

	e, err := repo.Get(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.FacultyID == nil || *e.FacultyID != "f1" || e.CreatedBy != "u1" {
		t.Errorf("event = %+v", e)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRepositoryGetMissing(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(`SELECT .+ FROM events`).WillReturnError(sql.ErrNoRows)

	if _, err := repo.Get(context.Background(), "e1"); !errors.Is(err, apperr.ErrEventNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestRepositoryListFiltersFaculty(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`WHERE faculty_id IS NULL OR faculty_id = \$1`).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow("e1", "A", "", now, now, now, true, now, "u1", nil).
			AddRow("e2", "B", "", now, now, now, true, now, "u1", "f1"))

	events, err := repo.List(context.Background(), "f1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 || events[0].FacultyID != nil {
		t.Errorf("events = %+v", events)
	}
}

func TestRepositoryInsertUnknownFaculty(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO events`).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := repo.Insert(context.Background(), model.Event{ID: "e1"})
	if !errors.Is(err, ErrUnknownFaculty) {
		t.Fatalf("err = %v", err)
	}
}

func TestRepositoryDeleteMissing(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(`DELETE FROM events WHERE id = \$1`).
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), "e1"); !errors.Is(err, apperr.ErrEventNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestRepositoryDetail(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	cols := append(append([]string{}, eventCols...), "creator", "faculty", "count")
	mock.ExpectQuery(`LEFT JOIN users u`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("e1", "Spring", "", now, now, now, true, now, "u1", nil, "Cora", "", 4))

	d, err := repo.Detail(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if d.CreatorName != "Cora" || d.ContributionCount != 4 || d.ID != "e1" {
		t.Errorf("detail = %+v", d)
	}
}
