package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"magazine/internal/apperr"
	"magazine/internal/model"
	"magazine/internal/store"
)

// ErrUnknownFaculty is returned when an event references a missing faculty.
var ErrUnknownFaculty = apperr.Validation("faculty_not_found", "faculty_id", "Faculty not found!")

// Repository persists events in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const eventColumns = `id, name, description, create_date, due_date, closure_date, is_enable, last_update, create_by, faculty_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner, extra ...any) (model.Event, error) {
	var (
		e       model.Event
		faculty sql.NullString
	)
	dest := append([]any{&e.ID, &e.Name, &e.Description, &e.CreateDate, &e.DueDate, &e.ClosureDate,
		&e.Enabled, &e.LastUpdate, &e.CreatedBy, &faculty}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.Event{}, err
	}
	if faculty.Valid {
		e.FacultyID = &faculty.String
	}
	return e, nil
}

// Get returns a single event by id.
func (r *Repository) Get(ctx context.Context, id string) (model.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Event{}, apperr.ErrEventNotFound
		}
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// List returns events, newest first. A non-empty facultyID restricts the
// result to that faculty and to events without a faculty scope.
func (r *Repository) List(ctx context.Context, facultyID string) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	var args []any
	if facultyID != "" {
		query += ` WHERE faculty_id IS NULL OR faculty_id = $1`
		args = append(args, facultyID)
	}
	query += ` ORDER BY create_date DESC`
	return r.query(ctx, query, args...)
}

// SearchByName matches a case-insensitive substring of the event name.
func (r *Repository) SearchByName(ctx context.Context, name string) ([]model.Event, error) {
	return r.query(ctx, `SELECT `+eventColumns+` FROM events
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY create_date DESC`, name)
}

func (r *Repository) query(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	res := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// Insert writes a new event.
func (r *Repository) Insert(ctx context.Context, e model.Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, name, description, create_date, due_date, closure_date, is_enable, last_update, create_by, faculty_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, e.ID, e.Name, e.Description, e.CreateDate, e.DueDate, e.ClosureDate, e.Enabled, e.LastUpdate, e.CreatedBy, e.FacultyID)
	if store.IsForeignKeyViolation(err) {
		return ErrUnknownFaculty
	}
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an event.
func (r *Repository) Update(ctx context.Context, e model.Event) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE events
		SET name = $2, description = $3, due_date = $4, closure_date = $5, is_enable = $6, faculty_id = $7, last_update = $8
		WHERE id = $1
	`, e.ID, e.Name, e.Description, e.DueDate, e.ClosureDate, e.Enabled, e.FacultyID, e.LastUpdate)
	if store.IsForeignKeyViolation(err) {
		return ErrUnknownFaculty
	}
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrEventNotFound
	}
	return nil
}

// Delete removes an event.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrEventNotFound
	}
	return nil
}

// CountContributions returns how many contributions reference the event.
func (r *Repository) CountContributions(ctx context.Context, id string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contributions WHERE event_id = $1`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count contributions: %w", err)
	}
	return n, nil
}

// Detail returns an event with creator and faculty names and its
// contribution count.
func (r *Repository) Detail(ctx context.Context, id string) (model.EventDetail, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT e.id, e.name, e.description, e.create_date, e.due_date, e.closure_date, e.is_enable, e.last_update, e.create_by, e.faculty_id,
			COALESCE(u.full_name, ''), COALESCE(f.name, ''),
			(SELECT COUNT(*) FROM contributions c WHERE c.event_id = e.id)
		FROM events e
		LEFT JOIN users u ON u.id = e.create_by
		LEFT JOIN faculties f ON f.id = e.faculty_id
		WHERE e.id = $1
	`, id)
	var d model.EventDetail
	e, err := scanEvent(row, &d.CreatorName, &d.FacultyName, &d.ContributionCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.EventDetail{}, apperr.ErrEventNotFound
		}
		return model.EventDetail{}, fmt.Errorf("event detail: %w", err)
	}
	d.Event = e
	return d, nil
}
