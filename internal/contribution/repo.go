package contribution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"

	"magazine/internal/apperr"
	"magazine/internal/model"
	"magazine/internal/store"
)

// Repository persists contributions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const contributionColumns = `id, content, uploads, like_count, dislike_count, submission_date, is_accepted, contributor_id, event_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanContribution(row scanner) (model.Contribution, error) {
	var c model.Contribution
	err := row.Scan(&c.ID, &c.Content, &c.Uploads, &c.LikeCount, &c.DislikeCount,
		&c.SubmissionDate, &c.Accepted, &c.ContributorID, &c.EventID)
	return c, err
}

// Insert writes a new contribution.
func (r *Repository) Insert(ctx context.Context, c model.Contribution) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contributions (id, content, uploads, like_count, dislike_count, submission_date, is_accepted, contributor_id, event_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, c.ID, c.Content, c.Uploads, c.LikeCount, c.DislikeCount, c.SubmissionDate, c.Accepted, c.ContributorID, c.EventID)
	if store.IsForeignKeyViolation(err) {
		return apperr.ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

// Get returns a contribution by id.
func (r *Repository) Get(ctx context.Context, id string) (model.Contribution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE id = $1`, id)
	c, err := scanContribution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Contribution{}, ErrNotFound
		}
		return model.Contribution{}, fmt.Errorf("get contribution: %w", err)
	}
	return c, nil
}

// ListAccepted returns the accepted contributions of an event with the
// contributor inlined, newest first.
func (r *Repository) ListAccepted(ctx context.Context, eventID string) ([]model.ContributionView, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.content, c.uploads, c.like_count, c.dislike_count, c.submission_date, c.event_id,
			c.contributor_id, COALESCE(u.full_name, ''), COALESCE(u.profile_picture, '')
		FROM contributions c
		LEFT JOIN users u ON u.id = c.contributor_id
		WHERE c.event_id = $1 AND c.is_accepted
		ORDER BY c.submission_date DESC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list accepted: %w", err)
	}
	defer rows.Close()

	var res []model.ContributionView
	for rows.Next() {
		var v model.ContributionView
		if err := rows.Scan(&v.ID, &v.Content, &v.Uploads, &v.LikeCount, &v.DislikeCount, &v.SubmissionDate, &v.EventID,
			&v.Contributor.ID, &v.Contributor.FullName, &v.Contributor.ProfilePicture); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// ListPendingByCoordinator returns pending contributions of events created by
// coordinatorID, oldest first.
func (r *Repository) ListPendingByCoordinator(ctx context.Context, coordinatorID string) ([]model.Contribution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.content, c.uploads, c.like_count, c.dislike_count, c.submission_date, c.is_accepted, c.contributor_id, c.event_id
		FROM contributions c
		JOIN events e ON e.id = c.event_id
		WHERE NOT c.is_accepted AND e.create_by = $1
		ORDER BY c.submission_date
	`, coordinatorID)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	res := []model.Contribution{}
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *Repository) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAccepted marks a contribution accepted.
func (r *Repository) SetAccepted(ctx context.Context, id string) error {
	return r.exec(ctx, "accept contribution", `UPDATE contributions SET is_accepted = TRUE WHERE id = $1`, id)
}

// UpdateContent replaces content and file list.
func (r *Repository) UpdateContent(ctx context.Context, id, content string, uploads model.FileList) error {
	return r.exec(ctx, "update contribution",
		`UPDATE contributions SET content = $2, uploads = $3 WHERE id = $1`, id, content, uploads)
}

// Delete removes a contribution and, by cascade, its comments.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "delete contribution", `DELETE FROM contributions WHERE id = $1`, id)
}

// AdjustCounter adds delta to the selected counter of an accepted
// contribution in a single conditional statement and returns the new value.
// When no row is updated the row is inspected to report why.
func (r *Repository) AdjustCounter(ctx context.Context, id string, counter model.Counter, delta int) (int, error) {
	col, ok := counter.Column()
	if !ok {
		return 0, ErrUnknownCounter
	}
	var n int
	err := r.db.QueryRowContext(ctx, `
		UPDATE contributions SET `+col+` = `+col+` + $2
		WHERE id = $1 AND is_accepted AND `+col+` + $2 >= 0
		RETURNING `+col, id, delta).Scan(&n)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("adjust %s: %w", col, err)
	}

	var accepted bool
	err = r.db.QueryRowContext(ctx, `SELECT is_accepted FROM contributions WHERE id = $1`, id).Scan(&accepted)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, ErrNotFound
	case err != nil:
		return 0, fmt.Errorf("inspect contribution: %w", err)
	case !accepted:
		return 0, ErrNotAccepted
	}
	return 0, apperr.ErrCounterUnderflow
}

// FilePaths lists the stored files of an event as <contributorId>/<file>.
func (r *Repository) FilePaths(ctx context.Context, eventID string, acceptedOnly bool) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT contributor_id, uploads FROM contributions
		WHERE event_id = $1 AND (is_accepted OR NOT $2)
	`, eventID, acceptedOnly)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var (
			contributor string
			files       model.FileList
		)
		if err := rows.Scan(&contributor, &files); err != nil {
			return nil, fmt.Errorf("scan files: %w", err)
		}
		for _, f := range files {
			res = append(res, path.Join(contributor, f))
		}
	}
	return res, rows.Err()
}
