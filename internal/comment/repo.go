package comment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"magazine/internal/model"
)

// Repository persists comments in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new comment.
func (r *Repository) Insert(ctx context.Context, c model.Comment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO comments (id, content, commenter_id, like_count, dislike_count, contribution_id, created_date, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, c.Content, c.CommenterID, c.LikeCount, c.DislikeCount, c.ContributionID, c.CreatedDate, c.Status)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// Get returns a comment by id.
func (r *Repository) Get(ctx context.Context, id string) (model.Comment, error) {
	var c model.Comment
	err := r.db.QueryRowContext(ctx, `
		SELECT id, content, commenter_id, like_count, dislike_count, contribution_id, created_date, status
		FROM comments WHERE id = $1
	`, id).Scan(&c.ID, &c.Content, &c.CommenterID, &c.LikeCount, &c.DislikeCount, &c.ContributionID, &c.CreatedDate, &c.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Comment{}, ErrNotFound
		}
		return model.Comment{}, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

// ListByContribution returns the active comments of a contribution, oldest
// first, with the commenter's name.
func (r *Repository) ListByContribution(ctx context.Context, contributionID string) ([]model.Comment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.content, c.commenter_id, COALESCE(u.full_name, ''), c.like_count, c.dislike_count,
			c.contribution_id, c.created_date, c.status
		FROM comments c
		LEFT JOIN users u ON u.id = c.commenter_id
		WHERE c.contribution_id = $1 AND c.status
		ORDER BY c.created_date
	`, contributionID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	res := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.Content, &c.CommenterID, &c.CommenterName, &c.LikeCount, &c.DislikeCount,
			&c.ContributionID, &c.CreatedDate, &c.Status); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// Increment bumps a reaction counter in place and returns the new value.
func (r *Repository) Increment(ctx context.Context, id string, counter model.Counter) (int, error) {
	col, ok := counter.Column()
	if !ok {
		return 0, ErrUnknownCounter
	}
	var n int
	err := r.db.QueryRowContext(ctx,
		`UPDATE comments SET `+col+` = `+col+` + 1 WHERE id = $1 AND status RETURNING `+col, id).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment %s: %w", col, err)
	}
	return n, nil
}

// Delete removes a comment.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
