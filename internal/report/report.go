// Package report aggregates read-only statistics for managers.
package report

import (
	"context"
	"database/sql"
	"fmt"

	"magazine/internal/model"
)

// TopN is the length of every ranking.
const TopN = 3

// RankedContribution is a contribution stripped down for a ranking. Only the
// counter the ranking is ordered by is set.
type RankedContribution struct {
	ID           string `json:"id"`
	Accepted     bool   `json:"is_accepted"`
	LikeCount    *int   `json:"like_count,omitempty"`
	DislikeCount *int   `json:"dislike_count,omitempty"`
	Contributor  string `json:"contributor"`
	Event        string `json:"event"`
}

// TopEvent is an event ranked by how many contributions it received.
type TopEvent struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	FacultyID         *string `json:"faculty_id,omitempty"`
	ContributionCount int     `json:"contribution_count"`
}

// Report is the dashboard payload.
type Report struct {
	UserCount                int                  `json:"user_count"`
	ContributionCount        int                  `json:"contribution_count"`
	TopLikedContributions    []RankedContribution `json:"top_liked_contributions"`
	TopDislikedContributions []RankedContribution `json:"top_disliked_contributions"`
	TopEvents                []TopEvent           `json:"top_events"`
}

// Source answers the aggregate queries.
type Source interface {
	Totals(ctx context.Context) (users, contributions int, err error)
	TopContributions(ctx context.Context, counter model.Counter, n int) ([]RankedContribution, error)
	TopEvents(ctx context.Context, n int) ([]TopEvent, error)
}

type Service struct {
	src Source
}

func NewService(src Source) *Service {
	return &Service{src: src}
}

// Build runs every aggregate and assembles the report.
func (s *Service) Build(ctx context.Context) (Report, error) {
	var r Report
	var err error
	if r.UserCount, r.ContributionCount, err = s.src.Totals(ctx); err != nil {
		return Report{}, err
	}
	if r.TopLikedContributions, err = s.src.TopContributions(ctx, model.CounterLike, TopN); err != nil {
		return Report{}, err
	}
	if r.TopDislikedContributions, err = s.src.TopContributions(ctx, model.CounterDislike, TopN); err != nil {
		return Report{}, err
	}
	if r.TopEvents, err = s.src.TopEvents(ctx, TopN); err != nil {
		return Report{}, err
	}
	return r, nil
}

// Repository implements Source on Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Totals(ctx context.Context) (int, int, error) {
	var users, contributions int
	err := r.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM users), (SELECT COUNT(*) FROM contributions)
	`).Scan(&users, &contributions)
	if err != nil {
		return 0, 0, fmt.Errorf("report totals: %w", err)
	}
	return users, contributions, nil
}

// TopContributions ranks by the selected counter; ties go to the earliest
// submission.
func (r *Repository) TopContributions(ctx context.Context, counter model.Counter, n int) ([]RankedContribution, error) {
	col, ok := counter.Column()
	if !ok {
		return nil, fmt.Errorf("report: unknown counter %q", counter)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.is_accepted, c.`+col+`,
			COALESCE(u.full_name, 'User not found'), COALESCE(e.name, 'Event not found')
		FROM contributions c
		LEFT JOIN users u ON u.id = c.contributor_id
		LEFT JOIN events e ON e.id = c.event_id
		ORDER BY c.`+col+` DESC, c.submission_date
		LIMIT $1
	`, n)
	if err != nil {
		return nil, fmt.Errorf("report top %s: %w", col, err)
	}
	defer rows.Close()

	res := []RankedContribution{}
	for rows.Next() {
		var (
			rc    RankedContribution
			count int
		)
		if err := rows.Scan(&rc.ID, &rc.Accepted, &count, &rc.Contributor, &rc.Event); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		if counter == model.CounterLike {
			rc.LikeCount = &count
		} else {
			rc.DislikeCount = &count
		}
		res = append(res, rc)
	}
	return res, rows.Err()
}

// TopEvents ranks events by contribution volume; ties go to the event whose
// first contribution arrived earliest.
func (r *Repository) TopEvents(ctx context.Context, n int) ([]TopEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.name, e.faculty_id, COUNT(*) AS n
		FROM contributions c
		JOIN events e ON e.id = c.event_id
		GROUP BY e.id, e.name, e.faculty_id
		ORDER BY n DESC, MIN(c.submission_date)
		LIMIT $1
	`, n)
	if err != nil {
		return nil, fmt.Errorf("report top events: %w", err)
	}
	defer rows.Close()

	res := []TopEvent{}
	for rows.Next() {
		var (
			te      TopEvent
			faculty sql.NullString
		)
		if err := rows.Scan(&te.ID, &te.Name, &faculty, &te.ContributionCount); err != nil {
			return nil, fmt.Errorf("scan top event: %w", err)
		}
		if faculty.Valid {
			te.FacultyID = &faculty.String
		}
		res = append(res, te)
	}
	return res, rows.Err()
}
