// Package comment lets students discuss accepted contributions.
package comment

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"magazine/internal/apperr"
	"magazine/internal/metrics"
	"magazine/internal/model"
)

var (
	ErrNotFound       = apperr.NotFound("comment_not_found", "Comment not found!")
	ErrContent        = apperr.Validation("content_required", "content", "Comment content is required!")
	ErrUnknownCounter = apperr.Validation("invalid_counter", "counter", "counter must be like or dislike")
	ErrNotAccepted    = apperr.Conflict("contribution_not_accepted", "Only accepted contributions can be commented on!")
)

// notifyTimeout bounds how long comment creation waits on the mail queue.
const notifyTimeout = 2 * time.Second

type Store interface {
	Insert(ctx context.Context, c model.Comment) error
	Get(ctx context.Context, id string) (model.Comment, error)
	ListByContribution(ctx context.Context, contributionID string) ([]model.Comment, error)
	Increment(ctx context.Context, id string, counter model.Counter) (int, error)
	Delete(ctx context.Context, id string) error
}

// Contributions resolves the commented contribution.
type Contributions interface {
	Get(ctx context.Context, id string) (model.Contribution, error)
}

// Users resolves names and addresses for notifications.
type Users interface {
	Get(ctx context.Context, id string) (model.User, error)
}

// Notifier alerts a contributor about a new comment.
type Notifier interface {
	NewComment(ctx context.Context, to, name, excerpt, commenter, comment string) error
}

type Service struct {
	store         Store
	contributions Contributions
	users         Users
	notifier      Notifier
	now           func() time.Time
}

func NewService(store Store, contributions Contributions, users Users, notifier Notifier) *Service {
	return &Service{
		store:         store,
		contributions: contributions,
		users:         users,
		notifier:      notifier,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Create adds a comment to an accepted contribution and notifies its author.
// Notification problems are logged and never fail the call.
func (s *Service) Create(ctx context.Context, commenterID, contributionID, content string) (model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Comment{}, ErrContent
	}
	target, err := s.contributions.Get(ctx, contributionID)
	if err != nil {
		return model.Comment{}, err
	}
	if !target.Accepted {
		return model.Comment{}, ErrNotAccepted
	}
	c := model.Comment{
		ID:             uuid.NewString(),
		Content:        content,
		CommenterID:    commenterID,
		ContributionID: contributionID,
		CreatedDate:    s.now(),
		Status:         true,
	}
	if err := s.store.Insert(ctx, c); err != nil {
		return model.Comment{}, err
	}
	s.notify(ctx, target, c)
	return c, nil
}

func (s *Service) notify(ctx context.Context, target model.Contribution, c model.Comment) {
	if target.ContributorID == c.CommenterID {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	author, err := s.users.Get(ctx, target.ContributorID)
	if err != nil {
		slog.Warn("comment notification skipped", "contribution", target.ID, "error", err)
		return
	}
	commenter := "Someone"
	if u, err := s.users.Get(ctx, c.CommenterID); err == nil {
		commenter = u.FullName
	}
	if err := s.notifier.NewComment(ctx, author.Email, author.FullName, target.Content, commenter, c.Content); err != nil {
		slog.Warn("comment notification failed", "contribution", target.ID, "error", err)
	}
}

// List returns the comments of a contribution.
func (s *Service) List(ctx context.Context, contributionID string) ([]model.Comment, error) {
	if _, err := s.contributions.Get(ctx, contributionID); err != nil {
		return nil, err
	}
	return s.store.ListByContribution(ctx, contributionID)
}

// React increments the like or dislike counter of a comment.
func (s *Service) React(ctx context.Context, id string, counter model.Counter) (int, error) {
	if _, ok := counter.Column(); !ok {
		return 0, ErrUnknownCounter
	}
	if _, err := uuid.Parse(id); err != nil {
		return 0, apperr.ErrInvalidID
	}
	n, err := s.store.Increment(ctx, id, counter)
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	metrics.Reactions.WithLabelValues("comment", string(counter), outcome).Inc()
	return n, err
}

// Delete removes a comment written by actorID.
func (s *Service) Delete(ctx context.Context, id, actorID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.ErrInvalidID
	}
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.CommenterID != actorID {
		return apperr.ErrForbidden
	}
	return s.store.Delete(ctx, id)
}
