// Package contribution implements the submission workflow: students submit
// files to an open event, the event's coordinator accepts or rejects them,
// and accepted work collects reactions until the event closes.
package contribution

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"magazine/internal/apperr"
	"magazine/internal/assets"
	"magazine/internal/metrics"
	"magazine/internal/model"
)

// MaxFiles is the most documents one submission may carry.
const MaxFiles = 5

var (
	ErrNotFound       = apperr.NotFound("contribution_not_found", "Contribution not found!")
	ErrNotAccepted    = apperr.Conflict("contribution_not_accepted", "Contribution has not been accepted!")
	ErrNotPending     = apperr.Conflict("contribution_not_pending", "Contribution has already been accepted!")
	ErrUnknownCounter = apperr.Validation("invalid_counter", "counter", "counter must be like or dislike")
	ErrInvalidDelta   = apperr.Validation("invalid_delta", "delta", "delta must be +1 or -1")
	ErrContent        = apperr.Validation("content_required", "content", "Content is required!")
	ErrTooManyFiles   = apperr.Validation("too_many_files", "documents", "At most 5 files may be uploaded")
)

// Store is the persistence surface of the lifecycle.
type Store interface {
	Insert(ctx context.Context, c model.Contribution) error
	Get(ctx context.Context, id string) (model.Contribution, error)
	ListAccepted(ctx context.Context, eventID string) ([]model.ContributionView, error)
	ListPendingByCoordinator(ctx context.Context, coordinatorID string) ([]model.Contribution, error)
	SetAccepted(ctx context.Context, id string) error
	UpdateContent(ctx context.Context, id, content string, uploads model.FileList) error
	Delete(ctx context.Context, id string) error
	AdjustCounter(ctx context.Context, id string, counter model.Counter, delta int) (int, error)
	FilePaths(ctx context.Context, eventID string, acceptedOnly bool) ([]string, error)
}

// Events resolves the event a contribution belongs to.
type Events interface {
	Get(ctx context.Context, id string) (model.Event, error)
}

// Members resolves the faculty of a user, nil when unassigned.
type Members interface {
	FacultyOf(ctx context.Context, userID string) (*string, error)
}

// Files is the asset storage the lifecycle writes through.
type Files interface {
	Save(ctx context.Context, relDir string, up assets.Upload, p assets.Policy) (string, error)
	Remove(relDir string, names []string)
	RemoveDirIfEmpty(relDir string)
}

// Listing is the result of ListAccepted. An empty listing is not an error.
type Listing struct {
	Items []model.ContributionView
}

// Empty reports whether no accepted contributions were found.
func (l Listing) Empty() bool { return len(l.Items) == 0 }

// Service coordinates storage, files and authorization for contributions.
type Service struct {
	store   Store
	events  Events
	members Members
	files   Files
	policy  assets.Policy
	now     func() time.Time
}

// NewService wires the lifecycle. policy constrains every uploaded document.
func NewService(store Store, events Events, members Members, files Files, policy assets.Policy) *Service {
	return &Service{
		store:   store,
		events:  events,
		members: members,
		files:   files,
		policy:  policy,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.ErrInvalidID
	}
	return nil
}

// validateUploads runs the cheap checks so a bad batch is refused before any
// file is written.
func (s *Service) validateUploads(uploads []assets.Upload, required bool) error {
	if required && len(uploads) == 0 {
		return assets.ErrNoFile
	}
	if len(uploads) > MaxFiles {
		return ErrTooManyFiles
	}
	for _, up := range uploads {
		if err := assets.Validate(up, s.policy); err != nil {
			return err
		}
	}
	return nil
}

// storeUploads writes every upload into dir. On failure the files written
// so far are removed, and dir too when nothing else is left in it.
func (s *Service) storeUploads(ctx context.Context, dir string, uploads []assets.Upload) (model.FileList, error) {
	names := make(model.FileList, 0, len(uploads))
	for _, up := range uploads {
		name, err := s.files.Save(ctx, dir, up, s.policy)
		if err != nil {
			s.files.Remove(dir, names)
			s.files.RemoveDirIfEmpty(dir)
			return nil, err
		}
		names = append(names, name)
	}
	metrics.UploadedFiles.Add(float64(len(names)))
	return names, nil
}

// Submit creates a pending contribution for contributorID.
func (s *Service) Submit(ctx context.Context, contributorID, eventID, content string, uploads []assets.Upload) (model.Contribution, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Contribution{}, ErrContent
	}
	if err := s.validateUploads(uploads, true); err != nil {
		return model.Contribution{}, err
	}
	if _, err := uuid.Parse(eventID); err != nil {
		return model.Contribution{}, apperr.ErrEventNotFound
	}
	ev, err := s.events.Get(ctx, eventID)
	if err != nil {
		return model.Contribution{}, err
	}
	if !ev.OpenAt(s.now()) {
		return model.Contribution{}, apperr.ErrEventClosed
	}
	if ev.FacultyID != nil {
		faculty, err := s.members.FacultyOf(ctx, contributorID)
		if err != nil {
			return model.Contribution{}, err
		}
		if faculty == nil || *faculty != *ev.FacultyID {
			return model.Contribution{}, apperr.ErrForbidden
		}
	}

	dir := assets.ContributionDir(eventID, contributorID)
	names, err := s.storeUploads(ctx, dir, uploads)
	if err != nil {
		return model.Contribution{}, err
	}
	c := model.Contribution{
		ID:             uuid.NewString(),
		Content:        content,
		Uploads:        names,
		SubmissionDate: s.now(),
		ContributorID:  contributorID,
		EventID:        eventID,
	}
	if err := s.store.Insert(ctx, c); err != nil {
		slog.Warn("contribution insert failed, removing stored files", "event", eventID, "files", len(names), "error", err)
		s.files.Remove(dir, names)
		s.files.RemoveDirIfEmpty(dir)
		return model.Contribution{}, err
	}
	metrics.ContributionTransitions.WithLabelValues("submit").Inc()
	return c, nil
}

// ListAccepted returns the accepted contributions of an event.
func (s *Service) ListAccepted(ctx context.Context, eventID string) (Listing, error) {
	if err := checkID(eventID); err != nil {
		return Listing{}, err
	}
	if _, err := s.events.Get(ctx, eventID); err != nil {
		return Listing{}, err
	}
	items, err := s.store.ListAccepted(ctx, eventID)
	if err != nil {
		return Listing{}, err
	}
	return Listing{Items: items}, nil
}

// ListPending returns pending work for the events coordinatorID created.
func (s *Service) ListPending(ctx context.Context, coordinatorID string) ([]model.Contribution, error) {
	return s.store.ListPendingByCoordinator(ctx, coordinatorID)
}

// Get returns one contribution.
func (s *Service) Get(ctx context.Context, id string) (model.Contribution, error) {
	if err := checkID(id); err != nil {
		return model.Contribution{}, err
	}
	return s.store.Get(ctx, id)
}

// load returns the contribution and its event.
func (s *Service) load(ctx context.Context, id string) (model.Contribution, model.Event, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return model.Contribution{}, model.Event{}, err
	}
	ev, err := s.events.Get(ctx, c.EventID)
	if err != nil {
		return model.Contribution{}, model.Event{}, err
	}
	return c, ev, nil
}

// Accept marks a contribution accepted. Accepting twice is a no-op.
func (s *Service) Accept(ctx context.Context, id, coordinatorID string) (model.Contribution, error) {
	c, ev, err := s.load(ctx, id)
	if err != nil {
		return model.Contribution{}, err
	}
	if ev.CreatedBy != coordinatorID {
		return model.Contribution{}, apperr.ErrForbidden
	}
	if c.Accepted {
		return c, nil
	}
	if err := s.store.SetAccepted(ctx, id); err != nil {
		return model.Contribution{}, err
	}
	c.Accepted = true
	metrics.ContributionTransitions.WithLabelValues("accept").Inc()
	return c, nil
}

// Reject deletes a pending contribution and its files.
func (s *Service) Reject(ctx context.Context, id, coordinatorID string) error {
	c, ev, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if ev.CreatedBy != coordinatorID {
		return apperr.ErrForbidden
	}
	if c.Accepted {
		return ErrNotPending
	}
	if err := s.remove(ctx, c); err != nil {
		return err
	}
	metrics.ContributionTransitions.WithLabelValues("reject").Inc()
	return nil
}

// Update replaces the content and, when uploads are given, the files of an
// accepted contribution owned by contributorID.
func (s *Service) Update(ctx context.Context, id, contributorID, content string, uploads []assets.Upload) (model.Contribution, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Contribution{}, ErrContent
	}
	if err := s.validateUploads(uploads, false); err != nil {
		return model.Contribution{}, err
	}
	c, ev, err := s.load(ctx, id)
	if err != nil {
		return model.Contribution{}, err
	}
	if c.ContributorID != contributorID {
		return model.Contribution{}, apperr.ErrForbidden
	}
	if !c.Accepted {
		return model.Contribution{}, ErrNotAccepted
	}
	if ev.ClosedAt(s.now()) {
		return model.Contribution{}, apperr.ErrEventClosed
	}

	dir := assets.ContributionDir(c.EventID, c.ContributorID)
	old := c.Uploads
	names := old
	if len(uploads) > 0 {
		if names, err = s.storeUploads(ctx, dir, uploads); err != nil {
			return model.Contribution{}, err
		}
	}
	if err := s.store.UpdateContent(ctx, id, content, names); err != nil {
		if len(uploads) > 0 {
			s.files.Remove(dir, names)
		}
		return model.Contribution{}, err
	}
	if len(uploads) > 0 {
		s.files.Remove(dir, old)
	}
	c.Content = content
	c.Uploads = names
	metrics.ContributionTransitions.WithLabelValues("update").Inc()
	return c, nil
}

// Delete withdraws a contribution before its event closes. Students may
// delete their own work; coordinators any work on events they created.
func (s *Service) Delete(ctx context.Context, id, actorID, role string) error {
	c, ev, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if ev.ClosedAt(s.now()) {
		return apperr.ErrEventClosed
	}
	switch role {
	case model.RoleStudent:
		if c.ContributorID != actorID {
			return apperr.ErrForbidden
		}
	case model.RoleCoordinator:
		if ev.CreatedBy != actorID {
			return apperr.ErrForbidden
		}
	default:
		return apperr.ErrForbidden
	}
	if err := s.remove(ctx, c); err != nil {
		return err
	}
	metrics.ContributionTransitions.WithLabelValues("delete").Inc()
	return nil
}

func (s *Service) remove(ctx context.Context, c model.Contribution) error {
	dir := assets.ContributionDir(c.EventID, c.ContributorID)
	s.files.Remove(dir, c.Uploads)
	if err := s.store.Delete(ctx, c.ID); err != nil {
		return err
	}
	s.files.RemoveDirIfEmpty(dir)
	return nil
}

// React moves a reaction counter of an accepted contribution by delta.
func (s *Service) React(ctx context.Context, id string, counter model.Counter, delta int) (int, error) {
	if _, ok := counter.Column(); !ok {
		return 0, ErrUnknownCounter
	}
	if delta != 1 && delta != -1 {
		return 0, ErrInvalidDelta
	}
	if err := checkID(id); err != nil {
		return 0, err
	}
	n, err := s.store.AdjustCounter(ctx, id, counter, delta)
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	metrics.Reactions.WithLabelValues("contribution", string(counter), outcome).Inc()
	return n, err
}

// ArchivePaths returns the <contributorId>/<file> paths of an event's
// uploads, restricted to accepted work when acceptedOnly is set. The result
// is never nil so it can be used as an export selector directly.
func (s *Service) ArchivePaths(ctx context.Context, eventID string, acceptedOnly bool) ([]string, error) {
	if err := checkID(eventID); err != nil {
		return nil, err
	}
	if _, err := s.events.Get(ctx, eventID); err != nil {
		return nil, err
	}
	paths, err := s.store.FilePaths(ctx, eventID, acceptedOnly)
	if err != nil {
		return nil, err
	}
	if paths == nil {
		paths = []string{}
	}
	return paths, nil
}
