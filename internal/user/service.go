// Package user handles accounts: login and token refresh, administration of
// users, roles and faculties, profile editing and password recovery.
package user

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/mail"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"magazine/internal/apperr"
	"magazine/internal/assets"
	"magazine/internal/auth"
	"magazine/internal/cloudinary"
	"magazine/internal/model"
)

var (
	ErrBadCredentials  = apperr.Validation("invalid_credentials", "", "Invalid email or password!")
	ErrAccountDisabled = apperr.Validation("account_disabled", "", "Account has been disabled!")
	ErrEmail           = apperr.Validation("invalid_email", "email", "Email is not valid!")
	ErrPhone           = apperr.Validation("invalid_phone", "phone_number", "Phone number is not valid!")
	ErrPassword        = apperr.Validation("invalid_password", "password", "Password must be 8 to 16 characters long!")
	ErrFullName        = apperr.Validation("name_required", "full_name", "Full name is required!")
	ErrRoleRequired    = apperr.Validation("role_required", "role", "Role is required!")
	ErrNameRequired    = apperr.Validation("name_required", "name", "Name is required!")
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{9,15}$`)

// Store is the persistence surface of the service.
type Store interface {
	Get(ctx context.Context, id string) (model.User, error)
	ByEmail(ctx context.Context, email string) (model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Insert(ctx context.Context, u model.User) error
	UpdateProfile(ctx context.Context, u model.User) error
	SetPassword(ctx context.Context, id, hash string) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, id string) error
	SaveRefreshToken(ctx context.Context, token, userID string, expires time.Time) error
	ConsumeRefreshToken(ctx context.Context, token string, now time.Time) (string, error)
	RoleID(ctx context.Context, name string) (string, error)
	FacultyID(ctx context.Context, name string) (string, error)
	ListRoles(ctx context.Context) ([]model.Role, error)
	ListFaculties(ctx context.Context) ([]model.Faculty, error)
	InsertRole(ctx context.Context, name string) (model.Role, error)
	InsertFaculty(ctx context.Context, name string) (model.Faculty, error)
}

// Mailer delivers a freshly generated password.
type Mailer interface {
	PasswordReset(ctx context.Context, to, name, password string) error
}

// Pictures stores profile pictures on local disk.
type Pictures interface {
	Save(ctx context.Context, relDir string, up assets.Upload, p assets.Policy) (string, error)
	Remove(relDir string, names []string)
}

// PictureHost stores profile pictures remotely.
type PictureHost interface {
	Upload(ctx context.Context, r io.Reader, filename string) (*cloudinary.UploadResult, error)
}

// Options tunes the service.
type Options struct {
	// PublicBaseURL prefixes locally stored pictures.
	PublicBaseURL   string
	MaxPictureBytes int64
}

// Service implements account operations.
type Service struct {
	store    Store
	signer   *auth.Signer
	mailer   Mailer
	pictures Pictures
	host     PictureHost
	opts     Options
	cost     int
	now      func() time.Time
}

func NewService(store Store, signer *auth.Signer, mailer Mailer, pictures Pictures, opts Options) *Service {
	return &Service{
		store:    store,
		signer:   signer,
		mailer:   mailer,
		pictures: pictures,
		opts:     opts,
		cost:     bcrypt.DefaultCost,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithPictureHost routes profile pictures to a remote host instead of disk.
func (s *Service) WithPictureHost(h PictureHost) *Service {
	s.host = h
	return s
}

// Session is the result of a login or refresh.
type Session struct {
	auth.TokenPair
	User model.User `json:"data"`
}

func (s *Service) issue(ctx context.Context, u model.User) (auth.TokenPair, error) {
	pair, err := s.signer.Issue(u.ID, u.RoleName)
	if err != nil {
		return auth.TokenPair{}, err
	}
	if err := s.store.SaveRefreshToken(ctx, pair.RefreshToken, u.ID, pair.RefreshExp); err != nil {
		return auth.TokenPair{}, err
	}
	return pair, nil
}

// Login checks credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.store.ByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrBadCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrBadCredentials
	}
	if !u.Active {
		return Session{}, ErrAccountDisabled
	}
	pair, err := s.issue(ctx, u)
	if err != nil {
		return Session{}, err
	}
	now := s.now()
	if err := s.store.TouchLogin(ctx, u.ID, now); err != nil {
		slog.Warn("could not record login", "user", u.ID, "error", err)
	}
	u.LastLogin = &now
	return Session{TokenPair: pair, User: s.present(u)}, nil
}

// Refresh exchanges a refresh token for a new pair. The old token is revoked.
func (s *Service) Refresh(ctx context.Context, token string) (Session, error) {
	claims, err := s.signer.Parse(token, auth.KindRefresh)
	if err != nil {
		return Session{}, ErrRefreshRejected
	}
	userID, err := s.store.ConsumeRefreshToken(ctx, token, s.now())
	if err != nil {
		return Session{}, err
	}
	if userID != claims.Subject {
		return Session{}, ErrRefreshRejected
	}
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if !u.Active {
		return Session{}, ErrRefreshRejected
	}
	pair, err := s.issue(ctx, u)
	if err != nil {
		return Session{}, err
	}
	return Session{TokenPair: pair, User: s.present(u)}, nil
}

// CreateInput is what an administrator supplies for a new account.
type CreateInput struct {
	FullName    string     `json:"full_name"`
	Email       string     `json:"email"`
	Password    string     `json:"password"`
	DOB         *time.Time `json:"dob"`
	PhoneNumber *string    `json:"phone_number"`
	Gender      *bool      `json:"gender"`
	Faculty     string     `json:"faculty"`
	Role        string     `json:"role"`
}

func validPassword(p string) bool {
	n := len([]rune(p))
	return n >= 8 && n <= 16
}

func normalizePhone(p *string) (*string, error) {
	if p == nil || strings.TrimSpace(*p) == "" {
		return nil, nil
	}
	v := strings.TrimSpace(*p)
	if !phonePattern.MatchString(v) {
		return nil, ErrPhone
	}
	return &v, nil
}

func normalizeEmail(e string) (string, error) {
	e = strings.TrimSpace(e)
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return "", ErrEmail
	}
	return strings.ToLower(e), nil
}

// CreateUser registers a new account on behalf of creatorID.
func (s *Service) CreateUser(ctx context.Context, creatorID string, in CreateInput) (model.User, error) {
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return model.User{}, ErrFullName
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return model.User{}, err
	}
	if !validPassword(in.Password) {
		return model.User{}, ErrPassword
	}
	phone, err := normalizePhone(in.PhoneNumber)
	if err != nil {
		return model.User{}, err
	}
	if strings.TrimSpace(in.Role) == "" {
		return model.User{}, ErrRoleRequired
	}
	roleID, err := s.store.RoleID(ctx, strings.TrimSpace(in.Role))
	if err != nil {
		return model.User{}, err
	}
	var facultyID *string
	if f := strings.TrimSpace(in.Faculty); f != "" {
		id, err := s.store.FacultyID(ctx, f)
		if err != nil {
			return model.User{}, err
		}
		facultyID = &id
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return model.User{}, err
	}

	u := model.User{
		ID:               uuid.NewString(),
		FullName:         name,
		Email:            email,
		PasswordHash:     string(hash),
		DOB:              in.DOB,
		PhoneNumber:      phone,
		Gender:           in.Gender,
		RegistrationDate: s.now(),
		Active:           true,
		FacultyID:        facultyID,
		RoleID:           roleID,
	}
	if creatorID != "" {
		u.CreatedBy = &creatorID
	}
	if err := s.store.Insert(ctx, u); err != nil {
		return model.User{}, err
	}
	return s.store.Get(ctx, u.ID)
}

// Profile returns the caller's own account.
func (s *Service) Profile(ctx context.Context, id string) (model.User, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	return s.present(u), nil
}

// ProfileInput lists the self-editable fields. Nil fields are left alone.
type ProfileInput struct {
	FullName    *string
	DOB         *time.Time
	PhoneNumber *string
	Gender      *bool
}

// UpdateProfile edits the caller's account, optionally replacing the picture.
func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileInput, picture *assets.Upload) (model.User, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return model.User{}, ErrFullName
		}
		u.FullName = name
	}
	if in.PhoneNumber != nil {
		if u.PhoneNumber, err = normalizePhone(in.PhoneNumber); err != nil {
			return model.User{}, err
		}
	}
	if in.DOB != nil {
		u.DOB = in.DOB
	}
	if in.Gender != nil {
		u.Gender = in.Gender
	}

	old := u.ProfilePicture
	var stored string
	if picture != nil {
		policy := assets.ImagePolicy(s.opts.MaxPictureBytes)
		if err := assets.Validate(*picture, policy); err != nil {
			return model.User{}, err
		}
		if stored, err = s.storePicture(ctx, *picture, policy); err != nil {
			return model.User{}, err
		}
		u.ProfilePicture = stored
	}
	if err := s.store.UpdateProfile(ctx, u); err != nil {
		if stored != "" {
			s.removeLocal(stored)
		}
		return model.User{}, err
	}
	if stored != "" && old != "" {
		s.removeLocal(old)
	}
	return s.present(u), nil
}

func (s *Service) storePicture(ctx context.Context, up assets.Upload, policy assets.Policy) (string, error) {
	if s.host != nil {
		res, err := s.host.Upload(ctx, up.Reader, up.Name)
		if err != nil {
			return "", apperr.Upstream(err)
		}
		return res.SecureURL, nil
	}
	name, err := s.pictures.Save(ctx, assets.CategoryProfilePictures, up, policy)
	if err != nil {
		return "", err
	}
	return path.Join(assets.CategoryProfilePictures, name), nil
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// removeLocal drops a locally stored picture. Remote pictures are left to
// the host.
func (s *Service) removeLocal(ref string) {
	if ref == "" || isRemote(ref) {
		return
	}
	s.pictures.Remove(assets.CategoryProfilePictures, []string{path.Base(ref)})
}

// present resolves the picture reference into a URL.
func (s *Service) present(u model.User) model.User {
	if u.ProfilePicture != "" && !isRemote(u.ProfilePicture) {
		u.ProfilePicture = strings.TrimRight(s.opts.PublicBaseURL, "/") + "/public/uploads/" + u.ProfilePicture
	}
	return u
}

const passwordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generatePassword(n int) (string, error) {
	b := make([]byte, n)
	limit := big.NewInt(int64(len(passwordAlphabet)))
	for i := range b {
		k, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = passwordAlphabet[k.Int64()]
	}
	return string(b), nil
}

// ForgotPassword replaces the password of the account behind email with a
// random one and mails it. Unknown addresses succeed silently.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.store.ByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, ErrNotFound) {
		slog.Info("password reset for unknown address")
		return nil
	}
	if err != nil {
		return err
	}
	if !u.Active {
		return nil
	}
	password, err := generatePassword(12)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}
	if err := s.store.SetPassword(ctx, u.ID, string(hash)); err != nil {
		return err
	}
	if err := s.mailer.PasswordReset(ctx, u.Email, u.FullName, password); err != nil {
		// The new password never reached its owner, so the old one stays valid.
		if rbErr := s.store.SetPassword(context.WithoutCancel(ctx), u.ID, u.PasswordHash); rbErr != nil {
			slog.Error("could not restore password after failed reset mail", "user", u.ID, "error", rbErr)
		}
		return apperr.Upstream(err)
	}
	return nil
}

// Delete deactivates an account. The record is kept for its contributions.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.ErrInvalidID
	}
	return s.store.Deactivate(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]model.User, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i] = s.present(users[i])
	}
	return users, nil
}

func (s *Service) ListRoles(ctx context.Context) ([]model.Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *Service) CreateRole(ctx context.Context, name string) (model.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Role{}, ErrNameRequired
	}
	return s.store.InsertRole(ctx, name)
}

func (s *Service) ListFaculties(ctx context.Context) ([]model.Faculty, error) {
	return s.store.ListFaculties(ctx)
}

func (s *Service) CreateFaculty(ctx context.Context, name string) (model.Faculty, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Faculty{}, ErrNameRequired
	}
	return s.store.InsertFaculty(ctx, name)
}
