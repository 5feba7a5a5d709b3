package user

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"magazine/internal/apperr"
	"magazine/internal/assets"
	"magazine/internal/auth"
	"magazine/internal/model"
)

type refresh struct {
	userID  string
	expires time.Time
	revoked bool
}

type memStore struct {
	mu        sync.Mutex
	users     map[string]model.User
	tokens    map[string]*refresh
	roles     map[string]string
	faculties map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]model.User{},
		tokens:    map[string]*refresh{},
		roles:     map[string]string{"Student": "r-student", "Admin": "r-admin"},
		faculties: map[string]string{"Arts": "f-arts"},
	}
}

func (m *memStore) Get(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (m *memStore) ByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (m *memStore) List(context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, u := range m.users {
		if u.Active {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) Insert(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.users {
		if other.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	for name, id := range m.roles {
		if id == u.RoleID {
			u.RoleName = name
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *memStore) UpdateProfile(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memStore) SetPassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *memStore) TouchLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.LastLogin = &at
	m.users[id] = u
	return nil
}

func (m *memStore) Deactivate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !u.Active {
		return ErrNotFound
	}
	u.Active = false
	m.users[id] = u
	return nil
}

func (m *memStore) SaveRefreshToken(_ context.Context, token, userID string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = &refresh{userID: userID, expires: expires}
	return nil
}

func (m *memStore) ConsumeRefreshToken(_ context.Context, token string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.tokens[token]
	if !ok || r.revoked || !r.expires.After(now) {
		return "", ErrRefreshRejected
	}
	r.revoked = true
	return r.userID, nil
}

func (m *memStore) RoleID(_ context.Context, name string) (string, error) {
	if id, ok := m.roles[name]; ok {
		return id, nil
	}
	return "", ErrRoleNotFound
}

func (m *memStore) FacultyID(_ context.Context, name string) (string, error) {
	if id, ok := m.faculties[name]; ok {
		return id, nil
	}
	return "", ErrFacultyNotFound
}

func (m *memStore) ListRoles(context.Context) ([]model.Role, error) {
	var out []model.Role
	for name, id := range m.roles {
		out = append(out, model.Role{ID: id, Name: name, Status: true})
	}
	return out, nil
}

func (m *memStore) ListFaculties(context.Context) ([]model.Faculty, error) {
	var out []model.Faculty
	for name, id := range m.faculties {
		out = append(out, model.Faculty{ID: id, Name: name, Status: true})
	}
	return out, nil
}

func (m *memStore) InsertRole(_ context.Context, name string) (model.Role, error) {
	if _, ok := m.roles[name]; ok {
		return model.Role{}, ErrDuplicateRole
	}
	m.roles[name] = "r-" + name
	return model.Role{ID: "r-" + name, Name: name, Status: true}, nil
}

func (m *memStore) InsertFaculty(_ context.Context, name string) (model.Faculty, error) {
	if _, ok := m.faculties[name]; ok {
		return model.Faculty{}, ErrDuplicateFaculty
	}
	m.faculties[name] = "f-" + name
	return model.Faculty{ID: "f-" + name, Name: name, Status: true}, nil
}

type mailerFake struct {
	to, password string
	err          error
}

func (m *mailerFake) PasswordReset(_ context.Context, to, _, password string) error {
	m.to, m.password = to, password
	return m.err
}

type fixture struct {
	svc    *Service
	store  *memStore
	mailer *mailerFake
	signer *auth.Signer
	base   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newMemStore()
	m := &mailerFake{}
	signer := auth.NewSigner("test-key", "magazine", time.Hour, 24*time.Hour)
	base := t.TempDir()
	svc := NewService(st, signer, m, assets.New(base), Options{PublicBaseURL: "http://host", MaxPictureBytes: 1 << 20})
	svc.cost = bcrypt.MinCost
	return &fixture{svc: svc, store: st, mailer: m, signer: signer, base: base}
}

func (f *fixture) createStudent(t *testing.T) model.User {
	t.Helper()
	u, err := f.svc.CreateUser(context.Background(), "admin", CreateInput{
		FullName: "Sam Student",
		Email:    "Sam@Uni.edu",
		Password: "correct-horse",
		Faculty:  "Arts",
		Role:     "Student",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	badPhone := "12ab"
	base := CreateInput{FullName: "A", Email: "a@uni.edu", Password: "password1", Role: "Student"}

	tests := []struct {
		name string
		mod  func(*CreateInput)
		want error
	}{
		{"bad email", func(in *CreateInput) { in.Email = "not-an-email" }, ErrEmail},
		{"short password", func(in *CreateInput) { in.Password = "short" }, ErrPassword},
		{"long password", func(in *CreateInput) { in.Password = strings.Repeat("x", 17) }, ErrPassword},
		{"bad phone", func(in *CreateInput) { in.PhoneNumber = &badPhone }, ErrPhone},
		{"no role", func(in *CreateInput) { in.Role = "" }, ErrRoleRequired},
		{"unknown role", func(in *CreateInput) { in.Role = "Pirate" }, ErrRoleNotFound},
		{"unknown faculty", func(in *CreateInput) { in.Faculty = "Alchemy" }, ErrFacultyNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mod(&in)
			if _, err := f.svc.CreateUser(ctx, "admin", in); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	u := f.createStudent(t)
	if u.Email != "sam@uni.edu" || u.FacultyID == nil || *u.FacultyID != "f-arts" || u.CreatedBy == nil {
		t.Errorf("created = %+v", u)
	}
	if u.PasswordHash == "correct-horse" {
		t.Error("password stored in clear")
	}
	if _, err := f.svc.CreateUser(ctx, "admin", CreateInput{FullName: "B", Email: "sam@uni.edu", Password: "password1", Role: "Student"}); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("duplicate err = %v", err)
	}
}

func TestLoginAndRefreshRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createStudent(t)

	if _, err := f.svc.Login(ctx, "sam@uni.edu", "wrong-pass"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, err := f.svc.Login(ctx, "nobody@uni.edu", "correct-horse"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("unknown email err = %v", err)
	}

	sess, err := f.svc.Login(ctx, "SAM@uni.edu", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := f.signer.Parse(sess.AccessToken, auth.KindAccess)
	if err != nil || claims.Subject != u.ID || claims.Role != model.RoleStudent {
		t.Fatalf("claims = %+v, %v", claims, err)
	}
	if sess.User.LastLogin == nil {
		t.Error("last login not set")
	}

	next, err := f.svc.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == sess.RefreshToken {
		t.Error("refresh token not rotated")
	}
	if _, err := f.svc.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrRefreshRejected) {
		t.Errorf("reused token err = %v", err)
	}
	if _, err := f.svc.Refresh(ctx, sess.AccessToken); !errors.Is(err, ErrRefreshRejected) {
		t.Errorf("access token as refresh err = %v", err)
	}
}

func TestDisabledAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createStudent(t)
	sess, _ := f.svc.Login(ctx, "sam@uni.edu", "correct-horse")

	if err := f.svc.Delete(ctx, u.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.Login(ctx, "sam@uni.edu", "correct-horse"); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("login err = %v", err)
	}
	if _, err := f.svc.Refresh(ctx, sess.RefreshToken); !errors.Is(err, ErrRefreshRejected) {
		t.Errorf("refresh err = %v", err)
	}
	if err := f.svc.Delete(ctx, "nope"); !errors.Is(err, apperr.ErrInvalidID) {
		t.Errorf("bad id err = %v", err)
	}
	users, _ := f.svc.List(ctx)
	if len(users) != 0 {
		t.Errorf("deactivated user listed: %+v", users)
	}
}

func TestForgotPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createStudent(t)

	if err := f.svc.ForgotPassword(ctx, "ghost@uni.edu"); err != nil {
		t.Fatalf("unknown address err = %v", err)
	}
	if f.mailer.to != "" {
		t.Fatal("mail sent for unknown address")
	}

	if err := f.svc.ForgotPassword(ctx, "sam@uni.edu"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if f.mailer.to != "sam@uni.edu" || len(f.mailer.password) != 12 {
		t.Fatalf("mail = %+v", f.mailer)
	}
	if _, err := f.svc.Login(ctx, "sam@uni.edu", f.mailer.password); err != nil {
		t.Errorf("login with new password: %v", err)
	}
	if _, err := f.svc.Login(ctx, "sam@uni.edu", "correct-horse"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("old password still valid: %v", err)
	}

	current := f.mailer.password
	f.mailer.err = errors.New("relay down")
	if err := f.svc.ForgotPassword(ctx, "sam@uni.edu"); apperr.KindOf(err) != apperr.KindUpstream {
		t.Errorf("relay failure err = %v", err)
	}
	if _, err := f.svc.Login(ctx, "sam@uni.edu", current); err != nil {
		t.Errorf("password must survive a failed reset mail: %v", err)
	}
	if _, err := f.svc.Login(ctx, "sam@uni.edu", f.mailer.password); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("undelivered password accepted: %v", err)
	}
}

func pngUpload() assets.Upload {
	data := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)
	return assets.Upload{Name: "me.png", Size: int64(len(data)), Reader: bytes.NewReader(data)}
}

func TestUpdateProfilePicture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createStudent(t)
	name := "Samantha"

	got, err := f.svc.UpdateProfile(ctx, u.ID, ProfileInput{FullName: &name}, ptr(pngUpload()))
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if got.FullName != "Samantha" || !strings.HasPrefix(got.ProfilePicture, "http://host/public/uploads/profile_pictures/") {
		t.Fatalf("profile = %+v", got)
	}
	first := f.store.users[u.ID].ProfilePicture

	if _, err := f.svc.UpdateProfile(ctx, u.ID, ProfileInput{}, ptr(pngUpload())); err != nil {
		t.Fatalf("second update: %v", err)
	}
	second := f.store.users[u.ID].ProfilePicture
	if first == second {
		t.Fatal("picture not replaced")
	}
	entries := mustReadDir(t, f.base+"/"+assets.CategoryProfilePictures)
	if len(entries) != 1 || "profile_pictures/"+entries[0] != second {
		t.Errorf("pictures on disk = %v, want only %s", entries, second)
	}

	bad := assets.Upload{Name: "me.pdf", Size: 4, Reader: strings.NewReader("%PDF")}
	if _, err := f.svc.UpdateProfile(ctx, u.ID, ProfileInput{}, &bad); !errors.Is(err, assets.ErrFileType) {
		t.Errorf("pdf picture err = %v", err)
	}
}

func TestRolesAndFaculties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.CreateRole(ctx, " "); !errors.Is(err, ErrNameRequired) {
		t.Errorf("blank role err = %v", err)
	}
	if _, err := f.svc.CreateFaculty(ctx, "Arts"); !errors.Is(err, ErrDuplicateFaculty) {
		t.Errorf("duplicate faculty err = %v", err)
	}
	if fac, err := f.svc.CreateFaculty(ctx, "Science"); err != nil || fac.Name != "Science" {
		t.Errorf("CreateFaculty = %+v, %v", fac, err)
	}
	faculties, _ := f.svc.ListFaculties(ctx)
	if len(faculties) != 2 {
		t.Errorf("faculties = %+v", faculties)
	}
}

func ptr[T any](v T) *T { return &v }

func mustReadDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
