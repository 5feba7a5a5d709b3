package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"magazine/internal/apperr"
	"magazine/internal/model"
	"magazine/internal/store"
)

var (
	ErrNotFound         = apperr.NotFound("user_not_found", "User not found!")
	ErrDuplicateEmail   = apperr.Conflict("email_taken", "Email already exists!")
	ErrDuplicatePhone   = apperr.Conflict("phone_taken", "Phone number already exists!")
	ErrDuplicateRole    = apperr.Conflict("role_exists", "Role already exists!")
	ErrDuplicateFaculty = apperr.Conflict("faculty_exists", "Faculty already exists!")
	ErrRoleNotFound     = apperr.Validation("role_not_found", "role", "Role not found!")
	ErrFacultyNotFound  = apperr.Validation("faculty_not_found", "faculty", "Faculty not found!")
	ErrRefreshRejected  = apperr.Unauthorized("invalid_credential", "Refresh token is invalid or expired")
)

// Repository persists users, roles, faculties and refresh tokens.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userSelect = `
	SELECT u.id, u.full_name, u.email, u.password_hash, u.dob, u.phone_number, u.gender, u.profile_picture,
		u.last_login, u.registration_date, u.account_status, u.faculty_id, COALESCE(f.name, ''),
		u.role_id, r.name, u.created_by
	FROM users u
	JOIN roles r ON r.id = u.role_id
	LEFT JOIN faculties f ON f.id = u.faculty_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (model.User, error) {
	var (
		u                  model.User
		dob, lastLogin     sql.NullTime
		phone, faculty, by sql.NullString
		gender             sql.NullBool
	)
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &dob, &phone, &gender, &u.ProfilePicture,
		&lastLogin, &u.RegistrationDate, &u.Active, &faculty, &u.FacultyName, &u.RoleID, &u.RoleName, &by)
	if err != nil {
		return model.User{}, err
	}
	if dob.Valid {
		u.DOB = &dob.Time
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	if phone.Valid {
		u.PhoneNumber = &phone.String
	}
	if gender.Valid {
		u.Gender = &gender.Bool
	}
	if faculty.Valid {
		u.FacultyID = &faculty.String
	}
	if by.Valid {
		u.CreatedBy = &by.String
	}
	return u, nil
}

func (r *Repository) one(ctx context.Context, where string, arg any) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, userSelect+` WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// Get returns a user with role and faculty names.
func (r *Repository) Get(ctx context.Context, id string) (model.User, error) {
	return r.one(ctx, `u.id = $1`, id)
}

// ByEmail looks a user up by e-mail, ignoring case.
func (r *Repository) ByEmail(ctx context.Context, email string) (model.User, error) {
	return r.one(ctx, `lower(u.email) = lower($1)`, email)
}

// List returns every active user.
func (r *Repository) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, userSelect+` WHERE u.account_status ORDER BY u.registration_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	res := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// FacultyOf returns the faculty id of a user, nil when unassigned.
func (r *Repository) FacultyOf(ctx context.Context, id string) (*string, error) {
	var faculty sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT faculty_id FROM users WHERE id = $1`, id).Scan(&faculty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user faculty: %w", err)
	}
	if !faculty.Valid {
		return nil, nil
	}
	return &faculty.String, nil
}

func duplicate(err error) error {
	constraint, ok := store.IsUniqueViolation(err)
	if !ok {
		return nil
	}
	if strings.Contains(constraint, "phone") {
		return ErrDuplicatePhone
	}
	return ErrDuplicateEmail
}

// Insert writes a new user.
func (r *Repository) Insert(ctx context.Context, u model.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, full_name, email, password_hash, dob, phone_number, gender, profile_picture,
			registration_date, account_status, faculty_id, role_id, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, u.ID, u.FullName, u.Email, u.PasswordHash, u.DOB, u.PhoneNumber, u.Gender, u.ProfilePicture,
		u.RegistrationDate, u.Active, u.FacultyID, u.RoleID, u.CreatedBy)
	if dup := duplicate(err); dup != nil {
		return dup
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpdateProfile writes the self-editable fields.
func (r *Repository) UpdateProfile(ctx context.Context, u model.User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET full_name = $2, dob = $3, phone_number = $4, gender = $5, profile_picture = $6
		WHERE id = $1
	`, u.ID, u.FullName, u.DOB, u.PhoneNumber, u.Gender, u.ProfilePicture)
	if dup := duplicate(err); dup != nil {
		return dup
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
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

func (r *Repository) SetPassword(ctx context.Context, id, hash string) error {
	return r.exec(ctx, "set password", `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
}

func (r *Repository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "touch login", `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
}

// Deactivate soft-deletes a user and revokes its refresh tokens.
func (r *Repository) Deactivate(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `UPDATE users SET account_status = FALSE WHERE id = $1 AND account_status`, id)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	return tx.Commit()
}

// SaveRefreshToken records an issued refresh token.
func (r *Repository) SaveRefreshToken(ctx context.Context, token, userID string, expires time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expires)
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// ConsumeRefreshToken revokes a live token and returns its owner. A token can
// be consumed once.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, token string, now time.Time) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1 AND NOT revoked AND expires_at > $2
		RETURNING user_id
	`, token, now).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRefreshRejected
		}
		return "", fmt.Errorf("consume refresh token: %w", err)
	}
	return userID, nil
}

func (r *Repository) idByName(ctx context.Context, table, name string, missing error) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE lower(name) = lower($1) AND status`, name).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", missing
		}
		return "", fmt.Errorf("lookup %s: %w", table, err)
	}
	return id, nil
}

// RoleID resolves an active role by name.
func (r *Repository) RoleID(ctx context.Context, name string) (string, error) {
	return r.idByName(ctx, "roles", name, ErrRoleNotFound)
}

// FacultyID resolves an active faculty by name.
func (r *Repository) FacultyID(ctx context.Context, name string) (string, error) {
	return r.idByName(ctx, "faculties", name, ErrFacultyNotFound)
}

type named struct {
	id     string
	name   string
	status bool
}

func (r *Repository) listNamed(ctx context.Context, table string) ([]named, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, status FROM `+table+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()
	var res []named
	for rows.Next() {
		var n named
		if err := rows.Scan(&n.id, &n.name, &n.status); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r *Repository) ListRoles(ctx context.Context) ([]model.Role, error) {
	rows, err := r.listNamed(ctx, "roles")
	if err != nil {
		return nil, err
	}
	res := make([]model.Role, 0, len(rows))
	for _, n := range rows {
		res = append(res, model.Role{ID: n.id, Name: n.name, Status: n.status})
	}
	return res, nil
}

func (r *Repository) ListFaculties(ctx context.Context) ([]model.Faculty, error) {
	rows, err := r.listNamed(ctx, "faculties")
	if err != nil {
		return nil, err
	}
	res := make([]model.Faculty, 0, len(rows))
	for _, n := range rows {
		res = append(res, model.Faculty{ID: n.id, Name: n.name, Status: n.status})
	}
	return res, nil
}

func (r *Repository) insertNamed(ctx context.Context, table, name string, dup error) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `INSERT INTO `+table+` (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if _, ok := store.IsUniqueViolation(err); ok {
		return "", dup
	}
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", table, err)
	}
	return id, nil
}

func (r *Repository) InsertRole(ctx context.Context, name string) (model.Role, error) {
	id, err := r.insertNamed(ctx, "roles", name, ErrDuplicateRole)
	if err != nil {
		return model.Role{}, err
	}
	return model.Role{ID: id, Name: name, Status: true}, nil
}

func (r *Repository) InsertFaculty(ctx context.Context, name string) (model.Faculty, error) {
	id, err := r.insertNamed(ctx, "faculties", name, ErrDuplicateFaculty)
	if err != nil {
		return model.Faculty{}, err
	}
	return model.Faculty{ID: id, Name: name, Status: true}, nil
}
