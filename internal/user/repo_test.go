package user

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"magazine/internal/model"
)

func newMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestConsumeRefreshTokenRevokesOnce(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`UPDATE refresh_tokens SET revoked = TRUE\s+WHERE token = \$1 AND NOT revoked AND expires_at > \$2`).
		WithArgs("tok", now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	mock.ExpectQuery(`UPDATE refresh_tokens`).
		WithArgs("tok", now).
		WillReturnError(sql.ErrNoRows)

	id, err := repo.ConsumeRefreshToken(context.Background(), "tok", now)
	if err != nil || id != "u1" {
		t.Fatalf("first consume = %s, %v", id, err)
	}
	if _, err := repo.ConsumeRefreshToken(context.Background(), "tok", now); !errors.Is(err, ErrRefreshRejected) {
		t.Fatalf("second consume err = %v", err)
	}
}

func TestInsertMapsUniqueViolations(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{"users_email_key", ErrDuplicateEmail},
		{"users_phone_number_key", ErrDuplicatePhone},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			repo, mock := newMock(t)
			mock.ExpectExec(`INSERT INTO users`).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tt.constraint})

			if err := repo.Insert(context.Background(), model.User{ID: "u1"}); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRoleIDMissing(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(`SELECT id FROM roles WHERE lower\(name\) = lower\(\$1\) AND status`).
		WithArgs("Pirate").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.RoleID(context.Background(), "Pirate"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestDeactivateRevokesTokens(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET account_status = FALSE`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	if err := repo.Deactivate(context.Background(), "u1"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
