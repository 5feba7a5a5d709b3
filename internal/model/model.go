package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Role names as stored in the roles table and carried in token claims.
const (
	RoleAdmin       = "Admin"
	RoleStudent     = "Student"
	RoleManager     = "Marketing Manager"
	RoleCoordinator = "Marketing Coordinator"
	RoleGuest       = "Guest"
)

type Role struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status bool   `json:"status"`
}

type Faculty struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status bool   `json:"status"`
}

// User is an identity record. PasswordHash never leaves the process.
type User struct {
	ID               string     `json:"id"`
	FullName         string     `json:"full_name"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	DOB              *time.Time `json:"dob,omitempty"`
	PhoneNumber      *string    `json:"phone_number,omitempty"`
	Gender           *bool      `json:"gender,omitempty"`
	ProfilePicture   string     `json:"profile_picture,omitempty"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	RegistrationDate time.Time  `json:"registration_date"`
	Active           bool       `json:"account_status"`
	FacultyID        *string    `json:"faculty_id,omitempty"`
	FacultyName      string     `json:"faculty,omitempty"`
	RoleID           string     `json:"role_id"`
	RoleName         string     `json:"role"`
	CreatedBy        *string    `json:"created_by,omitempty"`
}

// Event is a submission window.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreateDate  time.Time `json:"create_date"`
	DueDate     time.Time `json:"due_date"`
	ClosureDate time.Time `json:"closure_date"`
	Enabled     bool      `json:"is_enable"`
	LastUpdate  time.Time `json:"last_update"`
	CreatedBy   string    `json:"create_by"`
	FacultyID   *string   `json:"faculty_id,omitempty"`
}

// OpenAt reports whether contributions may be submitted at t.
func (e Event) OpenAt(t time.Time) bool {
	return e.Enabled && t.Before(e.DueDate)
}

// ClosedAt reports whether the event no longer accepts edits at t.
func (e Event) ClosedAt(t time.Time) bool {
	return !t.Before(e.ClosureDate)
}

// EventDetail is an event with denormalized names for display.
type EventDetail struct {
	Event
	CreatorName       string `json:"creator_name"`
	FacultyName       string `json:"faculty,omitempty"`
	ContributionCount int    `json:"contribution_count"`
}

// FileList is the set of stored file names of a contribution. It is kept in
// a JSONB column.
type FileList []string

func (f FileList) Value() (driver.Value, error) {
	if f == nil {
		f = FileList{}
	}
	b, err := json.Marshal([]string(f))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (f *FileList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*f = FileList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("file list: unsupported source type")
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*f = out
	return nil
}

// Contribution is a student submission against an event.
type Contribution struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Uploads        FileList  `json:"uploads"`
	LikeCount      int       `json:"like_count"`
	DislikeCount   int       `json:"dislike_count"`
	SubmissionDate time.Time `json:"submission_date"`
	Accepted       bool      `json:"is_accepted"`
	ContributorID  string    `json:"contributor_id"`
	EventID        string    `json:"event_id"`
}

// Contributor is the denormalized author shown alongside a contribution.
type Contributor struct {
	ID             string `json:"id"`
	FullName       string `json:"full_name"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// ContributionView is a contribution prepared for listing: the acceptance
// flag is dropped and the contributor is inlined.
type ContributionView struct {
	ID             string      `json:"id"`
	Content        string      `json:"content"`
	Uploads        FileList    `json:"uploads"`
	LikeCount      int         `json:"like_count"`
	DislikeCount   int         `json:"dislike_count"`
	SubmissionDate time.Time   `json:"submission_date"`
	EventID        string      `json:"event_id"`
	Contributor    Contributor `json:"contributor"`
}

// Comment is feedback on a contribution.
type Comment struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	CommenterID    string    `json:"commenter_id"`
	CommenterName  string    `json:"commenter_name,omitempty"`
	LikeCount      int       `json:"like_count"`
	DislikeCount   int       `json:"dislike_count"`
	ContributionID string    `json:"contribution_id"`
	CreatedDate    time.Time `json:"created_date"`
	Status         bool      `json:"status"`
}

// Counter selects one of the reaction counters.
type Counter string

const (
	CounterLike    Counter = "like"
	CounterDislike Counter = "dislike"
)

// Column returns the storage column for c. Only the fixed set is accepted so
// the value can be placed in SQL text.
func (c Counter) Column() (string, bool) {
	switch c {
	case CounterLike:
		return "like_count", true
	case CounterDislike:
		return "dislike_count", true
	}
	return "", false
}
