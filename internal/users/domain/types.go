package domain

import (
	"context"
	"errors"
	"time"
)

// User mirrors an externally-authenticated identity into local storage. Rows
// are upserted on every authenticated request and never deleted; only
// memberships are removed.
type User struct {
	SubjectID   string
	DisplayName string
	Email       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

var ErrUserNotFound = errors.New("user not found")

// Repository abstracts persistence for users.
type Repository interface {
	Upsert(ctx context.Context, subjectID, displayName, email string) (User, error)
	GetBySubjectID(ctx context.Context, subjectID string) (User, error)
}

// Service encapsulates the user mirror.
type Service interface {
	// Upsert inserts the user if absent, else refreshes display name and email.
	Upsert(ctx context.Context, subjectID, displayName, email string) error
	Get(ctx context.Context, subjectID string) (User, error)
}
