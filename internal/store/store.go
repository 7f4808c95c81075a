// Package store persists members, stores and visits.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/diewo77/go-members/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a write breaks a uniqueness rule: a taken
	// email or identity, an identity already bound to the user, or a repeat
	// check-in inside the window.
	ErrDuplicate = errors.New("store: duplicate")
)

// MaxVisitHistory bounds how many visits GetVisitsByUser returns.
const MaxVisitHistory = 1000

// UserStore is the relational store used by the membership workflows.
// Methods return ErrNotFound or ErrDuplicate (possibly wrapped); any other
// error is a storage failure.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	// UpdateUser writes the mutable columns of u. The external identity may
	// only be set on an unbound user or re-set to the same value.
	UpdateUser(ctx context.Context, u *models.User) error

	CreateProfile(ctx context.Context, p *models.UserProfile) error
	GetProfile(ctx context.Context, userID uint) (*models.UserProfile, error)
	CreateSurvey(ctx context.Context, s *models.Survey) error

	GetStoreByID(ctx context.Context, id string) (*models.Store, error)

	// CreateVisit inserts v unless the same user already checked in to the
	// same store less than window before v.CheckInAt.
	CreateVisit(ctx context.Context, v *models.Visit, window time.Duration) error
	GetVisit(ctx context.Context, id string) (*models.Visit, error)
	// UpdateVisit writes the state and survey columns of v.
	UpdateVisit(ctx context.Context, v *models.Visit) error
	// GetVisitsByUser returns the user's visits, most recent first, with Store
	// loaded. limit <= 0 means MaxVisitHistory.
	GetVisitsByUser(ctx context.Context, userID uint, limit int) ([]models.Visit, error)

	Ping(ctx context.Context) error
}
