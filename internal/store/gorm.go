package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diewo77/go-members/internal/models"
)

// GormStore implements UserStore on gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore returns a store backed by db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormStore) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("external_identity_id = ?", externalID).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormStore) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	return translate(s.db.WithContext(ctx).Omit(clause.Associations).Create(u).Error)
}

func (s *GormStore) UpdateUser(ctx context.Context, u *models.User) error {
	cols := map[string]any{
		"phone":               u.Phone,
		"gender":              u.Gender,
		"display_name":        u.DisplayName,
		"picture_url":         u.PictureURL,
		"payment_customer_id": u.PaymentCustomerID,
	}
	q := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", u.ID)
	if u.ExternalIdentityID != nil {
		cols["external_identity_id"] = *u.ExternalIdentityID
		q = q.Where("(external_identity_id IS NULL OR external_identity_id = ?)", *u.ExternalIdentityID)
	}
	res := q.Updates(cols)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// Nothing matched: either the user is gone or it is bound to another identity.
	if _, err := s.GetUserByID(ctx, u.ID); err != nil {
		return err
	}
	return fmt.Errorf("%w: user %d is bound to another identity", ErrDuplicate, u.ID)
}

func (s *GormStore) CreateProfile(ctx context.Context, p *models.UserProfile) error {
	return translate(s.db.WithContext(ctx).Create(p).Error)
}

func (s *GormStore) GetProfile(ctx context.Context, userID uint) (*models.UserProfile, error) {
	var p models.UserProfile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *GormStore) CreateSurvey(ctx context.Context, sv *models.Survey) error {
	return translate(s.db.WithContext(ctx).Create(sv).Error)
}

func (s *GormStore) GetStoreByID(ctx context.Context, id string) (*models.Store, error) {
	var st models.Store
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&st).Error; err != nil {
		return nil, translate(err)
	}
	return &st, nil
}

// CreateVisit locks the user row so concurrent check-ins by the same user are
// serialized, then rejects the insert if a visit to the same store falls
// inside the window. SQLite ignores the lock clause; its single writer gives
// the same guarantee.
func (s *GormStore) CreateVisit(ctx context.Context, v *models.Visit, window time.Duration) error {
	v.CheckInAt = v.CheckInAt.UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&u, v.UserID).Error; err != nil {
			return translate(err)
		}
		if window > 0 {
			var n int64
			err := tx.Model(&models.Visit{}).
				Where("user_id = ? AND store_id = ? AND check_in_at > ?", v.UserID, v.StoreID, v.CheckInAt.Add(-window)).
				Count(&n).Error
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: check-in at store %s within %s", ErrDuplicate, v.StoreID, window)
			}
		}
		return translate(tx.Omit(clause.Associations).Create(v).Error)
	})
}

func (s *GormStore) GetVisit(ctx context.Context, id string) (*models.Visit, error) {
	var v models.Visit
	if err := s.db.WithContext(ctx).Preload("Store").Where("id = ?", id).First(&v).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (s *GormStore) UpdateVisit(ctx context.Context, v *models.Visit) error {
	res := s.db.WithContext(ctx).Model(&models.Visit{ID: v.ID}).
		Select("state", "visit_type", "visit_purpose", "companion_industries", "companion_job_types").
		Updates(&models.Visit{
			State:               v.State,
			VisitType:           v.VisitType,
			VisitPurpose:        v.VisitPurpose,
			CompanionIndustries: v.CompanionIndustries,
			CompanionJobTypes:   v.CompanionJobTypes,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetVisitsByUser(ctx context.Context, userID uint, limit int) ([]models.Visit, error) {
	if limit <= 0 || limit > MaxVisitHistory {
		limit = MaxVisitHistory
	}
	var visits []models.Visit
	err := s.db.WithContext(ctx).
		Preload("Store").
		Where("user_id = ?", userID).
		Order("check_in_at DESC").Order("id").
		Limit(limit).
		Find(&visits).Error
	if err != nil {
		return nil, translate(err)
	}
	return visits, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// translate maps driver errors onto the store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}
