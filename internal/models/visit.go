package models

import (
	"errors"
	"strings"
	"time"
)

// VisitState is the lifecycle state of a visit.
type VisitState string

const (
	VisitStateCheckedIn VisitState = "checked_in"
	VisitStateSurveyed  VisitState = "surveyed"
)

// VisitType tells whether the member came alone or with companions.
type VisitType string

const (
	VisitTypeSingle VisitType = "single"
	VisitTypeGroup  VisitType = "group"
)

// ErrInvalidVisitType is returned for a visit type other than single or group.
var ErrInvalidVisitType = errors.New("invalid_visit_type")

// ParseVisitType validates a raw visit type.
func ParseVisitType(s string) (VisitType, error) {
	switch t := VisitType(strings.ToLower(strings.TrimSpace(s))); t {
	case VisitTypeSingle, VisitTypeGroup:
		return t, nil
	}
	return "", ErrInvalidVisitType
}

// Visit records one check-in of a user at a store.
//
// A visit is created in state checked_in with no survey columns set, and moves
// to surveyed when ApplySurvey is called. The survey columns are exported for
// gorm only: read them through Survey and write them through ApplySurvey.
type Visit struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	UserID    uint      `gorm:"not null;index:idx_visits_user_store_checkin,priority:1" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"-"`
	StoreID   string    `gorm:"size:64;not null;index:idx_visits_user_store_checkin,priority:2" json:"store_id"`
	Store     *Store    `gorm:"foreignKey:StoreID" json:"store,omitempty"`
	CheckInAt time.Time `gorm:"not null;index:idx_visits_user_store_checkin,priority:3" json:"check_in_at"`

	State               VisitState `gorm:"size:20;not null;default:'checked_in'" json:"state"`
	VisitType           *VisitType `gorm:"size:20;check:chk_visits_survey_state,(state = 'checked_in' AND visit_type IS NULL) OR (state = 'surveyed' AND visit_type IS NOT NULL)" json:"visit_type,omitempty"`
	VisitPurpose        *string    `gorm:"size:255" json:"visit_purpose,omitempty"`
	CompanionIndustries Labels     `json:"companion_industries"`
	CompanionJobTypes   Labels     `json:"companion_job_types"`
}

// NewVisit returns a checked-in visit with no survey data.
func NewVisit(id string, userID uint, storeID string, at time.Time) *Visit {
	return &Visit{
		ID:        id,
		UserID:    userID,
		StoreID:   storeID,
		CheckInAt: at,
		State:     VisitStateCheckedIn,
	}
}

// VisitSurvey is the post-visit questionnaire.
type VisitSurvey struct {
	Type                VisitType
	Purpose             string
	CompanionIndustries Labels
	CompanionJobTypes   Labels
}

// NewVisitSurvey builds a normalized survey. Companion lists are always empty
// for a single visit, whatever the caller passed.
func NewVisitSurvey(t VisitType, purpose string, industries, jobTypes []string) (VisitSurvey, error) {
	if t != VisitTypeSingle && t != VisitTypeGroup {
		return VisitSurvey{}, ErrInvalidVisitType
	}
	s := VisitSurvey{
		Type:                t,
		Purpose:             strings.TrimSpace(purpose),
		CompanionIndustries: cleanLabels(industries),
		CompanionJobTypes:   cleanLabels(jobTypes),
	}
	if t == VisitTypeSingle {
		s.CompanionIndustries = Labels{}
		s.CompanionJobTypes = Labels{}
	}
	return s, nil
}

// IsSurveyed reports whether the visit has survey answers.
func (v *Visit) IsSurveyed() bool {
	return v.State == VisitStateSurveyed && v.VisitType != nil
}

// Survey returns the survey answers, or false while the visit is only checked in.
func (v *Visit) Survey() (VisitSurvey, bool) {
	if !v.IsSurveyed() {
		return VisitSurvey{}, false
	}
	s := VisitSurvey{
		Type:                *v.VisitType,
		CompanionIndustries: v.CompanionIndustries,
		CompanionJobTypes:   v.CompanionJobTypes,
	}
	if v.VisitPurpose != nil {
		s.Purpose = *v.VisitPurpose
	}
	return s, true
}

// ApplySurvey writes the survey answers and moves the visit to surveyed.
// A later call overwrites earlier answers.
func (v *Visit) ApplySurvey(s VisitSurvey) error {
	s, err := NewVisitSurvey(s.Type, s.Purpose, s.CompanionIndustries, s.CompanionJobTypes)
	if err != nil {
		return err
	}
	t := s.Type
	v.VisitType = &t
	v.VisitPurpose = nil
	if s.Purpose != "" {
		p := s.Purpose
		v.VisitPurpose = &p
	}
	v.CompanionIndustries = s.CompanionIndustries
	v.CompanionJobTypes = s.CompanionJobTypes
	v.State = VisitStateSurveyed
	return nil
}
