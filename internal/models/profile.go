package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserProfile holds the professional background collected at registration.
// One row per user, never updated after creation.
type UserProfile struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UserID          uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Industry        string    `gorm:"size:100;not null" json:"industry"`
	JobType         string    `gorm:"size:100;not null" json:"job_type"`
	ExperienceYears int       `gorm:"not null;default:0" json:"experience_years"`
}

// TableName keeps the profile table name stable regardless of struct naming.
func (UserProfile) TableName() string { return "user_profiles" }

// Survey holds the onboarding questionnaire answers.
// One row per user, never updated after creation.
type Survey struct {
	ID                uint                        `gorm:"primaryKey" json:"-"`
	CreatedAt         time.Time                   `json:"created_at"`
	UserID            uint                        `gorm:"uniqueIndex;not null" json:"user_id"`
	Interests         datatypes.JSONSlice[string] `json:"interests"`
	SideJobInterest   string                      `gorm:"size:50;not null" json:"side_job_interest"`
	MeetingPreference string                      `gorm:"size:50;not null" json:"meeting_preference"`
}
