package models

import (
	"time"

	"gorm.io/datatypes"
)

// User represents a registered member.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Email     string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Phone     *string        `gorm:"size:50" json:"phone,omitempty"`
	Gender    *string        `gorm:"size:20" json:"gender,omitempty"`
	BirthDate datatypes.Date `gorm:"not null" json:"birth_date"`

	// Display data copied from the identity assertion at registration.
	DisplayName string `gorm:"size:255" json:"display_name,omitempty"`
	PictureURL  string `gorm:"size:1000" json:"picture_url,omitempty"`

	// ExternalIdentityID is the messaging platform subject bound to this account.
	// NULL until bound; unique when set.
	ExternalIdentityID *string `gorm:"uniqueIndex;size:64" json:"external_identity_id,omitempty"`
	// PaymentCustomerID is the provider-side customer used for later charges.
	PaymentCustomerID *string `gorm:"size:64" json:"-"`

	Profile *UserProfile `gorm:"foreignKey:UserID" json:"profile,omitempty"`
	Survey  *Survey      `gorm:"foreignKey:UserID" json:"survey,omitempty"`
}

// IsLinked reports whether a messaging identity is bound to the user.
func (u *User) IsLinked() bool {
	return u.ExternalIdentityID != nil && *u.ExternalIdentityID != ""
}

// LinkedTo reports whether the user is bound to the given identity.
func (u *User) LinkedTo(externalID string) bool {
	return u.IsLinked() && *u.ExternalIdentityID == externalID
}
