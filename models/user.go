package models

import (
	"strings"
	"time"

	"github.com/amirphl/social-publisher/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the owner of campaigns. Registration and login live outside this service;
// the row carries the Facebook token stored by the OAuth handshake.
type User struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	UUID                uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_users_uuid" json:"uuid"`
	Email               string    `gorm:"type:varchar(255);not null;uniqueIndex:uk_users_email" json:"email"`
	Name                string    `gorm:"type:varchar(255)" json:"name"`
	FacebookUserID      *string   `gorm:"type:varchar(64)" json:"facebook_user_id,omitempty"`
	FacebookAccessToken *string   `gorm:"type:text" json:"-"`
	IsActive            bool      `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UUID == uuid.Nil {
		u.UUID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = utils.UTCNow()
	}
	return nil
}

func (u *User) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	u.UpdatedAt = &now
	return nil
}

// HasFacebookToken reports whether the OAuth handshake left a usable token
func (u *User) HasFacebookToken() bool {
	return u.FacebookAccessToken != nil && strings.TrimSpace(*u.FacebookAccessToken) != ""
}

// UserFilter represents filter criteria for users
type UserFilter struct {
	ID       *uint      `json:"id,omitempty"`
	UUID     *uuid.UUID `json:"uuid,omitempty"`
	Email    *string    `json:"email,omitempty"`
	IsActive *bool      `json:"is_active,omitempty"`
}
