package models

import (
	"strings"
	"time"

	"github.com/amirphl/social-publisher/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Platform names a social network a record is published to
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
)

func (p Platform) String() string {
	return string(p)
}

// SocialAccount is a page or profile a user connected, together with its access token
type SocialAccount struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_social_accounts_uuid" json:"uuid"`
	UserID         uint       `gorm:"not null;uniqueIndex:uk_social_accounts_owner,priority:1" json:"user_id"`
	Platform       Platform   `gorm:"type:varchar(32);not null;uniqueIndex:uk_social_accounts_owner,priority:2" json:"platform"`
	AccountID      string     `gorm:"type:varchar(128);not null;uniqueIndex:uk_social_accounts_owner,priority:3" json:"account_id"`
	Name           string     `gorm:"type:varchar(255)" json:"name"`
	AccessToken    string     `gorm:"type:text;not null" json:"-"`
	IsDefault      bool       `gorm:"not null;default:false" json:"is_default"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func (SocialAccount) TableName() string {
	return "social_accounts"
}

func (a *SocialAccount) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utils.UTCNow()
	}
	return nil
}

func (a *SocialAccount) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	a.UpdatedAt = &now
	return nil
}

// UsableAt reports whether the token is present and not expired at now
func (a *SocialAccount) UsableAt(now time.Time) bool {
	if strings.TrimSpace(a.AccessToken) == "" {
		return false
	}
	return !utils.IsExpiredAt(a.TokenExpiresAt, now)
}

// SocialAccountFilter represents filter criteria for connected accounts
type SocialAccountFilter struct {
	ID        *uint      `json:"id,omitempty"`
	UUID      *uuid.UUID `json:"uuid,omitempty"`
	UserID    *uint      `json:"user_id,omitempty"`
	Platform  *Platform  `json:"platform,omitempty"`
	AccountID *string    `json:"account_id,omitempty"`
	IsDefault *bool      `json:"is_default,omitempty"`
}
