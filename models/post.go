package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/social-publisher/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostStatus represents the publication status of a single post
type PostStatus string

const (
	PostStatusPending    PostStatus = "pending"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusPosted     PostStatus = "posted"
	PostStatusFailed     PostStatus = "failed"
)

func (s PostStatus) String() string {
	return string(s)
}

func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusPending, PostStatusPublishing, PostStatusPosted, PostStatusFailed:
		return true
	default:
		return false
	}
}

func (s PostStatus) IsTerminal() bool {
	return s == PostStatusPosted || s == PostStatusFailed
}

// Scan implements the sql.Scanner interface for PostStatus
func (s *PostStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = PostStatus(v)
	case []byte:
		*s = PostStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into PostStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for PostStatus
func (s PostStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid PostStatus: %s", s)
	}
	return string(s), nil
}

// Post is a single publishable unit, either standalone or an occurrence of a recurring campaign
type Post struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_posts_uuid" json:"uuid"`
	UserID     uint       `gorm:"not null;index:idx_posts_user_id" json:"user_id"`
	CampaignID *uint      `gorm:"index:idx_posts_campaign_id" json:"campaign_id,omitempty"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	ImageURL   *string    `gorm:"type:text" json:"image_url,omitempty"`
	Platform   Platform   `gorm:"type:varchar(32);not null;default:'facebook'" json:"platform"`
	AccountID  *string    `gorm:"type:varchar(128)" json:"account_id,omitempty"`
	Status     PostStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_posts_due,priority:1" json:"status"`

	ScheduledAt time.Time `gorm:"not null;index:idx_posts_due,priority:2" json:"scheduled_at"`
	Frequency   Frequency `gorm:"type:varchar(16);not null;default:'once'" json:"frequency"`
	Timezone    string    `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`
	// EndsAt bounds the recurrence chain; no occurrence is created after it
	EndsAt *time.Time `json:"ends_at,omitempty"`
	// Published is false while the platform holds a deferred publish for this post
	Published bool `gorm:"not null;default:false" json:"published"`

	ExternalID    *string    `gorm:"type:varchar(128);index:idx_posts_external_id" json:"external_id,omitempty"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	// DispatchedAt is set while a claimed record is being sent to the platform
	DispatchedAt  *time.Time `json:"dispatched_at,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	LastError     *string    `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Campaign *Campaign `gorm:"foreignKey:CampaignID;references:ID" json:"campaign,omitempty"`
}

func (Post) TableName() string {
	return "posts"
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	if p.Status == "" {
		p.Status = PostStatusPending
	}
	if p.Platform == "" {
		p.Platform = PlatformFacebook
	}
	if p.Frequency == "" {
		p.Frequency = FrequencyOnce
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = utils.UTCNow()
	}
	return nil
}

func (p *Post) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	p.UpdatedAt = &now
	return nil
}

// IsAwaitingPlatform reports whether the platform accepted the post but has not made it live yet
func (p *Post) IsAwaitingPlatform() bool {
	return p.Status == PostStatusPosted && !p.Published && p.ExternalID != nil
}

// IsEditable reports whether the owner may still change the post locally
func (p *Post) IsEditable() bool {
	return p.Status == PostStatusPending || p.Status == PostStatusFailed
}

// CanTransitionTo checks if the post can transition to the given status
func (p *Post) CanTransitionTo(newStatus PostStatus) bool {
	switch p.Status {
	case PostStatusPending:
		return newStatus == PostStatusPublishing
	case PostStatusPublishing:
		return newStatus == PostStatusPosted ||
			newStatus == PostStatusFailed ||
			newStatus == PostStatusPending
	default:
		return false
	}
}

// PostFilter represents filter criteria for posts
type PostFilter struct {
	ID              *uint       `json:"id,omitempty"`
	UUID            *uuid.UUID  `json:"uuid,omitempty"`
	UserID          *uint       `json:"user_id,omitempty"`
	CampaignID      *uint       `json:"campaign_id,omitempty"`
	Status          *PostStatus `json:"status,omitempty"`
	Platform        *Platform   `json:"platform,omitempty"`
	Published       *bool       `json:"published,omitempty"`
	ScheduledAfter  *time.Time  `json:"scheduled_after,omitempty"`
	ScheduledBefore *time.Time  `json:"scheduled_before,omitempty"`
}
