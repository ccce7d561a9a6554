package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/social-publisher/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// CampaignStatus represents the publication status of a campaign
type CampaignStatus string

const (
	CampaignStatusScheduled  CampaignStatus = "scheduled"
	CampaignStatusPublishing CampaignStatus = "publishing"
	CampaignStatusPublished  CampaignStatus = "published"
	CampaignStatusFailed     CampaignStatus = "failed"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusScheduled, CampaignStatusPublishing,
		CampaignStatusPublished, CampaignStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further automatic transition happens from s
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusPublished || s == CampaignStatusFailed
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// Frequency is the recurrence of a scheduled campaign
type Frequency string

const (
	FrequencyOnce   Frequency = "once"
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

func (f Frequency) String() string {
	return string(f)
}

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyOnce, FrequencyDaily, FrequencyWeekly:
		return true
	default:
		return false
	}
}

// IsRecurring reports whether another occurrence follows a publication
func (f Frequency) IsRecurring() bool {
	return f == FrequencyDaily || f == FrequencyWeekly
}

// Audience is the targeting descriptor stored with a campaign. The publication engine does not interpret it.
type Audience struct {
	MinAge    *int           `gorm:"column:min_age" json:"min_age,omitempty"`
	MaxAge    *int           `gorm:"column:max_age" json:"max_age,omitempty"`
	Gender    *string        `gorm:"column:gender;type:varchar(20)" json:"gender,omitempty"`
	Locations pq.StringArray `gorm:"column:locations;type:text[];not null;default:'{}'" json:"locations"`
	Interests pq.StringArray `gorm:"column:interests;type:text[];not null;default:'{}'" json:"interests"`
	Language  *string        `gorm:"column:language;type:varchar(16)" json:"language,omitempty"`
}

// Campaign represents a scheduled social campaign in the database
type Campaign struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	UserID    uint           `gorm:"not null;index:idx_campaigns_user_id" json:"user_id"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name"`
	Objective *string        `gorm:"type:varchar(64)" json:"objective,omitempty"`
	AdType    *string        `gorm:"type:varchar(64)" json:"ad_type,omitempty"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	MediaURL  *string        `gorm:"type:text" json:"media_url,omitempty"`
	Platform  Platform       `gorm:"type:varchar(32);not null;default:'facebook'" json:"platform"`
	AccountID *string        `gorm:"type:varchar(128)" json:"account_id,omitempty"`
	Budget    *float64       `gorm:"type:numeric(14,2)" json:"budget,omitempty"`
	Audience  Audience       `gorm:"embedded;embeddedPrefix:audience_" json:"audience"`
	Status    CampaignStatus `gorm:"type:varchar(20);not null;default:'scheduled';index:idx_campaigns_due,priority:1" json:"status"`

	ScheduledAt time.Time  `gorm:"not null;index:idx_campaigns_due,priority:2" json:"scheduled_at"`
	Timezone    string     `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`
	Frequency   Frequency  `gorm:"type:varchar(16);not null;default:'once'" json:"frequency"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`

	ExternalID    *string    `gorm:"type:varchar(128);index:idx_campaigns_external_id" json:"external_id,omitempty"`
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

	// Relations
	User *User `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusScheduled
	}
	if c.Platform == "" {
		c.Platform = PlatformFacebook
	}
	if c.Frequency == "" {
		c.Frequency = FrequencyOnce
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Audience.Locations == nil {
		c.Audience.Locations = pq.StringArray{}
	}
	if c.Audience.Interests == nil {
		c.Audience.Interests = pq.StringArray{}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// IsEditable checks if the campaign can be edited by its owner
func (c *Campaign) IsEditable() bool {
	return c.Status == CampaignStatusScheduled || c.Status == CampaignStatusFailed
}

// IsDeletable checks if the campaign can be deleted by its owner
func (c *Campaign) IsDeletable() bool {
	return c.Status == CampaignStatusScheduled || c.Status == CampaignStatusFailed
}

// CanTransitionTo checks if the campaign can transition to the given status
func (c *Campaign) CanTransitionTo(newStatus CampaignStatus) bool {
	switch c.Status {
	case CampaignStatusScheduled:
		return newStatus == CampaignStatusPublishing
	case CampaignStatusPublishing:
		return newStatus == CampaignStatusPublished ||
			newStatus == CampaignStatusFailed ||
			newStatus == CampaignStatusScheduled
	default:
		return false
	}
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID              *uint           `json:"id,omitempty"`
	UUID            *uuid.UUID      `json:"uuid,omitempty"`
	UserID          *uint           `json:"user_id,omitempty"`
	Status          *CampaignStatus `json:"status,omitempty"`
	Platform        *Platform       `json:"platform,omitempty"`
	Name            *string         `json:"name,omitempty"`
	Frequency       *Frequency      `json:"frequency,omitempty"`
	ScheduledAfter  *time.Time      `json:"scheduled_after,omitempty"`
	ScheduledBefore *time.Time      `json:"scheduled_before,omitempty"`
	CreatedAfter    *time.Time      `json:"created_after,omitempty"`
	CreatedBefore   *time.Time      `json:"created_before,omitempty"`
}

// GetStatusDisplayName returns a human-readable status name
func (c *Campaign) GetStatusDisplayName() string {
	switch c.Status {
	case CampaignStatusScheduled:
		return "Scheduled"
	case CampaignStatusPublishing:
		return "Publishing"
	case CampaignStatusPublished:
		return "Published"
	case CampaignStatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
