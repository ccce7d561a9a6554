package dto

import (
	"time"
)

// AudienceDTO is the targeting descriptor of a campaign
type AudienceDTO struct {
	MinAge    *int     `json:"min_age,omitempty" validate:"omitempty,gte=13,lte=100"`
	MaxAge    *int     `json:"max_age,omitempty" validate:"omitempty,gte=13,lte=100"`
	Gender    *string  `json:"gender,omitempty" validate:"omitempty,oneof=all male female"`
	Locations []string `json:"locations,omitempty" validate:"omitempty,max=50,dive,max=128"`
	Interests []string `json:"interests,omitempty" validate:"omitempty,max=50,dive,max=128"`
	Language  *string  `json:"language,omitempty" validate:"omitempty,max=16"`
}

// CreateCampaignRequest represents the request to schedule a new campaign.
// ScheduledDate and ScheduledTime are wall-clock values in Timezone.
type CreateCampaignRequest struct {
	UserID        uint         `json:"-"`
	Name          string       `json:"name" validate:"required,max=255"`
	Objective     *string      `json:"objective,omitempty" validate:"omitempty,max=64"`
	AdType        *string      `json:"ad_type,omitempty" validate:"omitempty,max=64"`
	Content       string       `json:"content" validate:"required,max=63206"`
	MediaURL      *string      `json:"media_url,omitempty" validate:"omitempty,url"`
	Platform      string       `json:"platform,omitempty" validate:"omitempty,oneof=facebook instagram"`
	AccountID     *string      `json:"account_id,omitempty" validate:"omitempty,max=128"`
	Budget        *float64     `json:"budget,omitempty" validate:"omitempty,gte=0"`
	Audience      *AudienceDTO `json:"audience,omitempty"`
	ScheduledDate string       `json:"scheduled_date" validate:"required"`
	ScheduledTime string       `json:"scheduled_time" validate:"required"`
	Timezone      string       `json:"timezone,omitempty" validate:"omitempty,max=64"`
	Frequency     string       `json:"frequency,omitempty" validate:"omitempty,oneof=once daily weekly"`
	EndsAt        *time.Time   `json:"ends_at,omitempty"`
}

// CreateCampaignResponse represents the response to create a new campaign
type CreateCampaignResponse struct {
	Message  string      `json:"message"`
	Campaign CampaignDTO `json:"campaign"`
}

// UpdateCampaignRequest represents the request to update a scheduled or failed campaign
type UpdateCampaignRequest struct {
	UUID          string       `json:"-"`
	UserID        uint         `json:"-"`
	Name          *string      `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Objective     *string      `json:"objective,omitempty" validate:"omitempty,max=64"`
	AdType        *string      `json:"ad_type,omitempty" validate:"omitempty,max=64"`
	Content       *string      `json:"content,omitempty" validate:"omitempty,min=1,max=63206"`
	MediaURL      *string      `json:"media_url,omitempty" validate:"omitempty,url"`
	AccountID     *string      `json:"account_id,omitempty" validate:"omitempty,max=128"`
	Budget        *float64     `json:"budget,omitempty" validate:"omitempty,gte=0"`
	Audience      *AudienceDTO `json:"audience,omitempty"`
	ScheduledDate *string      `json:"scheduled_date,omitempty"`
	ScheduledTime *string      `json:"scheduled_time,omitempty"`
	Timezone      *string      `json:"timezone,omitempty" validate:"omitempty,max=64"`
	Frequency     *string      `json:"frequency,omitempty" validate:"omitempty,oneof=once daily weekly"`
	EndsAt        *time.Time   `json:"ends_at,omitempty"`
}

// UpdateCampaignResponse represents the response to update an existing campaign
type UpdateCampaignResponse struct {
	Message  string      `json:"message"`
	Campaign CampaignDTO `json:"campaign"`
}

// CampaignDTO is the owner-facing view of a campaign
type CampaignDTO struct {
	UUID        string      `json:"uuid"`
	Name        string      `json:"name"`
	Objective   *string     `json:"objective,omitempty"`
	AdType      *string     `json:"ad_type,omitempty"`
	Content     string      `json:"content"`
	MediaURL    *string     `json:"media_url,omitempty"`
	Platform    string      `json:"platform"`
	AccountID   *string     `json:"account_id,omitempty"`
	Budget      *float64    `json:"budget,omitempty"`
	Audience    AudienceDTO `json:"audience"`
	Status      string      `json:"status"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	Timezone    string      `json:"timezone"`
	Frequency   string      `json:"frequency"`
	EndsAt      *time.Time  `json:"ends_at,omitempty"`
	ExternalID  *string     `json:"external_id,omitempty"`
	Attempts    int         `json:"attempts"`
	PublishedAt *time.Time  `json:"published_at,omitempty"`
	LastError   *string     `json:"last_error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   *time.Time  `json:"updated_at,omitempty"`
}

// ListCampaignsRequest represents a paginated campaign listing
type ListCampaignsRequest struct {
	UserID   uint    `json:"-"`
	Status   *string `json:"status,omitempty" validate:"omitempty,oneof=scheduled publishing published failed"`
	Platform *string `json:"platform,omitempty" validate:"omitempty,oneof=facebook instagram"`
	Name     *string `json:"name,omitempty"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

type ListCampaignsResponse struct {
	Items      []CampaignDTO  `json:"items"`
	Pagination PaginationInfo `json:"pagination"`
}

// PublishCampaignResponse reports the result of a direct publish request
type PublishCampaignResponse struct {
	Message    string  `json:"message"`
	UUID       string  `json:"uuid"`
	Status     string  `json:"status"`
	ExternalID *string `json:"external_id,omitempty"`
	// Deferred is true when the platform holds the post until its scheduled time
	Deferred bool `json:"deferred"`
}
