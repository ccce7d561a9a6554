package dto

import "time"

// CreatePostRequest schedules a standalone post. A nil ScheduledAt publishes on the next tick.
type CreatePostRequest struct {
	UserID       uint       `json:"-"`
	CampaignUUID *string    `json:"campaign_uuid,omitempty" validate:"omitempty,uuid"`
	Content      string     `json:"content" validate:"required,max=63206"`
	ImageURL     *string    `json:"image_url,omitempty" validate:"omitempty,url"`
	Platform     string     `json:"platform,omitempty" validate:"omitempty,oneof=facebook instagram"`
	AccountID    *string    `json:"account_id,omitempty" validate:"omitempty,max=128"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
	Frequency    string     `json:"frequency,omitempty" validate:"omitempty,oneof=once daily weekly"`
	Timezone     string     `json:"timezone,omitempty" validate:"omitempty,max=64"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
}

type CreatePostResponse struct {
	Message string  `json:"message"`
	Post    PostDTO `json:"post"`
}

type PostDTO struct {
	UUID         string     `json:"uuid"`
	CampaignUUID *string    `json:"campaign_uuid,omitempty"`
	Content      string     `json:"content"`
	ImageURL     *string    `json:"image_url,omitempty"`
	Platform     string     `json:"platform"`
	AccountID    *string    `json:"account_id,omitempty"`
	Status       string     `json:"status"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	Frequency    string     `json:"frequency"`
	Timezone     string     `json:"timezone"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
	Published    bool       `json:"published"`
	ExternalID   *string    `json:"external_id,omitempty"`
	Attempts     int        `json:"attempts"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type ListPostsRequest struct {
	UserID       uint    `json:"-"`
	Status       *string `json:"status,omitempty" validate:"omitempty,oneof=pending publishing posted failed"`
	Published    *bool   `json:"published,omitempty"`
	CampaignUUID *string `json:"campaign_uuid,omitempty" validate:"omitempty,uuid"`
	Page         int     `json:"page"`
	PageSize     int     `json:"page_size"`
}

type ListPostsResponse struct {
	Items      []PostDTO      `json:"items"`
	Pagination PaginationInfo `json:"pagination"`
}

// EditPlatformPostRequest changes a post the platform holds but has not made live
type EditPlatformPostRequest struct {
	UUID        string     `json:"-"`
	UserID      uint       `json:"-"`
	Content     *string    `json:"content,omitempty" validate:"omitempty,min=1,max=63206"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

type EditPlatformPostResponse struct {
	Message string  `json:"message"`
	Post    PostDTO `json:"post"`
}

type RemovePlatformPostResponse struct {
	Message string `json:"message"`
	UUID    string `json:"uuid"`
}

// UpdatePostRequest changes a pending or failed post. Updating a failed post re-arms it.
type UpdatePostRequest struct {
	UUID        string     `json:"-"`
	UserID      uint       `json:"-"`
	Content     *string    `json:"content,omitempty" validate:"omitempty,min=1,max=63206"`
	ImageURL    *string    `json:"image_url,omitempty" validate:"omitempty,url"`
	AccountID   *string    `json:"account_id,omitempty" validate:"omitempty,max=128"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Frequency   *string    `json:"frequency,omitempty" validate:"omitempty,oneof=once daily weekly"`
	Timezone    *string    `json:"timezone,omitempty" validate:"omitempty,max=64"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
}

type UpdatePostResponse struct {
	Message string  `json:"message"`
	Post    PostDTO `json:"post"`
}

// ScheduledPlatformPostsRequest lists what a page holds for deferred publication
type ScheduledPlatformPostsRequest struct {
	UserID    uint   `json:"-"`
	Platform  string `json:"platform,omitempty" validate:"omitempty,oneof=facebook instagram"`
	AccountID string `json:"account_id,omitempty" validate:"omitempty,max=128"`
}

// PlatformPostDTO is a post as the platform reports it. PostUUID is set when the post was published from here.
type PlatformPostDTO struct {
	ExternalID  string     `json:"external_id"`
	Message     string     `json:"message"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	PostUUID    *string    `json:"post_uuid,omitempty"`
}

type ScheduledPlatformPostsResponse struct {
	AccountID string            `json:"account_id"`
	Items     []PlatformPostDTO `json:"items"`
}
