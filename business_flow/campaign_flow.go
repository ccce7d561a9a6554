// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/amirphl/social-publisher/app/dto"
	"github.com/amirphl/social-publisher/models"
	"github.com/amirphl/social-publisher/repository"
	"github.com/amirphl/social-publisher/utils"
	"github.com/lib/pq"
)

const (
	scheduleDateLayout = "2006-01-02"
	scheduleTimeLayout = "15:04"
)

// CampaignFlow handles the campaign business logic
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*dto.CreateCampaignResponse, error)
	ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error)
	GetCampaign(ctx context.Context, userID uint, campaignUUID string) (*dto.CampaignDTO, error)
	UpdateCampaign(ctx context.Context, req *dto.UpdateCampaignRequest) (*dto.UpdateCampaignResponse, error)
	DeleteCampaign(ctx context.Context, userID uint, campaignUUID string) error
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo repository.CampaignRepository
	userRepo     repository.UserRepository
}

// NewCampaignFlow creates a new campaign flow instance
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	userRepo repository.UserRepository,
) CampaignFlow {
	return &CampaignFlowImpl{
		campaignRepo: campaignRepo,
		userRepo:     userRepo,
	}
}

// CreateCampaign validates the request and stores a scheduled campaign.
// A scheduled time that already passed is published on the next scheduler tick.
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*dto.CreateCampaignResponse, error) {
	platform, ok := parsePlatform(req.Platform)
	if !ok {
		return nil, NewBusinessError("PLATFORM_UNSUPPORTED", "Platform is not supported", ErrPlatformUnsupported)
	}
	frequency, err := parseFrequency(req.Frequency)
	if err != nil {
		return nil, NewBusinessError("INVALID_FREQUENCY", "Invalid frequency", err)
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	scheduledAt, err := parseSchedule(req.ScheduledDate, req.ScheduledTime, timezone)
	if err != nil {
		return nil, NewBusinessError("INVALID_SCHEDULE", "Invalid schedule", err)
	}
	if err := validateEndsAt(scheduledAt, req.EndsAt); err != nil {
		return nil, NewBusinessError("INVALID_SCHEDULE", "Invalid schedule", err)
	}
	audience, err := audienceFromDTO(req.Audience)
	if err != nil {
		return nil, NewBusinessError("INVALID_AUDIENCE", "Invalid audience", err)
	}

	user, err := s.userRepo.ByID(ctx, req.UserID)
	if err != nil {
		return nil, NewBusinessError("USER_LOOKUP_FAILED", "Failed to lookup user", storeErr("lookup user", err))
	}
	if user == nil {
		return nil, NewBusinessError("USER_NOT_FOUND", "User not found", ErrUserNotFound)
	}

	campaign := &models.Campaign{
		UserID:      user.ID,
		Name:        strings.TrimSpace(req.Name),
		Objective:   req.Objective,
		AdType:      req.AdType,
		Content:     req.Content,
		MediaURL:    req.MediaURL,
		Platform:    platform,
		AccountID:   trimmedOrNil(req.AccountID),
		Budget:      req.Budget,
		Audience:    audience,
		Status:      models.CampaignStatusScheduled,
		ScheduledAt: scheduledAt,
		Timezone:    timezone,
		Frequency:   frequency,
		EndsAt:      req.EndsAt,
	}
	if err := s.campaignRepo.Save(ctx, campaign); err != nil {
		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", storeErr("save campaign", err))
	}

	return &dto.CreateCampaignResponse{
		Message:  "Campaign scheduled successfully",
		Campaign: ToCampaignDTO(campaign),
	}, nil
}

// ListCampaigns returns the user's campaigns in any status, newest first
func (s *CampaignFlowImpl) ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error) {
	page, pageSize, err := normalizePage(req.Page, req.PageSize)
	if err != nil {
		return nil, NewBusinessError("INVALID_PAGINATION", "Invalid pagination", err)
	}

	filter := models.CampaignFilter{UserID: &req.UserID}
	if req.Status != nil {
		status := models.CampaignStatus(*req.Status)
		filter.Status = &status
	}
	if req.Platform != nil {
		platform := models.Platform(*req.Platform)
		filter.Platform = &platform
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		filter.Name = utils.ToPtr(strings.TrimSpace(*req.Name))
	}

	total, err := s.campaignRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", storeErr("count campaigns", err))
	}
	rows, err := s.campaignRepo.ByFilter(ctx, filter, "created_at DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", storeErr("list campaigns", err))
	}

	items := make([]dto.CampaignDTO, 0, len(rows))
	for _, c := range rows {
		items = append(items, ToCampaignDTO(c))
	}
	return &dto.ListCampaignsResponse{
		Items:      items,
		Pagination: paginationInfo(total, page, pageSize),
	}, nil
}

func (s *CampaignFlowImpl) GetCampaign(ctx context.Context, userID uint, campaignUUID string) (*dto.CampaignDTO, error) {
	campaign, err := getOwnedCampaign(ctx, s.campaignRepo, campaignUUID, userID)
	if err != nil {
		return nil, lookupError(err)
	}
	out := ToCampaignDTO(campaign)
	return &out, nil
}

// UpdateCampaign changes a scheduled campaign. Updating a failed campaign re-arms it for the scheduler.
func (s *CampaignFlowImpl) UpdateCampaign(ctx context.Context, req *dto.UpdateCampaignRequest) (*dto.UpdateCampaignResponse, error) {
	if !hasCampaignUpdate(req) {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_REQUIRED", "At least one field must be provided", ErrCampaignUpdateRequired)
	}

	campaign, err := getOwnedCampaign(ctx, s.campaignRepo, req.UUID, req.UserID)
	if err != nil {
		return nil, lookupError(err)
	}
	if !campaign.IsEditable() {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_NOT_ALLOWED", "Campaign cannot be updated in current status", ErrCampaignUpdateNotAllowed)
	}

	if err := s.applyCampaignUpdate(campaign, req); err != nil {
		return nil, err
	}
	previous := campaign.Status
	if previous == models.CampaignStatusFailed {
		campaign.Status = models.CampaignStatusScheduled
		campaign.Attempts = 0
		campaign.LastError = nil
		campaign.NextAttemptAt = nil
		campaign.ClaimedAt = nil
		campaign.ExternalID = nil
	}

	if err := s.campaignRepo.UpdateIfStatus(ctx, campaign, previous); err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, NewBusinessError("CAMPAIGN_UPDATE_NOT_ALLOWED", "Campaign status changed during the update", ErrCampaignUpdateNotAllowed)
		}
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Campaign update failed", storeErr("update campaign", err))
	}

	return &dto.UpdateCampaignResponse{
		Message:  "Campaign updated successfully",
		Campaign: ToCampaignDTO(campaign),
	}, nil
}

// DeleteCampaign soft deletes a campaign the scheduler is not working on
func (s *CampaignFlowImpl) DeleteCampaign(ctx context.Context, userID uint, campaignUUID string) error {
	campaign, err := getOwnedCampaign(ctx, s.campaignRepo, campaignUUID, userID)
	if err != nil {
		return lookupError(err)
	}
	if !campaign.IsDeletable() {
		return NewBusinessError("CAMPAIGN_DELETE_NOT_ALLOWED", "Campaign cannot be deleted in current status", ErrCampaignDeleteNotAllowed)
	}

	err = s.campaignRepo.SoftDeleteIfStatus(ctx, campaign.ID, models.CampaignStatusScheduled, models.CampaignStatusFailed)
	if errors.Is(err, repository.ErrStatusChanged) {
		return NewBusinessError("CAMPAIGN_DELETE_NOT_ALLOWED", "Campaign status changed during the delete", ErrCampaignDeleteNotAllowed)
	}
	if err != nil {
		return NewBusinessError("CAMPAIGN_DELETE_FAILED", "Campaign delete failed", storeErr("delete campaign", err))
	}
	return nil
}

func (s *CampaignFlowImpl) applyCampaignUpdate(c *models.Campaign, req *dto.UpdateCampaignRequest) error {
	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.Objective != nil {
		c.Objective = req.Objective
	}
	if req.AdType != nil {
		c.AdType = req.AdType
	}
	if req.Content != nil {
		c.Content = *req.Content
	}
	if req.MediaURL != nil {
		c.MediaURL = trimmedOrNil(req.MediaURL)
	}
	if req.AccountID != nil {
		c.AccountID = trimmedOrNil(req.AccountID)
	}
	if req.Budget != nil {
		c.Budget = req.Budget
	}
	if req.Audience != nil {
		audience, err := audienceFromDTO(req.Audience)
		if err != nil {
			return NewBusinessError("INVALID_AUDIENCE", "Invalid audience", err)
		}
		c.Audience = audience
	}
	if req.Frequency != nil {
		frequency, err := parseFrequency(*req.Frequency)
		if err != nil {
			return NewBusinessError("INVALID_FREQUENCY", "Invalid frequency", err)
		}
		c.Frequency = frequency
	}

	if req.ScheduledDate != nil || req.ScheduledTime != nil || req.Timezone != nil {
		timezone := c.Timezone
		if req.Timezone != nil {
			timezone = *req.Timezone
		}
		loc, err := utils.LoadLocation(timezone)
		if err != nil {
			return NewBusinessError("INVALID_SCHEDULE", "Invalid schedule", ErrInvalidTimezone)
		}
		local := c.ScheduledAt.In(loc)
		date, clock := local.Format(scheduleDateLayout), local.Format(scheduleTimeLayout)
		if req.ScheduledDate != nil {
			date = *req.ScheduledDate
		}
		if req.ScheduledTime != nil {
			clock = *req.ScheduledTime
		}
		scheduledAt, err := parseSchedule(date, clock, timezone)
		if err != nil {
			return NewBusinessError("INVALID_SCHEDULE", "Invalid schedule", err)
		}
		c.ScheduledAt = scheduledAt
		c.Timezone = timezone
	}
	if req.EndsAt != nil {
		c.EndsAt = req.EndsAt
	}
	if err := validateEndsAt(c.ScheduledAt, c.EndsAt); err != nil {
		return NewBusinessError("INVALID_SCHEDULE", "Invalid schedule", err)
	}
	return nil
}

func hasCampaignUpdate(req *dto.UpdateCampaignRequest) bool {
	return req.Name != nil || req.Objective != nil || req.AdType != nil || req.Content != nil ||
		req.MediaURL != nil || req.AccountID != nil || req.Budget != nil || req.Audience != nil ||
		req.ScheduledDate != nil || req.ScheduledTime != nil || req.Timezone != nil ||
		req.Frequency != nil || req.EndsAt != nil
}

// parseSchedule interprets a wall-clock date and time in timezone and returns the UTC instant
func parseSchedule(date, clock, timezone string) (time.Time, error) {
	loc, err := utils.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, ErrInvalidTimezone
	}
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if _, err := time.Parse(scheduleDateLayout, date); err != nil {
		return time.Time{}, ErrInvalidScheduleDate
	}
	if _, err := time.Parse(scheduleTimeLayout, clock); err != nil {
		return time.Time{}, ErrInvalidScheduleTime
	}
	at, err := time.ParseInLocation(scheduleDateLayout+" "+scheduleTimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, ErrInvalidScheduleDate
	}
	return at.UTC(), nil
}

func validateEndsAt(start time.Time, endsAt *time.Time) error {
	if endsAt != nil && endsAt.Before(start) {
		return ErrEndsBeforeStart
	}
	return nil
}

func audienceFromDTO(a *dto.AudienceDTO) (models.Audience, error) {
	out := models.Audience{Locations: pq.StringArray{}, Interests: pq.StringArray{}}
	if a == nil {
		return out, nil
	}
	if a.MinAge != nil && a.MaxAge != nil && *a.MinAge > *a.MaxAge {
		return out, ErrInvalidAudience
	}
	out.MinAge, out.MaxAge = a.MinAge, a.MaxAge
	out.Gender, out.Language = a.Gender, a.Language
	if a.Locations != nil {
		out.Locations = pq.StringArray(a.Locations)
	}
	if a.Interests != nil {
		out.Interests = pq.StringArray(a.Interests)
	}
	return out, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return utils.ToPtr(strings.TrimSpace(*s))
}

// lookupError wraps an owned-record lookup failure into a BusinessError
func lookupError(err error) error {
	switch {
	case errors.Is(err, ErrCampaignNotFound):
		return NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", err)
	case errors.Is(err, ErrPostNotFound):
		return NewBusinessError("POST_NOT_FOUND", "Post not found", err)
	default:
		return NewBusinessError("RECORD_LOOKUP_FAILED", "Failed to lookup record", err)
	}
}
