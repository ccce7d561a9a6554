// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"math"

	"github.com/amirphl/social-publisher/app/dto"
	"github.com/amirphl/social-publisher/models"
	"github.com/amirphl/social-publisher/repository"
	"github.com/amirphl/social-publisher/utils"
	"github.com/google/uuid"
)

// normalizePage applies defaults and bounds to page and page size
func normalizePage(page, pageSize int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = utils.DefaultPageSize
	}
	if page < 1 {
		return 0, 0, ErrInvalidPage
	}
	if pageSize < 1 || pageSize > utils.MaxPageSize {
		return 0, 0, ErrInvalidPageSize
	}
	return page, pageSize, nil
}

func paginationInfo(total int64, page, pageSize int) dto.PaginationInfo {
	return dto.PaginationInfo{
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}
}

// getOwnedCampaign loads a campaign and hides campaigns of other users behind ErrCampaignNotFound
func getOwnedCampaign(ctx context.Context, repo repository.CampaignRepository, campaignUUID string, userID uint) (*models.Campaign, error) {
	if _, err := uuid.Parse(campaignUUID); err != nil {
		return nil, ErrCampaignNotFound
	}
	campaign, err := repo.ByUUID(ctx, campaignUUID)
	if err != nil {
		return nil, storeErr("lookup campaign", err)
	}
	if campaign == nil || campaign.UserID != userID {
		return nil, ErrCampaignNotFound
	}
	return campaign, nil
}

func getOwnedPost(ctx context.Context, repo repository.PostRepository, postUUID string, userID uint) (*models.Post, error) {
	if _, err := uuid.Parse(postUUID); err != nil {
		return nil, ErrPostNotFound
	}
	post, err := repo.ByUUID(ctx, postUUID)
	if err != nil {
		return nil, storeErr("lookup post", err)
	}
	if post == nil || post.UserID != userID {
		return nil, ErrPostNotFound
	}
	return post, nil
}

func ToAudienceDTO(a models.Audience) dto.AudienceDTO {
	return dto.AudienceDTO{
		MinAge:    a.MinAge,
		MaxAge:    a.MaxAge,
		Gender:    a.Gender,
		Locations: []string(a.Locations),
		Interests: []string(a.Interests),
		Language:  a.Language,
	}
}

// ToCampaignDTO converts a campaign model to its owner-facing representation
func ToCampaignDTO(c *models.Campaign) dto.CampaignDTO {
	return dto.CampaignDTO{
		UUID:        c.UUID.String(),
		Name:        c.Name,
		Objective:   c.Objective,
		AdType:      c.AdType,
		Content:     c.Content,
		MediaURL:    c.MediaURL,
		Platform:    c.Platform.String(),
		AccountID:   c.AccountID,
		Budget:      c.Budget,
		Audience:    ToAudienceDTO(c.Audience),
		Status:      c.Status.String(),
		ScheduledAt: c.ScheduledAt,
		Timezone:    c.Timezone,
		Frequency:   c.Frequency.String(),
		EndsAt:      c.EndsAt,
		ExternalID:  c.ExternalID,
		Attempts:    c.Attempts,
		PublishedAt: c.PublishedAt,
		LastError:   c.LastError,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func ToPostDTO(p *models.Post, campaignUUID *string) dto.PostDTO {
	return dto.PostDTO{
		UUID:         p.UUID.String(),
		CampaignUUID: campaignUUID,
		Content:      p.Content,
		ImageURL:     p.ImageURL,
		Platform:     p.Platform.String(),
		AccountID:    p.AccountID,
		Status:       p.Status.String(),
		ScheduledAt:  p.ScheduledAt,
		Frequency:    p.Frequency.String(),
		Timezone:     p.Timezone,
		EndsAt:       p.EndsAt,
		Published:    p.Published,
		ExternalID:   p.ExternalID,
		Attempts:     p.Attempts,
		PublishedAt:  p.PublishedAt,
		LastError:    p.LastError,
		CreatedAt:    p.CreatedAt,
	}
}

func ToSocialAccountDTO(a *models.SocialAccount, usable bool) dto.SocialAccountDTO {
	return dto.SocialAccountDTO{
		UUID:           a.UUID.String(),
		Platform:       a.Platform.String(),
		AccountID:      a.AccountID,
		Name:           a.Name,
		IsDefault:      a.IsDefault,
		Usable:         usable,
		TokenExpiresAt: a.TokenExpiresAt,
		CreatedAt:      a.CreatedAt,
	}
}

func parsePlatform(s string) (models.Platform, bool) {
	switch models.Platform(s) {
	case "":
		return models.PlatformFacebook, true
	case models.PlatformFacebook, models.PlatformInstagram:
		return models.Platform(s), true
	default:
		return "", false
	}
}

func parseFrequency(s string) (models.Frequency, error) {
	if s == "" {
		return models.FrequencyOnce, nil
	}
	f := models.Frequency(s)
	if !f.Valid() {
		return "", ErrInvalidFrequency
	}
	return f, nil
}
