package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amirphl/social-publisher/app/dto"
	"github.com/amirphl/social-publisher/app/services"
	"github.com/amirphl/social-publisher/models"
	"github.com/amirphl/social-publisher/repository"
	"github.com/amirphl/social-publisher/utils"
	"github.com/google/uuid"
)

// PostFlow handles standalone posts and the platform side of posts already handed to a platform
type PostFlow interface {
	CreatePost(ctx context.Context, req *dto.CreatePostRequest) (*dto.CreatePostResponse, error)
	ListPosts(ctx context.Context, req *dto.ListPostsRequest) (*dto.ListPostsResponse, error)
	GetPost(ctx context.Context, userID uint, postUUID string) (*dto.PostDTO, error)
	UpdatePost(ctx context.Context, req *dto.UpdatePostRequest) (*dto.UpdatePostResponse, error)
	DeletePost(ctx context.Context, userID uint, postUUID string) error
	ScheduledPlatformPosts(ctx context.Context, req *dto.ScheduledPlatformPostsRequest) (*dto.ScheduledPlatformPostsResponse, error)
	EditPlatformPost(ctx context.Context, req *dto.EditPlatformPostRequest) (*dto.EditPlatformPostResponse, error)
	RemovePlatformPost(ctx context.Context, userID uint, postUUID string) (*dto.RemovePlatformPostResponse, error)
}

type PostFlowImpl struct {
	postRepo     repository.PostRepository
	campaignRepo repository.CampaignRepository
	resolver     CredentialResolver
	publishers   *services.PublisherRegistry
	clock        utils.Clock
}

func NewPostFlow(
	postRepo repository.PostRepository,
	campaignRepo repository.CampaignRepository,
	resolver CredentialResolver,
	publishers *services.PublisherRegistry,
	clock utils.Clock,
) PostFlow {
	return &PostFlowImpl{
		postRepo:     postRepo,
		campaignRepo: campaignRepo,
		resolver:     resolver,
		publishers:   publishers,
		clock:        clock,
	}
}

// CreatePost stores a pending post. Without a scheduled time it is due immediately.
func (f *PostFlowImpl) CreatePost(ctx context.Context, req *dto.CreatePostRequest) (*dto.CreatePostResponse, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, NewBusinessError("INVALID_REQUEST", "Post content is required", ErrInvalidRequest)
	}
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
	if _, err := utils.LoadLocation(timezone); err != nil {
		return nil, NewBusinessError("INVALID_SCHEDULE", "Invalid schedule", ErrInvalidTimezone)
	}

	scheduledAt := f.clock.Now().UTC()
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	}
	if err := validateEndsAt(scheduledAt, req.EndsAt); err != nil {
		return nil, NewBusinessError("INVALID_SCHEDULE", "Invalid schedule", err)
	}

	post := &models.Post{
		UserID:      req.UserID,
		Content:     req.Content,
		ImageURL:    trimmedOrNil(req.ImageURL),
		Platform:    platform,
		AccountID:   trimmedOrNil(req.AccountID),
		Status:      models.PostStatusPending,
		ScheduledAt: scheduledAt,
		Frequency:   frequency,
		Timezone:    timezone,
		EndsAt:      req.EndsAt,
	}

	var campaignUUID *string
	if req.CampaignUUID != nil {
		campaign, err := getOwnedCampaign(ctx, f.campaignRepo, *req.CampaignUUID, req.UserID)
		if err != nil {
			return nil, lookupError(err)
		}
		post.CampaignID = &campaign.ID
		campaignUUID = utils.ToPtr(campaign.UUID.String())
	}

	if err := f.postRepo.Save(ctx, post); err != nil {
		return nil, NewBusinessError("POST_CREATION_FAILED", "Post creation failed", storeErr("save post", err))
	}

	return &dto.CreatePostResponse{
		Message: "Post scheduled successfully",
		Post:    ToPostDTO(post, campaignUUID),
	}, nil
}

func (f *PostFlowImpl) ListPosts(ctx context.Context, req *dto.ListPostsRequest) (*dto.ListPostsResponse, error) {
	page, pageSize, err := normalizePage(req.Page, req.PageSize)
	if err != nil {
		return nil, NewBusinessError("INVALID_PAGINATION", "Invalid pagination", err)
	}

	filter := models.PostFilter{UserID: &req.UserID, Published: req.Published}
	if req.Status != nil {
		status := models.PostStatus(*req.Status)
		filter.Status = &status
	}

	var campaignUUID *string
	if req.CampaignUUID != nil {
		campaign, err := getOwnedCampaign(ctx, f.campaignRepo, *req.CampaignUUID, req.UserID)
		if err != nil {
			return nil, lookupError(err)
		}
		filter.CampaignID = &campaign.ID
		campaignUUID = utils.ToPtr(campaign.UUID.String())
	}

	total, err := f.postRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("POST_LIST_FAILED", "Failed to list posts", storeErr("count posts", err))
	}
	rows, err := f.postRepo.ByFilter(ctx, filter, "scheduled_at DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("POST_LIST_FAILED", "Failed to list posts", storeErr("list posts", err))
	}

	uuids := map[uint]*string{}
	items := make([]dto.PostDTO, 0, len(rows))
	for _, p := range rows {
		ref := campaignUUID
		if ref == nil && p.CampaignID != nil {
			ref = f.campaignUUID(ctx, uuids, *p.CampaignID)
		}
		items = append(items, ToPostDTO(p, ref))
	}
	return &dto.ListPostsResponse{
		Items:      items,
		Pagination: paginationInfo(total, page, pageSize),
	}, nil
}

func (f *PostFlowImpl) GetPost(ctx context.Context, userID uint, postUUID string) (*dto.PostDTO, error) {
	post, err := getOwnedPost(ctx, f.postRepo, postUUID, userID)
	if err != nil {
		return nil, lookupError(err)
	}
	var ref *string
	if post.CampaignID != nil {
		ref = f.campaignUUID(ctx, map[uint]*string{}, *post.CampaignID)
	}
	out := ToPostDTO(post, ref)
	return &out, nil
}

// UpdatePost changes a post the scheduler has not picked up. Updating a failed post re-arms it.
func (f *PostFlowImpl) UpdatePost(ctx context.Context, req *dto.UpdatePostRequest) (*dto.UpdatePostResponse, error) {
	if !hasPostUpdate(req) {
		return nil, NewBusinessError("POST_UPDATE_REQUIRED", "At least one field must be provided", ErrPostUpdateRequired)
	}

	post, err := getOwnedPost(ctx, f.postRepo, req.UUID, req.UserID)
	if err != nil {
		return nil, lookupError(err)
	}
	if !post.IsEditable() {
		return nil, NewBusinessError("POST_UPDATE_NOT_ALLOWED", "Post cannot be updated in current status", ErrPostUpdateNotAllowed)
	}

	if err := applyPostUpdate(post, req); err != nil {
		return nil, err
	}
	previous := post.Status
	if previous == models.PostStatusFailed {
		post.Status = models.PostStatusPending
		post.Attempts = 0
		post.LastError = nil
		post.NextAttemptAt = nil
		post.ClaimedAt = nil
		post.DispatchedAt = nil
		post.ExternalID = nil
	}

	if err := f.postRepo.UpdateIfStatus(ctx, post, previous); err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, NewBusinessError("POST_UPDATE_NOT_ALLOWED", "Post status changed during the update", ErrPostUpdateNotAllowed)
		}
		return nil, NewBusinessError("POST_UPDATE_FAILED", "Post update failed", storeErr("update post", err))
	}

	var ref *string
	if post.CampaignID != nil {
		ref = f.campaignUUID(ctx, map[uint]*string{}, *post.CampaignID)
	}
	return &dto.UpdatePostResponse{
		Message: "Post updated successfully",
		Post:    ToPostDTO(post, ref),
	}, nil
}

// DeletePost soft deletes a post the platform has not received. Posts on the platform go through RemovePlatformPost.
func (f *PostFlowImpl) DeletePost(ctx context.Context, userID uint, postUUID string) error {
	post, err := getOwnedPost(ctx, f.postRepo, postUUID, userID)
	if err != nil {
		return lookupError(err)
	}
	if !post.IsEditable() {
		return NewBusinessError("POST_DELETE_NOT_ALLOWED", "Post cannot be deleted in current status", ErrPostDeleteNotAllowed)
	}

	err = f.postRepo.SoftDeleteIfStatus(ctx, post.ID, models.PostStatusPending, models.PostStatusFailed)
	if errors.Is(err, repository.ErrStatusChanged) {
		return NewBusinessError("POST_DELETE_NOT_ALLOWED", "Post status changed during the delete", ErrPostDeleteNotAllowed)
	}
	if err != nil {
		return NewBusinessError("POST_DELETE_FAILED", "Post delete failed", storeErr("delete post", err))
	}
	return nil
}

// ScheduledPlatformPosts asks the platform which posts it holds for the page and links them to local posts
func (f *PostFlowImpl) ScheduledPlatformPosts(ctx context.Context, req *dto.ScheduledPlatformPostsRequest) (*dto.ScheduledPlatformPostsResponse, error) {
	platform, ok := parsePlatform(req.Platform)
	if !ok {
		return nil, NewBusinessError("PLATFORM_UNSUPPORTED", "Platform is not supported", ErrPlatformUnsupported)
	}
	publisher, cred, err := f.access(ctx, req.UserID, platform, strings.TrimSpace(req.AccountID))
	if err != nil {
		return nil, err
	}

	held, err := publisher.ScheduledPosts(ctx, cred.AccountID, cred.AccessToken)
	if err != nil {
		return nil, NewBusinessError(codeForCategory(CategoryOf(err)), "Failed to list scheduled posts", err)
	}

	local, err := f.postRepo.ByFilter(ctx, models.PostFilter{
		UserID:    &req.UserID,
		Status:    utils.ToPtr(models.PostStatusPosted),
		Published: utils.ToPtr(false),
	}, "id ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("POST_LIST_FAILED", "Failed to list posts", storeErr("list held posts", err))
	}
	byExternalID := make(map[string]string, len(local))
	for _, p := range local {
		if p.ExternalID != nil {
			byExternalID[*p.ExternalID] = p.UUID.String()
		}
	}

	items := make([]dto.PlatformPostDTO, 0, len(held))
	for _, h := range held {
		item := dto.PlatformPostDTO{
			ExternalID:  h.ID,
			Message:     h.Message,
			ScheduledAt: h.ScheduledAt,
			CreatedAt:   h.CreatedAt,
		}
		if id, ok := byExternalID[h.ID]; ok {
			item.PostUUID = utils.ToPtr(id)
		}
		items = append(items, item)
	}
	return &dto.ScheduledPlatformPostsResponse{AccountID: cred.AccountID, Items: items}, nil
}

// EditPlatformPost changes the message or publish time of a post the platform holds but has not made live
func (f *PostFlowImpl) EditPlatformPost(ctx context.Context, req *dto.EditPlatformPostRequest) (*dto.EditPlatformPostResponse, error) {
	if req.Content == nil && req.ScheduledAt == nil {
		return nil, NewBusinessError("INVALID_REQUEST", "Content or scheduled time is required", ErrInvalidRequest)
	}

	post, err := getOwnedPost(ctx, f.postRepo, req.UUID, req.UserID)
	if err != nil {
		return nil, lookupError(err)
	}
	if err := checkOnPlatform(post); err != nil {
		return nil, err
	}
	if !post.IsAwaitingPlatform() {
		return nil, NewBusinessError("POST_ALREADY_LIVE", "Post is already live on the platform", ErrPostAlreadyLive)
	}
	if req.ScheduledAt != nil {
		if err := services.ValidatePublishWindow(f.clock.Now(), *req.ScheduledAt); err != nil {
			return nil, NewBusinessError("INVALID_PUBLISH_WINDOW", "Scheduled time is outside the publish window", err)
		}
	}

	publisher, cred, err := f.platformAccess(ctx, post)
	if err != nil {
		return nil, err
	}

	res, err := publisher.Edit(ctx, services.EditRequest{
		PostID:      *post.ExternalID,
		AccessToken: cred.AccessToken,
		Message:     req.Content,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		return nil, NewBusinessError(codeForCategory(CategoryOf(err)), "Platform edit failed", err)
	}
	if res == nil || !res.Success {
		return nil, NewBusinessError("PLATFORM_REJECTED", "Platform did not confirm the edit", ErrPlatformRejected)
	}

	if req.Content != nil {
		post.Content = *req.Content
	}
	if req.ScheduledAt != nil {
		post.ScheduledAt = req.ScheduledAt.UTC()
	}
	if err := f.postRepo.Update(ctx, post); err != nil {
		return nil, NewBusinessError("POST_UPDATE_FAILED", "Edit applied on the platform but not recorded", storeErr("update post", err))
	}

	return &dto.EditPlatformPostResponse{
		Message: "Post updated on the platform",
		Post:    ToPostDTO(post, nil),
	}, nil
}

// RemovePlatformPost deletes the post on the platform and then soft deletes the local record
func (f *PostFlowImpl) RemovePlatformPost(ctx context.Context, userID uint, postUUID string) (*dto.RemovePlatformPostResponse, error) {
	post, err := getOwnedPost(ctx, f.postRepo, postUUID, userID)
	if err != nil {
		return nil, lookupError(err)
	}
	if err := checkOnPlatform(post); err != nil {
		return nil, err
	}

	publisher, cred, err := f.platformAccess(ctx, post)
	if err != nil {
		return nil, err
	}

	removed, err := publisher.Remove(ctx, *post.ExternalID, cred.AccessToken)
	if err != nil {
		return nil, NewBusinessError(codeForCategory(CategoryOf(err)), "Platform removal failed", err)
	}
	if !removed {
		return nil, NewBusinessError("POST_REMOVAL_UNCONFIRMED", "Platform did not confirm the removal", ErrPostRemovalUnconfirmed)
	}

	if err := f.postRepo.SoftDelete(ctx, post.ID); err != nil {
		return nil, NewBusinessError("POST_DELETE_FAILED", "Post removed from the platform but not locally", storeErr("delete post", err))
	}

	return &dto.RemovePlatformPostResponse{
		Message: "Post removed from the platform",
		UUID:    post.UUID.String(),
	}, nil
}

func checkOnPlatform(post *models.Post) error {
	if post.Status != models.PostStatusPosted || post.ExternalID == nil || *post.ExternalID == "" {
		return NewBusinessError("POST_NOT_ON_PLATFORM", "Post has not been handed to the platform", ErrPostNotOnPlatform)
	}
	return nil
}

func (f *PostFlowImpl) platformAccess(ctx context.Context, post *models.Post) (services.PlatformPublisher, *Credential, error) {
	return f.access(ctx, post.UserID, post.Platform, utils.Deref(post.AccountID))
}

func (f *PostFlowImpl) access(ctx context.Context, userID uint, platform models.Platform, accountID string) (services.PlatformPublisher, *Credential, error) {
	publisher, ok := f.publishers.Get(platform.String())
	if !ok {
		return nil, nil, NewBusinessError("PLATFORM_UNSUPPORTED", "Platform is not supported", fmt.Errorf("%w: %s", ErrPlatformUnsupported, platform))
	}
	cred, err := f.resolver.Resolve(ctx, CredentialQuery{
		UserID:    userID,
		Platform:  platform,
		AccountID: accountID,
	})
	if err != nil {
		return nil, nil, NewBusinessError("STORE_UNAVAILABLE", "Failed to resolve credential", err)
	}
	if cred == nil {
		return nil, nil, NewBusinessError("CREDENTIAL_MISSING", "No usable credential for the account", ErrCredentialMissing)
	}
	return publisher, cred, nil
}

func applyPostUpdate(p *models.Post, req *dto.UpdatePostRequest) error {
	if req.Content != nil {
		if strings.TrimSpace(*req.Content) == "" {
			return NewBusinessError("INVALID_REQUEST", "Post content is required", ErrInvalidRequest)
		}
		p.Content = *req.Content
	}
	if req.ImageURL != nil {
		p.ImageURL = trimmedOrNil(req.ImageURL)
	}
	if req.AccountID != nil {
		p.AccountID = trimmedOrNil(req.AccountID)
	}
	if req.Frequency != nil {
		frequency, err := parseFrequency(*req.Frequency)
		if err != nil {
			return NewBusinessError("INVALID_FREQUENCY", "Invalid frequency", err)
		}
		p.Frequency = frequency
	}
	if req.Timezone != nil {
		if _, err := utils.LoadLocation(*req.Timezone); err != nil {
			return NewBusinessError("INVALID_SCHEDULE", "Invalid schedule", ErrInvalidTimezone)
		}
		p.Timezone = *req.Timezone
	}
	if req.ScheduledAt != nil {
		p.ScheduledAt = req.ScheduledAt.UTC()
	}
	if req.EndsAt != nil {
		p.EndsAt = req.EndsAt
	}
	if err := validateEndsAt(p.ScheduledAt, p.EndsAt); err != nil {
		return NewBusinessError("INVALID_SCHEDULE", "Invalid schedule", err)
	}
	return nil
}

func hasPostUpdate(req *dto.UpdatePostRequest) bool {
	return req.Content != nil || req.ImageURL != nil || req.AccountID != nil || req.ScheduledAt != nil ||
		req.Frequency != nil || req.Timezone != nil || req.EndsAt != nil
}

// campaignUUID resolves a campaign id for display, caching lookups within one listing
func (f *PostFlowImpl) campaignUUID(ctx context.Context, cache map[uint]*string, id uint) *string {
	if ref, ok := cache[id]; ok {
		return ref
	}
	var ref *string
	if c, err := f.campaignRepo.ByID(ctx, id); err == nil && c != nil && c.UUID != uuid.Nil {
		ref = utils.ToPtr(c.UUID.String())
	}
	cache[id] = ref
	return ref
}

