package handlers

import (
	"strconv"

	"github.com/amirphl/social-publisher/app/dto"
	businessflow "github.com/amirphl/social-publisher/business_flow"
	"github.com/gofiber/fiber/v3"
)

type PostHandlerInterface interface {
	CreatePost(c fiber.Ctx) error
	ListPosts(c fiber.Ctx) error
	GetPost(c fiber.Ctx) error
	UpdatePost(c fiber.Ctx) error
	DeletePost(c fiber.Ctx) error
	ScheduledPlatformPosts(c fiber.Ctx) error
	EditPlatformPost(c fiber.Ctx) error
	RemovePlatformPost(c fiber.Ctx) error
}

// PostHandler handles standalone post requests
type PostHandler struct {
	baseHandler
	postFlow businessflow.PostFlow
}

func NewPostHandler(postFlow businessflow.PostFlow) *PostHandler {
	return &PostHandler{
		baseHandler: newBaseHandler(),
		postFlow:    postFlow,
	}
}

// CreatePost schedules a post; without scheduled_at it goes out on the next tick
// @Summary Create Post
// @Tags Posts
// @Accept json
// @Produce json
// @Param request body dto.CreatePostRequest true "Post data"
// @Success 201 {object} dto.APIResponse{data=dto.PostDTO}
// @Router /api/v1/posts [post]
func (h *PostHandler) CreatePost(c fiber.Ctx) error {
	var req dto.CreatePostRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validationErrors(&req); len(errs) > 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}
	req.UserID = userID

	ctx, cancel := h.createRequestContext(c, "/api/v1/posts")
	defer cancel()

	result, err := h.postFlow.CreatePost(ctx, &req)
	if err != nil {
		return h.businessError(c, err, "Post creation failed", "POST_CREATION_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, result.Message, result.Post)
}

func (h *PostHandler) ListPosts(c fiber.Ctx) error {
	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}

	page, err := queryInt(c, "page")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_PAGINATION", nil)
	}
	pageSize, err := queryInt(c, "page_size")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_PAGINATION", nil)
	}

	req := dto.ListPostsRequest{
		UserID:       userID,
		Status:       queryOptional(c, "status"),
		CampaignUUID: queryOptional(c, "campaign_uuid"),
		Page:         page,
		PageSize:     pageSize,
	}
	if raw := c.Query("published"); raw != "" {
		published, err := strconv.ParseBool(raw)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "published must be true or false", "INVALID_REQUEST", nil)
		}
		req.Published = &published
	}
	if errs := h.validationErrors(&req); len(errs) > 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/posts")
	defer cancel()

	result, err := h.postFlow.ListPosts(ctx, &req)
	if err != nil {
		return h.businessError(c, err, "Failed to list posts", "POST_LIST_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Posts retrieved successfully", result)
}

func (h *PostHandler) GetPost(c fiber.Ctx) error {
	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}
	postUUID := c.Params("uuid")
	if postUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Post UUID is required", "MISSING_POST_UUID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/posts/"+postUUID)
	defer cancel()

	result, err := h.postFlow.GetPost(ctx, userID, postUUID)
	if err != nil {
		return h.businessError(c, err, "Failed to get post", "POST_GET_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Post retrieved successfully", result)
}

// UpdatePost changes a pending or failed post
// @Summary Update Post
// @Tags Posts
// @Accept json
// @Produce json
// @Param uuid path string true "Post UUID"
// @Param request body dto.UpdatePostRequest true "Fields to change"
// @Success 200 {object} dto.APIResponse{data=dto.PostDTO}
// @Failure 409 {object} dto.APIResponse "Post is being published or already on the platform"
// @Router /api/v1/posts/{uuid} [put]
func (h *PostHandler) UpdatePost(c fiber.Ctx) error {
	postUUID := c.Params("uuid")
	if postUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Post UUID is required", "MISSING_POST_UUID", nil)
	}

	var req dto.UpdatePostRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validationErrors(&req); len(errs) > 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}
	req.UUID = postUUID
	req.UserID = userID

	ctx, cancel := h.createRequestContext(c, "/api/v1/posts/"+postUUID)
	defer cancel()

	result, err := h.postFlow.UpdatePost(ctx, &req)
	if err != nil {
		return h.businessError(c, err, "Post update failed", "POST_UPDATE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result.Post)
}

func (h *PostHandler) DeletePost(c fiber.Ctx) error {
	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}
	postUUID := c.Params("uuid")
	if postUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Post UUID is required", "MISSING_POST_UUID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/posts/"+postUUID)
	defer cancel()

	if err := h.postFlow.DeletePost(ctx, userID, postUUID); err != nil {
		return h.businessError(c, err, "Post delete failed", "POST_DELETE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Post deleted successfully", fiber.Map{"uuid": postUUID})
}

// ScheduledPlatformPosts lists the posts a page holds for deferred publication
// @Summary Scheduled Platform Posts
// @Tags Posts
// @Produce json
// @Param platform query string false "Platform, facebook by default"
// @Param account_id query string false "Page id, the default account when empty"
// @Success 200 {object} dto.APIResponse{data=dto.ScheduledPlatformPostsResponse}
// @Router /api/v1/posts/scheduled [get]
func (h *PostHandler) ScheduledPlatformPosts(c fiber.Ctx) error {
	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}

	req := dto.ScheduledPlatformPostsRequest{
		UserID:    userID,
		Platform:  c.Query("platform"),
		AccountID: c.Query("account_id"),
	}
	if errs := h.validationErrors(&req); len(errs) > 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/posts/scheduled")
	defer cancel()

	result, err := h.postFlow.ScheduledPlatformPosts(ctx, &req)
	if err != nil {
		return h.businessError(c, err, "Failed to list scheduled posts", "SCHEDULED_POSTS_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Scheduled posts retrieved successfully", result)
}

// EditPlatformPost changes a post the platform holds for deferred publication
// @Summary Edit Platform Post
// @Tags Posts
// @Accept json
// @Produce json
// @Param uuid path string true "Post UUID"
// @Param request body dto.EditPlatformPostRequest true "New content or time"
// @Success 200 {object} dto.APIResponse{data=dto.PostDTO}
// @Failure 409 {object} dto.APIResponse "Post is not held by the platform or already live"
// @Router /api/v1/posts/{uuid}/platform [patch]
func (h *PostHandler) EditPlatformPost(c fiber.Ctx) error {
	postUUID := c.Params("uuid")
	if postUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Post UUID is required", "MISSING_POST_UUID", nil)
	}

	var req dto.EditPlatformPostRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validationErrors(&req); len(errs) > 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}
	req.UUID = postUUID
	req.UserID = userID

	ctx, cancel := h.createRequestContext(c, "/api/v1/posts/"+postUUID+"/platform")
	defer cancel()

	result, err := h.postFlow.EditPlatformPost(ctx, &req)
	if err != nil {
		return h.businessError(c, err, "Post update failed", "POST_UPDATE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result.Post)
}

// RemovePlatformPost deletes the post from the platform and then from the store
// @Summary Remove Platform Post
// @Tags Posts
// @Param uuid path string true "Post UUID"
// @Success 200 {object} dto.APIResponse{data=dto.RemovePlatformPostResponse}
// @Failure 502 {object} dto.APIResponse "Platform did not confirm the removal"
// @Router /api/v1/posts/{uuid}/platform [delete]
func (h *PostHandler) RemovePlatformPost(c fiber.Ctx) error {
	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}
	postUUID := c.Params("uuid")
	if postUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Post UUID is required", "MISSING_POST_UUID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/posts/"+postUUID+"/platform")
	defer cancel()

	result, err := h.postFlow.RemovePlatformPost(ctx, userID, postUUID)
	if err != nil {
		return h.businessError(c, err, "Post removal failed", "POST_DELETE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}
