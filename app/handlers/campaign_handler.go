package handlers

import (
	"github.com/amirphl/social-publisher/app/dto"
	businessflow "github.com/amirphl/social-publisher/business_flow"
	"github.com/gofiber/fiber/v3"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	ListCampaigns(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	UpdateCampaign(c fiber.Ctx) error
	DeleteCampaign(c fiber.Ctx) error
	PublishCampaign(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	baseHandler
	campaignFlow    businessflow.CampaignFlow
	publicationFlow businessflow.PublicationFlow
}

func NewCampaignHandler(campaignFlow businessflow.CampaignFlow, publicationFlow businessflow.PublicationFlow) *CampaignHandler {
	return &CampaignHandler{
		baseHandler:     newBaseHandler(),
		campaignFlow:    campaignFlow,
		publicationFlow: publicationFlow,
	}
}

// CreateCampaign schedules a new campaign
// @Summary Create Campaign
// @Description Schedule a campaign for publication on a social platform
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param request body dto.CreateCampaignRequest true "Campaign creation data"
// @Success 201 {object} dto.APIResponse{data=dto.CreateCampaignResponse} "Campaign created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "User not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	var req dto.CreateCampaignRequest
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

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns")
	defer cancel()

	result, err := h.campaignFlow.CreateCampaign(ctx, &req)
	if err != nil {
		return h.businessError(c, err, "Campaign creation failed", "CAMPAIGN_CREATION_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, result.Message, result.Campaign)
}

// ListCampaigns lists the caller's campaigns
// @Summary List Campaigns
// @Tags Campaigns
// @Produce json
// @Param status query string false "scheduled, publishing, published or failed"
// @Param platform query string false "facebook or instagram"
// @Param name query string false "Name filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} dto.APIResponse{data=dto.ListCampaignsResponse}
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
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

	req := dto.ListCampaignsRequest{
		UserID:   userID,
		Status:   queryOptional(c, "status"),
		Platform: queryOptional(c, "platform"),
		Name:     queryOptional(c, "name"),
		Page:     page,
		PageSize: pageSize,
	}
	if errs := h.validationErrors(&req); len(errs) > 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns")
	defer cancel()

	result, err := h.campaignFlow.ListCampaigns(ctx, &req)
	if err != nil {
		return h.businessError(c, err, "Failed to list campaigns", "CAMPAIGN_LIST_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaigns retrieved successfully", result)
}

// GetCampaign returns one of the caller's campaigns
// @Summary Get Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignDTO}
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Router /api/v1/campaigns/{uuid} [get]
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/"+campaignUUID)
	defer cancel()

	result, err := h.campaignFlow.GetCampaign(ctx, userID, campaignUUID)
	if err != nil {
		return h.businessError(c, err, "Failed to get campaign", "CAMPAIGN_LOOKUP_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign retrieved successfully", result)
}

// UpdateCampaign changes a campaign that has not been claimed for publication
// @Summary Update Campaign
// @Description Update a scheduled or failed campaign; a failed campaign is scheduled again
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Param request body dto.UpdateCampaignRequest true "Campaign update data"
// @Success 200 {object} dto.APIResponse{data=dto.UpdateCampaignResponse} "Campaign updated successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 409 {object} dto.APIResponse "Campaign cannot be updated in current status"
// @Router /api/v1/campaigns/{uuid} [put]
func (h *CampaignHandler) UpdateCampaign(c fiber.Ctx) error {
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	var req dto.UpdateCampaignRequest
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
	req.UUID = campaignUUID
	req.UserID = userID

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/"+campaignUUID)
	defer cancel()

	result, err := h.campaignFlow.UpdateCampaign(ctx, &req)
	if err != nil {
		return h.businessError(c, err, "Campaign update failed", "CAMPAIGN_UPDATE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result.Campaign)
}

// DeleteCampaign removes a scheduled or failed campaign
// @Summary Delete Campaign
// @Tags Campaigns
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse "Campaign cannot be deleted in current status"
// @Router /api/v1/campaigns/{uuid} [delete]
func (h *CampaignHandler) DeleteCampaign(c fiber.Ctx) error {
	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/"+campaignUUID)
	defer cancel()

	if err := h.campaignFlow.DeleteCampaign(ctx, userID, campaignUUID); err != nil {
		return h.businessError(c, err, "Campaign deletion failed", "CAMPAIGN_DELETE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign deleted successfully", fiber.Map{"uuid": campaignUUID})
}

// PublishCampaign publishes a scheduled campaign now instead of waiting for the scheduler
// @Summary Publish Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.PublishCampaignResponse}
// @Failure 409 {object} dto.APIResponse "Campaign is not awaiting publication"
// @Failure 422 {object} dto.APIResponse "Platform rejected the post or no credential is available"
// @Failure 503 {object} dto.APIResponse "Platform unreachable"
// @Router /api/v1/campaigns/{uuid}/publish [post]
func (h *CampaignHandler) PublishCampaign(c fiber.Ctx) error {
	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/"+campaignUUID+"/publish")
	defer cancel()

	result, err := h.publicationFlow.PublishCampaign(ctx, userID, campaignUUID)
	if err != nil {
		return h.businessError(c, err, "Campaign publication failed", "PUBLICATION_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}
