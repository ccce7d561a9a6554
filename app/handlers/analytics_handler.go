package handlers

import (
	"strings"

	"github.com/amirphl/social-publisher/app/dto"
	businessflow "github.com/amirphl/social-publisher/business_flow"
	"github.com/gofiber/fiber/v3"
)

type AnalyticsHandlerInterface interface {
	CampaignInsights(c fiber.Ctx) error
	PageInsights(c fiber.Ctx) error
	ExportCampaigns(c fiber.Ctx) error
}

// AnalyticsHandler serves platform insights and the campaigns workbook
type AnalyticsHandler struct {
	baseHandler
	analyticsFlow businessflow.AnalyticsFlow
}

func NewAnalyticsHandler(analyticsFlow businessflow.AnalyticsFlow) *AnalyticsHandler {
	return &AnalyticsHandler{
		baseHandler:   newBaseHandler(),
		analyticsFlow: analyticsFlow,
	}
}

// CampaignInsights returns the platform metrics of a published campaign
// @Summary Campaign Insights
// @Tags Analytics
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignInsightsResponse}
// @Failure 409 {object} dto.APIResponse "Campaign has not been published"
// @Router /api/v1/analytics/campaigns/{uuid} [get]
func (h *AnalyticsHandler) CampaignInsights(c fiber.Ctx) error {
	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}
	campaignUUID := c.Params("uuid")
	if campaignUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign UUID is required", "MISSING_CAMPAIGN_UUID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/analytics/campaigns/"+campaignUUID)
	defer cancel()

	result, err := h.analyticsFlow.CampaignInsights(ctx, userID, campaignUUID)
	if err != nil {
		return h.businessError(c, err, "Failed to fetch campaign insights", "INSIGHTS_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign insights retrieved successfully", result)
}

// PageInsights reads page-level metrics; metrics is a comma separated list
func (h *AnalyticsHandler) PageInsights(c fiber.Ctx) error {
	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}

	since, err := queryTime(c, "since")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_REQUEST", nil)
	}
	until, err := queryTime(c, "until")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_REQUEST", nil)
	}

	req := dto.PageInsightsRequest{
		UserID:    userID,
		AccountID: c.Query("account_id"),
		Period:    c.Query("period"),
		Since:     since,
		Until:     until,
	}
	if raw := c.Query("metrics"); raw != "" {
		for _, m := range strings.Split(raw, ",") {
			if m = strings.TrimSpace(m); m != "" {
				req.Metrics = append(req.Metrics, m)
			}
		}
	}
	if errs := h.validationErrors(&req); len(errs) > 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/analytics/page")
	defer cancel()

	result, err := h.analyticsFlow.PageInsights(ctx, &req)
	if err != nil {
		return h.businessError(c, err, "Failed to fetch page insights", "INSIGHTS_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Page insights retrieved successfully", result)
}

// ExportCampaigns sends the caller's campaigns as an xlsx attachment
// @Summary Export Campaigns
// @Tags Analytics
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} file
// @Router /api/v1/analytics/export [get]
func (h *AnalyticsHandler) ExportCampaigns(c fiber.Ctx) error {
	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/analytics/export")
	defer cancel()

	report, err := h.analyticsFlow.ExportCampaignsReport(ctx, userID)
	if err != nil {
		return h.businessError(c, err, "Failed to export campaigns", "REPORT_FAILED")
	}

	c.Set(fiber.HeaderContentType, report.ContentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+report.FileName+`"`)
	return c.Status(fiber.StatusOK).Send(report.Content)
}
