package handlers

import (
	"github.com/amirphl/social-publisher/app/dto"
	businessflow "github.com/amirphl/social-publisher/business_flow"
	"github.com/gofiber/fiber/v3"
)

type AccountHandlerInterface interface {
	ConnectAccount(c fiber.Ctx) error
	ListAccounts(c fiber.Ctx) error
	DisconnectAccount(c fiber.Ctx) error
	DiscoverPages(c fiber.Ctx) error
	ConnectPage(c fiber.Ctx) error
}

// AccountHandler manages the pages whose tokens the scheduler publishes with
type AccountHandler struct {
	baseHandler
	accountFlow businessflow.SocialAccountFlow
}

func NewAccountHandler(accountFlow businessflow.SocialAccountFlow) *AccountHandler {
	return &AccountHandler{
		baseHandler: newBaseHandler(),
		accountFlow: accountFlow,
	}
}

// ConnectAccount stores or refreshes a page token
// @Summary Connect Account
// @Tags Accounts
// @Accept json
// @Produce json
// @Param request body dto.ConnectAccountRequest true "Page and token"
// @Success 200 {object} dto.APIResponse{data=dto.SocialAccountDTO}
// @Router /api/v1/accounts [post]
func (h *AccountHandler) ConnectAccount(c fiber.Ctx) error {
	var req dto.ConnectAccountRequest
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

	ctx, cancel := h.createRequestContext(c, "/api/v1/accounts")
	defer cancel()

	result, err := h.accountFlow.ConnectAccount(ctx, &req)
	if err != nil {
		return h.businessError(c, err, "Account connection failed", "ACCOUNT_CONNECT_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result.Account)
}

func (h *AccountHandler) ListAccounts(c fiber.Ctx) error {
	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/accounts")
	defer cancel()

	result, err := h.accountFlow.ListAccounts(ctx, userID, c.Query("platform"))
	if err != nil {
		return h.businessError(c, err, "Failed to list accounts", "ACCOUNT_LIST_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Accounts retrieved successfully", result)
}

func (h *AccountHandler) DisconnectAccount(c fiber.Ctx) error {
	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}
	accountUUID := c.Params("uuid")
	if accountUUID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Account UUID is required", "MISSING_ACCOUNT_UUID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/accounts/"+accountUUID)
	defer cancel()

	if err := h.accountFlow.DisconnectAccount(ctx, userID, accountUUID); err != nil {
		return h.businessError(c, err, "Account disconnection failed", "ACCOUNT_DISCONNECT_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Account disconnected successfully", fiber.Map{"uuid": accountUUID})
}

// DiscoverPages lists the pages the user manages, using the token saved at platform login
// @Summary Discover Pages
// @Tags Accounts
// @Produce json
// @Param platform query string false "Platform, facebook by default"
// @Success 200 {object} dto.APIResponse{data=dto.DiscoverPagesResponse}
// @Failure 422 {object} dto.APIResponse "No platform login on file"
// @Router /api/v1/accounts/pages [get]
func (h *AccountHandler) DiscoverPages(c fiber.Ctx) error {
	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/accounts/pages")
	defer cancel()

	result, err := h.accountFlow.DiscoverPages(ctx, userID, c.Query("platform"))
	if err != nil {
		return h.businessError(c, err, "Failed to list pages", "PAGE_LIST_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Pages retrieved successfully", result)
}

// ConnectPage connects a discovered page; the page token is fetched from the platform
// @Summary Connect Page
// @Tags Accounts
// @Accept json
// @Produce json
// @Param pageId path string true "Page id"
// @Param request body dto.ConnectPageRequest false "Connection options"
// @Success 200 {object} dto.APIResponse{data=dto.SocialAccountDTO}
// @Failure 404 {object} dto.APIResponse "Page is not managed by the user"
// @Router /api/v1/accounts/pages/{pageId} [post]
func (h *AccountHandler) ConnectPage(c fiber.Ctx) error {
	pageID := c.Params("pageId")
	if pageID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Page id is required", "MISSING_PAGE_ID", nil)
	}

	var req dto.ConnectPageRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}
	if errs := h.validationErrors(&req); len(errs) > 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	userID, ok := h.userID(c)
	if !ok {
		return h.missingUser(c)
	}
	req.UserID = userID
	req.AccountID = pageID

	ctx, cancel := h.createRequestContext(c, "/api/v1/accounts/pages/"+pageID)
	defer cancel()

	result, err := h.accountFlow.ConnectPage(ctx, &req)
	if err != nil {
		return h.businessError(c, err, "Page connection failed", "ACCOUNT_CONNECT_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result.Account)
}
