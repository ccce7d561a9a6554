package businessflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirphl/social-publisher/app/dto"
	"github.com/amirphl/social-publisher/app/services"
	"github.com/amirphl/social-publisher/models"
	"github.com/amirphl/social-publisher/repository"
	"github.com/amirphl/social-publisher/utils"
	"github.com/google/uuid"
)

// SocialAccountFlow manages the pages a user connected and their tokens
type SocialAccountFlow interface {
	ConnectAccount(ctx context.Context, req *dto.ConnectAccountRequest) (*dto.ConnectAccountResponse, error)
	ListAccounts(ctx context.Context, userID uint, platform string) (*dto.ListAccountsResponse, error)
	DisconnectAccount(ctx context.Context, userID uint, accountUUID string) error
	DiscoverPages(ctx context.Context, userID uint, platform string) (*dto.DiscoverPagesResponse, error)
	ConnectPage(ctx context.Context, req *dto.ConnectPageRequest) (*dto.ConnectAccountResponse, error)
}

type SocialAccountFlowImpl struct {
	accountRepo repository.SocialAccountRepository
	userRepo    repository.UserRepository
	tx          repository.Transactor
	cipher      services.TokenCipher
	publishers  *services.PublisherRegistry
	clock       utils.Clock
}

// NewSocialAccountFlow creates the account flow. A nil cipher stores tokens as given.
func NewSocialAccountFlow(
	accountRepo repository.SocialAccountRepository,
	userRepo repository.UserRepository,
	tx repository.Transactor,
	cipher services.TokenCipher,
	publishers *services.PublisherRegistry,
	clock utils.Clock,
) SocialAccountFlow {
	if cipher == nil {
		cipher, _ = services.NewTokenCipher("")
	}
	if publishers == nil {
		publishers = services.NewPublisherRegistry()
	}
	return &SocialAccountFlowImpl{
		accountRepo: accountRepo,
		userRepo:    userRepo,
		tx:          tx,
		cipher:      cipher,
		publishers:  publishers,
		clock:       clock,
	}
}

// ConnectAccount stores the page token, refreshing it when the page is already connected.
// Marking the page default clears the flag on the user's other pages of the platform.
func (f *SocialAccountFlowImpl) ConnectAccount(ctx context.Context, req *dto.ConnectAccountRequest) (*dto.ConnectAccountResponse, error) {
	platform, ok := parsePlatform(req.Platform)
	if !ok {
		return nil, NewBusinessError("PLATFORM_UNSUPPORTED", "Platform is not supported", ErrPlatformUnsupported)
	}
	accountID := strings.TrimSpace(req.AccountID)
	token := strings.TrimSpace(req.AccessToken)
	if accountID == "" || token == "" {
		return nil, NewBusinessError("INVALID_REQUEST", "Account id and access token are required", ErrInvalidRequest)
	}

	user, err := f.owner(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return f.connect(ctx, &models.SocialAccount{
		UserID:         user.ID,
		Platform:       platform,
		AccountID:      accountID,
		Name:           strings.TrimSpace(req.Name),
		IsDefault:      req.IsDefault,
		TokenExpiresAt: req.TokenExpiresAt,
	}, token)
}

// DiscoverPages lists the pages the user manages on the platform, using the user token saved at login
func (f *SocialAccountFlowImpl) DiscoverPages(ctx context.Context, userID uint, platform string) (*dto.DiscoverPagesResponse, error) {
	p, publisher, err := f.publisherFor(platform)
	if err != nil {
		return nil, err
	}
	pages, err := f.managedPages(ctx, userID, publisher)
	if err != nil {
		return nil, err
	}

	connected, err := f.accountRepo.ByUserAndPlatform(ctx, userID, p)
	if err != nil {
		return nil, NewBusinessError("ACCOUNT_LIST_FAILED", "Failed to list accounts", storeErr("list accounts", err))
	}
	known := make(map[string]bool, len(connected))
	for _, a := range connected {
		known[a.AccountID] = true
	}

	items := make([]dto.DiscoveredPageDTO, 0, len(pages))
	for _, page := range pages {
		items = append(items, dto.DiscoveredPageDTO{
			AccountID: page.ID,
			Name:      page.Name,
			Connected: known[page.ID],
		})
	}
	return &dto.DiscoverPagesResponse{Platform: p.String(), Items: items}, nil
}

// ConnectPage connects one of the user's discovered pages. The page token comes from the platform, never the client.
func (f *SocialAccountFlowImpl) ConnectPage(ctx context.Context, req *dto.ConnectPageRequest) (*dto.ConnectAccountResponse, error) {
	p, publisher, err := f.publisherFor(req.Platform)
	if err != nil {
		return nil, err
	}
	accountID := strings.TrimSpace(req.AccountID)
	if accountID == "" {
		return nil, NewBusinessError("INVALID_REQUEST", "Account id is required", ErrInvalidRequest)
	}

	pages, err := f.managedPages(ctx, req.UserID, publisher)
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		if page.ID != accountID {
			continue
		}
		if strings.TrimSpace(page.AccessToken) == "" {
			return nil, NewBusinessError("PLATFORM_REJECTED", "Platform returned no token for the page", ErrPlatformRejected)
		}
		return f.connect(ctx, &models.SocialAccount{
			UserID:    req.UserID,
			Platform:  p,
			AccountID: page.ID,
			Name:      strings.TrimSpace(page.Name),
			IsDefault: req.IsDefault,
		}, page.AccessToken)
	}
	return nil, NewBusinessError("PAGE_NOT_MANAGED", "Page is not managed by the user", fmt.Errorf("%w: %s", ErrPageNotManaged, accountID))
}

func (f *SocialAccountFlowImpl) owner(ctx context.Context, userID uint) (*models.User, error) {
	user, err := f.userRepo.ByID(ctx, userID)
	if err != nil {
		return nil, NewBusinessError("USER_LOOKUP_FAILED", "Failed to lookup user", storeErr("lookup user", err))
	}
	if user == nil {
		return nil, NewBusinessError("USER_NOT_FOUND", "User not found", ErrUserNotFound)
	}
	return user, nil
}

func (f *SocialAccountFlowImpl) publisherFor(platform string) (models.Platform, services.PlatformPublisher, error) {
	p, ok := parsePlatform(platform)
	if !ok {
		return "", nil, NewBusinessError("PLATFORM_UNSUPPORTED", "Platform is not supported", ErrPlatformUnsupported)
	}
	publisher, ok := f.publishers.Get(p.String())
	if !ok {
		return "", nil, NewBusinessError("PLATFORM_UNSUPPORTED", "Platform is not supported", fmt.Errorf("%w: %s", ErrPlatformUnsupported, p))
	}
	return p, publisher, nil
}

// managedPages asks the platform for the user's pages. A missing or unreadable user token is a missing credential.
func (f *SocialAccountFlowImpl) managedPages(ctx context.Context, userID uint, publisher services.PlatformPublisher) ([]services.Page, error) {
	user, err := f.owner(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasFacebookToken() {
		return nil, NewBusinessError("CREDENTIAL_MISSING", "Platform login is required to list pages", ErrCredentialMissing)
	}
	userToken, err := f.cipher.Open(*user.FacebookAccessToken)
	if err != nil {
		return nil, NewBusinessError("CREDENTIAL_MISSING", "Platform login is required to list pages", ErrCredentialMissing)
	}

	pages, err := publisher.Pages(ctx, userToken)
	if err != nil {
		return nil, NewBusinessError(codeForCategory(CategoryOf(err)), "Failed to list pages", err)
	}
	return pages, nil
}

// connect seals token and upserts the account. A default account clears the flag on the user's other pages.
func (f *SocialAccountFlowImpl) connect(ctx context.Context, account *models.SocialAccount, token string) (*dto.ConnectAccountResponse, error) {
	sealed, err := f.cipher.Seal(token)
	if err != nil {
		return nil, NewBusinessError("ACCOUNT_CONNECT_FAILED", "Failed to connect account", err)
	}
	account.AccessToken = sealed

	var stored *models.SocialAccount
	err = f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if account.IsDefault {
			if err := f.accountRepo.ClearDefault(txCtx, account.UserID, account.Platform); err != nil {
				return err
			}
		}
		if err := f.accountRepo.Upsert(txCtx, account); err != nil {
			return err
		}
		var err error
		stored, err = f.accountRepo.ByAccountID(txCtx, account.UserID, account.Platform, account.AccountID)
		if err == nil && stored == nil {
			stored = account
		}
		return err
	})
	if err != nil {
		return nil, NewBusinessError("ACCOUNT_CONNECT_FAILED", "Failed to connect account", storeErr("connect account", err))
	}

	return &dto.ConnectAccountResponse{
		Message: "Account connected successfully",
		Account: ToSocialAccountDTO(stored, stored.UsableAt(f.clock.Now())),
	}, nil
}

func (f *SocialAccountFlowImpl) ListAccounts(ctx context.Context, userID uint, platform string) (*dto.ListAccountsResponse, error) {
	filter := models.SocialAccountFilter{UserID: &userID}
	if platform != "" {
		p, ok := parsePlatform(platform)
		if !ok {
			return nil, NewBusinessError("PLATFORM_UNSUPPORTED", "Platform is not supported", ErrPlatformUnsupported)
		}
		filter.Platform = &p
	}

	accounts, err := f.accountRepo.ByFilter(ctx, filter, "platform ASC, is_default DESC, id ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("ACCOUNT_LIST_FAILED", "Failed to list accounts", storeErr("list accounts", err))
	}

	now := f.clock.Now()
	items := make([]dto.SocialAccountDTO, 0, len(accounts))
	for _, a := range accounts {
		items = append(items, ToSocialAccountDTO(a, a.UsableAt(now)))
	}
	return &dto.ListAccountsResponse{Items: items}, nil
}

// DisconnectAccount removes a connected page. Records targeting it fail with a missing credential later.
func (f *SocialAccountFlowImpl) DisconnectAccount(ctx context.Context, userID uint, accountUUID string) error {
	if _, err := uuid.Parse(accountUUID); err != nil {
		return NewBusinessError("ACCOUNT_NOT_FOUND", "Account not found", ErrAccountNotFound)
	}
	account, err := f.accountRepo.ByUUID(ctx, accountUUID)
	if err != nil {
		return NewBusinessError("ACCOUNT_LOOKUP_FAILED", "Failed to lookup account", storeErr("lookup account", err))
	}
	if account == nil || account.UserID != userID {
		return NewBusinessError("ACCOUNT_NOT_FOUND", "Account not found", ErrAccountNotFound)
	}
	if err := f.accountRepo.Delete(ctx, account.ID); err != nil {
		return NewBusinessError("ACCOUNT_DISCONNECT_FAILED", "Failed to disconnect account", storeErr("delete account", err))
	}
	return nil
}
