package businessflow

import (
	"context"
	"strings"
	"time"

	"github.com/amirphl/social-publisher/app/services"
	"github.com/amirphl/social-publisher/models"
	"github.com/amirphl/social-publisher/repository"
	"github.com/amirphl/social-publisher/utils"
)

// Credential is the account and token a publication is performed with
type Credential struct {
	Platform    models.Platform
	AccountID   string
	AccessToken string
	// Source is "account" for a connected account, "user" for the owner's own OAuth token
	Source string
}

type CredentialQuery struct {
	UserID    uint
	Platform  models.Platform
	AccountID string
}

// CredentialResolver finds the credential to publish with. A nil credential with a nil
// error means the owner has nothing usable connected.
type CredentialResolver interface {
	Resolve(ctx context.Context, q CredentialQuery) (*Credential, error)
}

type CredentialResolverImpl struct {
	accountRepo   repository.SocialAccountRepository
	userRepo      repository.UserRepository
	defaultPageID string
	cipher        services.TokenCipher
	clock         utils.Clock
}

// NewCredentialResolver creates the resolver. A nil cipher reads tokens as stored.
func NewCredentialResolver(
	accountRepo repository.SocialAccountRepository,
	userRepo repository.UserRepository,
	defaultPageID string,
	cipher services.TokenCipher,
	clock utils.Clock,
) CredentialResolver {
	if cipher == nil {
		cipher, _ = services.NewTokenCipher("")
	}
	return &CredentialResolverImpl{
		accountRepo:   accountRepo,
		userRepo:      userRepo,
		defaultPageID: defaultPageID,
		cipher:        cipher,
		clock:         clock,
	}
}

// Resolve looks up, in order: the requested account, the default account, the first usable
// account, and for Facebook the owner's token paired with the requested or configured page.
// Default and first accounts are only considered when no account was requested.
func (r *CredentialResolverImpl) Resolve(ctx context.Context, q CredentialQuery) (*Credential, error) {
	now := r.clock.Now()
	accountID := strings.TrimSpace(q.AccountID)

	if accountID != "" {
		account, err := r.accountRepo.ByAccountID(ctx, q.UserID, q.Platform, accountID)
		if err != nil {
			return nil, storeErr("resolve requested account", err)
		}
		if cred := r.accountCredential(account, now); cred != nil {
			return cred, nil
		}
	} else {
		account, err := r.accountRepo.DefaultFor(ctx, q.UserID, q.Platform)
		if err != nil {
			return nil, storeErr("resolve default account", err)
		}
		if cred := r.accountCredential(account, now); cred != nil {
			return cred, nil
		}

		accounts, err := r.accountRepo.ByUserAndPlatform(ctx, q.UserID, q.Platform)
		if err != nil {
			return nil, storeErr("resolve connected accounts", err)
		}
		for _, a := range accounts {
			if cred := r.accountCredential(a, now); cred != nil {
				return cred, nil
			}
		}
	}

	if q.Platform != models.PlatformFacebook {
		return nil, nil
	}

	user, err := r.userRepo.ByID(ctx, q.UserID)
	if err != nil {
		return nil, storeErr("resolve owner token", err)
	}
	if user == nil || !user.HasFacebookToken() {
		return nil, nil
	}
	pageID := accountID
	if pageID == "" {
		pageID = r.defaultPageID
	}
	if pageID == "" {
		return nil, nil
	}
	token, err := r.cipher.Open(*user.FacebookAccessToken)
	if err != nil {
		return nil, nil
	}

	return &Credential{
		Platform:    models.PlatformFacebook,
		AccountID:   pageID,
		AccessToken: token,
		Source:      "user",
	}, nil
}

// accountCredential returns nil for accounts that are missing, expired or sealed with another key
func (r *CredentialResolverImpl) accountCredential(a *models.SocialAccount, now time.Time) *Credential {
	if a == nil || !a.UsableAt(now) {
		return nil
	}
	token, err := r.cipher.Open(a.AccessToken)
	if err != nil {
		return nil
	}
	return &Credential{
		Platform:    a.Platform,
		AccountID:   a.AccountID,
		AccessToken: token,
		Source:      "account",
	}
}
