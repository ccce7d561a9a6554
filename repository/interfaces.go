// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/social-publisher/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

var (
	// ErrClaimLost is returned when a terminal write finds the record no longer claimed
	ErrClaimLost = errors.New("publication claim lost")
	// ErrStatusChanged is returned when a guarded write finds the record in another status
	ErrStatusChanged = errors.New("record status changed concurrently")
)

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// CampaignRepository defines operations for campaigns, including the publication state machine
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	ByUserID(ctx context.Context, userID uint, limit, offset int) ([]*models.Campaign, error)
	Update(ctx context.Context, campaign *models.Campaign) error
	// UpdateIfStatus writes every field of the campaign if its stored status is one of expected
	UpdateIfStatus(ctx context.Context, campaign *models.Campaign, expected ...models.CampaignStatus) error
	SoftDelete(ctx context.Context, id uint) error
	SoftDeleteIfStatus(ctx context.Context, id uint, expected ...models.CampaignStatus) error

	// ListDue returns unclaimed scheduled campaigns whose time has come
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error)
	// Claim moves a campaign from scheduled to publishing and returns its attempt number;
	// false means someone else holds it or it is terminal
	Claim(ctx context.Context, id uint, now time.Time) (int, bool, error)
	// MarkDispatched is written right before the platform call
	MarkDispatched(ctx context.Context, id uint, now time.Time) error
	MarkPublished(ctx context.Context, id uint, externalID string, now time.Time) error
	MarkFailed(ctx context.Context, id uint, reason string, now time.Time) error
	// Release hands a claimed campaign back to the scheduler for a later attempt
	Release(ctx context.Context, id uint, nextAttemptAt time.Time, reason string, now time.Time) error
	// Unclaim hands a claimed campaign back and does not count the attempt
	Unclaim(ctx context.Context, id uint, reason string, now time.Time) error
	// ExpireStaleClaims fails stale claims that were dispatched and releases the others
	ExpireStaleClaims(ctx context.Context, claimedBefore, now time.Time) (StaleClaims, error)
}

// PostRepository defines operations for posts, including the publication state machine
type PostRepository interface {
	Repository[models.Post, models.PostFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Post, error)
	ByCampaignID(ctx context.Context, campaignID uint) ([]*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	UpdateIfStatus(ctx context.Context, post *models.Post, expected ...models.PostStatus) error
	SoftDelete(ctx context.Context, id uint) error
	SoftDeleteIfStatus(ctx context.Context, id uint, expected ...models.PostStatus) error

	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error)
	Claim(ctx context.Context, id uint, now time.Time) (int, bool, error)
	MarkDispatched(ctx context.Context, id uint, now time.Time) error
	MarkPosted(ctx context.Context, id uint, externalID string, published bool, now time.Time) error
	MarkFailed(ctx context.Context, id uint, reason string, now time.Time) error
	Release(ctx context.Context, id uint, nextAttemptAt time.Time, reason string, now time.Time) error
	Unclaim(ctx context.Context, id uint, reason string, now time.Time) error
	ExpireStaleClaims(ctx context.Context, claimedBefore, now time.Time) (StaleClaims, error)
}

// UserRepository defines operations for campaign owners
type UserRepository interface {
	Repository[models.User, models.UserFilter]
	ByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateFacebookToken(ctx context.Context, userID uint, facebookUserID, token *string) error
}

// SocialAccountRepository defines operations for connected pages and their tokens
type SocialAccountRepository interface {
	Repository[models.SocialAccount, models.SocialAccountFilter]
	ByUUID(ctx context.Context, uuid string) (*models.SocialAccount, error)
	ByUserAndPlatform(ctx context.Context, userID uint, platform models.Platform) ([]*models.SocialAccount, error)
	ByAccountID(ctx context.Context, userID uint, platform models.Platform, accountID string) (*models.SocialAccount, error)
	DefaultFor(ctx context.Context, userID uint, platform models.Platform) (*models.SocialAccount, error)
	Upsert(ctx context.Context, account *models.SocialAccount) error
	ClearDefault(ctx context.Context, userID uint, platform models.Platform) error
	Delete(ctx context.Context, id uint) error
}
