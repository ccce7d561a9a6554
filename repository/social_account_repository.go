package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/social-publisher/models"
	"github.com/amirphl/social-publisher/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SocialAccountRepositoryImpl implements SocialAccountRepository
type SocialAccountRepositoryImpl struct {
	*BaseRepository[models.SocialAccount, models.SocialAccountFilter]
}

func NewSocialAccountRepository(db *gorm.DB) SocialAccountRepository {
	return &SocialAccountRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SocialAccount, models.SocialAccountFilter](db),
	}
}

func (r *SocialAccountRepositoryImpl) ByUUID(ctx context.Context, id string) (*models.SocialAccount, error) {
	parsedUUID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid account uuid %q: %w", id, err)
	}
	return r.first(ctx, models.SocialAccountFilter{UUID: &parsedUUID}, "")
}

func (r *SocialAccountRepositoryImpl) ByUserAndPlatform(ctx context.Context, userID uint, platform models.Platform) ([]*models.SocialAccount, error) {
	return r.ByFilter(ctx, models.SocialAccountFilter{UserID: &userID, Platform: &platform}, "is_default DESC, id ASC", 0, 0)
}

func (r *SocialAccountRepositoryImpl) ByAccountID(ctx context.Context, userID uint, platform models.Platform, accountID string) (*models.SocialAccount, error) {
	return r.first(ctx, models.SocialAccountFilter{UserID: &userID, Platform: &platform, AccountID: &accountID}, "")
}

func (r *SocialAccountRepositoryImpl) DefaultFor(ctx context.Context, userID uint, platform models.Platform) (*models.SocialAccount, error) {
	isDefault := true
	return r.first(ctx, models.SocialAccountFilter{UserID: &userID, Platform: &platform, IsDefault: &isDefault}, "id ASC")
}

// Upsert inserts the account or refreshes name, token and expiry of an existing one
func (r *SocialAccountRepositoryImpl) Upsert(ctx context.Context, account *models.SocialAccount) error {
	if account.UUID == uuid.Nil {
		account.UUID = uuid.New()
	}
	err := r.getDB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "platform"}, {Name: "account_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"name":             account.Name,
			"access_token":     account.AccessToken,
			"is_default":       account.IsDefault,
			"token_expires_at": account.TokenExpiresAt,
			"updated_at":       utils.UTCNow(),
		}),
	}).Create(account).Error
	if err != nil {
		return fmt.Errorf("failed to upsert social account: %w", err)
	}
	return nil
}

func (r *SocialAccountRepositoryImpl) ClearDefault(ctx context.Context, userID uint, platform models.Platform) error {
	return r.getDB(ctx).Model(&models.SocialAccount{}).
		Where("user_id = ? AND platform = ? AND is_default = ?", userID, platform, true).
		Updates(map[string]any{"is_default": false, "updated_at": utils.UTCNow()}).Error
}

func (r *SocialAccountRepositoryImpl) Delete(ctx context.Context, id uint) error {
	return r.getDB(ctx).Delete(&models.SocialAccount{}, id).Error
}

func (r *SocialAccountRepositoryImpl) first(ctx context.Context, filter models.SocialAccountFilter, orderBy string) (*models.SocialAccount, error) {
	query := r.applyFilter(r.getDB(ctx), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	var account models.SocialAccount
	if err := query.Take(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *SocialAccountRepositoryImpl) ByFilter(ctx context.Context, filter models.SocialAccountFilter, orderBy string, limit, offset int) ([]*models.SocialAccount, error) {
	query := r.applyFilter(r.getDB(ctx), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var accounts []*models.SocialAccount
	if err := query.Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *SocialAccountRepositoryImpl) Count(ctx context.Context, filter models.SocialAccountFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.getDB(ctx).Model(&models.SocialAccount{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SocialAccountRepositoryImpl) Exists(ctx context.Context, filter models.SocialAccountFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *SocialAccountRepositoryImpl) applyFilter(db *gorm.DB, filter models.SocialAccountFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.Platform != nil {
		db = db.Where("platform = ?", *filter.Platform)
	}
	if filter.AccountID != nil {
		db = db.Where("account_id = ?", *filter.AccountID)
	}
	if filter.IsDefault != nil {
		db = db.Where("is_default = ?", *filter.IsDefault)
	}
	return db
}
