package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/social-publisher/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var campaignStates = publicationStates{
	ready:   models.CampaignStatusScheduled,
	claimed: models.CampaignStatusPublishing,
	done:    models.CampaignStatusPublished,
	failed:  models.CampaignStatusFailed,
}

// CampaignRepositoryImpl implements the CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db),
	}
}

// ByID retrieves a campaign by ID
func (r *CampaignRepositoryImpl) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaign models.Campaign
	err := db.Last(&campaign, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &campaign, nil
}

// ByUUID retrieves a campaign by UUID
func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, id string) (*models.Campaign, error) {
	parsedUUID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid campaign uuid %q: %w", id, err)
	}

	filter := models.CampaignFilter{UUID: &parsedUUID}
	campaigns, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}

	if len(campaigns) == 0 {
		return nil, nil
	}

	return campaigns[0], nil
}

// ByUserID retrieves campaigns by owner with pagination
func (r *CampaignRepositoryImpl) ByUserID(ctx context.Context, userID uint, limit, offset int) ([]*models.Campaign, error) {
	filter := models.CampaignFilter{UserID: &userID}
	return r.ByFilter(ctx, filter, "created_at DESC", limit, offset)
}

// Update saves all fields of a campaign
func (r *CampaignRepositoryImpl) Update(ctx context.Context, campaign *models.Campaign) (err error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				err = db.Commit().Error
			}
		}()
	}

	if err = db.Save(campaign).Error; err != nil {
		return fmt.Errorf("failed to update campaign %d: %w", campaign.ID, err)
	}

	return nil
}

func (r *CampaignRepositoryImpl) UpdateIfStatus(ctx context.Context, campaign *models.Campaign, expected ...models.CampaignStatus) error {
	res := r.getDB(ctx).Model(campaign).
		Where("status IN ?", expected).
		Select("*").
		Omit("id", "uuid", "user_id", "created_at", "deleted_at").
		Updates(campaign)
	if res.Error != nil {
		return fmt.Errorf("failed to update campaign %d: %w", campaign.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

// SoftDelete marks a campaign as deleted
func (r *CampaignRepositoryImpl) SoftDelete(ctx context.Context, id uint) error {
	db := r.getDB(ctx)
	return db.Delete(&models.Campaign{}, id).Error
}

func (r *CampaignRepositoryImpl) SoftDeleteIfStatus(ctx context.Context, id uint, expected ...models.CampaignStatus) error {
	res := r.getDB(ctx).Where("status IN ?", expected).Delete(&models.Campaign{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *CampaignRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	return listDue[models.Campaign](r.getDB(ctx), campaignStates, now, limit)
}

func (r *CampaignRepositoryImpl) Claim(ctx context.Context, id uint, now time.Time) (int, bool, error) {
	return claimRecord(r.getDB(ctx), &models.Campaign{}, id, campaignStates, now)
}

// MarkDispatched records that the platform is about to be called for a claimed campaign
func (r *CampaignRepositoryImpl) MarkDispatched(ctx context.Context, id uint, now time.Time) error {
	return finishClaimed(r.getDB(ctx), &models.Campaign{}, id, campaignStates, dispatchedUpdates(now))
}

// MarkPublished records the platform id and the published status in one statement
func (r *CampaignRepositoryImpl) MarkPublished(ctx context.Context, id uint, externalID string, now time.Time) error {
	return finishClaimed(r.getDB(ctx), &models.Campaign{}, id, campaignStates, publishedUpdates(campaignStates, externalID, now))
}

func (r *CampaignRepositoryImpl) MarkFailed(ctx context.Context, id uint, reason string, now time.Time) error {
	return finishClaimed(r.getDB(ctx), &models.Campaign{}, id, campaignStates, failedUpdates(campaignStates, reason, now))
}

func (r *CampaignRepositoryImpl) Release(ctx context.Context, id uint, nextAttemptAt time.Time, reason string, now time.Time) error {
	return finishClaimed(r.getDB(ctx), &models.Campaign{}, id, campaignStates, releasedUpdates(campaignStates, nextAttemptAt, reason, now))
}

// Unclaim hands a claimed campaign back without counting the attempt
func (r *CampaignRepositoryImpl) Unclaim(ctx context.Context, id uint, reason string, now time.Time) error {
	return finishClaimed(r.getDB(ctx), &models.Campaign{}, id, campaignStates, unclaimedUpdates(campaignStates, reason, now))
}

func (r *CampaignRepositoryImpl) ExpireStaleClaims(ctx context.Context, claimedBefore, now time.Time) (StaleClaims, error) {
	return expireStaleClaims(r.getDB(ctx), &models.Campaign{}, campaignStates, claimedBefore, now)
}

// ByFilter retrieves campaigns based on filter criteria
func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaigns []*models.Campaign
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&campaigns).Error; err != nil {
		return nil, err
	}

	return campaigns, nil
}

// Count returns the number of campaigns matching the filter
func (r *CampaignRepositoryImpl) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any campaign matching the filter exists
func (r *CampaignRepositoryImpl) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *CampaignRepositoryImpl) applyFilter(db *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.Platform != nil {
		db = db.Where("platform = ?", *filter.Platform)
	}
	if filter.Name != nil {
		db = db.Where("name ILIKE ?", "%"+*filter.Name+"%")
	}
	if filter.Frequency != nil {
		db = db.Where("frequency = ?", *filter.Frequency)
	}
	if filter.ScheduledAfter != nil {
		db = db.Where("scheduled_at >= ?", *filter.ScheduledAfter)
	}
	if filter.ScheduledBefore != nil {
		db = db.Where("scheduled_at < ?", *filter.ScheduledBefore)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at < ?", *filter.CreatedBefore)
	}

	return db
}
