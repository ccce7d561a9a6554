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

var postStates = publicationStates{
	ready:   models.PostStatusPending,
	claimed: models.PostStatusPublishing,
	done:    models.PostStatusPosted,
	failed:  models.PostStatusFailed,
}

// PostRepositoryImpl implements PostRepository
type PostRepositoryImpl struct {
	*BaseRepository[models.Post, models.PostFilter]
}

func NewPostRepository(db *gorm.DB) PostRepository {
	return &PostRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Post, models.PostFilter](db),
	}
}

func (r *PostRepositoryImpl) ByID(ctx context.Context, id uint) (*models.Post, error) {
	db := r.getDB(ctx)
	var post models.Post
	if err := db.Last(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

func (r *PostRepositoryImpl) ByUUID(ctx context.Context, id string) (*models.Post, error) {
	parsedUUID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid post uuid %q: %w", id, err)
	}
	posts, err := r.ByFilter(ctx, models.PostFilter{UUID: &parsedUUID}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return posts[0], nil
}

func (r *PostRepositoryImpl) ByCampaignID(ctx context.Context, campaignID uint) ([]*models.Post, error) {
	return r.ByFilter(ctx, models.PostFilter{CampaignID: &campaignID}, "scheduled_at ASC", 0, 0)
}

func (r *PostRepositoryImpl) Update(ctx context.Context, post *models.Post) (err error) {
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

	if err = db.Save(post).Error; err != nil {
		return fmt.Errorf("failed to update post %d: %w", post.ID, err)
	}
	return nil
}

// UpdateIfStatus writes every owner-editable field if the stored status is one of expected
func (r *PostRepositoryImpl) UpdateIfStatus(ctx context.Context, post *models.Post, expected ...models.PostStatus) error {
	res := r.getDB(ctx).Model(post).
		Where("status IN ?", expected).
		Select("*").
		Omit("id", "uuid", "user_id", "created_at", "deleted_at").
		Updates(post)
	if res.Error != nil {
		return fmt.Errorf("failed to update post %d: %w", post.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *PostRepositoryImpl) SoftDelete(ctx context.Context, id uint) error {
	return r.getDB(ctx).Delete(&models.Post{}, id).Error
}

func (r *PostRepositoryImpl) SoftDeleteIfStatus(ctx context.Context, id uint, expected ...models.PostStatus) error {
	res := r.getDB(ctx).Where("status IN ?", expected).Delete(&models.Post{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *PostRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error) {
	return listDue[models.Post](r.getDB(ctx), postStates, now, limit)
}

func (r *PostRepositoryImpl) Claim(ctx context.Context, id uint, now time.Time) (int, bool, error) {
	return claimRecord(r.getDB(ctx), &models.Post{}, id, postStates, now)
}

// MarkDispatched records that the platform is about to be called for a claimed post
func (r *PostRepositoryImpl) MarkDispatched(ctx context.Context, id uint, now time.Time) error {
	return finishClaimed(r.getDB(ctx), &models.Post{}, id, postStates, dispatchedUpdates(now))
}

// MarkPosted records the platform id, the posted status and whether the post is already live
func (r *PostRepositoryImpl) MarkPosted(ctx context.Context, id uint, externalID string, published bool, now time.Time) error {
	updates := publishedUpdates(postStates, externalID, now)
	updates["published"] = published
	return finishClaimed(r.getDB(ctx), &models.Post{}, id, postStates, updates)
}

func (r *PostRepositoryImpl) MarkFailed(ctx context.Context, id uint, reason string, now time.Time) error {
	updates := failedUpdates(postStates, reason, now)
	updates["published"] = false
	return finishClaimed(r.getDB(ctx), &models.Post{}, id, postStates, updates)
}

func (r *PostRepositoryImpl) Release(ctx context.Context, id uint, nextAttemptAt time.Time, reason string, now time.Time) error {
	return finishClaimed(r.getDB(ctx), &models.Post{}, id, postStates, releasedUpdates(postStates, nextAttemptAt, reason, now))
}

// Unclaim hands a claimed post back without counting the attempt
func (r *PostRepositoryImpl) Unclaim(ctx context.Context, id uint, reason string, now time.Time) error {
	return finishClaimed(r.getDB(ctx), &models.Post{}, id, postStates, unclaimedUpdates(postStates, reason, now))
}

func (r *PostRepositoryImpl) ExpireStaleClaims(ctx context.Context, claimedBefore, now time.Time) (StaleClaims, error) {
	return expireStaleClaims(r.getDB(ctx), &models.Post{}, postStates, claimedBefore, now)
}

func (r *PostRepositoryImpl) ByFilter(ctx context.Context, filter models.PostFilter, orderBy string, limit, offset int) ([]*models.Post, error) {
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

	var posts []*models.Post
	if err := query.Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *PostRepositoryImpl) Count(ctx context.Context, filter models.PostFilter) (int64, error) {
	var count int64
	if err := r.applyFilter(r.getDB(ctx).Model(&models.Post{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PostRepositoryImpl) Exists(ctx context.Context, filter models.PostFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *PostRepositoryImpl) applyFilter(db *gorm.DB, filter models.PostFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.Platform != nil {
		db = db.Where("platform = ?", *filter.Platform)
	}
	if filter.Published != nil {
		db = db.Where("published = ?", *filter.Published)
	}
	if filter.ScheduledAfter != nil {
		db = db.Where("scheduled_at >= ?", *filter.ScheduledAfter)
	}
	if filter.ScheduledBefore != nil {
		db = db.Where("scheduled_at < ?", *filter.ScheduledBefore)
	}
	return db
}
