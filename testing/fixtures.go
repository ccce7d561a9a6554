package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/amirphl/social-publisher/models"
	"github.com/amirphl/social-publisher/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestUser creates an active user; a non-empty token is stored as the Facebook user token
func (tf *TestFixtures) CreateTestUser(facebookToken string) (*models.User, error) {
	user := &models.User{
		Email:    fmt.Sprintf("owner.%09d@example.com", rand.Intn(900000000)+100000000),
		Name:     "Jane Doe",
		IsActive: true,
	}
	if facebookToken != "" {
		user.FacebookUserID = utils.ToPtr("fb-user-1")
		user.FacebookAccessToken = utils.ToPtr(facebookToken)
	}

	if err := tf.DB.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create test user: %w", err)
	}
	return user, nil
}

// CreateTestSocialAccount connects a Facebook page for the user
func (tf *TestFixtures) CreateTestSocialAccount(userID uint, pageID string, isDefault bool) (*models.SocialAccount, error) {
	account := &models.SocialAccount{
		UserID:      userID,
		Platform:    models.PlatformFacebook,
		AccountID:   pageID,
		Name:        "Page " + pageID,
		AccessToken: "page-token-" + pageID,
		IsDefault:   isDefault,
	}

	if err := tf.DB.DB.Create(account).Error; err != nil {
		return nil, fmt.Errorf("failed to create test social account: %w", err)
	}
	return account, nil
}

// CreateTestCampaign creates a scheduled one-off Facebook campaign
func (tf *TestFixtures) CreateTestCampaign(userID uint, scheduledAt time.Time) (*models.Campaign, error) {
	campaign := &models.Campaign{
		UserID:      userID,
		Name:        "Launch",
		Content:     "We are live",
		Platform:    models.PlatformFacebook,
		Status:      models.CampaignStatusScheduled,
		ScheduledAt: scheduledAt.UTC(),
		Timezone:    "UTC",
		Frequency:   models.FrequencyOnce,
	}

	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}
	return campaign, nil
}

// CreateTestPost creates a pending standalone post
func (tf *TestFixtures) CreateTestPost(userID uint, scheduledAt time.Time) (*models.Post, error) {
	post := &models.Post{
		UserID:      userID,
		Content:     "Hello followers",
		Platform:    models.PlatformFacebook,
		Status:      models.PostStatusPending,
		ScheduledAt: scheduledAt.UTC(),
		Timezone:    "UTC",
		Frequency:   models.FrequencyOnce,
	}

	if err := tf.DB.DB.Create(post).Error; err != nil {
		return nil, fmt.Errorf("failed to create test post: %w", err)
	}
	return post, nil
}
