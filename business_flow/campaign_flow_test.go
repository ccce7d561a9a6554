package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/amirphl/social-publisher/app/dto"
	"github.com/amirphl/social-publisher/models"
	"github.com/amirphl/social-publisher/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCampaignFlowFixture() (CampaignFlow, *fakeCampaignRepo) {
	campaigns := newFakeCampaignRepo()
	users := newFakeUserRepo(&models.User{ID: 1, Email: "owner@example.com"})
	return NewCampaignFlow(campaigns, users), campaigns
}

func validCreateRequest() *dto.CreateCampaignRequest {
	return &dto.CreateCampaignRequest{
		UserID:        1,
		Name:          "Summer sale",
		Content:       "Everything 20% off",
		ScheduledDate: "2025-07-01",
		ScheduledTime: "18:30",
		Timezone:      "Asia/Tehran",
		Frequency:     "weekly",
		Audience: &dto.AudienceDTO{
			MinAge:    utils.ToPtr(18),
			MaxAge:    utils.ToPtr(35),
			Locations: []string{"Tehran"},
		},
	}
}

func TestCreateCampaign(t *testing.T) {
	t.Run("ConvertsWallClockToUTC", func(t *testing.T) {
		flow, campaigns := newCampaignFlowFixture()

		resp, err := flow.CreateCampaign(context.Background(), validCreateRequest())
		require.NoError(t, err)
		require.NotNil(t, resp)

		// Tehran is UTC+03:30 without daylight saving
		want := time.Date(2025, 7, 1, 15, 0, 0, 0, time.UTC)
		assert.Equal(t, want, resp.Campaign.ScheduledAt)
		assert.Equal(t, "scheduled", resp.Campaign.Status)
		assert.Equal(t, "weekly", resp.Campaign.Frequency)
		assert.Equal(t, "facebook", resp.Campaign.Platform)
		assert.Equal(t, []string{"Tehran"}, resp.Campaign.Audience.Locations)

		stored, err := campaigns.ByUUID(context.Background(), resp.Campaign.UUID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, uint(1), stored.UserID)
		assert.Equal(t, "Asia/Tehran", stored.Timezone)
	})

	t.Run("DefaultsToOnceInUTC", func(t *testing.T) {
		flow, _ := newCampaignFlowFixture()
		req := validCreateRequest()
		req.Timezone, req.Frequency = "", ""

		resp, err := flow.CreateCampaign(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "once", resp.Campaign.Frequency)
		assert.Equal(t, "UTC", resp.Campaign.Timezone)
		assert.Equal(t, time.Date(2025, 7, 1, 18, 30, 0, 0, time.UTC), resp.Campaign.ScheduledAt)
	})

	tests := []struct {
		name    string
		mutate  func(r *dto.CreateCampaignRequest)
		wantErr error
	}{
		{"BadDate", func(r *dto.CreateCampaignRequest) { r.ScheduledDate = "01/07/2025" }, ErrInvalidScheduleDate},
		{"BadTime", func(r *dto.CreateCampaignRequest) { r.ScheduledTime = "6pm" }, ErrInvalidScheduleTime},
		{"BadTimezone", func(r *dto.CreateCampaignRequest) { r.Timezone = "Mars/Olympus" }, ErrInvalidTimezone},
		{"BadFrequency", func(r *dto.CreateCampaignRequest) { r.Frequency = "hourly" }, ErrInvalidFrequency},
		{"BadPlatform", func(r *dto.CreateCampaignRequest) { r.Platform = "myspace" }, ErrPlatformUnsupported},
		{"AudienceAgesReversed", func(r *dto.CreateCampaignRequest) { r.Audience.MinAge = utils.ToPtr(40) }, ErrInvalidAudience},
		{"EndsBeforeStart", func(r *dto.CreateCampaignRequest) {
			r.EndsAt = utils.ToPtr(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
		}, ErrEndsBeforeStart},
		{"UnknownUser", func(r *dto.CreateCampaignRequest) { r.UserID = 99 }, ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow, campaigns := newCampaignFlowFixture()
			req := validCreateRequest()
			tt.mutate(req)

			_, err := flow.CreateCampaign(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, campaigns.matching(models.CampaignFilter{}))
		})
	}
}

func TestListCampaigns(t *testing.T) {
	flow, campaigns := newCampaignFlowFixture()
	for i, status := range []models.CampaignStatus{
		models.CampaignStatusScheduled,
		models.CampaignStatusPublishing,
		models.CampaignStatusPublished,
		models.CampaignStatusFailed,
		models.CampaignStatusScheduled,
	} {
		campaigns.add(&models.Campaign{UserID: 1, Name: "c", Content: "x", Status: status, ScheduledAt: flowNow.Add(time.Duration(i) * time.Hour)})
	}
	campaigns.add(&models.Campaign{UserID: 2, Name: "other", Content: "x", ScheduledAt: flowNow})

	t.Run("AnyStatusPaginated", func(t *testing.T) {
		resp, err := flow.ListCampaigns(context.Background(), &dto.ListCampaignsRequest{UserID: 1, Page: 2, PageSize: 2})
		require.NoError(t, err)
		assert.Len(t, resp.Items, 2)
		assert.Equal(t, int64(5), resp.Pagination.Total)
		assert.Equal(t, 3, resp.Pagination.TotalPages)
	})

	t.Run("FilterByStatus", func(t *testing.T) {
		resp, err := flow.ListCampaigns(context.Background(), &dto.ListCampaignsRequest{UserID: 1, Status: utils.ToPtr("scheduled")})
		require.NoError(t, err)
		assert.Len(t, resp.Items, 2)
		assert.Equal(t, utils.DefaultPageSize, resp.Pagination.PageSize)
	})

	t.Run("InvalidPageSize", func(t *testing.T) {
		_, err := flow.ListCampaigns(context.Background(), &dto.ListCampaignsRequest{UserID: 1, PageSize: utils.MaxPageSize + 1})
		assert.ErrorIs(t, err, ErrInvalidPageSize)
	})
}

func TestGetCampaign(t *testing.T) {
	flow, campaigns := newCampaignFlowFixture()
	c := campaigns.add(&models.Campaign{UserID: 1, Name: "mine", Content: "x", ScheduledAt: flowNow})

	got, err := flow.GetCampaign(context.Background(), 1, c.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Name)

	_, err = flow.GetCampaign(context.Background(), 2, c.UUID.String())
	assert.ErrorIs(t, err, ErrCampaignNotFound)

	_, err = flow.GetCampaign(context.Background(), 1, "not-a-uuid")
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestUpdateCampaign(t *testing.T) {
	t.Run("ChangesScheduleKeepingTimezone", func(t *testing.T) {
		flow, campaigns := newCampaignFlowFixture()
		c := campaigns.add(&models.Campaign{
			UserID:      1,
			Name:        "c",
			Content:     "x",
			Timezone:    "Asia/Tehran",
			ScheduledAt: time.Date(2025, 7, 1, 15, 0, 0, 0, time.UTC),
		})

		resp, err := flow.UpdateCampaign(context.Background(), &dto.UpdateCampaignRequest{
			UUID:          c.UUID.String(),
			UserID:        1,
			ScheduledTime: utils.ToPtr("20:00"),
		})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 7, 1, 16, 30, 0, 0, time.UTC), resp.Campaign.ScheduledAt)
		assert.Equal(t, time.Date(2025, 7, 1, 16, 30, 0, 0, time.UTC), campaigns.get(c.ID).ScheduledAt)
	})

	t.Run("RearmsFailedCampaign", func(t *testing.T) {
		flow, campaigns := newCampaignFlowFixture()
		c := campaigns.add(&models.Campaign{
			UserID:        1,
			Name:          "c",
			Content:       "x",
			Status:        models.CampaignStatusFailed,
			Attempts:      3,
			LastError:     utils.ToPtr("Invalid OAuth access token"),
			NextAttemptAt: utils.ToPtr(flowNow),
			ScheduledAt:   flowNow,
		})

		resp, err := flow.UpdateCampaign(context.Background(), &dto.UpdateCampaignRequest{
			UUID:    c.UUID.String(),
			UserID:  1,
			Content: utils.ToPtr("fixed copy"),
		})
		require.NoError(t, err)
		assert.Equal(t, "scheduled", resp.Campaign.Status)

		stored := campaigns.get(c.ID)
		assert.Equal(t, models.CampaignStatusScheduled, stored.Status)
		assert.Zero(t, stored.Attempts)
		assert.Nil(t, stored.LastError)
		assert.Nil(t, stored.NextAttemptAt)
		assert.Equal(t, "fixed copy", stored.Content)
	})

	t.Run("RejectsClaimedAndPublished", func(t *testing.T) {
		for _, status := range []models.CampaignStatus{models.CampaignStatusPublishing, models.CampaignStatusPublished} {
			flow, campaigns := newCampaignFlowFixture()
			c := campaigns.add(&models.Campaign{UserID: 1, Name: "c", Content: "x", Status: status, ScheduledAt: flowNow})

			_, err := flow.UpdateCampaign(context.Background(), &dto.UpdateCampaignRequest{UUID: c.UUID.String(), UserID: 1, Name: utils.ToPtr("new")})
			assert.ErrorIs(t, err, ErrCampaignUpdateNotAllowed, "status %s", status)
			assert.Equal(t, "c", campaigns.get(c.ID).Name)
		}
	})

	t.Run("StatusChangedConcurrently", func(t *testing.T) {
		flow, campaigns := newCampaignFlowFixture()
		c := campaigns.add(&models.Campaign{UserID: 1, Name: "c", Content: "x", ScheduledAt: flowNow})
		// the scheduler claims the campaign between the owner's read and write
		guarded := &claimingCampaignRepo{fakeCampaignRepo: campaigns, claimID: c.ID}
		flow = NewCampaignFlow(guarded, newFakeUserRepo(&models.User{ID: 1}))

		_, err := flow.UpdateCampaign(context.Background(), &dto.UpdateCampaignRequest{UUID: c.UUID.String(), UserID: 1, Name: utils.ToPtr("new")})
		assert.ErrorIs(t, err, ErrCampaignUpdateNotAllowed)
		assert.Equal(t, models.CampaignStatusPublishing, campaigns.get(c.ID).Status)
	})

	t.Run("RequiresAField", func(t *testing.T) {
		flow, campaigns := newCampaignFlowFixture()
		c := campaigns.add(&models.Campaign{UserID: 1, Name: "c", Content: "x", ScheduledAt: flowNow})

		_, err := flow.UpdateCampaign(context.Background(), &dto.UpdateCampaignRequest{UUID: c.UUID.String(), UserID: 1})
		assert.ErrorIs(t, err, ErrCampaignUpdateRequired)
	})
}

func TestDeleteCampaign(t *testing.T) {
	tests := []struct {
		status  models.CampaignStatus
		wantErr error
	}{
		{models.CampaignStatusScheduled, nil},
		{models.CampaignStatusFailed, nil},
		{models.CampaignStatusPublishing, ErrCampaignDeleteNotAllowed},
		{models.CampaignStatusPublished, ErrCampaignDeleteNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			flow, campaigns := newCampaignFlowFixture()
			c := campaigns.add(&models.Campaign{UserID: 1, Name: "c", Content: "x", Status: tt.status, ScheduledAt: flowNow})

			err := flow.DeleteCampaign(context.Background(), 1, c.UUID.String())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.NotNil(t, campaigns.get(c.ID))
				return
			}
			require.NoError(t, err)
			assert.Nil(t, campaigns.get(c.ID))
		})
	}
}

// claimingCampaignRepo claims a campaign right after it is read, emulating a scheduler tick
type claimingCampaignRepo struct {
	*fakeCampaignRepo
	claimID uint
}

func (r *claimingCampaignRepo) ByUUID(ctx context.Context, id string) (*models.Campaign, error) {
	c, err := r.fakeCampaignRepo.ByUUID(ctx, id)
	if c != nil && c.ID == r.claimID {
		_, _, _ = r.fakeCampaignRepo.Claim(ctx, c.ID, flowNow)
	}
	return c, err
}
