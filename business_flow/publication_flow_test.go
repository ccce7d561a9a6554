package businessflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/social-publisher/app/services"
	"github.com/amirphl/social-publisher/config"
	"github.com/amirphl/social-publisher/models"
	"github.com/amirphl/social-publisher/repository"
	"github.com/amirphl/social-publisher/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var flowNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

type publicationFixture struct {
	campaigns *fakeCampaignRepo
	posts     *fakePostRepo
	users     *fakeUserRepo
	accounts  *fakeAccountRepo
	publisher *services.MockPublisher
	clock     *utils.FakeClock
	tx        *fakeTransactor
	flow      PublicationFlow
}

func newPublicationFixture(t *testing.T, cfg config.SchedulerConfig) *publicationFixture {
	t.Helper()
	fx := &publicationFixture{
		campaigns: newFakeCampaignRepo(),
		posts:     newFakePostRepo(),
		users: newFakeUserRepo(
			&models.User{ID: 1, Email: "owner@example.com"},
			&models.User{ID: 2, Email: "unconnected@example.com"},
		),
		accounts: newFakeAccountRepo(&models.SocialAccount{
			UserID:      1,
			Platform:    models.PlatformFacebook,
			AccountID:   "page-1",
			AccessToken: "page-token",
			IsDefault:   true,
		}),
		publisher: services.NewMockPublisher("facebook"),
		clock:     utils.NewFakeClock(flowNow),
		tx:        &fakeTransactor{},
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	resolver := NewCredentialResolver(fx.accounts, fx.users, "", nil, fx.clock)
	fx.flow = NewPublicationFlow(
		fx.campaigns,
		fx.posts,
		resolver,
		services.NewPublisherRegistry(fx.publisher),
		fx.tx,
		cfg,
		fx.clock,
		nil,
	)
	return fx
}

func (fx *publicationFixture) dueCampaign(userID uint, scheduledAt time.Time) *models.Campaign {
	return fx.campaigns.add(&models.Campaign{
		UserID:      userID,
		Name:        "Spring launch",
		Content:     "We are live",
		ScheduledAt: scheduledAt,
	})
}

func TestPublish_PublishesDueCampaign(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	fx.publisher.PublishFunc = func(ctx context.Context, req services.PublishRequest) (*services.PublishResult, error) {
		return &services.PublishResult{ExternalID: "987", Published: true}, nil
	}
	c := fx.dueCampaign(1, flowNow.Add(-time.Minute))

	records, err := fx.flow.DueRecords(context.Background(), flowNow)
	require.NoError(t, err)
	require.Len(t, records, 1)

	out, err := fx.flow.Publish(context.Background(), records[0])
	require.NoError(t, err)
	assert.Equal(t, OutcomePublished, out.Outcome)
	assert.Equal(t, "987", out.ExternalID)
	assert.Equal(t, CategoryNone, out.Category)

	stored := fx.campaigns.get(c.ID)
	assert.Equal(t, models.CampaignStatusPublished, stored.Status)
	require.NotNil(t, stored.ExternalID)
	assert.Equal(t, "987", *stored.ExternalID)
	assert.Equal(t, 1, stored.Attempts)

	calls := fx.publisher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "page-1", calls[0].Publish.AccountID)
	assert.Equal(t, "page-token", calls[0].Publish.AccessToken)
	assert.Equal(t, "We are live", calls[0].Publish.Message)
	assert.Nil(t, calls[0].Publish.ScheduledAt)
}

func TestPublish_MissingCredentialFailsWithoutGatewayCall(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	c := fx.dueCampaign(2, flowNow.Add(-time.Minute))

	out, err := fx.flow.Publish(context.Background(), dueFromCampaign(c))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, out.Outcome)
	assert.Equal(t, CategoryCredentialMissing, out.Category)
	assert.True(t, IsCredentialMissing(out.Err))
	assert.Zero(t, fx.publisher.CallCount("publish"))

	stored := fx.campaigns.get(c.ID)
	assert.Equal(t, models.CampaignStatusFailed, stored.Status)
	assert.Nil(t, stored.ExternalID)
	require.NotNil(t, stored.LastError)
	assert.NotEmpty(t, *stored.LastError)
}

func TestPublish_GatewayTimeoutFails(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	fx.publisher.PublishFunc = func(ctx context.Context, req services.PublishRequest) (*services.PublishResult, error) {
		return nil, &services.GatewayError{Kind: services.ErrGatewayUnavailable, Op: "facebook.publish", Transient: true, Err: context.DeadlineExceeded}
	}
	c := fx.dueCampaign(1, flowNow.Add(-time.Minute))

	out, err := fx.flow.Publish(context.Background(), dueFromCampaign(c))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, out.Outcome)
	assert.Equal(t, CategoryGatewayUnavailable, out.Category)
	assert.Equal(t, models.CampaignStatusFailed, fx.campaigns.get(c.ID).Status)
}

func TestPublish_OverlappingAttemptsPublishOnce(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	release := make(chan struct{})
	fx.publisher.PublishFunc = func(ctx context.Context, req services.PublishRequest) (*services.PublishResult, error) {
		<-release
		return &services.PublishResult{ExternalID: "page-1_1", Published: true}, nil
	}
	c := fx.dueCampaign(1, flowNow.Add(-time.Minute))
	rec := dueFromCampaign(c)

	var wg sync.WaitGroup
	outcomes := make([]*PublicationOutcome, 2)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := fx.flow.Publish(context.Background(), rec)
			assert.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	// the losing attempt returns without waiting on the gateway
	require.Eventually(t, func() bool { return fx.publisher.CallCount("publish") == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	kinds := []Outcome{outcomes[0].Outcome, outcomes[1].Outcome}
	assert.ElementsMatch(t, []Outcome{OutcomePublished, OutcomeSkipped}, kinds)
	assert.Equal(t, 1, fx.publisher.CallCount("publish"))
	assert.Equal(t, 1, fx.campaigns.markedWrites)
}

func TestDueRecords_FutureRecordNotSelected(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	fx.dueCampaign(1, flowNow.Add(90*24*time.Hour))
	past := fx.dueCampaign(1, flowNow.Add(-time.Second))
	fx.posts.add(&models.Post{UserID: 1, Content: "later", ScheduledAt: flowNow.Add(time.Hour)})
	post := fx.posts.add(&models.Post{UserID: 1, Content: "now", ScheduledAt: flowNow})

	records, err := fx.flow.DueRecords(context.Background(), flowNow)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, RecordKindCampaign, records[0].Kind)
	assert.Equal(t, past.ID, records[0].ID)
	assert.Equal(t, RecordKindPost, records[1].Kind)
	assert.Equal(t, post.ID, records[1].ID)
}

func TestDueRecords_StoreFailure(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	fx.campaigns.failList = errFakeStore

	_, err := fx.flow.DueRecords(context.Background(), flowNow)
	require.Error(t, err)
	assert.True(t, IsStoreUnavailable(err))
	assert.ErrorIs(t, err, errFakeStore)
}

func TestPublish_TerminalRecordIsSkipped(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	c := fx.dueCampaign(1, flowNow.Add(-time.Minute))
	rec := dueFromCampaign(c)

	first, err := fx.flow.Publish(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, OutcomePublished, first.Outcome)

	second, err := fx.flow.Publish(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, second.Outcome)
	assert.Equal(t, 1, fx.publisher.CallCount("publish"))
}

func TestPublish_ExternalIDIffPublished(t *testing.T) {
	tests := []struct {
		name      string
		result    *services.PublishResult
		err       error
		status    models.CampaignStatus
		wantIDSet bool
	}{
		{"Success", &services.PublishResult{ExternalID: "page-1_5", Published: true}, nil, models.CampaignStatusPublished, true},
		{"EmptyID", &services.PublishResult{ExternalID: "  "}, nil, models.CampaignStatusFailed, false},
		{"NilResult", nil, nil, models.CampaignStatusFailed, false},
		{"Rejected", nil, &services.GatewayError{Kind: services.ErrPlatformRejected, Op: "facebook.publish", StatusCode: 400, Message: "Invalid OAuth access token"}, models.CampaignStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newPublicationFixture(t, config.SchedulerConfig{})
			fx.publisher.PublishFunc = func(ctx context.Context, req services.PublishRequest) (*services.PublishResult, error) {
				return tt.result, tt.err
			}
			c := fx.dueCampaign(1, flowNow.Add(-time.Minute))

			_, err := fx.flow.Publish(context.Background(), dueFromCampaign(c))
			require.NoError(t, err)

			stored := fx.campaigns.get(c.ID)
			assert.Equal(t, tt.status, stored.Status)
			assert.Equal(t, tt.wantIDSet, stored.ExternalID != nil)
		})
	}
}

func TestPublish_RejectionKeepsPlatformMessage(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{MaxAttempts: 3})
	fx.publisher.PublishFunc = func(ctx context.Context, req services.PublishRequest) (*services.PublishResult, error) {
		return nil, &services.GatewayError{Kind: services.ErrPlatformRejected, Op: "facebook.publish", StatusCode: 400, Code: 190, Message: "Invalid OAuth access token"}
	}
	c := fx.dueCampaign(1, flowNow.Add(-time.Minute))

	out, err := fx.flow.Publish(context.Background(), dueFromCampaign(c))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, out.Outcome)
	assert.Equal(t, CategoryPlatformRejected, out.Category)

	stored := fx.campaigns.get(c.ID)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "Invalid OAuth access token", *stored.LastError)
}

func TestPublish_TransientFailureIsRetriedWithBackoff(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{MaxAttempts: 2, RetryBackoff: time.Minute, RetryMaxBackoff: 10 * time.Minute})
	fx.publisher.PublishFunc = func(ctx context.Context, req services.PublishRequest) (*services.PublishResult, error) {
		return nil, &services.GatewayError{Kind: services.ErrPlatformRejected, Op: "facebook.publish", StatusCode: 503, Code: 2, Message: "Service temporarily unavailable", Transient: true}
	}
	c := fx.dueCampaign(1, flowNow.Add(-time.Minute))

	out, err := fx.flow.Publish(context.Background(), dueFromCampaign(c))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetry, out.Outcome)
	require.NotNil(t, out.NextAttemptAt)
	assert.Equal(t, flowNow.Add(time.Minute), *out.NextAttemptAt)

	stored := fx.campaigns.get(c.ID)
	assert.Equal(t, models.CampaignStatusScheduled, stored.Status)
	assert.Equal(t, 1, stored.Attempts)

	records, err := fx.flow.DueRecords(context.Background(), flowNow)
	require.NoError(t, err)
	assert.Empty(t, records, "record waits for its next attempt time")

	later := flowNow.Add(time.Minute)
	fx.clock.Set(later)
	records, err = fx.flow.DueRecords(context.Background(), later)
	require.NoError(t, err)
	require.Len(t, records, 1)

	out, err = fx.flow.Publish(context.Background(), records[0])
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, out.Outcome, "attempts exhausted")
	assert.Equal(t, models.CampaignStatusFailed, fx.campaigns.get(c.ID).Status)
	assert.Equal(t, 2, fx.publisher.CallCount("publish"))
}

func TestPublicationFlow_Backoff(t *testing.T) {
	f := &PublicationFlowImpl{cfg: config.SchedulerConfig{RetryBackoff: time.Minute, RetryMaxBackoff: 10 * time.Minute}}

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 10 * time.Minute},
		{40, 10 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.backoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestPublish_DeferredPublishWithinWindow(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	at := flowNow.Add(2 * time.Hour)
	c := fx.dueCampaign(1, at)

	out, err := fx.flow.Publish(context.Background(), dueFromCampaign(c))
	require.NoError(t, err)
	assert.Equal(t, OutcomePublished, out.Outcome)
	assert.False(t, out.Published)

	calls := fx.publisher.Calls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Publish.ScheduledAt)
	assert.Equal(t, at, *calls[0].Publish.ScheduledAt)
}

func TestPublish_WindowViolationFailsWithoutGatewayCall(t *testing.T) {
	tests := []struct {
		name string
		lead time.Duration
	}{
		{"TooSoon", 9 * time.Minute},
		{"TooFar", 15552001 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newPublicationFixture(t, config.SchedulerConfig{})
			c := fx.dueCampaign(1, flowNow.Add(tt.lead))

			out, err := fx.flow.Publish(context.Background(), dueFromCampaign(c))
			require.NoError(t, err)
			assert.Equal(t, OutcomeFailed, out.Outcome)
			assert.Equal(t, CategoryInvalidWindow, out.Category)
			assert.Zero(t, fx.publisher.CallCount("publish"))
			assert.Equal(t, models.CampaignStatusFailed, fx.campaigns.get(c.ID).Status)
		})
	}
}

func TestPublish_UnsupportedPlatformFails(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	fx.accounts.insert(&models.SocialAccount{UserID: 1, Platform: models.PlatformInstagram, AccountID: "ig-1", AccessToken: "ig-token"})
	c := fx.campaigns.add(&models.Campaign{UserID: 1, Name: "ig", Content: "hi", Platform: models.PlatformInstagram, ScheduledAt: flowNow})

	out, err := fx.flow.Publish(context.Background(), dueFromCampaign(c))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, out.Outcome)
	assert.Equal(t, CategoryPlatformUnsupported, out.Category)
}

func TestPublish_PostRecordsPublishedFlag(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	p := fx.posts.add(&models.Post{UserID: 1, Content: "photo", ImageURL: utils.ToPtr("https://cdn.example.com/a.jpg"), ScheduledAt: flowNow.Add(-time.Minute)})

	out, err := fx.flow.Publish(context.Background(), dueFromPost(p))
	require.NoError(t, err)
	assert.Equal(t, OutcomePublished, out.Outcome)

	stored := fx.posts.get(p.ID)
	assert.Equal(t, models.PostStatusPosted, stored.Status)
	assert.True(t, stored.Published)
	require.NotNil(t, stored.ExternalID)

	calls := fx.publisher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "https://cdn.example.com/a.jpg", calls[0].Publish.ImageURL)
}

func TestPublish_RecurringCampaignEnqueuesNextOccurrence(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	scheduled := flowNow.Add(-time.Minute)
	c := fx.campaigns.add(&models.Campaign{
		UserID:      1,
		Name:        "daily tip",
		Content:     "tip of the day",
		AccountID:   utils.ToPtr("page-1"),
		ScheduledAt: scheduled,
		Frequency:   models.FrequencyDaily,
		Timezone:    "UTC",
	})

	out, err := fx.flow.Publish(context.Background(), dueFromCampaign(c))
	require.NoError(t, err)
	require.Equal(t, OutcomePublished, out.Outcome)
	require.NotNil(t, out.NextOccurrence)
	assert.Equal(t, scheduled.Add(24*time.Hour), *out.NextOccurrence)
	assert.Equal(t, 1, fx.tx.calls)

	posts := fx.posts.all()
	require.Len(t, posts, 1)
	next := posts[0]
	assert.Equal(t, models.PostStatusPending, next.Status)
	assert.Equal(t, scheduled.Add(24*time.Hour), next.ScheduledAt)
	require.NotNil(t, next.CampaignID)
	assert.Equal(t, c.ID, *next.CampaignID)
	assert.Equal(t, models.FrequencyDaily, next.Frequency)
	assert.Equal(t, "page-1", utils.Deref(next.AccountID))
}

func TestPublish_RecurrenceStopsAtEndsAt(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	scheduled := flowNow.Add(-time.Minute)
	c := fx.campaigns.add(&models.Campaign{
		UserID:      1,
		Name:        "weekly",
		Content:     "weekly digest",
		ScheduledAt: scheduled,
		Frequency:   models.FrequencyWeekly,
		EndsAt:      utils.ToPtr(flowNow.Add(48 * time.Hour)),
	})

	out, err := fx.flow.Publish(context.Background(), dueFromCampaign(c))
	require.NoError(t, err)
	assert.Equal(t, OutcomePublished, out.Outcome)
	assert.Nil(t, out.NextOccurrence)
	assert.Empty(t, fx.posts.all())
}

func TestPublish_StoreFailureAfterGatewaySuccess(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	c := fx.dueCampaign(1, flowNow.Add(-time.Minute))
	fx.campaigns.failMark = errFakeStore

	out, err := fx.flow.Publish(context.Background(), dueFromCampaign(c))
	require.Error(t, err)
	assert.True(t, IsStoreUnavailable(err))
	assert.Equal(t, CategoryStoreUnavailable, out.Category)
	assert.NotEmpty(t, out.ExternalID)
	assert.Equal(t, models.CampaignStatusPublishing, fx.campaigns.get(c.ID).Status, "claim stays for the stale claim sweeper")
}

func TestPublish_ClaimStoreFailureKeepsStatus(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	c := fx.dueCampaign(1, flowNow.Add(-time.Minute))
	fx.campaigns.failClaim = errFakeStore

	out, err := fx.flow.Publish(context.Background(), dueFromCampaign(c))
	require.Error(t, err)
	assert.Equal(t, CategoryStoreUnavailable, CategoryOf(err))
	assert.Equal(t, OutcomeSkipped, out.Outcome)
	assert.Equal(t, models.CampaignStatusScheduled, fx.campaigns.get(c.ID).Status)
	assert.Zero(t, fx.publisher.CallCount("publish"))
}

func TestPublish_CredentialStoreFailureReleasesClaim(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	c := fx.dueCampaign(1, flowNow.Add(-time.Minute))
	fx.accounts.failGet = errFakeStore

	_, err := fx.flow.Publish(context.Background(), dueFromCampaign(c))
	require.Error(t, err)
	assert.True(t, IsStoreUnavailable(err))
	assert.Equal(t, models.CampaignStatusScheduled, fx.campaigns.get(c.ID).Status)
	assert.Zero(t, fx.publisher.CallCount("publish"))
}

func TestPublish_StaleSnapshotUsesClaimedAttempt(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{MaxAttempts: 2, RetryBackoff: time.Minute})
	fx.publisher.PublishFunc = func(ctx context.Context, req services.PublishRequest) (*services.PublishResult, error) {
		return nil, &services.GatewayError{Kind: services.ErrGatewayUnavailable, Op: "facebook.publish", Transient: true, Err: context.DeadlineExceeded}
	}
	c := fx.campaigns.add(&models.Campaign{UserID: 1, Name: "retry", Content: "x", ScheduledAt: flowNow.Add(-time.Minute), Attempts: 1})
	rec := dueFromCampaign(c)
	rec.Attempts = 0

	out, err := fx.flow.Publish(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, out.Outcome, "second stored attempt exhausts the budget")
	assert.Equal(t, 2, out.Record.Attempts)
	assert.Equal(t, models.CampaignStatusFailed, fx.campaigns.get(c.ID).Status)
}

func TestPublish_StoreFailureDoesNotCountAttempt(t *testing.T) {
	tests := []struct {
		name  string
		setup func(fx *publicationFixture)
	}{
		{"CredentialLookup", func(fx *publicationFixture) { fx.accounts.failGet = errFakeStore }},
		{"MarkDispatched", func(fx *publicationFixture) { fx.campaigns.failDispatch = errFakeStore }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newPublicationFixture(t, config.SchedulerConfig{MaxAttempts: 3})
			c := fx.campaigns.add(&models.Campaign{UserID: 1, Name: "store", Content: "x", ScheduledAt: flowNow.Add(-time.Minute), Attempts: 1})
			tt.setup(fx)

			out, err := fx.flow.Publish(context.Background(), dueFromCampaign(c))
			require.Error(t, err)
			assert.True(t, IsStoreUnavailable(err))
			assert.Equal(t, OutcomeSkipped, out.Outcome)
			assert.Zero(t, fx.publisher.CallCount("publish"))

			stored := fx.campaigns.get(c.ID)
			assert.Equal(t, models.CampaignStatusScheduled, stored.Status)
			assert.Equal(t, 1, stored.Attempts)
			assert.Nil(t, stored.DispatchedAt)
		})
	}
}

func TestPublish_MarksDispatchBeforeGatewayCall(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{})
	c := fx.dueCampaign(1, flowNow.Add(-time.Minute))
	var dispatched bool
	fx.publisher.PublishFunc = func(ctx context.Context, req services.PublishRequest) (*services.PublishResult, error) {
		dispatched = fx.campaigns.get(c.ID).DispatchedAt != nil
		return &services.PublishResult{ExternalID: "page-1_9", Published: true}, nil
	}

	out, err := fx.flow.Publish(context.Background(), dueFromCampaign(c))
	require.NoError(t, err)
	assert.Equal(t, OutcomePublished, out.Outcome)
	assert.True(t, dispatched)
	assert.Nil(t, fx.campaigns.get(c.ID).DispatchedAt)
}

func TestExpireStaleClaims(t *testing.T) {
	fx := newPublicationFixture(t, config.SchedulerConfig{ClaimTTL: 5 * time.Minute})
	dispatched := fx.dueCampaign(1, flowNow.Add(-time.Hour))
	undispatched := fx.dueCampaign(1, flowNow.Add(-time.Hour))
	fresh := fx.dueCampaign(1, flowNow.Add(-time.Hour))
	ctx := context.Background()

	_, _, err := fx.campaigns.Claim(ctx, dispatched.ID, flowNow.Add(-10*time.Minute))
	require.NoError(t, err)
	require.NoError(t, fx.campaigns.MarkDispatched(ctx, dispatched.ID, flowNow.Add(-10*time.Minute)))
	_, _, err = fx.campaigns.Claim(ctx, undispatched.ID, flowNow.Add(-10*time.Minute))
	require.NoError(t, err)
	_, _, err = fx.campaigns.Claim(ctx, fresh.ID, flowNow.Add(-time.Minute))
	require.NoError(t, err)

	n, err := fx.flow.ExpireStaleClaims(ctx, flowNow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	t.Run("DispatchedClaimFails", func(t *testing.T) {
		stored := fx.campaigns.get(dispatched.ID)
		assert.Equal(t, models.CampaignStatusFailed, stored.Status)
		assert.Equal(t, repository.StaleClaimReason, utils.Deref(stored.LastError))
	})

	t.Run("UndispatchedClaimIsReleased", func(t *testing.T) {
		stored := fx.campaigns.get(undispatched.ID)
		assert.Equal(t, models.CampaignStatusScheduled, stored.Status)
		assert.Equal(t, 0, stored.Attempts)
		assert.Nil(t, stored.ClaimedAt)
		assert.Equal(t, repository.ReleasedClaimReason, utils.Deref(stored.LastError))
	})

	t.Run("FreshClaimIsKept", func(t *testing.T) {
		assert.Equal(t, models.CampaignStatusPublishing, fx.campaigns.get(fresh.ID).Status)
	})
}

func TestPublishCampaign(t *testing.T) {
	t.Run("PublishesOwnedCampaign", func(t *testing.T) {
		fx := newPublicationFixture(t, config.SchedulerConfig{})
		c := fx.dueCampaign(1, flowNow.Add(-time.Minute))

		resp, err := fx.flow.PublishCampaign(context.Background(), 1, c.UUID.String())
		require.NoError(t, err)
		assert.Equal(t, models.CampaignStatusPublished.String(), resp.Status)
		require.NotNil(t, resp.ExternalID)
		assert.False(t, resp.Deferred)
	})

	t.Run("FutureTimeIsDeferred", func(t *testing.T) {
		fx := newPublicationFixture(t, config.SchedulerConfig{})
		c := fx.dueCampaign(1, flowNow.Add(24*time.Hour))

		resp, err := fx.flow.PublishCampaign(context.Background(), 1, c.UUID.String())
		require.NoError(t, err)
		assert.True(t, resp.Deferred)
	})

	t.Run("OtherUsersCampaignIsNotFound", func(t *testing.T) {
		fx := newPublicationFixture(t, config.SchedulerConfig{})
		c := fx.dueCampaign(1, flowNow.Add(-time.Minute))

		_, err := fx.flow.PublishCampaign(context.Background(), 2, c.UUID.String())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCampaignNotFound)
		assert.Zero(t, fx.publisher.CallCount("publish"))
	})

	t.Run("MalformedUUIDIsNotFound", func(t *testing.T) {
		fx := newPublicationFixture(t, config.SchedulerConfig{})

		_, err := fx.flow.PublishCampaign(context.Background(), 1, "not-a-uuid")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCampaignNotFound)
		assert.False(t, IsStoreUnavailable(err))
		var bizErr *BusinessError
		require.True(t, errors.As(err, &bizErr))
		assert.Equal(t, "CAMPAIGN_NOT_FOUND", bizErr.Code)
	})

	t.Run("PublishedCampaignIsRejected", func(t *testing.T) {
		fx := newPublicationFixture(t, config.SchedulerConfig{})
		c := fx.campaigns.add(&models.Campaign{UserID: 1, Name: "done", Content: "x", Status: models.CampaignStatusPublished, ExternalID: utils.ToPtr("1_2"), ScheduledAt: flowNow})

		_, err := fx.flow.PublishCampaign(context.Background(), 1, c.UUID.String())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCampaignNotPublishable)
	})

	t.Run("WindowViolationIsReported", func(t *testing.T) {
		fx := newPublicationFixture(t, config.SchedulerConfig{})
		c := fx.dueCampaign(1, flowNow.Add(5*time.Minute))

		_, err := fx.flow.PublishCampaign(context.Background(), 1, c.UUID.String())
		require.Error(t, err)
		assert.True(t, IsInvalidWindow(err))
		var bizErr *BusinessError
		require.True(t, errors.As(err, &bizErr))
		assert.Equal(t, "INVALID_PUBLISH_WINDOW", bizErr.Code)
	})
}
