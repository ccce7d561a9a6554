package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/amirphl/social-publisher/app/dto"
	"github.com/amirphl/social-publisher/app/services"
	"github.com/amirphl/social-publisher/config"
	"github.com/amirphl/social-publisher/models"
	"github.com/amirphl/social-publisher/repository"
	"github.com/amirphl/social-publisher/utils"
)

// RecordKind names the table a due record comes from
type RecordKind string

const (
	RecordKindCampaign RecordKind = "campaign"
	RecordKindPost     RecordKind = "post"
)

// Outcome is the result of one publication attempt
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeFailed    Outcome = "failed"
	OutcomeRetry     Outcome = "retry"
	OutcomeSkipped   Outcome = "skipped"
)

// DueRecord is a campaign or post snapshot taken when it was listed as due
type DueRecord struct {
	Kind        RecordKind
	ID          uint
	UUID        string
	UserID      uint
	CampaignID  *uint
	Platform    models.Platform
	AccountID   string
	Message     string
	ImageURL    string
	ScheduledAt time.Time
	Frequency   models.Frequency
	Timezone    string
	EndsAt      *time.Time
	Attempts    int
}

// PublicationOutcome describes what one Publish call did to a record
type PublicationOutcome struct {
	Record     DueRecord
	Outcome    Outcome
	ExternalID string
	// Published is false when the platform accepted a deferred publish
	Published     bool
	Category      ErrorCategory
	Err           error
	NextAttemptAt *time.Time
	// NextOccurrence is the scheduled time of the post enqueued for a recurring record
	NextOccurrence *time.Time
}

// PublicationFlow moves due records through claim, credential lookup, gateway call and terminal write
type PublicationFlow interface {
	DueRecords(ctx context.Context, now time.Time) ([]DueRecord, error)
	// Publish returns an error only when the store failed; publication failures are reported in the outcome
	Publish(ctx context.Context, rec DueRecord) (*PublicationOutcome, error)
	ExpireStaleClaims(ctx context.Context, now time.Time) (int64, error)
	PublishCampaign(ctx context.Context, userID uint, campaignUUID string) (*dto.PublishCampaignResponse, error)
}

type PublicationFlowImpl struct {
	campaignRepo repository.CampaignRepository
	postRepo     repository.PostRepository
	resolver     CredentialResolver
	publishers   *services.PublisherRegistry
	tx           repository.Transactor
	cfg          config.SchedulerConfig
	clock        utils.Clock
	logger       *log.Logger
}

func NewPublicationFlow(
	campaignRepo repository.CampaignRepository,
	postRepo repository.PostRepository,
	resolver CredentialResolver,
	publishers *services.PublisherRegistry,
	tx repository.Transactor,
	cfg config.SchedulerConfig,
	clock utils.Clock,
	logger *log.Logger,
) PublicationFlow {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &PublicationFlowImpl{
		campaignRepo: campaignRepo,
		postRepo:     postRepo,
		resolver:     resolver,
		publishers:   publishers,
		tx:           tx,
		cfg:          cfg,
		clock:        clock,
		logger:       logger,
	}
}

// DueRecords lists due campaigns and posts, each capped at the configured batch size
func (f *PublicationFlowImpl) DueRecords(ctx context.Context, now time.Time) ([]DueRecord, error) {
	campaigns, err := f.campaignRepo.ListDue(ctx, now, f.cfg.BatchSize)
	if err != nil {
		return nil, storeErr("list due campaigns", err)
	}
	posts, err := f.postRepo.ListDue(ctx, now, f.cfg.BatchSize)
	if err != nil {
		return nil, storeErr("list due posts", err)
	}

	records := make([]DueRecord, 0, len(campaigns)+len(posts))
	for _, c := range campaigns {
		records = append(records, dueFromCampaign(c))
	}
	for _, p := range posts {
		records = append(records, dueFromPost(p))
	}
	return records, nil
}

// ExpireStaleClaims settles claims older than the claim TTL. A claim that reached the platform
// fails; one that never did goes back to the scheduler.
func (f *PublicationFlowImpl) ExpireStaleClaims(ctx context.Context, now time.Time) (int64, error) {
	if f.cfg.ClaimTTL <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-f.cfg.ClaimTTL)

	campaigns, err := f.campaignRepo.ExpireStaleClaims(ctx, cutoff, now)
	if err != nil {
		return 0, storeErr("expire stale campaign claims", err)
	}
	posts, err := f.postRepo.ExpireStaleClaims(ctx, cutoff, now)
	if err != nil {
		return campaigns.Failed + campaigns.Released, storeErr("expire stale post claims", err)
	}

	if released := campaigns.Released + posts.Released; released > 0 {
		f.logger.Printf("publication: released %d stale claims that never reached the platform", released)
	}
	return campaigns.Failed + campaigns.Released + posts.Failed + posts.Released, nil
}

func (f *PublicationFlowImpl) Publish(ctx context.Context, rec DueRecord) (*PublicationOutcome, error) {
	now := f.clock.Now()
	out := &PublicationOutcome{Record: rec}

	attempts, claimed, err := f.claim(ctx, rec, now)
	if err != nil {
		if claimed {
			f.restore(ctx, rec, err, now)
		}
		out.Outcome, out.Category, out.Err = OutcomeSkipped, CategoryStoreUnavailable, storeErr("claim", err)
		return out, out.Err
	}
	if !claimed {
		out.Outcome = OutcomeSkipped
		return out, nil
	}
	out.Record.Attempts = attempts

	cred, err := f.resolver.Resolve(ctx, CredentialQuery{UserID: rec.UserID, Platform: rec.Platform, AccountID: rec.AccountID})
	if err != nil {
		f.restore(ctx, rec, err, now)
		out.Outcome, out.Category, out.Err = OutcomeSkipped, CategoryStoreUnavailable, err
		return out, err
	}
	if cred == nil {
		return f.fail(ctx, out, fmt.Errorf("%w: user %d on %s", ErrCredentialMissing, rec.UserID, rec.Platform), now)
	}

	publisher, ok := f.publishers.Get(string(rec.Platform))
	if !ok {
		return f.fail(ctx, out, fmt.Errorf("%w: %s", ErrPlatformUnsupported, rec.Platform), now)
	}

	req := services.PublishRequest{
		AccountID:   cred.AccountID,
		AccessToken: cred.AccessToken,
		Message:     rec.Message,
		ImageURL:    rec.ImageURL,
	}
	if rec.ScheduledAt.After(now) {
		if err := services.ValidatePublishWindow(now, rec.ScheduledAt); err != nil {
			return f.fail(ctx, out, err, now)
		}
		at := rec.ScheduledAt
		req.ScheduledAt = &at
	}

	if err := f.dispatch(ctx, rec, now); err != nil {
		if errors.Is(err, repository.ErrClaimLost) {
			out.Outcome = OutcomeSkipped
			return out, nil
		}
		f.restore(ctx, rec, err, now)
		out.Outcome, out.Category, out.Err = OutcomeSkipped, CategoryStoreUnavailable, storeErr("mark dispatched", err)
		return out, out.Err
	}

	res, err := publisher.Publish(ctx, req)
	if err == nil && (res == nil || strings.TrimSpace(res.ExternalID) == "") {
		err = &services.GatewayError{Kind: services.ErrPlatformRejected, Op: publisher.Name() + ".publish", Message: "response carried no post id"}
	}
	if err != nil {
		if services.IsTransient(err) && attempts < f.cfg.MaxAttempts {
			return f.retry(ctx, out, err, attempts, now)
		}
		return f.fail(ctx, out, err, now)
	}

	return f.complete(ctx, out, res, now)
}

// PublishCampaign publishes one campaign on request of its owner. A future scheduled time
// becomes a deferred publish on the platform, subject to the publish window.
func (f *PublicationFlowImpl) PublishCampaign(ctx context.Context, userID uint, campaignUUID string) (*dto.PublishCampaignResponse, error) {
	campaign, err := getOwnedCampaign(ctx, f.campaignRepo, campaignUUID, userID)
	if err != nil {
		return nil, lookupError(err)
	}
	if campaign.Status != models.CampaignStatusScheduled {
		return nil, NewBusinessError("CAMPAIGN_NOT_PUBLISHABLE", "Campaign is not awaiting publication", ErrCampaignNotPublishable)
	}

	out, err := f.Publish(ctx, dueFromCampaign(campaign))
	if err != nil {
		return nil, NewBusinessError("PUBLICATION_STORE_UNAVAILABLE", "Publication could not be recorded", err)
	}

	switch out.Outcome {
	case OutcomePublished:
		f.logger.Printf("publication: campaign %s published on request as %s", campaign.UUID, out.ExternalID)
		return &dto.PublishCampaignResponse{
			Message:    "Campaign published successfully",
			UUID:       campaign.UUID.String(),
			Status:     models.CampaignStatusPublished.String(),
			ExternalID: utils.ToPtr(out.ExternalID),
			Deferred:   !out.Published,
		}, nil
	case OutcomeSkipped:
		return nil, NewBusinessError("CAMPAIGN_NOT_PUBLISHABLE", "Campaign is already being published", ErrCampaignNotPublishable)
	case OutcomeRetry:
		return nil, NewBusinessError(codeForCategory(out.Category), "Publication will be retried", out.Err)
	default:
		return nil, NewBusinessError(codeForCategory(out.Category), "Campaign publication failed", out.Err)
	}
}

func (f *PublicationFlowImpl) claim(ctx context.Context, rec DueRecord, now time.Time) (int, bool, error) {
	if rec.Kind == RecordKindPost {
		return f.postRepo.Claim(ctx, rec.ID, now)
	}
	return f.campaignRepo.Claim(ctx, rec.ID, now)
}

func (f *PublicationFlowImpl) dispatch(ctx context.Context, rec DueRecord, now time.Time) error {
	if rec.Kind == RecordKindPost {
		return f.postRepo.MarkDispatched(ctx, rec.ID, now)
	}
	return f.campaignRepo.MarkDispatched(ctx, rec.ID, now)
}

// restore hands the claim back after a store failure so the record keeps its prior status.
// The attempt is not counted against the retry budget.
func (f *PublicationFlowImpl) restore(ctx context.Context, rec DueRecord, cause error, now time.Time) {
	var err error
	if rec.Kind == RecordKindPost {
		err = f.postRepo.Unclaim(ctx, rec.ID, cause.Error(), now)
	} else {
		err = f.campaignRepo.Unclaim(ctx, rec.ID, cause.Error(), now)
	}
	if err != nil {
		f.logger.Printf("publication: release of %s id=%d after store failure failed: %v", rec.Kind, rec.ID, err)
	}
}

func (f *PublicationFlowImpl) fail(ctx context.Context, out *PublicationOutcome, cause error, now time.Time) (*PublicationOutcome, error) {
	rec := out.Record
	reason := services.PlatformMessage(cause)

	var err error
	if rec.Kind == RecordKindPost {
		err = f.postRepo.MarkFailed(ctx, rec.ID, reason, now)
	} else {
		err = f.campaignRepo.MarkFailed(ctx, rec.ID, reason, now)
	}

	out.Outcome, out.Category, out.Err = OutcomeFailed, CategoryOf(cause), cause
	if err != nil {
		if !errors.Is(err, repository.ErrClaimLost) {
			f.restore(ctx, rec, err, now)
		}
		return out, storeErr("record failure", err)
	}
	return out, nil
}

func (f *PublicationFlowImpl) retry(ctx context.Context, out *PublicationOutcome, cause error, attempts int, now time.Time) (*PublicationOutcome, error) {
	rec := out.Record
	next := now.Add(f.backoff(attempts))
	reason := services.PlatformMessage(cause)

	var err error
	if rec.Kind == RecordKindPost {
		err = f.postRepo.Release(ctx, rec.ID, next, reason, now)
	} else {
		err = f.campaignRepo.Release(ctx, rec.ID, next, reason, now)
	}

	out.Outcome, out.Category, out.Err, out.NextAttemptAt = OutcomeRetry, CategoryOf(cause), cause, &next
	if err != nil {
		return out, storeErr("release for retry", err)
	}
	return out, nil
}

// complete writes the platform id and enqueues the next occurrence in one transaction.
// A failure here leaves the record claimed and dispatched; the stale claim sweeper fails it later.
func (f *PublicationFlowImpl) complete(ctx context.Context, out *PublicationOutcome, res *services.PublishResult, now time.Time) (*PublicationOutcome, error) {
	rec := out.Record
	out.ExternalID, out.Published = res.ExternalID, res.Published

	err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		if rec.Kind == RecordKindPost {
			err = f.postRepo.MarkPosted(txCtx, rec.ID, res.ExternalID, res.Published, now)
		} else {
			err = f.campaignRepo.MarkPublished(txCtx, rec.ID, res.ExternalID, now)
		}
		if err != nil {
			return err
		}

		next, err := f.enqueueNextOccurrence(txCtx, rec, now)
		if err != nil {
			return err
		}
		out.NextOccurrence = next
		return nil
	})
	if err != nil {
		f.logger.Printf("publication: CRITICAL %s id=%d is live as %s but the result was not recorded: %v", rec.Kind, rec.ID, res.ExternalID, err)
		out.Outcome, out.Category = OutcomePublished, CategoryStoreUnavailable
		out.Err = storeErr("record publication", err)
		return out, out.Err
	}

	out.Outcome = OutcomePublished
	return out, nil
}

func (f *PublicationFlowImpl) enqueueNextOccurrence(ctx context.Context, rec DueRecord, now time.Time) (*time.Time, error) {
	if !rec.Frequency.IsRecurring() {
		return nil, nil
	}
	from := rec.ScheduledAt
	if now.After(from) {
		from = now
	}
	next, err := NextOccurrence(from, rec.Frequency, rec.Timezone, rec.ScheduledAt, rec.EndsAt)
	if err != nil {
		f.logger.Printf("publication: no next occurrence for %s id=%d: %v", rec.Kind, rec.ID, err)
		return nil, nil
	}
	if next == nil {
		return nil, nil
	}

	post := &models.Post{
		UserID:      rec.UserID,
		CampaignID:  rec.CampaignID,
		Content:     rec.Message,
		Platform:    rec.Platform,
		Status:      models.PostStatusPending,
		ScheduledAt: *next,
		Frequency:   rec.Frequency,
		Timezone:    rec.Timezone,
		EndsAt:      rec.EndsAt,
	}
	if rec.ImageURL != "" {
		post.ImageURL = utils.ToPtr(rec.ImageURL)
	}
	if rec.AccountID != "" {
		post.AccountID = utils.ToPtr(rec.AccountID)
	}
	if err := f.postRepo.Save(ctx, post); err != nil {
		return nil, fmt.Errorf("enqueue next occurrence: %w", err)
	}
	return next, nil
}

// backoff doubles RetryBackoff per attempt, capped at RetryMaxBackoff
func (f *PublicationFlowImpl) backoff(attempts int) time.Duration {
	base := f.cfg.RetryBackoff
	if base <= 0 {
		base = time.Minute
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if f.cfg.RetryMaxBackoff > 0 && d >= f.cfg.RetryMaxBackoff {
			return f.cfg.RetryMaxBackoff
		}
	}
	if f.cfg.RetryMaxBackoff > 0 && d > f.cfg.RetryMaxBackoff {
		return f.cfg.RetryMaxBackoff
	}
	return d
}

func dueFromCampaign(c *models.Campaign) DueRecord {
	id := c.ID
	return DueRecord{
		Kind:        RecordKindCampaign,
		ID:          c.ID,
		UUID:        c.UUID.String(),
		UserID:      c.UserID,
		CampaignID:  &id,
		Platform:    c.Platform,
		AccountID:   utils.Deref(c.AccountID),
		Message:     c.Content,
		ImageURL:    utils.Deref(c.MediaURL),
		ScheduledAt: c.ScheduledAt,
		Frequency:   c.Frequency,
		Timezone:    c.Timezone,
		EndsAt:      c.EndsAt,
		Attempts:    c.Attempts,
	}
}

func dueFromPost(p *models.Post) DueRecord {
	return DueRecord{
		Kind:        RecordKindPost,
		ID:          p.ID,
		UUID:        p.UUID.String(),
		UserID:      p.UserID,
		CampaignID:  p.CampaignID,
		Platform:    p.Platform,
		AccountID:   utils.Deref(p.AccountID),
		Message:     p.Content,
		ImageURL:    utils.Deref(p.ImageURL),
		ScheduledAt: p.ScheduledAt,
		Frequency:   p.Frequency,
		Timezone:    p.Timezone,
		EndsAt:      p.EndsAt,
		Attempts:    p.Attempts,
	}
}

func codeForCategory(c ErrorCategory) string {
	switch c {
	case CategoryCredentialMissing:
		return "CREDENTIAL_MISSING"
	case CategoryInvalidWindow:
		return "INVALID_PUBLISH_WINDOW"
	case CategoryPlatformRejected:
		return "PLATFORM_REJECTED"
	case CategoryGatewayUnavailable:
		return "GATEWAY_UNAVAILABLE"
	case CategoryStoreUnavailable:
		return "STORE_UNAVAILABLE"
	case CategoryInvalidRequest:
		return "INVALID_REQUEST"
	case CategoryPlatformUnsupported:
		return "PLATFORM_UNSUPPORTED"
	default:
		return "PUBLICATION_FAILED"
	}
}
