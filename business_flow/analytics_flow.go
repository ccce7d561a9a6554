package businessflow

import (
	"context"
	"encoding/json"
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
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
)

const (
	campaignsReportSheet       = "Campaigns"
	campaignsReportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	// maxReportRows bounds the export of a single user
	maxReportRows = 5000
)

// AnalyticsFlow reads platform metrics for published campaigns and pages
type AnalyticsFlow interface {
	CampaignInsights(ctx context.Context, userID uint, campaignUUID string) (*dto.CampaignInsightsResponse, error)
	PageInsights(ctx context.Context, req *dto.PageInsightsRequest) (*dto.PageInsightsResponse, error)
	ExportCampaignsReport(ctx context.Context, userID uint) (*dto.CampaignsReport, error)
}

type AnalyticsFlowImpl struct {
	campaignRepo repository.CampaignRepository
	resolver     CredentialResolver
	publishers   *services.PublisherRegistry
	rc           *redis.Client
	cacheConfig  config.CacheConfig
	cacheTTL     time.Duration
	clock        utils.Clock
	logger       *log.Logger
}

// NewAnalyticsFlow creates the analytics flow. A nil redis client disables the insights cache.
func NewAnalyticsFlow(
	campaignRepo repository.CampaignRepository,
	resolver CredentialResolver,
	publishers *services.PublisherRegistry,
	rc *redis.Client,
	cacheConfig config.CacheConfig,
	analyticsConfig config.AnalyticsConfig,
	clock utils.Clock,
	logger *log.Logger,
) AnalyticsFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &AnalyticsFlowImpl{
		campaignRepo: campaignRepo,
		resolver:     resolver,
		publishers:   publishers,
		rc:           rc,
		cacheConfig:  cacheConfig,
		cacheTTL:     analyticsConfig.CacheTTL,
		clock:        clock,
		logger:       logger,
	}
}

// cachedInsights is the cache entry of one campaign's metrics
type cachedInsights struct {
	Metrics   services.Metrics `json:"metrics"`
	FetchedAt time.Time        `json:"fetched_at"`
}

func (f *AnalyticsFlowImpl) CampaignInsights(ctx context.Context, userID uint, campaignUUID string) (*dto.CampaignInsightsResponse, error) {
	campaign, err := getOwnedCampaign(ctx, f.campaignRepo, campaignUUID, userID)
	if err != nil {
		return nil, lookupError(err)
	}
	if campaign.Status != models.CampaignStatusPublished || campaign.ExternalID == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_PUBLISHED", "Campaign has not been published", ErrCampaignNotPublished)
	}

	entry, cached, err := f.insights(ctx, campaign)
	if err != nil {
		return nil, err
	}

	return &dto.CampaignInsightsResponse{
		CampaignUUID: campaign.UUID.String(),
		ExternalID:   *campaign.ExternalID,
		Impressions:  entry.Metrics.Value("post_impressions"),
		Reach:        entry.Metrics.Value("post_impressions_unique"),
		Engagements:  entry.Metrics.Value("post_engaged_users"),
		Clicks:       entry.Metrics.Value("post_clicks"),
		Metrics:      entry.Metrics,
		FetchedAt:    entry.FetchedAt,
		Cached:       cached,
	}, nil
}

func (f *AnalyticsFlowImpl) PageInsights(ctx context.Context, req *dto.PageInsightsRequest) (*dto.PageInsightsResponse, error) {
	if req.Since != nil && req.Until != nil && req.Until.Before(*req.Since) {
		return nil, NewBusinessError("INVALID_REQUEST", "until must not precede since", ErrInvalidRequest)
	}

	platform := models.PlatformFacebook
	publisher, ok := f.publishers.Get(platform.String())
	if !ok {
		return nil, NewBusinessError("PLATFORM_UNSUPPORTED", "Platform is not supported", ErrPlatformUnsupported)
	}
	cred, err := f.resolver.Resolve(ctx, CredentialQuery{UserID: req.UserID, Platform: platform, AccountID: req.AccountID})
	if err != nil {
		return nil, NewBusinessError("STORE_UNAVAILABLE", "Failed to resolve credential", err)
	}
	if cred == nil {
		return nil, NewBusinessError("CREDENTIAL_MISSING", "No usable credential for the page", ErrCredentialMissing)
	}

	period := req.Period
	if period == "" {
		period = services.DefaultInsightsPeriod
	}
	metrics, err := publisher.PageInsights(ctx, services.PageInsightsRequest{
		PageID:      cred.AccountID,
		AccessToken: cred.AccessToken,
		Metrics:     req.Metrics,
		Period:      period,
		Since:       req.Since,
		Until:       req.Until,
	})
	if err != nil {
		return nil, NewBusinessError(codeForCategory(CategoryOf(err)), "Failed to fetch page insights", err)
	}

	return &dto.PageInsightsResponse{
		AccountID: cred.AccountID,
		Period:    period,
		Metrics:   metrics,
		Since:     req.Since,
		Until:     req.Until,
	}, nil
}

// ExportCampaignsReport builds an xlsx workbook of the user's campaigns. Metrics are filled for
// published campaigns whose insights could be read; a failed read leaves the cells empty.
func (f *AnalyticsFlowImpl) ExportCampaignsReport(ctx context.Context, userID uint) (*dto.CampaignsReport, error) {
	campaigns, err := f.campaignRepo.ByFilter(ctx, models.CampaignFilter{UserID: &userID}, "scheduled_at ASC", maxReportRows, 0)
	if err != nil {
		return nil, NewBusinessError("REPORT_FAILED", "Failed to load campaigns", storeErr("list campaigns", err))
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()
	xl.SetSheetName(xl.GetSheetName(0), campaignsReportSheet)

	header := []any{"Campaign", "UUID", "Platform", "Status", "External ID", "Scheduled At", "Published At", "Last Error", "Impressions", "Reach", "Engagements", "Clicks"}
	if err := xl.SetSheetRow(campaignsReportSheet, "A1", &header); err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	for i, c := range campaigns {
		row := []any{
			c.Name,
			c.UUID.String(),
			c.Platform.String(),
			c.Status.String(),
			utils.Deref(c.ExternalID),
			c.ScheduledAt.UTC().Format(time.RFC3339),
			formatOptionalTime(c.PublishedAt),
			utils.Deref(c.LastError),
		}
		if c.Status == models.CampaignStatusPublished && c.ExternalID != nil {
			if entry, _, err := f.insights(ctx, c); err == nil {
				row = append(row,
					entry.Metrics.Value("post_impressions"),
					entry.Metrics.Value("post_impressions_unique"),
					entry.Metrics.Value("post_engaged_users"),
					entry.Metrics.Value("post_clicks"),
				)
			} else {
				f.logger.Printf("analytics: insights of campaign %s skipped in report: %v", c.UUID, err)
			}
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := xl.SetSheetRow(campaignsReportSheet, cell, &row); err != nil {
			return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	return &dto.CampaignsReport{
		FileName:    fmt.Sprintf("campaigns_%s.xlsx", f.clock.Now().UTC().Format("20060102_150405")),
		ContentType: campaignsReportContentType,
		Content:     buf.Bytes(),
	}, nil
}

// insights serves a campaign's metrics from the cache, falling back to the gateway
func (f *AnalyticsFlowImpl) insights(ctx context.Context, c *models.Campaign) (*cachedInsights, bool, error) {
	key := f.cacheKey("insights", "campaign", c.UUID.String())
	if entry, ok := f.readCache(ctx, key); ok {
		return entry, true, nil
	}

	publisher, ok := f.publishers.Get(c.Platform.String())
	if !ok {
		return nil, false, NewBusinessError("PLATFORM_UNSUPPORTED", "Platform is not supported", ErrPlatformUnsupported)
	}
	cred, err := f.resolver.Resolve(ctx, CredentialQuery{UserID: c.UserID, Platform: c.Platform, AccountID: utils.Deref(c.AccountID)})
	if err != nil {
		return nil, false, NewBusinessError("STORE_UNAVAILABLE", "Failed to resolve credential", err)
	}
	if cred == nil {
		return nil, false, NewBusinessError("CREDENTIAL_MISSING", "No usable credential for the account", ErrCredentialMissing)
	}

	metrics, err := publisher.Insights(ctx, *c.ExternalID, cred.AccessToken)
	if err != nil {
		return nil, false, NewBusinessError(codeForCategory(CategoryOf(err)), "Failed to fetch campaign insights", err)
	}
	if metrics == nil {
		metrics = services.Metrics{}
	}

	entry := &cachedInsights{Metrics: metrics, FetchedAt: f.clock.Now().UTC()}
	f.writeCache(ctx, key, entry)
	return entry, false, nil
}

func (f *AnalyticsFlowImpl) cacheKey(parts ...string) string {
	return f.cacheConfig.RedisPrefix + strings.Join(parts, ":")
}

func (f *AnalyticsFlowImpl) readCache(ctx context.Context, key string) (*cachedInsights, bool) {
	if f.rc == nil || f.cacheTTL <= 0 {
		return nil, false
	}
	raw, err := f.rc.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			f.logger.Printf("analytics: cache read %s failed: %v", key, err)
		}
		return nil, false
	}
	var entry cachedInsights
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false
	}
	return &entry, true
}

func (f *AnalyticsFlowImpl) writeCache(ctx context.Context, key string, entry *cachedInsights) {
	if f.rc == nil || f.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := f.rc.Set(ctx, key, raw, f.cacheTTL).Err(); err != nil {
		f.logger.Printf("analytics: cache write %s failed: %v", key, err)
	}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
