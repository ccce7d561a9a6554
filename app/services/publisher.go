// Package services provides external service integrations and technical concerns like publishing and tokens
package services

import (
	"context"
	"sync"
	"time"
)

// DefaultPageMetrics are requested when a page insights call names no metric
var DefaultPageMetrics = []string{
	"page_engaged_users",
	"page_impressions",
	"page_fans",
	"page_post_engagements",
}

// DefaultPostMetrics are requested for the insights of a single post
var DefaultPostMetrics = []string{
	"post_impressions",
	"post_impressions_unique",
	"post_engaged_users",
	"post_clicks",
}

// DefaultInsightsPeriod is the aggregation period used when none is given
const DefaultInsightsPeriod = "day"

type PublishRequest struct {
	AccountID   string
	AccessToken string
	Message     string
	ImageURL    string
	// ScheduledAt asks the platform to hold the post and publish it at the given time
	ScheduledAt *time.Time
}

type PublishResult struct {
	ExternalID string
	// Published is false when the platform accepted a deferred publish
	Published bool
}

type EditRequest struct {
	PostID      string
	AccessToken string
	Message     *string
	ScheduledAt *time.Time
}

type EditResult struct {
	PostID  string
	Success bool
}

type PageInsightsRequest struct {
	PageID      string
	AccessToken string
	Metrics     []string
	Period      string
	Since       *time.Time
	Until       *time.Time
}

// ScheduledPost is a post the platform holds for deferred publication
type ScheduledPost struct {
	ID          string
	Message     string
	ScheduledAt *time.Time
	CreatedAt   *time.Time
}

// Page is a page the user manages. AccessToken is the page token and must never leave the server.
type Page struct {
	ID          string
	Name        string
	AccessToken string
}

// Metrics holds raw named metric values as returned by the platform
type Metrics map[string]float64

// Value returns the named metric, or 0 when the platform did not report it
func (m Metrics) Value(name string) float64 {
	if m == nil {
		return 0
	}
	return m[name]
}

// PlatformPublisher is the capability every supported social platform implements
type PlatformPublisher interface {
	Name() string
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
	Edit(ctx context.Context, req EditRequest) (*EditResult, error)
	Remove(ctx context.Context, postID, accessToken string) (bool, error)
	Insights(ctx context.Context, postID, accessToken string) (Metrics, error)
	PageInsights(ctx context.Context, req PageInsightsRequest) (Metrics, error)
	ScheduledPosts(ctx context.Context, pageID, accessToken string) ([]ScheduledPost, error)
	Pages(ctx context.Context, userToken string) ([]Page, error)
}

// PublisherRegistry selects a PlatformPublisher by platform name
type PublisherRegistry struct {
	mu         sync.RWMutex
	publishers map[string]PlatformPublisher
}

func NewPublisherRegistry(publishers ...PlatformPublisher) *PublisherRegistry {
	r := &PublisherRegistry{publishers: make(map[string]PlatformPublisher)}
	for _, p := range publishers {
		r.Register(p.Name(), p)
	}
	return r
}

func (r *PublisherRegistry) Register(platform string, p PlatformPublisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[platform] = p
}

func (r *PublisherRegistry) Get(platform string) (PlatformPublisher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.publishers[platform]
	return p, ok
}

func (r *PublisherRegistry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		out = append(out, name)
	}
	return out
}
