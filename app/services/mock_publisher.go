package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/amirphl/social-publisher/utils"
)

// MockPublisher implements PlatformPublisher for testing and local runs
type MockPublisher struct {
	mu       sync.Mutex
	platform string
	seq      int
	calls    []MockPublishCall

	// Optional overrides. A nil hook falls back to a successful canned response.
	PublishFunc        func(ctx context.Context, req PublishRequest) (*PublishResult, error)
	EditFunc           func(ctx context.Context, req EditRequest) (*EditResult, error)
	RemoveFunc         func(ctx context.Context, postID, accessToken string) (bool, error)
	InsightsFunc       func(ctx context.Context, postID, accessToken string) (Metrics, error)
	PageInsightsFunc   func(ctx context.Context, req PageInsightsRequest) (Metrics, error)
	ScheduledPostsFunc func(ctx context.Context, pageID, accessToken string) ([]ScheduledPost, error)
	PagesFunc          func(ctx context.Context, userToken string) ([]Page, error)
}

// MockPublishCall is one recorded call
type MockPublishCall struct {
	Method      string
	Publish     *PublishRequest
	Edit        *EditRequest
	Page        *PageInsightsRequest
	PostID      string
	PageID      string
	AccessToken string
	CalledAt    time.Time
}

func NewMockPublisher(platform string) *MockPublisher {
	return &MockPublisher{platform: platform}
}

func (m *MockPublisher) Name() string { return m.platform }

func (m *MockPublisher) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	m.record(MockPublishCall{Method: "publish", Publish: &req})
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, req)
	}

	m.mu.Lock()
	m.seq++
	id := fmt.Sprintf("%s_mock_%d", req.AccountID, m.seq)
	m.mu.Unlock()

	log.Printf("mock publisher: %s published %q as %s", m.platform, req.Message, id)
	return &PublishResult{ExternalID: id, Published: req.ScheduledAt == nil}, nil
}

func (m *MockPublisher) Edit(ctx context.Context, req EditRequest) (*EditResult, error) {
	m.record(MockPublishCall{Method: "edit", Edit: &req, PostID: req.PostID})
	if m.EditFunc != nil {
		return m.EditFunc(ctx, req)
	}
	return &EditResult{PostID: req.PostID, Success: true}, nil
}

func (m *MockPublisher) Remove(ctx context.Context, postID, accessToken string) (bool, error) {
	m.record(MockPublishCall{Method: "remove", PostID: postID})
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, postID, accessToken)
	}
	return true, nil
}

func (m *MockPublisher) Insights(ctx context.Context, postID, accessToken string) (Metrics, error) {
	m.record(MockPublishCall{Method: "insights", PostID: postID})
	if m.InsightsFunc != nil {
		return m.InsightsFunc(ctx, postID, accessToken)
	}
	return Metrics{}, nil
}

func (m *MockPublisher) PageInsights(ctx context.Context, req PageInsightsRequest) (Metrics, error) {
	m.record(MockPublishCall{Method: "page_insights", Page: &req})
	if m.PageInsightsFunc != nil {
		return m.PageInsightsFunc(ctx, req)
	}
	return Metrics{}, nil
}

func (m *MockPublisher) ScheduledPosts(ctx context.Context, pageID, accessToken string) ([]ScheduledPost, error) {
	m.record(MockPublishCall{Method: "scheduled_posts", PageID: pageID, AccessToken: accessToken})
	if m.ScheduledPostsFunc != nil {
		return m.ScheduledPostsFunc(ctx, pageID, accessToken)
	}
	return []ScheduledPost{}, nil
}

func (m *MockPublisher) Pages(ctx context.Context, userToken string) ([]Page, error) {
	m.record(MockPublishCall{Method: "pages", AccessToken: userToken})
	if m.PagesFunc != nil {
		return m.PagesFunc(ctx, userToken)
	}
	return []Page{}, nil
}

// Calls returns a copy of the recorded calls
func (m *MockPublisher) Calls() []MockPublishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockPublishCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many calls of the given method were recorded
func (m *MockPublisher) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MockPublisher) record(call MockPublishCall) {
	call.CalledAt = utils.UTCNow()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}
