package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/social-publisher/config"
	"github.com/amirphl/social-publisher/utils"
	"golang.org/x/time/rate"
)

const (
	facebookPlatform       = "facebook"
	defaultGraphBaseURL    = "https://graph.facebook.com"
	defaultGraphAPIVersion = "v18.0"
	graphTimeLayout        = "2006-01-02T15:04:05-0700"
)

// Graph error codes that Facebook documents as temporary or throttling
var transientGraphCodes = map[int]bool{1: true, 2: true, 4: true, 17: true, 32: true, 341: true, 613: true}

// FacebookClient publishes to Facebook Pages through the Graph API
type FacebookClient struct {
	BaseURL    string
	HTTPClient *http.Client
	limiter    *rate.Limiter
	clock      utils.Clock
}

func NewFacebookClient(cfg *config.FacebookConfig, clock utils.Clock) *FacebookClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}
	version := cfg.Version
	if version == "" {
		version = defaultGraphAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &FacebookClient{
		BaseURL:    strings.TrimRight(baseURL, "/") + "/" + strings.Trim(version, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		clock:      clock,
	}
}

func (c *FacebookClient) Name() string { return facebookPlatform }

type graphError struct {
	Message     string `json:"message"`
	Type        string `json:"type"`
	Code        int    `json:"code"`
	Subcode     int    `json:"error_subcode"`
	IsTransient bool   `json:"is_transient"`
	FBTraceID   string `json:"fbtrace_id"`
}

type graphErrorEnvelope struct {
	Error *graphError `json:"error"`
}

type graphPublishResp struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

type graphSuccessResp struct {
	Success bool `json:"success"`
}

type graphInsightsResp struct {
	Data []struct {
		Name   string `json:"name"`
		Period string `json:"period"`
		Values []struct {
			Value   json.RawMessage `json:"value"`
			EndTime string          `json:"end_time"`
		} `json:"values"`
	} `json:"data"`
}

type graphScheduledPostsResp struct {
	Data []struct {
		ID                   string `json:"id"`
		Message              string `json:"message"`
		CreatedTime          string `json:"created_time"`
		ScheduledPublishTime int64  `json:"scheduled_publish_time"`
	} `json:"data"`
}

type graphAccountsResp struct {
	Data []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

// Publish creates a feed post, or a photo post when an image is attached.
// A ScheduledAt in the future is sent as an unpublished post with scheduled_publish_time.
func (c *FacebookClient) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	const op = "facebook.publish"
	if req.AccountID == "" || req.AccessToken == "" {
		return nil, &GatewayError{Kind: ErrInvalidRequest, Op: op, Message: "page id and access token are required"}
	}

	form := url.Values{}
	form.Set("access_token", req.AccessToken)
	path := "/" + url.PathEscape(req.AccountID) + "/feed"
	if req.ImageURL != "" {
		path = "/" + url.PathEscape(req.AccountID) + "/photos"
		form.Set("url", req.ImageURL)
		form.Set("caption", req.Message)
	} else {
		form.Set("message", req.Message)
	}

	published := true
	if req.ScheduledAt != nil {
		if err := ValidatePublishWindow(c.clock.Now(), *req.ScheduledAt); err != nil {
			return nil, err
		}
		form.Set("published", "false")
		form.Set("scheduled_publish_time", strconv.FormatInt(req.ScheduledAt.Unix(), 10))
		published = false
	}

	var out graphPublishResp
	if err := c.do(ctx, op, http.MethodPost, path, form, &out); err != nil {
		return nil, err
	}
	id := out.PostID
	if id == "" {
		id = out.ID
	}
	if id == "" {
		return nil, rejected(op, http.StatusOK, 0, "response carried no post id", false)
	}
	return &PublishResult{ExternalID: id, Published: published}, nil
}

// Edit updates the message or the scheduled time of a post the platform already holds
func (c *FacebookClient) Edit(ctx context.Context, req EditRequest) (*EditResult, error) {
	const op = "facebook.edit"
	if req.PostID == "" {
		return nil, &GatewayError{Kind: ErrInvalidRequest, Op: op, Message: "post id is required"}
	}
	if req.Message == nil && req.ScheduledAt == nil {
		return nil, &GatewayError{Kind: ErrInvalidRequest, Op: op, Message: "nothing to update"}
	}

	form := url.Values{}
	form.Set("access_token", req.AccessToken)
	if req.Message != nil {
		form.Set("message", *req.Message)
	}
	if req.ScheduledAt != nil {
		if err := ValidatePublishWindow(c.clock.Now(), *req.ScheduledAt); err != nil {
			return nil, err
		}
		form.Set("scheduled_publish_time", strconv.FormatInt(req.ScheduledAt.Unix(), 10))
	}

	var out graphSuccessResp
	if err := c.do(ctx, op, http.MethodPost, "/"+url.PathEscape(req.PostID), form, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, rejected(op, http.StatusOK, 0, "edit was not confirmed", false)
	}
	return &EditResult{PostID: req.PostID, Success: true}, nil
}

func (c *FacebookClient) Remove(ctx context.Context, postID, accessToken string) (bool, error) {
	const op = "facebook.remove"
	if postID == "" {
		return false, &GatewayError{Kind: ErrInvalidRequest, Op: op, Message: "post id is required"}
	}
	q := url.Values{}
	q.Set("access_token", accessToken)

	var out graphSuccessResp
	if err := c.do(ctx, op, http.MethodDelete, "/"+url.PathEscape(postID), q, &out); err != nil {
		return false, err
	}
	return out.Success, nil
}

func (c *FacebookClient) Insights(ctx context.Context, postID, accessToken string) (Metrics, error) {
	const op = "facebook.insights"
	if postID == "" {
		return nil, &GatewayError{Kind: ErrInvalidRequest, Op: op, Message: "post id is required"}
	}
	q := url.Values{}
	q.Set("access_token", accessToken)
	q.Set("metric", strings.Join(DefaultPostMetrics, ","))

	var out graphInsightsResp
	if err := c.do(ctx, op, http.MethodGet, "/"+url.PathEscape(postID)+"/insights", q, &out); err != nil {
		return nil, err
	}
	return out.metrics(), nil
}

func (c *FacebookClient) PageInsights(ctx context.Context, req PageInsightsRequest) (Metrics, error) {
	const op = "facebook.page_insights"
	if req.PageID == "" {
		return nil, &GatewayError{Kind: ErrInvalidRequest, Op: op, Message: "page id is required"}
	}
	metrics := req.Metrics
	if len(metrics) == 0 {
		metrics = DefaultPageMetrics
	}
	period := req.Period
	if period == "" {
		period = DefaultInsightsPeriod
	}

	q := url.Values{}
	q.Set("access_token", req.AccessToken)
	q.Set("metric", strings.Join(metrics, ","))
	q.Set("period", period)
	if req.Since != nil {
		q.Set("since", strconv.FormatInt(req.Since.Unix(), 10))
	}
	if req.Until != nil {
		q.Set("until", strconv.FormatInt(req.Until.Unix(), 10))
	}

	var out graphInsightsResp
	if err := c.do(ctx, op, http.MethodGet, "/"+url.PathEscape(req.PageID)+"/insights", q, &out); err != nil {
		return nil, err
	}
	return out.metrics(), nil
}

// ScheduledPosts lists the posts the page holds for deferred publication
func (c *FacebookClient) ScheduledPosts(ctx context.Context, pageID, accessToken string) ([]ScheduledPost, error) {
	const op = "facebook.scheduled_posts"
	if pageID == "" || accessToken == "" {
		return nil, &GatewayError{Kind: ErrInvalidRequest, Op: op, Message: "page id and access token are required"}
	}
	q := url.Values{}
	q.Set("access_token", accessToken)
	q.Set("fields", "id,message,created_time,scheduled_publish_time")

	var out graphScheduledPostsResp
	if err := c.do(ctx, op, http.MethodGet, "/"+url.PathEscape(pageID)+"/scheduled_posts", q, &out); err != nil {
		return nil, err
	}

	posts := make([]ScheduledPost, 0, len(out.Data))
	for _, d := range out.Data {
		p := ScheduledPost{ID: d.ID, Message: d.Message}
		if d.ScheduledPublishTime > 0 {
			at := time.Unix(d.ScheduledPublishTime, 0).UTC()
			p.ScheduledAt = &at
		}
		if created, err := time.Parse(graphTimeLayout, d.CreatedTime); err == nil {
			created = created.UTC()
			p.CreatedAt = &created
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// Pages lists the pages the owner of userToken manages, each with its page token
func (c *FacebookClient) Pages(ctx context.Context, userToken string) ([]Page, error) {
	const op = "facebook.pages"
	if userToken == "" {
		return nil, &GatewayError{Kind: ErrInvalidRequest, Op: op, Message: "user access token is required"}
	}
	q := url.Values{}
	q.Set("access_token", userToken)
	q.Set("fields", "id,name,access_token")

	var out graphAccountsResp
	if err := c.do(ctx, op, http.MethodGet, "/me/accounts", q, &out); err != nil {
		return nil, err
	}

	pages := make([]Page, 0, len(out.Data))
	for _, d := range out.Data {
		if d.ID == "" {
			continue
		}
		pages = append(pages, Page{ID: d.ID, Name: d.Name, AccessToken: d.AccessToken})
	}
	return pages, nil
}

// metrics keeps the latest value of each series. Breakdown values (objects) are summed.
func (r graphInsightsResp) metrics() Metrics {
	m := make(Metrics, len(r.Data))
	for _, series := range r.Data {
		if len(series.Values) == 0 {
			continue
		}
		raw := series.Values[len(series.Values)-1].Value
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil {
			m[series.Name] = n
			continue
		}
		var breakdown map[string]float64
		if err := json.Unmarshal(raw, &breakdown); err == nil {
			var sum float64
			for _, v := range breakdown {
				sum += v
			}
			m[series.Name] = sum
		}
	}
	return m
}

// do sends one Graph call. POST bodies are form encoded, other methods carry params in the query.
func (c *FacebookClient) do(ctx context.Context, op, method, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return unavailable(op, err)
	}

	endpoint := c.BaseURL + path
	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(params.Encode())
	} else if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &GatewayError{Kind: ErrInvalidRequest, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return unavailable(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return unavailable(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env graphErrorEnvelope
		if jsonErr := json.Unmarshal(data, &env); jsonErr == nil && env.Error != nil {
			transient := env.Error.IsTransient || transientGraphCodes[env.Error.Code] || resp.StatusCode >= 500
			return rejected(op, resp.StatusCode, env.Error.Code, env.Error.Message, transient)
		}
		return rejected(op, resp.StatusCode, 0, fmt.Sprintf("unexpected status %d", resp.StatusCode), resp.StatusCode >= 500)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return rejected(op, resp.StatusCode, 0, "malformed response: "+err.Error(), false)
	}
	return nil
}

// IsTimeout reports whether a gateway failure was caused by a deadline
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
