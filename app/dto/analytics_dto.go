package dto

import "time"

// CampaignInsightsResponse carries the platform metrics of a published campaign
type CampaignInsightsResponse struct {
	CampaignUUID string             `json:"campaign_uuid"`
	ExternalID   string             `json:"external_id"`
	Impressions  float64            `json:"impressions"`
	Reach        float64            `json:"reach"`
	Engagements  float64            `json:"engagements"`
	Clicks       float64            `json:"clicks"`
	Metrics      map[string]float64 `json:"metrics"`
	FetchedAt    time.Time          `json:"fetched_at"`
	Cached       bool               `json:"cached"`
}

type PageInsightsRequest struct {
	UserID    uint       `json:"-"`
	AccountID string     `json:"account_id" query:"account_id" validate:"omitempty,max=128"`
	Metrics   []string   `json:"metrics,omitempty" query:"metrics" validate:"omitempty,max=20,dive,max=64"`
	Period    string     `json:"period,omitempty" query:"period" validate:"omitempty,oneof=day week days_28 month lifetime"`
	Since     *time.Time `json:"since,omitempty" query:"since"`
	Until     *time.Time `json:"until,omitempty" query:"until"`
}

type PageInsightsResponse struct {
	AccountID string             `json:"account_id"`
	Period    string             `json:"period"`
	Metrics   map[string]float64 `json:"metrics"`
	Since     *time.Time         `json:"since,omitempty"`
	Until     *time.Time         `json:"until,omitempty"`
}

// CampaignsReport is an xlsx workbook ready to be sent as an attachment
type CampaignsReport struct {
	FileName    string
	ContentType string
	Content     []byte
}
