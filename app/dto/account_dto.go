package dto

import "time"

// ConnectAccountRequest stores or refreshes the token of a page the user manages
type ConnectAccountRequest struct {
	UserID         uint       `json:"-"`
	Platform       string     `json:"platform" validate:"required,oneof=facebook instagram"`
	AccountID      string     `json:"account_id" validate:"required,max=128"`
	Name           string     `json:"name,omitempty" validate:"omitempty,max=255"`
	AccessToken    string     `json:"access_token" validate:"required"`
	IsDefault      bool       `json:"is_default"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

// SocialAccountDTO never exposes the access token
type SocialAccountDTO struct {
	UUID           string     `json:"uuid"`
	Platform       string     `json:"platform"`
	AccountID      string     `json:"account_id"`
	Name           string     `json:"name"`
	IsDefault      bool       `json:"is_default"`
	Usable         bool       `json:"usable"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type ConnectAccountResponse struct {
	Message string           `json:"message"`
	Account SocialAccountDTO `json:"account"`
}

type ListAccountsResponse struct {
	Items []SocialAccountDTO `json:"items"`
}

// DiscoveredPageDTO is a page the user manages on the platform. Its token stays on the server.
type DiscoveredPageDTO struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

type DiscoverPagesResponse struct {
	Platform string              `json:"platform"`
	Items    []DiscoveredPageDTO `json:"items"`
}

// ConnectPageRequest connects a discovered page with the page token fetched from the platform
type ConnectPageRequest struct {
	UserID    uint   `json:"-"`
	AccountID string `json:"-"`
	Platform  string `json:"platform,omitempty" validate:"omitempty,oneof=facebook instagram"`
	IsDefault bool   `json:"is_default"`
}
