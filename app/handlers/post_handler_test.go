package handlers

import (
	"net/http"
	"testing"
	"time"

	businessflow "github.com/amirphl/social-publisher/business_flow"
	"github.com/amirphl/social-publisher/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostTestApp(flow *fakePostFlow) *fiber.App {
	h := NewPostHandler(flow)
	return newTestApp(func(app *fiber.App) {
		app.Post("/posts", h.CreatePost)
		app.Get("/posts", h.ListPosts)
		app.Get("/posts/scheduled", h.ScheduledPlatformPosts)
		app.Get("/posts/:uuid", h.GetPost)
		app.Put("/posts/:uuid", h.UpdatePost)
		app.Delete("/posts/:uuid", h.DeletePost)
		app.Patch("/posts/:uuid/platform", h.EditPlatformPost)
		app.Delete("/posts/:uuid/platform", h.RemovePlatformPost)
	})
}

func TestPostHandler_CreatePost(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		app := newPostTestApp(&fakePostFlow{})

		resp, body := doJSON(t, app, http.MethodPost, "/posts", map[string]any{"content": "hello"})

		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
		assert.Equal(t, "hello", body.Data.(map[string]any)["content"])
	})

	t.Run("ContentRequired", func(t *testing.T) {
		flow := &fakePostFlow{}
		app := newPostTestApp(flow)

		resp, body := doJSON(t, app, http.MethodPost, "/posts", map[string]any{"content": ""})

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))
		assert.Nil(t, flow.createReq)
	})

	t.Run("CampaignUUIDMustBeUUID", func(t *testing.T) {
		flow := &fakePostFlow{}
		app := newPostTestApp(flow)

		resp, body := doJSON(t, app, http.MethodPost, "/posts", map[string]any{"content": "hi", "campaign_uuid": "abc"})

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))
		assert.Nil(t, flow.createReq)
	})
}

func TestPostHandler_ListPosts(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		wantStatus    int
		wantPublished *bool
	}{
		{"NoFilter", "", fiber.StatusOK, nil},
		{"PublishedOnly", "?published=true", fiber.StatusOK, utils.ToPtr(true)},
		{"HeldOnly", "?published=false", fiber.StatusOK, utils.ToPtr(false)},
		{"BadFlag", "?published=maybe", fiber.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &fakePostFlow{}
			app := newPostTestApp(flow)

			resp, _ := doJSON(t, app, http.MethodGet, "/posts"+tt.query, nil)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus != fiber.StatusOK {
				assert.Nil(t, flow.listReq)
				return
			}
			require.NotNil(t, flow.listReq)
			assert.Equal(t, tt.wantPublished, flow.listReq.Published)
		})
	}
}

func TestPostHandler_EditPlatformPost(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		flow := &fakePostFlow{}
		app := newPostTestApp(flow)
		at := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)

		resp, _ := doJSON(t, app, http.MethodPatch, "/posts/p-1/platform", map[string]any{"scheduled_at": at})

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		require.NotNil(t, flow.editReq)
		assert.Equal(t, "p-1", flow.editReq.UUID)
		require.NotNil(t, flow.editReq.ScheduledAt)
		assert.True(t, at.Equal(*flow.editReq.ScheduledAt))
	})

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"AlreadyLive", businessflow.NewBusinessError("POST_ALREADY_LIVE", "Post is already live", businessflow.ErrPostAlreadyLive), fiber.StatusConflict},
		{"NotOnPlatform", businessflow.NewBusinessError("POST_NOT_ON_PLATFORM", "Post is not held by the platform", businessflow.ErrPostNotOnPlatform), fiber.StatusConflict},
		{"WindowViolation", businessflow.NewBusinessError("INVALID_PUBLISH_WINDOW", "Scheduled time is outside the publish window", businessflow.ErrInvalidWindow), fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newPostTestApp(&fakePostFlow{err: tt.err})

			resp, _ := doJSON(t, app, http.MethodPatch, "/posts/p-1/platform", map[string]any{"content": "new"})

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestPostHandler_RemovePlatformPost(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		app := newPostTestApp(&fakePostFlow{})

		resp, body := doJSON(t, app, http.MethodDelete, "/posts/p-1/platform", nil)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "p-1", body.Data.(map[string]any)["uuid"])
	})

	t.Run("Unconfirmed", func(t *testing.T) {
		flow := &fakePostFlow{err: businessflow.NewBusinessError("POST_REMOVAL_UNCONFIRMED", "Platform did not confirm the removal", businessflow.ErrPostRemovalUnconfirmed)}
		app := newPostTestApp(flow)

		resp, body := doJSON(t, app, http.MethodDelete, "/posts/p-1/platform", nil)

		assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, "POST_REMOVAL_UNCONFIRMED", errorCode(t, body))
	})
}

func TestPostHandler_GetPost(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		app := newPostTestApp(&fakePostFlow{})

		resp, body := doJSON(t, app, http.MethodGet, "/posts/p-1", nil)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "p-1", body.Data.(map[string]any)["uuid"])
	})

	t.Run("NotFound", func(t *testing.T) {
		flow := &fakePostFlow{err: businessflow.NewBusinessError("POST_NOT_FOUND", "Post not found", businessflow.ErrPostNotFound)}
		app := newPostTestApp(flow)

		resp, body := doJSON(t, app, http.MethodGet, "/posts/p-1", nil)

		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "POST_NOT_FOUND", errorCode(t, body))
	})
}

func TestPostHandler_UpdatePost(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		flow := &fakePostFlow{}
		app := newPostTestApp(flow)

		resp, body := doJSON(t, app, http.MethodPut, "/posts/p-1", map[string]any{"content": "edited", "frequency": "daily"})

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "p-1", body.Data.(map[string]any)["uuid"])
		require.NotNil(t, flow.updateReq)
		assert.Equal(t, "p-1", flow.updateReq.UUID)
		assert.Equal(t, testUserID, flow.updateReq.UserID)
		assert.Equal(t, utils.ToPtr("edited"), flow.updateReq.Content)
		assert.Equal(t, utils.ToPtr("daily"), flow.updateReq.Frequency)
	})

	invalid := []struct {
		name string
		body map[string]any
	}{
		{"ImageURLMustBeURL", map[string]any{"image_url": "not a url"}},
		{"EmptyContent", map[string]any{"content": ""}},
		{"UnknownFrequency", map[string]any{"frequency": "hourly"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			flow := &fakePostFlow{}
			app := newPostTestApp(flow)

			resp, body := doJSON(t, app, http.MethodPut, "/posts/p-1", tt.body)

			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))
			assert.Nil(t, flow.updateReq)
		})
	}

	t.Run("ClaimedPostConflicts", func(t *testing.T) {
		flow := &fakePostFlow{err: businessflow.NewBusinessError("POST_UPDATE_NOT_ALLOWED", "Post can no longer be changed", businessflow.ErrPostUpdateNotAllowed)}
		app := newPostTestApp(flow)

		resp, body := doJSON(t, app, http.MethodPut, "/posts/p-1", map[string]any{"content": "edited"})

		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
		assert.Equal(t, "POST_UPDATE_NOT_ALLOWED", errorCode(t, body))
	})
}

func TestPostHandler_DeletePost(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantDeleted string
	}{
		{"Success", nil, fiber.StatusOK, "p-1"},
		{"Published", businessflow.NewBusinessError("POST_DELETE_NOT_ALLOWED", "Post can no longer be deleted", businessflow.ErrPostDeleteNotAllowed), fiber.StatusConflict, ""},
		{"NotFound", businessflow.NewBusinessError("POST_NOT_FOUND", "Post not found", businessflow.ErrPostNotFound), fiber.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &fakePostFlow{err: tt.err}
			app := newPostTestApp(flow)

			resp, _ := doJSON(t, app, http.MethodDelete, "/posts/p-1", nil)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantDeleted, flow.deleted)
		})
	}
}

func TestPostHandler_ScheduledPlatformPosts(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		flow := &fakePostFlow{}
		app := newPostTestApp(flow)

		resp, body := doJSON(t, app, http.MethodGet, "/posts/scheduled?platform=facebook&account_id=page-1", nil)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		require.NotNil(t, flow.scheduledReq)
		assert.Equal(t, "facebook", flow.scheduledReq.Platform)
		assert.Equal(t, "page-1", flow.scheduledReq.AccountID)
		data := body.Data.(map[string]any)
		assert.Equal(t, "page-1", data["account_id"])
		assert.Len(t, data["items"], 1)
	})

	t.Run("UnknownPlatform", func(t *testing.T) {
		flow := &fakePostFlow{}
		app := newPostTestApp(flow)

		resp, body := doJSON(t, app, http.MethodGet, "/posts/scheduled?platform=myspace", nil)

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))
		assert.Nil(t, flow.scheduledReq)
	})

	t.Run("MissingCredential", func(t *testing.T) {
		flow := &fakePostFlow{err: businessflow.NewBusinessError("CREDENTIAL_MISSING", "No connected account", businessflow.ErrCredentialMissing)}
		app := newPostTestApp(flow)

		resp, _ := doJSON(t, app, http.MethodGet, "/posts/scheduled", nil)

		assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	})
}
