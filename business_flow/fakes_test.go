package businessflow

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/social-publisher/models"
	"github.com/amirphl/social-publisher/repository"
	"github.com/amirphl/social-publisher/utils"
	"github.com/google/uuid"
)

var errFakeStore = errors.New("connection refused")

// fakeCampaignRepo is an in-memory CampaignRepository. Methods the flows never call panic
// through the nil embedded interface.
type fakeCampaignRepo struct {
	repository.CampaignRepository

	mu     sync.Mutex
	rows   map[uint]*models.Campaign
	nextID uint

	failList     error
	failClaim    error
	failDispatch error
	failMark     error
	failRelease  error
	failSave     error
	markedWrites int
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{rows: map[uint]*models.Campaign{}}
}

func (r *fakeCampaignRepo) add(c *models.Campaign) *models.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = models.CampaignStatusScheduled
	}
	if c.Platform == "" {
		c.Platform = models.PlatformFacebook
	}
	if c.Frequency == "" {
		c.Frequency = models.FrequencyOnce
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	cp := *c
	r.rows[c.ID] = &cp
	return c
}

func (r *fakeCampaignRepo) get(id uint) *models.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

func (r *fakeCampaignRepo) Save(ctx context.Context, c *models.Campaign) error {
	if r.failSave != nil {
		return r.failSave
	}
	r.add(c)
	return nil
}

func (r *fakeCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	return r.get(id), nil
}

func (r *fakeCampaignRepo) ByUUID(ctx context.Context, id string) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.UUID.String() == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeCampaignRepo) matching(filter models.CampaignFilter) []*models.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Campaign
	for _, c := range r.rows {
		if filter.UserID != nil && c.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.Platform != nil && c.Platform != *filter.Platform {
			continue
		}
		if filter.Name != nil && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(*filter.Name)) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	if r.failList != nil {
		return nil, r.failList
	}
	return paginate(r.matching(filter), limit, offset), nil
}

func (r *fakeCampaignRepo) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	if r.failList != nil {
		return 0, r.failList
	}
	return int64(len(r.matching(filter))), nil
}

func (r *fakeCampaignRepo) UpdateIfStatus(ctx context.Context, c *models.Campaign, expected ...models.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[c.ID]
	if !ok || !slices.Contains(expected, stored.Status) {
		return repository.ErrStatusChanged
	}
	cp := *c
	r.rows[c.ID] = &cp
	return nil
}

func (r *fakeCampaignRepo) SoftDeleteIfStatus(ctx context.Context, id uint, expected ...models.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[id]
	if !ok || !slices.Contains(expected, stored.Status) {
		return repository.ErrStatusChanged
	}
	delete(r.rows, id)
	return nil
}

func (r *fakeCampaignRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	if r.failList != nil {
		return nil, r.failList
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Campaign
	for _, c := range r.rows {
		if c.Status != models.CampaignStatusScheduled || c.ScheduledAt.After(now) {
			continue
		}
		if c.NextAttemptAt != nil && c.NextAttemptAt.After(now) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return paginate(out, limit, 0), nil
}

func (r *fakeCampaignRepo) Claim(ctx context.Context, id uint, now time.Time) (int, bool, error) {
	if r.failClaim != nil {
		return 0, false, r.failClaim
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok || c.Status != models.CampaignStatusScheduled {
		return 0, false, nil
	}
	c.Status = models.CampaignStatusPublishing
	c.Attempts++
	c.ClaimedAt = utils.ToPtr(now)
	c.DispatchedAt, c.NextAttemptAt = nil, nil
	return c.Attempts, true, nil
}

func (r *fakeCampaignRepo) MarkDispatched(ctx context.Context, id uint, now time.Time) error {
	if r.failDispatch != nil {
		return r.failDispatch
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok || c.Status != models.CampaignStatusPublishing {
		return repository.ErrClaimLost
	}
	c.DispatchedAt = utils.ToPtr(now)
	return nil
}

func (r *fakeCampaignRepo) finish(id uint, fn func(c *models.Campaign)) error {
	if r.failMark != nil {
		return r.failMark
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok || c.Status != models.CampaignStatusPublishing {
		return repository.ErrClaimLost
	}
	r.markedWrites++
	fn(c)
	return nil
}

func (r *fakeCampaignRepo) MarkPublished(ctx context.Context, id uint, externalID string, now time.Time) error {
	return r.finish(id, func(c *models.Campaign) {
		c.Status = models.CampaignStatusPublished
		c.ExternalID = utils.ToPtr(externalID)
		c.PublishedAt = utils.ToPtr(now)
		c.ClaimedAt, c.DispatchedAt, c.LastError = nil, nil, nil
	})
}

func (r *fakeCampaignRepo) MarkFailed(ctx context.Context, id uint, reason string, now time.Time) error {
	return r.finish(id, func(c *models.Campaign) {
		c.Status = models.CampaignStatusFailed
		c.ExternalID, c.ClaimedAt, c.DispatchedAt = nil, nil, nil
		c.LastError = utils.ToPtr(reason)
	})
}

func (r *fakeCampaignRepo) Release(ctx context.Context, id uint, next time.Time, reason string, now time.Time) error {
	if r.failRelease != nil {
		return r.failRelease
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok || c.Status != models.CampaignStatusPublishing {
		return repository.ErrClaimLost
	}
	c.Status = models.CampaignStatusScheduled
	c.ClaimedAt, c.DispatchedAt = nil, nil
	c.NextAttemptAt = utils.ToPtr(next)
	c.LastError = utils.ToPtr(reason)
	return nil
}

func (r *fakeCampaignRepo) Unclaim(ctx context.Context, id uint, reason string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok || c.Status != models.CampaignStatusPublishing {
		return repository.ErrClaimLost
	}
	unclaimCampaign(c, reason)
	return nil
}

func unclaimCampaign(c *models.Campaign, reason string) {
	c.Status = models.CampaignStatusScheduled
	c.ClaimedAt, c.DispatchedAt = nil, nil
	c.Attempts = max(c.Attempts-1, 0)
	c.LastError = utils.ToPtr(reason)
}

func (r *fakeCampaignRepo) ExpireStaleClaims(ctx context.Context, claimedBefore, now time.Time) (repository.StaleClaims, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out repository.StaleClaims
	for _, c := range r.rows {
		if c.Status != models.CampaignStatusPublishing || c.ClaimedAt == nil || !c.ClaimedAt.Before(claimedBefore) {
			continue
		}
		if c.DispatchedAt == nil {
			unclaimCampaign(c, repository.ReleasedClaimReason)
			out.Released++
			continue
		}
		c.Status = models.CampaignStatusFailed
		c.ClaimedAt, c.DispatchedAt, c.ExternalID = nil, nil, nil
		c.LastError = utils.ToPtr(repository.StaleClaimReason)
		out.Failed++
	}
	return out, nil
}

type fakePostRepo struct {
	repository.PostRepository

	mu     sync.Mutex
	rows   map[uint]*models.Post
	nextID uint

	failSave     error
	failClaim    error
	failDispatch error
	failMark     error
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{rows: map[uint]*models.Post{}}
}

func (r *fakePostRepo) add(p *models.Post) *models.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p.ID = r.nextID
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	if p.Status == "" {
		p.Status = models.PostStatusPending
	}
	if p.Platform == "" {
		p.Platform = models.PlatformFacebook
	}
	if p.Frequency == "" {
		p.Frequency = models.FrequencyOnce
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	cp := *p
	r.rows[p.ID] = &cp
	return p
}

func (r *fakePostRepo) get(id uint) *models.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (r *fakePostRepo) all() []*models.Post {
	return r.matching(models.PostFilter{})
}

func (r *fakePostRepo) Save(ctx context.Context, p *models.Post) error {
	if r.failSave != nil {
		return r.failSave
	}
	r.add(p)
	return nil
}

func (r *fakePostRepo) ByID(ctx context.Context, id uint) (*models.Post, error) {
	return r.get(id), nil
}

func (r *fakePostRepo) ByUUID(ctx context.Context, id string) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		if p.UUID.String() == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakePostRepo) matching(filter models.PostFilter) []*models.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Post
	for _, p := range r.rows {
		if filter.UserID != nil && p.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.CampaignID != nil && (p.CampaignID == nil || *p.CampaignID != *filter.CampaignID) {
			continue
		}
		if filter.Published != nil && p.Published != *filter.Published {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakePostRepo) ByFilter(ctx context.Context, filter models.PostFilter, orderBy string, limit, offset int) ([]*models.Post, error) {
	return paginate(r.matching(filter), limit, offset), nil
}

func (r *fakePostRepo) Count(ctx context.Context, filter models.PostFilter) (int64, error) {
	return int64(len(r.matching(filter))), nil
}

func (r *fakePostRepo) Update(ctx context.Context, p *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[p.ID]; !ok {
		return errors.New("post not found")
	}
	cp := *p
	r.rows[p.ID] = &cp
	return nil
}

func (r *fakePostRepo) UpdateIfStatus(ctx context.Context, p *models.Post, expected ...models.PostStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[p.ID]
	if !ok || !slices.Contains(expected, stored.Status) {
		return repository.ErrStatusChanged
	}
	cp := *p
	r.rows[p.ID] = &cp
	return nil
}

func (r *fakePostRepo) SoftDeleteIfStatus(ctx context.Context, id uint, expected ...models.PostStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[id]
	if !ok || !slices.Contains(expected, stored.Status) {
		return repository.ErrStatusChanged
	}
	delete(r.rows, id)
	return nil
}

func (r *fakePostRepo) SoftDelete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

func (r *fakePostRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Post
	for _, p := range r.rows {
		if p.Status != models.PostStatusPending || p.ScheduledAt.After(now) {
			continue
		}
		if p.NextAttemptAt != nil && p.NextAttemptAt.After(now) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return paginate(out, limit, 0), nil
}

func (r *fakePostRepo) Claim(ctx context.Context, id uint, now time.Time) (int, bool, error) {
	if r.failClaim != nil {
		return 0, false, r.failClaim
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok || p.Status != models.PostStatusPending {
		return 0, false, nil
	}
	p.Status = models.PostStatusPublishing
	p.Attempts++
	p.ClaimedAt = utils.ToPtr(now)
	p.DispatchedAt, p.NextAttemptAt = nil, nil
	return p.Attempts, true, nil
}

func (r *fakePostRepo) MarkDispatched(ctx context.Context, id uint, now time.Time) error {
	if r.failDispatch != nil {
		return r.failDispatch
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok || p.Status != models.PostStatusPublishing {
		return repository.ErrClaimLost
	}
	p.DispatchedAt = utils.ToPtr(now)
	return nil
}

func (r *fakePostRepo) finish(id uint, fn func(p *models.Post)) error {
	if r.failMark != nil {
		return r.failMark
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok || p.Status != models.PostStatusPublishing {
		return repository.ErrClaimLost
	}
	fn(p)
	return nil
}

func (r *fakePostRepo) MarkPosted(ctx context.Context, id uint, externalID string, published bool, now time.Time) error {
	return r.finish(id, func(p *models.Post) {
		p.Status = models.PostStatusPosted
		p.ExternalID = utils.ToPtr(externalID)
		p.Published = published
		p.PublishedAt = utils.ToPtr(now)
		p.ClaimedAt, p.DispatchedAt, p.LastError = nil, nil, nil
	})
}

func (r *fakePostRepo) MarkFailed(ctx context.Context, id uint, reason string, now time.Time) error {
	return r.finish(id, func(p *models.Post) {
		p.Status = models.PostStatusFailed
		p.ExternalID, p.ClaimedAt, p.DispatchedAt = nil, nil, nil
		p.LastError = utils.ToPtr(reason)
	})
}

func (r *fakePostRepo) Release(ctx context.Context, id uint, next time.Time, reason string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok || p.Status != models.PostStatusPublishing {
		return repository.ErrClaimLost
	}
	p.Status = models.PostStatusPending
	p.ClaimedAt, p.DispatchedAt = nil, nil
	p.NextAttemptAt = utils.ToPtr(next)
	p.LastError = utils.ToPtr(reason)
	return nil
}

func (r *fakePostRepo) Unclaim(ctx context.Context, id uint, reason string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok || p.Status != models.PostStatusPublishing {
		return repository.ErrClaimLost
	}
	unclaimPost(p, reason)
	return nil
}

func unclaimPost(p *models.Post, reason string) {
	p.Status = models.PostStatusPending
	p.ClaimedAt, p.DispatchedAt = nil, nil
	p.Attempts = max(p.Attempts-1, 0)
	p.LastError = utils.ToPtr(reason)
}

func (r *fakePostRepo) ExpireStaleClaims(ctx context.Context, claimedBefore, now time.Time) (repository.StaleClaims, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out repository.StaleClaims
	for _, p := range r.rows {
		if p.Status != models.PostStatusPublishing || p.ClaimedAt == nil || !p.ClaimedAt.Before(claimedBefore) {
			continue
		}
		if p.DispatchedAt == nil {
			unclaimPost(p, repository.ReleasedClaimReason)
			out.Released++
			continue
		}
		p.Status = models.PostStatusFailed
		p.ClaimedAt, p.DispatchedAt, p.ExternalID = nil, nil, nil
		p.LastError = utils.ToPtr(repository.StaleClaimReason)
		out.Failed++
	}
	return out, nil
}

type fakeUserRepo struct {
	repository.UserRepository

	users   map[uint]*models.User
	failGet error
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	r := &fakeUserRepo{users: map[uint]*models.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) ByID(ctx context.Context, id uint) (*models.User, error) {
	if r.failGet != nil {
		return nil, r.failGet
	}
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return u, nil
}

type fakeAccountRepo struct {
	repository.SocialAccountRepository

	mu       sync.Mutex
	accounts []*models.SocialAccount
	nextID   uint
	failGet  error
}

func newFakeAccountRepo(accounts ...*models.SocialAccount) *fakeAccountRepo {
	r := &fakeAccountRepo{}
	for _, a := range accounts {
		r.insert(a)
	}
	return r
}

func (r *fakeAccountRepo) insert(a *models.SocialAccount) {
	r.nextID++
	a.ID = r.nextID
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	if a.Platform == "" {
		a.Platform = models.PlatformFacebook
	}
	r.accounts = append(r.accounts, a)
}

func (r *fakeAccountRepo) filter(fn func(a *models.SocialAccount) bool) []*models.SocialAccount {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, a := range r.accounts {
		if fn(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

func (r *fakeAccountRepo) first(fn func(a *models.SocialAccount) bool) (*models.SocialAccount, error) {
	if r.failGet != nil {
		return nil, r.failGet
	}
	out := r.filter(fn)
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *fakeAccountRepo) ByUUID(ctx context.Context, id string) (*models.SocialAccount, error) {
	return r.first(func(a *models.SocialAccount) bool { return a.UUID.String() == id })
}

func (r *fakeAccountRepo) ByUserAndPlatform(ctx context.Context, userID uint, platform models.Platform) ([]*models.SocialAccount, error) {
	if r.failGet != nil {
		return nil, r.failGet
	}
	return r.filter(func(a *models.SocialAccount) bool { return a.UserID == userID && a.Platform == platform }), nil
}

func (r *fakeAccountRepo) ByAccountID(ctx context.Context, userID uint, platform models.Platform, accountID string) (*models.SocialAccount, error) {
	return r.first(func(a *models.SocialAccount) bool {
		return a.UserID == userID && a.Platform == platform && a.AccountID == accountID
	})
}

func (r *fakeAccountRepo) DefaultFor(ctx context.Context, userID uint, platform models.Platform) (*models.SocialAccount, error) {
	return r.first(func(a *models.SocialAccount) bool {
		return a.UserID == userID && a.Platform == platform && a.IsDefault
	})
}

func (r *fakeAccountRepo) ByFilter(ctx context.Context, filter models.SocialAccountFilter, orderBy string, limit, offset int) ([]*models.SocialAccount, error) {
	out := r.filter(func(a *models.SocialAccount) bool {
		if filter.UserID != nil && a.UserID != *filter.UserID {
			return false
		}
		return filter.Platform == nil || a.Platform == *filter.Platform
	})
	return paginate(out, limit, offset), nil
}

func (r *fakeAccountRepo) Upsert(ctx context.Context, account *models.SocialAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.UserID == account.UserID && a.Platform == account.Platform && a.AccountID == account.AccountID {
			a.Name, a.AccessToken = account.Name, account.AccessToken
			a.IsDefault, a.TokenExpiresAt = account.IsDefault, account.TokenExpiresAt
			account.ID = a.ID
			return nil
		}
	}
	cp := *account
	r.insert(&cp)
	account.ID, account.UUID = cp.ID, cp.UUID
	return nil
}

func (r *fakeAccountRepo) ClearDefault(ctx context.Context, userID uint, platform models.Platform) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.UserID == userID && a.Platform == platform {
			a.IsDefault = false
		}
	}
	return nil
}

func (r *fakeAccountRepo) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = slices.DeleteFunc(r.accounts, func(a *models.SocialAccount) bool { return a.ID == id })
	return nil
}

// fakeTransactor runs the unit of work without isolation
type fakeTransactor struct {
	calls int
}

func (t *fakeTransactor) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	t.calls++
	return fn(ctx)
}

func paginate[T any](rows []*T, limit, offset int) []*T {
	if offset >= len(rows) {
		return []*T{}
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
