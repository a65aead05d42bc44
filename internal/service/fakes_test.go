package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mailroute/mailroute/internal/analytics"
	"github.com/mailroute/mailroute/internal/auth"
	"github.com/mailroute/mailroute/internal/mailer"
	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/internal/repository"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*model.User // by id
	err   error
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*model.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == user.Username || u.Email == user.Email {
			return repository.ErrUserExists
		}
	}
	f.users[user.ID] = user
	return nil
}

type fakeKeys struct {
	mu       sync.Mutex
	keys     []*model.APIKey
	lastUsed chan string
	err      error
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{lastUsed: make(chan string, 16)}
}

func (f *fakeKeys) GetActiveAPIKeysByPrefix(_ context.Context, userID, prefix string) ([]*model.APIKey, error) {
	return f.filter(func(k *model.APIKey) bool {
		return k.UserID == userID && k.KeyPrefix == prefix && k.IsActive
	})
}

func (f *fakeKeys) FindActiveAPIKeysByPrefix(_ context.Context, prefix string) ([]*model.APIKey, error) {
	return f.filter(func(k *model.APIKey) bool { return k.KeyPrefix == prefix && k.IsActive })
}

func (f *fakeKeys) filter(keep func(*model.APIKey) bool) ([]*model.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*model.APIKey
	for _, k := range f.keys {
		if keep(k) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeKeys) UpdateAPIKeyLastUsed(_ context.Context, id string) error {
	select {
	case f.lastUsed <- id:
	default:
	}
	return nil
}

func (f *fakeKeys) CreateAPIKey(_ context.Context, key *model.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeKeys) GetAPIKeyByID(_ context.Context, id string) (*model.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.keys {
		if k.ID == id {
			return k, nil
		}
	}
	return nil, repository.ErrAPIKeyNotFound
}

func (f *fakeKeys) ListAPIKeysByUserID(_ context.Context, userID string) ([]*model.APIKey, error) {
	return f.filter(func(k *model.APIKey) bool { return k.UserID == userID })
}

func (f *fakeKeys) RevokeAPIKey(_ context.Context, userID, id string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revokeLocked(userID, id)
}

func (f *fakeKeys) revokeLocked(userID, id string) (time.Time, error) {
	for _, k := range f.keys {
		if k.ID == id && k.UserID == userID && k.IsActive {
			now := time.Now().UTC()
			k.IsActive = false
			k.RevokedAt = &now
			return now, nil
		}
	}
	return time.Time{}, repository.ErrAPIKeyNotFound
}

func (f *fakeKeys) RotateAPIKey(_ context.Context, userID, oldID string, next *model.APIKey) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	revokedAt, err := f.revokeLocked(userID, oldID)
	if err != nil {
		return time.Time{}, err
	}
	f.keys = append(f.keys, next)
	return revokedAt, nil
}

// issueKey stores a freshly generated key for userID and returns the plaintext.
func (f *fakeKeys) issueKey(t *testing.T, userID string, scopes ...string) (string, *model.APIKey) {
	t.Helper()
	generated, err := auth.GenerateAPIKey(auth.EnvTest)
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	key := &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    userID,
		KeyHash:   generated.Hash,
		KeyPrefix: generated.Prefix,
		Scopes:    scopes,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	_ = f.CreateAPIKey(context.Background(), key)
	return generated.Plaintext, key
}

type fakeAuthCache struct {
	mu      sync.Mutex
	entries map[string]*model.AuthContext
	evicted []string
}

func newFakeAuthCache() *fakeAuthCache {
	return &fakeAuthCache{entries: make(map[string]*model.AuthContext)}
}

func (f *fakeAuthCache) GetAuthContext(_ context.Context, cacheKey string) (*model.AuthContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[cacheKey], nil
}

func (f *fakeAuthCache) SetAuthContext(_ context.Context, cacheKey string, a *model.AuthContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[cacheKey] = a
	return nil
}

func (f *fakeAuthCache) InvalidateKey(_ context.Context, keyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, keyID)
	for k, v := range f.entries {
		if v.KeyID == keyID {
			delete(f.entries, k)
		}
	}
	return nil
}

func (f *fakeAuthCache) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type templateKey struct{ owner, id string }

type fakeTemplates struct {
	mu        sync.Mutex
	templates map[templateKey]*model.Template
	err       error
}

func newFakeTemplates(tpls ...*model.Template) *fakeTemplates {
	f := &fakeTemplates{templates: make(map[templateKey]*model.Template)}
	for _, tpl := range tpls {
		f.templates[templateKey{tpl.OwnerUserID, tpl.TemplateID}] = tpl
	}
	return f
}

func (f *fakeTemplates) Create(_ context.Context, tpl *model.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := templateKey{tpl.OwnerUserID, tpl.TemplateID}
	if _, ok := f.templates[k]; ok {
		return repository.ErrTemplateExists
	}
	f.templates[k] = tpl
	return nil
}

func (f *fakeTemplates) Get(_ context.Context, ownerID, templateID string) (*model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tpl, ok := f.templates[templateKey{ownerID, templateID}]; ok {
		return tpl, nil
	}
	return nil, repository.ErrTemplateNotFound
}

func (f *fakeTemplates) Find(ctx context.Context, userID, templateID string) (*model.Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	if tpl, err := f.Get(ctx, userID, templateID); err == nil {
		return tpl, nil
	}
	if tpl, err := f.Get(ctx, model.SystemUserID, templateID); err == nil {
		return tpl, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *model.Template
	for k, tpl := range f.templates {
		if k.id == templateID && tpl.IsPublic && (oldest == nil || tpl.CreatedAt.Before(oldest.CreatedAt)) {
			oldest = tpl
		}
	}
	if oldest == nil {
		return nil, repository.ErrTemplateNotFound
	}
	return oldest, nil
}

func (f *fakeTemplates) List(_ context.Context, userID string) ([]*model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Template
	for _, tpl := range f.templates {
		if tpl.OwnerUserID == userID || tpl.IsPublic {
			out = append(out, tpl)
		}
	}
	return out, nil
}

func (f *fakeTemplates) Update(_ context.Context, tpl *model.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := templateKey{tpl.OwnerUserID, tpl.TemplateID}
	if _, ok := f.templates[k]; !ok {
		return repository.ErrTemplateNotFound
	}
	f.templates[k] = tpl
	return nil
}

func (f *fakeTemplates) Upsert(_ context.Context, tpl *model.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates[templateKey{tpl.OwnerUserID, tpl.TemplateID}] = tpl
	return nil
}

func (f *fakeTemplates) Delete(_ context.Context, ownerID, templateID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := templateKey{ownerID, templateID}
	if _, ok := f.templates[k]; !ok {
		return repository.ErrTemplateNotFound
	}
	delete(f.templates, k)
	return nil
}

type fakeSMTP struct {
	mu      sync.Mutex
	configs map[string]*model.SMTPConfig
	kept    bool
}

func newFakeSMTP(cfgs ...*model.SMTPConfig) *fakeSMTP {
	f := &fakeSMTP{configs: make(map[string]*model.SMTPConfig)}
	for _, c := range cfgs {
		f.configs[c.UserID] = c
	}
	return f
}

func (f *fakeSMTP) Get(_ context.Context, userID string) (*model.SMTPConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.configs[userID]; ok {
		return c, nil
	}
	return nil, repository.ErrSMTPConfigNotFound
}

func (f *fakeSMTP) Save(_ context.Context, cfg *model.SMTPConfig, keepPassword bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kept = keepPassword
	if prev, ok := f.configs[cfg.UserID]; ok && keepPassword {
		cfg.Password = prev.Password
	}
	f.configs[cfg.UserID] = cfg
	return nil
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []*mailer.Message
	send func(ctx context.Context, cfg *model.SMTPConfig, msg *mailer.Message) (string, error)
}

func (f *fakeTransport) Send(ctx context.Context, cfg *model.SMTPConfig, msg *mailer.Message) (string, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	send := f.send
	f.mu.Unlock()
	if send != nil {
		return send(ctx, cfg, msg)
	}
	return mailer.NewMessageID(cfg.FromEmail), nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []analytics.SendEventPayload
}

func (f *fakeEvents) PublishAsync(e analytics.SendEventPayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeEvents) last() analytics.SendEventPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return analytics.SendEventPayload{}
	}
	return f.events[len(f.events)-1]
}

func (f *fakeEvents) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}
