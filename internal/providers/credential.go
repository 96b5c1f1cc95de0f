package providers

import (
	"context"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"golang.org/x/sync/singleflight"
)

const (
	// TokenSafetyMargin is subtracted from the provider's TTL so a token is never
	// presented in the last minute of its life.
	TokenSafetyMargin = 60 * time.Second
	// DefaultTokenTTL applies when the provider omits expires_in.
	DefaultTokenTTL = 1799 * time.Second
)

// Credential is a bearer token and the moment it stops being used.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// TokenFetcher issues a new token. ttl <= 0 means the provider did not report one.
type TokenFetcher func(ctx context.Context) (token string, ttl time.Duration, err error)

// CredentialCache holds one bearer token for the lifetime of its owner.
type CredentialCache struct {
	fetch TokenFetcher
	now   func() time.Time

	mu    sync.Mutex
	cred  Credential
	group singleflight.Group
}

func NewCredentialCache(fetch TokenFetcher) *CredentialCache {
	return &CredentialCache{fetch: fetch, now: time.Now}
}

func (c *CredentialCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred.Token != "" && c.now().Before(c.cred.ExpiresAt) {
		return c.cred.Token, true
	}
	return "", false
}

// Token returns the cached token, or fetches and caches a new one when the cache is
// empty or expired. Errors always match ErrAuth.
func (c *CredentialCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	v, err, _ := c.group.Do("token", func() (any, error) {
		if tok, ok := c.cached(); ok {
			return tok, nil
		}

		tok, ttl, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if tok == "" {
			return nil, errors.New("empty access token")
		}
		if ttl <= 0 {
			ttl = DefaultTokenTTL
		}

		c.mu.Lock()
		c.cred = Credential{Token: tok, ExpiresAt: c.now().Add(ttl - TokenSafetyMargin)}
		c.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		if errors.Is(err, ErrAuth) {
			return "", err
		}
		return "", &RequestError{Kind: ErrAuth, Op: "token", Err: err}
	}
	return v.(string), nil
}

// Invalidate drops the cached token. Callers do this when the provider rejects it.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = Credential{}
}

// Current returns the cached credential, valid or not.
func (c *CredentialCache) Current() Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred
}
