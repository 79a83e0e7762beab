package impact

import (
	"context"
	"sync"
	"time"
)

// AccountSource is the subset of Client the cache wraps
type AccountSource interface {
	GetAccount(ctx context.Context, accessToken string) (*Account, error)
}

type cacheEntry struct {
	account   *Account
	fetchedAt time.Time
}

// Cache memoizes impact accounts per user for a short window so the
// callback path does not hammer the backend. Entries must be
// invalidated after any auth completion since the credit decision
// depends on fresh numbers.
type Cache struct {
	source AccountSource
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry

	now func() time.Time
}

// NewCache creates an account cache in front of source
func NewCache(source AccountSource, ttl time.Duration) *Cache {
	return &Cache{
		source:  source,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// GetAccount returns the cached account for userID or fetches it
func (c *Cache) GetAccount(ctx context.Context, userID, accessToken string) (*Account, error) {
	c.mu.Lock()
	entry, ok := c.entries[userID]
	c.mu.Unlock()

	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		copied := *entry.account
		return &copied, nil
	}

	account, err := c.source.GetAccount(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[userID] = cacheEntry{account: account, fetchedAt: c.now()}
	c.mu.Unlock()

	copied := *account
	return &copied, nil
}

// Invalidate drops the cached account for userID
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}
