// Package readmodel caches group and submission reads behind a short TTL.
//
// Groups and submissions are owned by other parts of the system; the
// settlement core only reads them. The cache keeps sweep runs and settlement
// previews from hammering the store, and staleness is bounded by the TTL.
package readmodel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/peergrade/peergrade/internal/models"
	"github.com/peergrade/peergrade/internal/storage"
)

// DefaultTTL bounds how stale a cached read can be.
const DefaultTTL = 30 * time.Second

type groupEntry struct {
	groups    []*models.Group
	fetchedAt time.Time
}

type submissionEntry struct {
	subs      []*models.Submission
	fetchedAt time.Time
}

// Cache is a read-through cache over the store's group and submission
// queries. Safe for concurrent use.
type Cache struct {
	store storage.Store
	ttl   time.Duration

	mu     sync.RWMutex
	groups map[string]groupEntry      // keyed by projectID
	subs   map[string]submissionEntry // keyed by stageID
}

// NewCache returns a cache with the given TTL; ttl <= 0 uses DefaultTTL.
func NewCache(store storage.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store:  store,
		ttl:    ttl,
		groups: make(map[string]groupEntry),
		subs:   make(map[string]submissionEntry),
	}
}

// Groups returns a project's groups, refreshing from the store when the
// cached copy is older than the TTL.
func (c *Cache) Groups(ctx context.Context, projectID string) ([]*models.Group, error) {
	c.mu.RLock()
	entry, ok := c.groups[projectID]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.groups, nil
	}

	groups, err := c.store.ListGroups(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load groups for project %s: %w", projectID, err)
	}
	c.mu.Lock()
	c.groups[projectID] = groupEntry{groups: groups, fetchedAt: time.Now()}
	c.mu.Unlock()
	return groups, nil
}

// Submissions returns a stage's submissions, refreshing from the store when
// the cached copy is older than the TTL.
func (c *Cache) Submissions(ctx context.Context, stageID string) ([]*models.Submission, error) {
	c.mu.RLock()
	entry, ok := c.subs[stageID]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.subs, nil
	}

	subs, err := c.store.ListSubmissions(ctx, stageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submissions for stage %s: %w", stageID, err)
	}
	c.mu.Lock()
	c.subs[stageID] = submissionEntry{subs: subs, fetchedAt: time.Now()}
	c.mu.Unlock()
	return subs, nil
}

// Invalidate drops any cached entries for the project and stage. Called
// after writes that change what readers should see, like auto-approval.
func (c *Cache) Invalidate(projectID, stageID string) {
	c.mu.Lock()
	delete(c.groups, projectID)
	delete(c.subs, stageID)
	c.mu.Unlock()
}
