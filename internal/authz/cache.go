package authz

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// PermissionSet is a resolved set of permission codes. Treat instances
// returned by the resolver as read-only; they may be shared across requests.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from the given codes.
func NewPermissionSet(codes ...string) PermissionSet {
	set := make(PermissionSet, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the permission code.
func (s PermissionSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Codes returns the codes in sorted order, for stable API responses.
func (s PermissionSet) Codes() []string {
	codes := make([]string, 0, len(s))
	for code := range s {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// PermissionCache is the process-wide user→permission-set store. It is
// constructed once at startup and handed to the resolver; there is no ambient
// global. Entries expire on their own after the TTL, but every role or
// override mutation invalidates synchronously before that mutation is
// acknowledged.
//
// Generations guard against a lost invalidation: a resolve that started
// before a mutation may finish after the mutation's Invalidate call, and its
// stale result must not repopulate the cache. Set only succeeds when the
// generation observed at miss time is still current.
type PermissionCache struct {
	mu     sync.Mutex
	lru    *lru.LRU[string, PermissionSet]
	gens   map[string]uint64
	global uint64
}

// NewPermissionCache builds a cache bounded to size entries with the given
// entry TTL.
func NewPermissionCache(size int, ttl time.Duration) *PermissionCache {
	return &PermissionCache{
		lru:  lru.NewLRU[string, PermissionSet](size, nil, ttl),
		gens: make(map[string]uint64),
	}
}

// Get returns the cached set for the user, if present.
func (c *PermissionCache) Get(userID uuid.UUID) (PermissionSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.lru.Get(userID.String())
	if ok {
		cacheHits.Inc()
	} else {
		cacheMisses.Inc()
	}
	return set, ok
}

// Generation returns the user's current invalidation generation. Callers
// record it before recomputing and pass it back to Set.
func (c *PermissionCache) Generation(userID uuid.UUID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID.String()] + c.global
}

// Set stores the computed set only if no invalidation happened since the
// generation was observed. Returns whether the entry was stored.
func (c *PermissionCache) Set(userID uuid.UUID, set PermissionSet, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := userID.String()
	if c.gens[key]+c.global != generation {
		return false
	}
	c.lru.Add(key, set)
	return true
}

// Invalidate drops the user's entry and bumps their generation.
func (c *PermissionCache) Invalidate(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := userID.String()
	c.lru.Remove(key)
	c.gens[key]++
}

// InvalidateAll drops every entry, e.g. after a role's permission set changed.
func (c *PermissionCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global++
	c.lru.Purge()
}
