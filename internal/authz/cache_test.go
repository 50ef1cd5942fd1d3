package authz

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetGetRoundtrip(t *testing.T) {
	c := NewPermissionCache(8, time.Minute)
	userID := uuid.New()

	_, ok := c.Get(userID)
	require.False(t, ok)

	gen := c.Generation(userID)
	require.True(t, c.Set(userID, NewPermissionSet("jobs.view"), gen))

	set, ok := c.Get(userID)
	require.True(t, ok)
	assert.True(t, set.Has("jobs.view"))
}

func TestCacheRejectsStaleSetAfterInvalidate(t *testing.T) {
	c := NewPermissionCache(8, time.Minute)
	userID := uuid.New()

	// A resolve observes the generation, then a mutation invalidates before
	// the resolve finishes. Its stale result must not land.
	gen := c.Generation(userID)
	c.Invalidate(userID)

	assert.False(t, c.Set(userID, NewPermissionSet("jobs.view"), gen))
	_, ok := c.Get(userID)
	assert.False(t, ok)
}

func TestCacheInvalidateAllCoversUnseenKeys(t *testing.T) {
	c := NewPermissionCache(8, time.Minute)
	userID := uuid.New()

	// The key has never been cached; a global invalidation must still defeat
	// an in-flight resolve for it.
	gen := c.Generation(userID)
	c.InvalidateAll()

	assert.False(t, c.Set(userID, NewPermissionSet("jobs.view"), gen))
}

func TestCacheInvalidateAllPurgesEntries(t *testing.T) {
	c := NewPermissionCache(8, time.Minute)
	a, b := uuid.New(), uuid.New()

	require.True(t, c.Set(a, NewPermissionSet("jobs.view"), c.Generation(a)))
	require.True(t, c.Set(b, NewPermissionSet("team.view"), c.Generation(b)))

	c.InvalidateAll()

	_, ok := c.Get(a)
	assert.False(t, ok)
	_, ok = c.Get(b)
	assert.False(t, ok)

	// Fresh generation observed after the purge works normally.
	require.True(t, c.Set(a, NewPermissionSet("jobs.view"), c.Generation(a)))
}

func TestPermissionSetCodesSorted(t *testing.T) {
	set := NewPermissionSet("team.view", "audit.view", "jobs.view")
	assert.Equal(t, []string{"audit.view", "jobs.view", "team.view"}, set.Codes())
}
