package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDomainMemory_SetGet(t *testing.T) {
	dm := NewDomainMemory(time.Minute, time.Minute)
	defer dm.Stop()

	assert.Empty(t, dm.Get("example.com"))
	dm.Set("example.com", "relay")
	dm.Set("example.com", "direct")
	dm.Set("other.org", "render")

	assert.Equal(t, "direct", dm.Get("example.com"))
	assert.Equal(t, 2, dm.Len())

	dm.Delete("other.org")
	dm.Delete("other.org")
	assert.Equal(t, 1, dm.Len())
}

func TestDomainMemory_Expiry(t *testing.T) {
	dm := NewDomainMemory(20*time.Millisecond, 10*time.Millisecond)
	defer dm.Stop()

	dm.Set("a.com", "direct")
	dm.Set("b.com", "relay")

	assert.Eventually(t, func() bool { return dm.Len() == 0 }, time.Second, 10*time.Millisecond)
	assert.Empty(t, dm.Get("a.com"))
}

func TestDomainMemory_StopTwice(t *testing.T) {
	dm := NewDomainMemory(time.Minute, 0)
	dm.Stop()
	assert.NotPanics(t, dm.Stop)
}

func TestDomainMemory_ExpiryKeepsNewerSet(t *testing.T) {
	dm := NewDomainMemory(time.Minute, time.Hour)
	defer dm.Stop()

	dm.Set("example.com", "relay")
	val, _ := dm.store.Load("example.com")
	stale := val.(*domainEntry)

	// A winner recorded between reading the stale entry and removing it.
	dm.Set("example.com", "direct")
	dm.expire("example.com", stale)

	assert.Equal(t, "direct", dm.Get("example.com"))
	assert.Equal(t, 1, dm.Len())

	val, _ = dm.store.Load("example.com")
	dm.expire("example.com", val.(*domainEntry))
	assert.Empty(t, dm.Get("example.com"))
	assert.Zero(t, dm.Len())
}
