package convcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTakeReturnsNilWhenAbsent(t *testing.T) {
	c := New()
	require.Nil(t, c.Take("missing"))
}

func TestPutThenTakeRoundTrips(t *testing.T) {
	c := New()
	c.Put("a", &Entry{State: "hello", PromptTokens: []int{1, 2, 3}})

	e := c.Take("a")
	require.NotNil(t, e)
	require.Equal(t, "hello", e.State)
	require.Equal(t, []int{1, 2, 3}, e.PromptTokens)

	// Take is exclusive removal: a second Take on the same key misses.
	require.Nil(t, c.Take("a"))
}

func TestTakeExpiresEntriesPastTTL(t *testing.T) {
	c := New()
	clock := time.Now()
	c.now = func() time.Time { return clock }
	c.Put("a", &Entry{State: 1})

	clock = clock.Add(TTL + time.Second)
	require.Nil(t, c.Take("a"))
}

func TestPutEvictsLeastRecentlyAccessedWhenFull(t *testing.T) {
	c := New()
	clock := time.Now()
	c.now = func() time.Time { return clock }

	for i := 0; i < MaxEntries; i++ {
		c.Put(string(rune('a'+i)), &Entry{State: i})
		clock = clock.Add(time.Minute)
	}
	require.Equal(t, MaxEntries, c.Len())

	// "a" is now the oldest; inserting one more entry must evict it.
	c.Put("z", &Entry{State: 99})
	require.Equal(t, MaxEntries, c.Len())
	require.Nil(t, c.Take("a"))
	require.NotNil(t, c.Take("z"))
}

func TestPutPurgesExpiredEntriesBeforeCapacityCheck(t *testing.T) {
	c := New()
	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.Put("old", &Entry{State: 1})
	clock = clock.Add(TTL + time.Second)

	c.Put("new", &Entry{State: 2})
	require.Equal(t, 1, c.Len())
	require.NotNil(t, c.Take("new"))
}
