package presence

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warproom/backend/internal/signaling"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, time.Hour), mr
}

func TestRedisStorePutAndLookup(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	err := store.Put(ctx, signaling.RoomStatus{
		ID:        "calm-trie-otter",
		HostID:    "host-1",
		State:     signaling.RoomAwaitingCandidate,
		Pending:   2,
		CreatedAt: created,
	})
	require.NoError(t, err)

	assert.Equal(t, "awaiting-candidate", mr.HGet("warproom:room:calm-trie-otter", "state"))
	assert.Equal(t, time.Hour, mr.TTL("warproom:room:calm-trie-otter"))

	st, ok, err := store.Lookup(ctx, "calm-trie-otter")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "host-1", st.HostID)
	assert.Equal(t, 2, st.Pending)
	assert.True(t, created.Equal(st.CreatedAt))

	_, ok, err = store.Lookup(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPublisherAppliesInOrder(t *testing.T) {
	store, mr := setupTestRedis(t)
	pub := NewPublisher(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pub.Run(ctx)

	pub.Observe(signaling.RoomStatus{ID: "r1", State: signaling.RoomAwaitingCandidate})
	pub.Observe(signaling.RoomStatus{ID: "r1", State: signaling.RoomActive, CandidateConnID: "c1"})

	assert.Eventually(t, func() bool {
		return mr.HGet("warproom:room:r1", "state") == "active"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "c1", mr.HGet("warproom:room:r1", "candidateConnId"))

	pub.Observe(signaling.RoomStatus{ID: "r1", State: signaling.RoomClosed})
	assert.Eventually(t, func() bool {
		return !mr.Exists("warproom:room:r1")
	}, time.Second, 10*time.Millisecond)
}

func TestPublisherSurvivesStoreOutage(t *testing.T) {
	store, mr := setupTestRedis(t)
	pub := NewPublisher(store, nil)
	pub.timeout = 200 * time.Millisecond

	mr.SetError("ERR simulated outage")
	pub.apply(context.Background(), signaling.RoomStatus{ID: "r2", State: signaling.RoomActive})
	mr.SetError("")

	pub.apply(context.Background(), signaling.RoomStatus{ID: "r2", State: signaling.RoomActive})
	assert.True(t, mr.Exists("warproom:room:r2"))
}
