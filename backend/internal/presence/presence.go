// Package presence mirrors live room status into Redis so other services can
// look rooms up without talking to the relay.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BioHazard786/Warproom/backend/internal/signaling"
)

const (
	keyPrefix  = "warproom:room:"
	DefaultTTL = 24 * time.Hour
)

// Store persists room snapshots.
type Store interface {
	Put(ctx context.Context, st signaling.RoomStatus) error
	Remove(ctx context.Context, roomID string) error
}

// RedisStore keeps one hash per room with a sliding TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func roomKey(id string) string { return keyPrefix + id }

func (s *RedisStore) Put(ctx context.Context, st signaling.RoomStatus) error {
	key := roomKey(st.ID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"id":              st.ID,
			"hostId":          st.HostID,
			"state":           string(st.State),
			"pending":         st.Pending,
			"candidateConnId": st.CandidateConnID,
			"createdAt":       st.CreatedAt.UTC().Format(time.RFC3339),
		})
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store room %s: %w", st.ID, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, roomID string) error {
	if err := s.rdb.Del(ctx, roomKey(roomID)).Err(); err != nil {
		return fmt.Errorf("remove room %s: %w", roomID, err)
	}
	return nil
}

// Lookup reads a room snapshot back. ok is false when the room is unknown.
func (s *RedisStore) Lookup(ctx context.Context, roomID string) (st signaling.RoomStatus, ok bool, err error) {
	fields, err := s.rdb.HGetAll(ctx, roomKey(roomID)).Result()
	if err != nil {
		return st, false, fmt.Errorf("lookup room %s: %w", roomID, err)
	}
	if len(fields) == 0 {
		return st, false, nil
	}
	st.ID = fields["id"]
	st.HostID = fields["hostId"]
	st.State = signaling.RoomState(fields["state"])
	st.CandidateConnID = fields["candidateConnId"]
	st.Pending, _ = strconv.Atoi(fields["pending"])
	st.CreatedAt, _ = time.Parse(time.RFC3339, fields["createdAt"])
	return st, true, nil
}

// Publisher applies registry snapshots to a Store in the order they were
// observed. Observe never blocks; when the queue is full the update is
// dropped and the next snapshot of that room corrects the mirror.
type Publisher struct {
	store   Store
	updates chan signaling.RoomStatus
	timeout time.Duration
	log     *zap.Logger
}

func NewPublisher(store Store, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		store:   store,
		updates: make(chan signaling.RoomStatus, 1024),
		timeout: 2 * time.Second,
		log:     log,
	}
}

// Observe matches signaling.Observer.
func (p *Publisher) Observe(st signaling.RoomStatus) {
	select {
	case p.updates <- st:
	default:
		p.log.Warn("presence queue full, dropping update", zap.String("room", st.ID))
	}
}

// Run drains updates until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-p.updates:
			p.apply(ctx, st)
		}
	}
}

func (p *Publisher) apply(ctx context.Context, st signaling.RoomStatus) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var err error
	if st.State == signaling.RoomClosed {
		err = p.store.Remove(ctx, st.ID)
	} else {
		err = p.store.Put(ctx, st)
	}
	if err != nil {
		p.log.Warn("presence update failed", zap.String("room", st.ID), zap.Error(err))
	}
}
