package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"wavelink-service/internal/domain"
)

// ChangeFeed shares change events across instances.
//   - seq:     INCR game:{id}:seq
//   - replay:  ZADD game:{id}:events {seq} {json}, trimmed to the newest retention events
//   - fan-out: PUBLISH game:{id}:changes {json}
type ChangeFeed struct {
	client    *redis.Client
	ttl       time.Duration
	retention int64
}

func NewChangeFeed(client *redis.Client, ttl time.Duration, retention int64) *ChangeFeed {
	return &ChangeFeed{client: client, ttl: ttl, retention: retention}
}

func (f *ChangeFeed) Append(ctx context.Context, ev domain.ChangeEvent) (domain.ChangeEvent, error) {
	seq, err := f.client.Incr(ctx, seqKey(ev.GameID)).Result()
	if err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("next seq: %w", err)
	}
	ev.Seq = uint64(seq)
	raw, err := json.Marshal(ev)
	if err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("encode change: %w", err)
	}

	pipe := f.client.TxPipeline()
	pipe.ZAdd(ctx, eventsKey(ev.GameID), redis.Z{Score: float64(seq), Member: raw})
	if f.retention > 0 {
		pipe.ZRemRangeByRank(ctx, eventsKey(ev.GameID), 0, -(f.retention + 1))
	}
	if f.ttl > 0 {
		// The seq key never expires so cursors stay monotonic after idle periods.
		pipe.Expire(ctx, eventsKey(ev.GameID), f.ttl)
	}
	pipe.Publish(ctx, channel(ev.GameID), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("append change: %w", err)
	}
	return ev, nil
}

func (f *ChangeFeed) Subscribe(ctx context.Context, gameID string) (<-chan domain.ChangeEvent, func(), error) {
	pubsub := f.client.Subscribe(ctx, channel(gameID))
	// Wait for the subscription to be confirmed so no publish is missed after return.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", gameID, err)
	}

	out := make(chan domain.ChangeEvent, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev domain.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Str("gameId", gameID).Msg("decode change")
				continue
			}
			select {
			case out <- ev:
			default:
				// Slow subscriber: drop, polling fills the gap.
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = pubsub.Close() })
	}
	return out, cancel, nil
}

func (f *ChangeFeed) Since(ctx context.Context, gameID string, cursor uint64) ([]domain.ChangeEvent, error) {
	members, err := f.client.ZRangeByScore(ctx, eventsKey(gameID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatUint(cursor, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read changes: %w", err)
	}
	out := make([]domain.ChangeEvent, 0, len(members))
	for _, m := range members {
		var ev domain.ChangeEvent
		if err := json.Unmarshal([]byte(m), &ev); err != nil {
			return nil, fmt.Errorf("decode change: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (f *ChangeFeed) Head(ctx context.Context, gameID string) (uint64, error) {
	seq, err := f.client.Get(ctx, seqKey(gameID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read head: %w", err)
	}
	return seq, nil
}

func seqKey(gameID string) string {
	return "game:" + gameID + ":seq"
}

func eventsKey(gameID string) string {
	return "game:" + gameID + ":events"
}

func channel(gameID string) string {
	return "game:" + gameID + ":changes"
}
