package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/review-platform/internal/core/domain"
)

const (
	OrderStream      = "stream.orders"
	OrderStreamGroup = "g1"
)

// RedisOrderStream is the order log backed by a Redis stream and consumer group.
type RedisOrderStream struct {
	client     *redis.Client
	stream     string
	group      string
	deadLetter string
}

func NewRedisOrderStream(client *redis.Client, stream, group string) *RedisOrderStream {
	return &RedisOrderStream{
		client:     client,
		stream:     stream,
		group:      group,
		deadLetter: stream + ".dlq",
	}
}

func (s *RedisOrderStream) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", s.group, s.stream, err)
	}
	return nil
}

func (s *RedisOrderStream) ReadNew(ctx context.Context, consumer string, count int64, block time.Duration) ([]domain.OrderEntry, error) {
	return s.read(ctx, consumer, ">", count, block)
}

func (s *RedisOrderStream) ReadPending(ctx context.Context, consumer, after string, count int64) ([]domain.OrderEntry, error) {
	if after == "" {
		after = "0"
	}
	entries, err := s.read(ctx, consumer, after, count, -1)
	if err != nil || len(entries) == 0 {
		return entries, err
	}

	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   s.stream,
		Group:    s.group,
		Start:    entries[0].ID,
		End:      entries[len(entries)-1].ID,
		Count:    int64(len(entries)),
		Consumer: consumer,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xpending %s: %w", s.stream, err)
	}
	deliveries := make(map[string]int64, len(pending))
	for _, p := range pending {
		deliveries[p.ID] = p.RetryCount
	}
	for i := range entries {
		entries[i].Deliveries = deliveries[entries[i].ID]
	}
	return entries, nil
}

func (s *RedisOrderStream) read(ctx context.Context, consumer, id string, count int64, block time.Duration) ([]domain.OrderEntry, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: consumer,
		Streams:  []string{s.stream, id},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []domain.OrderEntry
	for _, st := range streams {
		for _, msg := range st.Messages {
			entries = append(entries, domain.OrderEntry{ID: msg.ID, Values: msg.Values})
		}
	}
	return entries, nil
}

func (s *RedisOrderStream) Ack(ctx context.Context, entryID string) error {
	return s.client.XAck(ctx, s.stream, s.group, entryID).Err()
}

func (s *RedisOrderStream) DeadLetter(ctx context.Context, entry domain.OrderEntry, reason string) error {
	values := map[string]interface{}{
		"sourceId": entry.ID,
		"reason":   reason,
	}
	for k, v := range entry.Values {
		values["field."+k] = v
	}
	if err := s.client.XAdd(ctx, &redis.XAddArgs{Stream: s.deadLetter, Values: values}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.deadLetter, err)
	}
	return s.Ack(ctx, entry.ID)
}

// PendingCount reports how many entries the group has delivered but not acknowledged.
func (s *RedisOrderStream) PendingCount(ctx context.Context) (int64, error) {
	p, err := s.client.XPending(ctx, s.stream, s.group).Result()
	if err != nil {
		return 0, err
	}
	return p.Count, nil
}
