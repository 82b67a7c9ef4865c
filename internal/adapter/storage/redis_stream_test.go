package storage

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/review-platform/internal/core/domain"
)

func addOrder(t *testing.T, client *redis.Client, id, user, voucher string) string {
	t.Helper()
	entryID, err := client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: OrderStream,
		Values: map[string]interface{}{"id": id, "userId": user, "voucherId": voucher},
	}).Result()
	if err != nil {
		t.Fatalf("XAdd() error = %v", err)
	}
	return entryID
}

func TestOrderStream_EnsureGroupIdempotent(t *testing.T) {
	client, _ := getRedisClient(t)
	ctx := context.Background()
	stream := NewRedisOrderStream(client, OrderStream, OrderStreamGroup)

	if err := stream.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup() error = %v", err)
	}
	if err := stream.EnsureGroup(ctx); err != nil {
		t.Fatalf("second EnsureGroup() error = %v", err)
	}
}

func TestOrderStream_ReadAckPending(t *testing.T) {
	client, _ := getRedisClient(t)
	ctx := context.Background()
	stream := NewRedisOrderStream(client, OrderStream, OrderStreamGroup)
	stream.EnsureGroup(ctx)

	entryID := addOrder(t, client, "1", "10", "100")

	entries, err := stream.ReadNew(ctx, "c1", 10, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadNew() error = %v", err)
	}
	if len(entries) != 1 || entries[0].ID != entryID {
		t.Fatalf("ReadNew() = %v, want entry %s", entries, entryID)
	}

	// delivered but not acked: visible in the consumer's pending list
	pending, err := stream.ReadPending(ctx, "c1", "0", 10)
	if err != nil {
		t.Fatalf("ReadPending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != entryID {
		t.Fatalf("ReadPending() = %v, want entry %s", pending, entryID)
	}
	if pending[0].Deliveries < 1 {
		t.Errorf("Deliveries = %d, want the group's delivery count", pending[0].Deliveries)
	}

	order, err := domain.ParsePendingOrder(pending[0])
	if err != nil {
		t.Fatalf("ParsePendingOrder() error = %v", err)
	}
	if order.OrderID != 1 || order.UserID != 10 || order.VoucherID != 100 {
		t.Errorf("parsed order = %+v", order)
	}

	if err := stream.Ack(ctx, entryID); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}
	pending, _ = stream.ReadPending(ctx, "c1", "0", 10)
	if len(pending) != 0 {
		t.Errorf("ReadPending() after ack = %v, want empty", pending)
	}
}

func TestOrderStream_ReadNewTimeout(t *testing.T) {
	client, _ := getRedisClient(t)
	ctx := context.Background()
	stream := NewRedisOrderStream(client, OrderStream, OrderStreamGroup)
	stream.EnsureGroup(ctx)

	entries, err := stream.ReadNew(ctx, "c1", 10, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadNew() error = %v, want nil on timeout", err)
	}
	if len(entries) != 0 {
		t.Errorf("ReadNew() = %v, want empty", entries)
	}
}

func TestOrderStream_DeadLetter(t *testing.T) {
	client, _ := getRedisClient(t)
	ctx := context.Background()
	stream := NewRedisOrderStream(client, OrderStream, OrderStreamGroup)
	stream.EnsureGroup(ctx)

	addOrder(t, client, "x", "10", "100")
	entries, _ := stream.ReadNew(ctx, "c1", 10, 100*time.Millisecond)
	if len(entries) != 1 {
		t.Fatalf("ReadNew() = %v, want 1 entry", entries)
	}

	if err := stream.DeadLetter(ctx, entries[0], "bad id"); err != nil {
		t.Fatalf("DeadLetter() error = %v", err)
	}

	dlq, _ := client.XRange(ctx, OrderStream+".dlq", "-", "+").Result()
	if len(dlq) != 1 {
		t.Fatalf("dlq length = %d, want 1", len(dlq))
	}
	if dlq[0].Values["sourceId"] != entries[0].ID || dlq[0].Values["field.id"] != "x" {
		t.Errorf("dlq entry = %v", dlq[0].Values)
	}
	if pending, _ := stream.ReadPending(ctx, "c1", "0", 10); len(pending) != 0 {
		t.Errorf("dead-lettered entry still pending: %v", pending)
	}
}

func TestOrderStream_ReadPendingAfterCursor(t *testing.T) {
	client, _ := getRedisClient(t)
	ctx := context.Background()
	stream := NewRedisOrderStream(client, OrderStream, OrderStreamGroup)
	stream.EnsureGroup(ctx)

	first := addOrder(t, client, "1", "10", "100")
	second := addOrder(t, client, "2", "11", "100")
	if entries, _ := stream.ReadNew(ctx, "c1", 10, 100*time.Millisecond); len(entries) != 2 {
		t.Fatalf("ReadNew() = %d entries, want 2", len(entries))
	}

	pending, err := stream.ReadPending(ctx, "c1", first, 10)
	if err != nil {
		t.Fatalf("ReadPending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second {
		t.Fatalf("ReadPending(after %s) = %v, want only %s", first, pending, second)
	}
	if pending[0].Deliveries < 1 {
		t.Errorf("Deliveries = %d, want at least 1", pending[0].Deliveries)
	}

	if rest, _ := stream.ReadPending(ctx, "c1", second, 10); len(rest) != 0 {
		t.Errorf("ReadPending(after last) = %v, want empty", rest)
	}
}
