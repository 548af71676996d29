package seckill

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is one raw record of the order log
type Entry struct {
	StreamID string
	Values   map[string]interface{}
}

// OrderLog is the durable ordered log between admission and persistence.
// Entries read by a consumer stay pending until acknowledged.
type OrderLog interface {
	EnsureGroup(ctx context.Context) error

	// Read returns new entries for consumer, waiting up to block.
	Read(ctx context.Context, consumer string, count int64, block time.Duration) ([]Entry, error)

	// ReadPending returns entries delivered to consumer but not acknowledged,
	// starting after the given stream id ("0" for the beginning).
	ReadPending(ctx context.Context, consumer, after string, count int64) ([]Entry, error)

	// ClaimStale moves entries idle longer than minIdle to consumer.
	ClaimStale(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]Entry, error)

	Ack(ctx context.Context, streamIDs ...string) error
}

type RedisOrderLog struct {
	client *redis.Client
	stream string
	group  string
}

func NewRedisOrderLog(client *redis.Client, group string) *RedisOrderLog {
	return &RedisOrderLog{
		client: client,
		stream: StreamKey,
		group:  group,
	}
}

// EnsureGroup creates the stream and the consumer group if missing
func (l *RedisOrderLog) EnsureGroup(ctx context.Context) error {
	err := l.client.XGroupCreateMkStream(ctx, l.stream, l.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s: %w", l.group, err)
	}
	return nil
}

func (l *RedisOrderLog) Read(ctx context.Context, consumer string, count int64, block time.Duration) ([]Entry, error) {
	return l.readGroup(ctx, consumer, ">", count, block)
}

func (l *RedisOrderLog) ReadPending(ctx context.Context, consumer, after string, count int64) ([]Entry, error) {
	// a negative block leaves BLOCK out; history reads never wait anyway
	return l.readGroup(ctx, consumer, after, count, -1)
}

func (l *RedisOrderLog) readGroup(ctx context.Context, consumer, id string, count int64, block time.Duration) ([]Entry, error) {
	streams, err := l.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    l.group,
		Consumer: consumer,
		Streams:  []string{l.stream, id},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read order log: %w", err)
	}

	var entries []Entry
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			entries = append(entries, Entry{StreamID: msg.ID, Values: msg.Values})
		}
	}
	return entries, nil
}

func (l *RedisOrderLog) ClaimStale(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]Entry, error) {
	pending, err := l.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: l.stream,
		Group:  l.group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		// already ours; RecoverPending covers those
		if p.Consumer == consumer {
			continue
		}
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	messages, err := l.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   l.stream,
		Group:    l.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending orders: %w", err)
	}

	entries := make([]Entry, 0, len(messages))
	for _, msg := range messages {
		entries = append(entries, Entry{StreamID: msg.ID, Values: msg.Values})
	}
	return entries, nil
}

func (l *RedisOrderLog) Ack(ctx context.Context, streamIDs ...string) error {
	if len(streamIDs) == 0 {
		return nil
	}
	if err := l.client.XAck(ctx, l.stream, l.group, streamIDs...).Err(); err != nil {
		return fmt.Errorf("failed to ack orders: %w", err)
	}
	return nil
}
