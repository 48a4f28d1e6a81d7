// Package redisledger implements the human review ledger on Redis.
//
// Each entry is a JSON document under review:{checkpoint}. Undecided
// entries are indexed by a sorted set scored by creation time, and every
// instance has a set of its checkpoint ids.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	ledger := redisledger.New(client)
package redisledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deepnoodle-ai/invoiceflow"
	"github.com/redis/go-redis/v9"
)

var _ invoiceflow.ReviewLedger = (*Ledger)(nil)

const (
	fieldEntry    = "entry"
	fieldDecision = "decision"
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Ledger) { r.logger = l }
}

// WithKeyPrefix namespaces every key. The default is "invoiceflow".
func WithKeyPrefix(prefix string) Option {
	return func(r *Ledger) {
		if prefix != "" {
			r.prefix = prefix + ":"
		}
	}
}

// Ledger is a Redis-backed invoiceflow.ReviewLedger. The caller owns the
// client lifecycle.
type Ledger struct {
	client redis.Cmdable
	prefix string
	logger *slog.Logger
}

// New creates a ledger over client.
func New(client redis.Cmdable, opts ...Option) *Ledger {
	l := &Ledger{client: client, prefix: "invoiceflow:", logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Ping verifies the Redis connection is alive.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *Ledger) entryKey(checkpointID string) string { return l.prefix + "review:" + checkpointID }
func (l *Ledger) undecidedKey() string                { return l.prefix + "reviews:undecided" }
func (l *Ledger) instanceKey(instanceID string) string {
	return l.prefix + "reviews:instance:" + instanceID
}

// AppendReview stores the entry unless one already exists for the
// checkpoint.
func (l *Ledger) AppendReview(ctx context.Context, entry *invoiceflow.ReviewEntry) error {
	body := *entry
	body.Decision = nil
	data, err := json.Marshal(&body)
	if err != nil {
		return fmt.Errorf("failed to marshal review entry %s: %w", entry.CheckpointID, err)
	}
	key := l.entryKey(entry.CheckpointID)
	created, err := l.client.HSetNX(ctx, key, fieldEntry, data).Result()
	if err != nil {
		return fmt.Errorf("failed to append review entry %s: %w", entry.CheckpointID, err)
	}
	if !created {
		return nil
	}
	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, l.undecidedKey(), redis.Z{Score: score(entry.CreatedAt), Member: entry.CheckpointID})
	pipe.SAdd(ctx, l.instanceKey(entry.InstanceID), entry.CheckpointID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index review entry %s: %w", entry.CheckpointID, err)
	}
	return nil
}

// ListUndecided returns undecided entries ordered by creation time. Ties
// are broken by checkpoint id.
func (l *Ledger) ListUndecided(ctx context.Context) ([]*invoiceflow.ReviewEntry, error) {
	ids, err := l.client.ZRange(ctx, l.undecidedKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list review entries: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := l.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, l.entryKey(id), fieldEntry)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read review entries: %w", err)
	}

	result := make([]*invoiceflow.ReviewEntry, 0, len(ids))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			l.logger.Debug("undecided index references a missing entry", "checkpoint_id", ids[i])
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read review entry %s: %w", ids[i], err)
		}
		var entry invoiceflow.ReviewEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal review entry %s: %w", ids[i], err)
		}
		result = append(result, &entry)
	}
	return result, nil
}

// MarkDecided records the decision and removes the entry from the
// undecided index.
func (l *Ledger) MarkDecided(ctx context.Context, checkpointID string, d *invoiceflow.Decision) error {
	key := l.entryKey(checkpointID)
	exists, err := l.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to read review entry %s: %w", checkpointID, err)
	}
	if exists == 0 {
		return invoiceflow.ErrCheckpointNotFound
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}
	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, key, fieldDecision, data)
	pipe.ZRem(ctx, l.undecidedKey(), checkpointID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark review entry %s decided: %w", checkpointID, err)
	}
	return nil
}

// DeleteReviews removes every entry of an instance.
func (l *Ledger) DeleteReviews(ctx context.Context, instanceID string) error {
	idx := l.instanceKey(instanceID)
	ids, err := l.client.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("failed to list review entries of %s: %w", instanceID, err)
	}
	pipe := l.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, l.entryKey(id))
		pipe.ZRem(ctx, l.undecidedKey(), id)
	}
	pipe.Del(ctx, idx)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete review entries of %s: %w", instanceID, err)
	}
	return nil
}

// score orders entries by creation time with millisecond precision, which
// a float64 score holds exactly.
func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}
