// Package broker implements the durable primitives the ingest controller,
// processing workers, and consumer endpoint share: a FIFO queue, a status
// map, an all-ids set, a priority ready index, and the submit/processing
// locks, all backed by Redis.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ticketmesh/ticketmesh/internal/ticket"
)

const (
	// SubmitLockTTL bounds how long a crashed ingest holder can block
	// admission before another handler supplants it.
	SubmitLockTTL = 5 * time.Second
	// ProcessingLockTTL bounds recovery time after a crashed worker.
	ProcessingLockTTL = 300 * time.Second

	readyPopScript = `
local members = redis.call('ZREVRANGE', KEYS[1], 0, 0)
if #members == 0 then
	return false
end
redis.call('ZREM', KEYS[1], members[1])
return members[1]
`
)

// KeyConfig names every Redis key the broker touches.
type KeyConfig struct {
	QueueKey        string
	StatusPrefix    string
	AllIDsKey       string
	ReadyIndexKey   string
	SubmitLockKey   string
	ProcessingLockPrefix string
}

// DefaultKeys is the out-of-the-box key layout.
func DefaultKeys() KeyConfig {
	return KeyConfig{
		QueueKey:             "tickets:queue",
		StatusPrefix:         "tickets:status:",
		AllIDsKey:            "tickets:ids",
		ReadyIndexKey:        "tickets:ready",
		SubmitLockKey:        "tickets:lock:submit",
		ProcessingLockPrefix: "tickets:lock:proc:",
	}
}

// Broker wraps a redis.Client with the ticket-pipeline primitives. All
// operations are total: transport failures surface as a Go error the
// caller may retry.
type Broker struct {
	rdb  *redis.Client
	keys KeyConfig
}

// New constructs a Broker over an existing redis client.
func New(rdb *redis.Client, keys KeyConfig) *Broker {
	return &Broker{rdb: rdb, keys: keys}
}

// GenerateTicketID returns an opaque, globally unique id (122 bits of
// random entropy via UUIDv4).
func (b *Broker) GenerateTicketID() string {
	return uuid.New().String()
}

// AcquireSubmitLock is an atomic test-and-set with TTL SubmitLockTTL.
func (b *Broker) AcquireSubmitLock(ctx context.Context, holder string) (bool, error) {
	ok, err := b.rdb.SetNX(ctx, b.keys.SubmitLockKey, holder, SubmitLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("broker: acquire submit lock: %w", err)
	}
	return ok, nil
}

// ReleaseSubmitLock unconditionally deletes the submit lock key.
func (b *Broker) ReleaseSubmitLock(ctx context.Context) error {
	if err := b.rdb.Del(ctx, b.keys.SubmitLockKey).Err(); err != nil {
		return fmt.Errorf("broker: release submit lock: %w", err)
	}
	return nil
}

// AcquireProcessingLock is an atomic test-and-set with TTL
// ProcessingLockTTL, scoped to a single ticket.
func (b *Broker) AcquireProcessingLock(ctx context.Context, ticketID, holder string) (bool, error) {
	ok, err := b.rdb.SetNX(ctx, b.keys.ProcessingLockPrefix+ticketID, holder, ProcessingLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("broker: acquire processing lock %s: %w", ticketID, err)
	}
	return ok, nil
}

// ReleaseProcessingLock unconditionally deletes a ticket's processing lock.
func (b *Broker) ReleaseProcessingLock(ctx context.Context, ticketID string) error {
	if err := b.rdb.Del(ctx, b.keys.ProcessingLockPrefix+ticketID).Err(); err != nil {
		return fmt.Errorf("broker: release processing lock %s: %w", ticketID, err)
	}
	return nil
}

// Enqueue pushes a message to the FIFO tail. Between any two successful
// enqueues, FIFO order is preserved for the single dequeue stream.
func (b *Broker) Enqueue(ctx context.Context, msg ticket.QueueMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("broker: marshal queue message: %w", err)
	}
	if err := b.rdb.RPush(ctx, b.keys.QueueKey, payload).Err(); err != nil {
		return fmt.Errorf("broker: enqueue: %w", err)
	}
	return nil
}

// QueueLength reports the number of messages currently waiting in the
// FIFO queue, used by the worker process to emit a queue-depth gauge.
func (b *Broker) QueueLength(ctx context.Context) (int64, error) {
	n, err := b.rdb.LLen(ctx, b.keys.QueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("broker: queue length: %w", err)
	}
	return n, nil
}

// Dequeue blocks for up to timeout for a message at the FIFO head. It
// returns (nil, nil) when no message arrives within timeout.
func (b *Broker) Dequeue(ctx context.Context, timeout time.Duration) (*ticket.QueueMessage, error) {
	res, err := b.rdb.BLPop(ctx, timeout, b.keys.QueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("broker: dequeue: %w", err)
	}
	// BLPOP returns [key, value]; we only ever block on one key.
	if len(res) != 2 {
		return nil, fmt.Errorf("broker: unexpected dequeue reply %v", res)
	}
	var msg ticket.QueueMessage
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, fmt.Errorf("broker: unmarshal queue message: %w", err)
	}
	return &msg, nil
}

// SetStatus upserts a status record with the 7-day TTL.
func (b *Broker) SetStatus(ctx context.Context, id string, status ticket.TicketStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("broker: marshal status %s: %w", id, err)
	}
	if err := b.rdb.Set(ctx, b.keys.StatusPrefix+id, payload, ticket.StatusTTL).Err(); err != nil {
		return fmt.Errorf("broker: set status %s: %w", id, err)
	}
	return nil
}

// GetStatus returns the status record for id, or (nil, nil) if absent.
func (b *Broker) GetStatus(ctx context.Context, id string) (*ticket.TicketStatus, error) {
	payload, err := b.rdb.Get(ctx, b.keys.StatusPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("broker: get status %s: %w", id, err)
	}
	var status ticket.TicketStatus
	if err := json.Unmarshal(payload, &status); err != nil {
		return nil, fmt.Errorf("broker: unmarshal status %s: %w", id, err)
	}
	return &status, nil
}

// AddToAllIDs records id in the set of every ticket ever admitted.
func (b *Broker) AddToAllIDs(ctx context.Context, id string) error {
	if err := b.rdb.SAdd(ctx, b.keys.AllIDsKey, id).Err(); err != nil {
		return fmt.Errorf("broker: add to all-ids %s: %w", id, err)
	}
	return nil
}

// ListAllIDs returns every ticket id ever admitted.
func (b *Broker) ListAllIDs(ctx context.Context) ([]string, error) {
	ids, err := b.rdb.SMembers(ctx, b.keys.AllIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("broker: list all-ids: %w", err)
	}
	return ids, nil
}

// ReadyAdd upserts id into the priority index at the given score. score
// should already have the tie-break encoding applied by the caller.
func (b *Broker) ReadyAdd(ctx context.Context, id string, score float64) error {
	if err := b.rdb.ZAdd(ctx, b.keys.ReadyIndexKey, redis.Z{Score: score, Member: id}).Err(); err != nil {
		return fmt.Errorf("broker: ready add %s: %w", id, err)
	}
	return nil
}

// ReadyPopMax atomically pops the maximum-score member of the ready index.
// found is false when the index is empty.
func (b *Broker) ReadyPopMax(ctx context.Context) (id string, found bool, err error) {
	res, err := b.rdb.Eval(ctx, readyPopScript, []string{b.keys.ReadyIndexKey}).Result()
	if errors.Is(err, redis.Nil) {
		// The script returns false (a nil reply) when the index is empty.
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("broker: ready pop max: %w", err)
	}
	member, ok := res.(string)
	if !ok || member == "" {
		return "", false, nil
	}
	return member, true, nil
}
