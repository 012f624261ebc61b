package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// reapBatchSize bounds how many delayed/expired messages a single
	// Receive call moves, so one consumer cannot stall on housekeeping.
	reapBatchSize = 128

	// DefaultMaxAttempts is the delivery budget before a message is
	// dead-lettered.
	DefaultMaxAttempts = 5
)

// popScript atomically pops one ready message, marks it in flight with a
// fresh receipt, and increments its delivery count.
var popScript = redis.NewScript(`
local id = redis.call('RPOP', KEYS[1])
if not id then return false end
redis.call('ZADD', KEYS[2], ARGV[1], id)
redis.call('HSET', KEYS[3], id, ARGV[2])
local n = redis.call('HINCRBY', KEYS[4], id, 1)
return {id, n}
`)

// ackScript deletes a message only if the receipt still matches the current
// delivery, so a consumer that lost its visibility window cannot ack.
var ackScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if not cur then return -1 end
if cur ~= ARGV[2] then return 0 end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
redis.call('HDEL', KEYS[5], ARGV[1])
return 1
`)

// extendScript pushes the visibility deadline forward for the current
// delivery only.
var extendScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if not cur then return -1 end
if cur ~= ARGV[2] then return 0 end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

// promoteScript moves delayed messages whose ready time has passed onto the
// ready list.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

// reapScript requeues messages whose visibility window expired, or moves them
// to the dead-letter list once the delivery budget is spent.
var reapScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[3])
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('HDEL', KEYS[5], id)
	local attempts = tonumber(redis.call('HGET', KEYS[6], id) or '0')
	if attempts >= tonumber(ARGV[2]) then
		local body = redis.call('HGET', KEYS[4], id)
		if body then redis.call('RPUSH', KEYS[3], body) end
		redis.call('HDEL', KEYS[4], id)
		redis.call('HDEL', KEYS[6], id)
		redis.call('HDEL', KEYS[7], id)
	else
		redis.call('LPUSH', KEYS[2], id)
	end
end
return #ids
`)

// RedisService implements Service on Redis. Each named queue uses a ready
// list, a delayed zset (score = ready-at), an in-flight zset (score =
// visibility deadline), and hashes for bodies, receipts, attempts and expiry.
type RedisService struct {
	rdb         *redis.Client
	logger      *slog.Logger
	maxAttempts int
}

// NewRedisService creates a queue service backed by the given Redis client.
func NewRedisService(rdb *redis.Client, maxAttempts int, logger *slog.Logger) *RedisService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RedisService{
		rdb:         rdb,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

type redisKeys struct {
	ready    string
	delayed  string
	inflight string
	bodies   string
	receipts string
	attempts string
	expiry   string
	dead     string
}

func keysFor(queue string) redisKeys {
	prefix := "q:" + queue
	return redisKeys{
		ready:    prefix + ":ready",
		delayed:  prefix + ":delayed",
		inflight: prefix + ":inflight",
		bodies:   prefix + ":bodies",
		receipts: prefix + ":receipts",
		attempts: prefix + ":attempts",
		expiry:   prefix + ":expiry",
		dead:     prefix + ":dead",
	}
}

// Enqueue stores the payload and makes it deliverable after opts.Delay.
func (s *RedisService) Enqueue(ctx context.Context, queue string, payload []byte, opts EnqueueOptions) (string, error) {
	k := keysFor(queue)
	id := uuid.New().String()

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, k.bodies, id, payload)
	if opts.TTL > 0 {
		pipe.HSet(ctx, k.expiry, id, time.Now().Add(opts.TTL).UnixMilli())
	}
	if opts.Delay > 0 {
		pipe.ZAdd(ctx, k.delayed, redis.Z{
			Score:  float64(time.Now().Add(opts.Delay).UnixMilli()),
			Member: id,
		})
	} else {
		pipe.LPush(ctx, k.ready, id)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to enqueue message on %s: %w", queue, err)
	}

	s.logger.Debug("Message enqueued",
		slog.String("queue", queue),
		slog.String("message_id", id),
		slog.Duration("delay", opts.Delay),
	)
	return id, nil
}

// Receive promotes due delayed messages, requeues or dead-letters expired
// in-flight messages, then pops up to opts.MaxMessages ready messages, each
// hidden for opts.VisibilityTimeout.
func (s *RedisService) Receive(ctx context.Context, queue string, opts ReceiveOptions) ([]Message, error) {
	k := keysFor(queue)
	now := time.Now()

	if err := promoteScript.Run(ctx, s.rdb,
		[]string{k.delayed, k.ready},
		now.UnixMilli(), reapBatchSize,
	).Err(); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to promote delayed messages on %s: %w", queue, err)
	}

	if err := reapScript.Run(ctx, s.rdb,
		[]string{k.inflight, k.ready, k.dead, k.bodies, k.receipts, k.attempts, k.expiry},
		now.UnixMilli(), s.maxAttempts, reapBatchSize,
	).Err(); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to reap expired messages on %s: %w", queue, err)
	}

	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 1
	}
	deadline := now.Add(opts.VisibilityTimeout).UnixMilli()

	var messages []Message
	for i := 0; i < opts.MaxMessages; i++ {
		receipt := uuid.New().String()
		res, err := popScript.Run(ctx, s.rdb,
			[]string{k.ready, k.inflight, k.receipts, k.attempts},
			deadline, receipt,
		).Slice()
		if err == redis.Nil {
			break // queue drained
		}
		if err != nil {
			return messages, fmt.Errorf("failed to pop message from %s: %w", queue, err)
		}

		id, _ := res[0].(string)
		attempts, _ := res[1].(int64)

		vals, err := s.rdb.HMGet(ctx, k.bodies, id).Result()
		if err != nil {
			return messages, fmt.Errorf("failed to load message body from %s: %w", queue, err)
		}
		body, _ := vals[0].(string)
		if body == "" {
			// Body vanished (TTL cleanup race); drop the ghost entry.
			s.discard(ctx, k, id)
			continue
		}

		if expired, err := s.isExpired(ctx, k, id, now); err != nil {
			return messages, err
		} else if expired {
			s.logger.Warn("Dropping expired message",
				slog.String("queue", queue),
				slog.String("message_id", id),
			)
			s.discard(ctx, k, id)
			continue
		}

		messages = append(messages, Message{
			ID:       id,
			Payload:  []byte(body),
			Receipt:  receipt,
			Attempts: int(attempts),
		})
	}

	return messages, nil
}

func (s *RedisService) isExpired(ctx context.Context, k redisKeys, id string, now time.Time) (bool, error) {
	val, err := s.rdb.HGet(ctx, k.expiry, id).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load message expiry: %w", err)
	}
	expiry, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, nil
	}
	return now.UnixMilli() > expiry, nil
}

func (s *RedisService) discard(ctx context.Context, k redisKeys, id string) {
	pipe := s.rdb.TxPipeline()
	pipe.ZRem(ctx, k.inflight, id)
	pipe.HDel(ctx, k.bodies, id)
	pipe.HDel(ctx, k.receipts, id)
	pipe.HDel(ctx, k.attempts, id)
	pipe.HDel(ctx, k.expiry, id)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("Failed to discard message",
			slog.String("message_id", id),
			slog.Any("error", err),
		)
	}
}

// Delete acknowledges a delivery, removing the message permanently.
func (s *RedisService) Delete(ctx context.Context, queue, messageID, receipt string) error {
	k := keysFor(queue)
	res, err := ackScript.Run(ctx, s.rdb,
		[]string{k.receipts, k.inflight, k.bodies, k.attempts, k.expiry},
		messageID, receipt,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to delete message %s from %s: %w", messageID, queue, err)
	}
	switch res {
	case -1:
		return ErrMessageNotFound
	case 0:
		return ErrReceiptMismatch
	}
	return nil
}

// ExtendVisibility pushes the visibility deadline of an in-flight delivery
// forward by timeout from now.
func (s *RedisService) ExtendVisibility(ctx context.Context, queue, messageID, receipt string, timeout time.Duration) error {
	k := keysFor(queue)
	deadline := time.Now().Add(timeout).UnixMilli()
	res, err := extendScript.Run(ctx, s.rdb,
		[]string{k.receipts, k.inflight},
		messageID, receipt, deadline,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to extend visibility for %s on %s: %w", messageID, queue, err)
	}
	switch res {
	case -1:
		return ErrMessageNotFound
	case 0:
		return ErrReceiptMismatch
	}
	return nil
}

// Length returns the approximate number of messages in the queue, counting
// ready, delayed and in-flight messages.
func (s *RedisService) Length(ctx context.Context, queue string) (int64, error) {
	k := keysFor(queue)

	pipe := s.rdb.Pipeline()
	ready := pipe.LLen(ctx, k.ready)
	delayed := pipe.ZCard(ctx, k.delayed)
	inflight := pipe.ZCard(ctx, k.inflight)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, fmt.Errorf("failed to measure queue %s: %w", queue, err)
	}

	return ready.Val() + delayed.Val() + inflight.Val(), nil
}
