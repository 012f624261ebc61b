package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryMessage struct {
	id       string
	payload  []byte
	readyAt  time.Time
	deadline time.Time // visibility deadline; zero when not in flight
	receipt  string
	attempts int
	expiry   time.Time // zero when no TTL
	inFlight bool
}

type memoryQueue struct {
	messages map[string]*memoryMessage
	order    []string // enqueue order of message IDs
	dead     [][]byte
}

// MemoryService is an in-process Service with the same at-least-once
// semantics as the Redis backend. Used for tests and single-node runs.
type MemoryService struct {
	mu          sync.Mutex
	queues      map[string]*memoryQueue
	maxAttempts int
	now         func() time.Time
}

// NewMemoryService creates an empty in-memory queue service.
func NewMemoryService(maxAttempts int) *MemoryService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &MemoryService{
		queues:      make(map[string]*memoryQueue),
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

func (s *MemoryService) queue(name string) *memoryQueue {
	q, ok := s.queues[name]
	if !ok {
		q = &memoryQueue{messages: make(map[string]*memoryMessage)}
		s.queues[name] = q
	}
	return q
}

// Enqueue stores the payload, deliverable after opts.Delay.
func (s *MemoryService) Enqueue(ctx context.Context, queue string, payload []byte, opts EnqueueOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	msg := &memoryMessage{
		id:      uuid.New().String(),
		payload: append([]byte(nil), payload...),
		readyAt: now.Add(opts.Delay),
	}
	if opts.TTL > 0 {
		msg.expiry = now.Add(opts.TTL)
	}

	q := s.queue(queue)
	q.messages[msg.id] = msg
	q.order = append(q.order, msg.id)
	return msg.id, nil
}

// Receive returns up to opts.MaxMessages ready messages, hiding each for
// opts.VisibilityTimeout. Expired in-flight messages become deliverable
// again, or dead-letter once their delivery budget is spent.
func (s *MemoryService) Receive(ctx context.Context, queue string, opts ReceiveOptions) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 1
	}
	now := s.now()
	q := s.queue(queue)

	// Reap visibility-expired deliveries.
	for _, id := range q.order {
		msg, ok := q.messages[id]
		if !ok || !msg.inFlight || msg.deadline.After(now) {
			continue
		}
		msg.inFlight = false
		msg.receipt = ""
		if msg.attempts >= s.maxAttempts {
			q.dead = append(q.dead, msg.payload)
			delete(q.messages, id)
		}
	}

	var out []Message
	for _, id := range q.order {
		if len(out) >= opts.MaxMessages {
			break
		}
		msg, ok := q.messages[id]
		if !ok || msg.inFlight || msg.readyAt.After(now) {
			continue
		}
		if !msg.expiry.IsZero() && now.After(msg.expiry) {
			delete(q.messages, id)
			continue
		}
		msg.inFlight = true
		msg.deadline = now.Add(opts.VisibilityTimeout)
		msg.receipt = uuid.New().String()
		msg.attempts++
		out = append(out, Message{
			ID:       msg.id,
			Payload:  append([]byte(nil), msg.payload...),
			Receipt:  msg.receipt,
			Attempts: msg.attempts,
		})
	}
	return out, nil
}

// Delete acknowledges a delivery if the receipt is still current.
func (s *MemoryService) Delete(ctx context.Context, queue, messageID, receipt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(queue)
	msg, ok := q.messages[messageID]
	if !ok {
		return ErrMessageNotFound
	}
	if !msg.inFlight || msg.receipt != receipt {
		return ErrReceiptMismatch
	}
	delete(q.messages, messageID)
	return nil
}

// ExtendVisibility pushes an in-flight delivery's deadline forward.
func (s *MemoryService) ExtendVisibility(ctx context.Context, queue, messageID, receipt string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue(queue)
	msg, ok := q.messages[messageID]
	if !ok {
		return ErrMessageNotFound
	}
	if !msg.inFlight || msg.receipt != receipt {
		return ErrReceiptMismatch
	}
	msg.deadline = s.now().Add(timeout)
	return nil
}

// Length counts all live messages in the queue.
func (s *MemoryService) Length(ctx context.Context, queue string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.queue(queue).messages)), nil
}

// DeadLetters returns the dead-lettered payloads of a queue.
func (s *MemoryService) DeadLetters(queue string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue(queue)
	return append([][]byte(nil), q.dead...)
}
