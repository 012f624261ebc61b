// Package worker runs queue consumers: a dispatcher polls a queue and hands
// messages to a pool of goroutines, which ack or release them based on how
// the handler's error classifies.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/applyflow/applyflow-be/internal/domain"
	"github.com/applyflow/applyflow-be/internal/metrics"
	"github.com/applyflow/applyflow-be/internal/queue"
)

// Handler processes one message. Returning nil completes the message.
// A domain.RetryableError is retried in-process and, if still failing, left
// for queue redelivery. Errors matching a fatal sentinel complete the
// message without retry since reprocessing can never succeed.
type Handler interface {
	Name() string
	Handle(ctx context.Context, msg queue.Message) error
}

// Config holds runner tuning for one queue consumer.
type Config struct {
	Queue             string
	Concurrency       int
	BatchSize         int
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	JobTimeout        time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
}

// Runner consumes one queue with a fixed-size worker pool.
type Runner struct {
	cfg      Config
	queues   queue.Service
	handler  Handler
	logger   *slog.Logger
	workerID string
	msgChan  chan queue.Message
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRunner creates a Runner for the given queue and handler.
func NewRunner(cfg Config, queues queue.Service, handler Handler, logger *slog.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 2 * time.Minute
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = cfg.VisibilityTimeout
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}

	workerID := fmt.Sprintf("%s-%s", handler.Name(), uuid.New().String()[:8])
	return &Runner{
		cfg:      cfg,
		queues:   queues,
		handler:  handler,
		logger:   logger.With(slog.String("worker_id", workerID)),
		workerID: workerID,
		msgChan:  make(chan queue.Message),
		stopChan: make(chan struct{}),
	}
}

// Start spawns the worker pool and runs the dispatcher until the context is
// canceled or Stop is called. It blocks.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("Worker runner starting",
		slog.String("queue", r.cfg.Queue),
		slog.Int("concurrency", r.cfg.Concurrency),
		slog.Duration("visibility_timeout", r.cfg.VisibilityTimeout),
	)

	for i := 0; i < r.cfg.Concurrency; i++ {
		r.wg.Add(1)
		go r.workerLoop(ctx, i)
	}

	r.dispatch(ctx)

	close(r.msgChan)
	r.wg.Wait()
	r.logger.Info("Worker runner stopped", slog.String("queue", r.cfg.Queue))
}

// Stop signals the dispatcher to exit. Start returns once in-flight messages
// finish.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
}

// dispatch polls the queue and feeds the worker pool. An empty receive backs
// off for the poll interval; receive errors do too, so a Redis blip does not
// spin the loop.
func (r *Runner) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		default:
		}

		msgs, err := r.queues.Receive(ctx, r.cfg.Queue, queue.ReceiveOptions{
			MaxMessages:       r.cfg.BatchSize,
			VisibilityTimeout: r.cfg.VisibilityTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("Failed to receive messages",
				slog.String("queue", r.cfg.Queue),
				slog.Any("error", err),
			)
			if !r.sleep(ctx, r.cfg.PollInterval) {
				return
			}
			continue
		}

		if len(msgs) == 0 {
			if !r.sleep(ctx, r.cfg.PollInterval) {
				return
			}
			continue
		}

		for _, msg := range msgs {
			select {
			case r.msgChan <- msg:
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			}
		}
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-r.stopChan:
		return false
	}
}

func (r *Runner) workerLoop(ctx context.Context, workerNum int) {
	defer r.wg.Done()

	for msg := range r.msgChan {
		r.processMessage(ctx, workerNum, msg)
	}
}

func (r *Runner) processMessage(ctx context.Context, workerNum int, msg queue.Message) {
	logger := r.logger.With(
		slog.Int("worker_num", workerNum),
		slog.String("queue", r.cfg.Queue),
		slog.String("message_id", msg.ID),
		slog.Int("attempts", msg.Attempts),
	)

	start := time.Now()
	err := r.handleWithRetry(ctx, msg, logger)
	metrics.ProcessingDuration.WithLabelValues(r.handler.Name()).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		if delErr := r.queues.Delete(ctx, r.cfg.Queue, msg.ID, msg.Receipt); delErr != nil {
			// Already reaped or receipt rotated; the message will be
			// redelivered and the handler's idempotency absorbs it.
			logger.Warn("Failed to complete message", slog.Any("error", delErr))
		}

	case isFatal(err):
		logger.Error("Message is unprocessable, completing without retry",
			slog.Any("error", err),
		)
		if delErr := r.queues.Delete(ctx, r.cfg.Queue, msg.ID, msg.Receipt); delErr != nil {
			logger.Warn("Failed to complete unprocessable message", slog.Any("error", delErr))
		}

	default:
		// Leave the message in flight. The visibility timeout expires, the
		// queue redelivers with attempts+1, and dead-letters past the cap.
		logger.Error("Message processing failed, leaving for redelivery",
			slog.Any("error", err),
		)
	}
}

// handleWithRetry invokes the handler, retrying transient failures in-process
// with exponential backoff. The visibility timeout is extended before each
// retry so the message is not redelivered mid-attempt.
func (r *Runner) handleWithRetry(ctx context.Context, msg queue.Message, logger *slog.Logger) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = r.handleOne(ctx, msg)
		if err == nil || !domain.IsRetryable(err) || attempt >= r.cfg.MaxRetries {
			return err
		}

		delay := r.cfg.RetryBaseDelay * (1 << attempt)
		logger.Warn("Transient failure, retrying in-process",
			slog.Int("retry", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)

		if extErr := r.queues.ExtendVisibility(ctx, r.cfg.Queue, msg.ID, msg.Receipt, r.cfg.VisibilityTimeout); extErr != nil {
			logger.Warn("Failed to extend visibility, abandoning retries", slog.Any("error", extErr))
			return err
		}

		if !r.sleep(ctx, delay) {
			return err
		}
	}
}

func (r *Runner) handleOne(ctx context.Context, msg queue.Message) error {
	handleCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	defer cancel()
	return r.handler.Handle(handleCtx, msg)
}

// isFatal reports whether reprocessing can never succeed for this error.
func isFatal(err error) bool {
	return errors.Is(err, domain.ErrInvalidPayload) ||
		errors.Is(err, domain.ErrProfileNotFound)
}
