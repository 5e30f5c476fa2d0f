// Package listener waits on a queue for the completion notification of a
// vault job and hands it to a handler exactly once per call.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/vaulty/internal/domain"
	awsx "github.com/cuongbtq/vaulty/shared/aws"
)

const DefaultPollInterval = 10 * time.Second

// ErrTimeout is returned when no notification arrived within Options.Timeout
var ErrTimeout = errors.New("timed out waiting for job notification")

// Queue is the message source polled by the listener
type Queue interface {
	Receive(ctx context.Context, url string) ([]awsx.Message, error)
	Delete(ctx context.Context, url, receiptHandle string) error
}

// Handler consumes one decoded job notification
type Handler interface {
	Handle(ctx context.Context, n domain.JobNotification) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, n domain.JobNotification) error

func (f HandlerFunc) Handle(ctx context.Context, n domain.JobNotification) error {
	return f(ctx, n)
}

// Options controls polling
type Options struct {
	PollInterval time.Duration
	// Timeout bounds the whole wait. Zero waits until ctx is done.
	Timeout time.Duration

	// WaitForMatchingJobID makes the listener ignore notifications for other
	// jobs. Ignored messages stay on the queue.
	WaitForMatchingJobID bool
	JobID                string
}

// Listener polls one queue
type Listener struct {
	queue  Queue
	opts   Options
	logger *slog.Logger
}

// New creates a Listener
func New(queue Queue, opts Options, logger *slog.Logger) *Listener {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Listener{queue: queue, opts: opts, logger: logger}
}

// WaitForOne polls queueURL until a notification is dispatched to handler,
// then returns the handler's error. Messages are deleted before they are
// decoded; a message that cannot be decoded is dropped.
func (l *Listener) WaitForOne(ctx context.Context, queueURL string, handler Handler) error {
	var deadline <-chan time.Time
	if l.opts.Timeout > 0 {
		timer := time.NewTimer(l.opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	l.logger.Info("Waiting for job notification",
		slog.String("queue_url", queueURL),
		slog.String("job_id", l.opts.JobID),
		slog.Duration("timeout", l.opts.Timeout),
	)

	for {
		msgs, err := l.queue.Receive(ctx, queueURL)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			l.logger.Warn("Failed to poll queue",
				slog.String("queue_url", queueURL),
				slog.String("error", err.Error()),
			)
		default:
			for i, msg := range msgs {
				n, ok := l.accept(ctx, queueURL, msg)
				if !ok {
					continue
				}

				if rest := len(msgs) - i - 1; rest > 0 {
					l.logger.Warn("Leaving remaining messages for redelivery",
						slog.Int("count", rest),
					)
				}
				return l.dispatch(ctx, handler, n)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return ErrTimeout
		case <-time.After(l.opts.PollInterval):
		}
	}
}

// accept deletes and decodes msg. It reports false when msg must not be dispatched.
func (l *Listener) accept(ctx context.Context, queueURL string, msg awsx.Message) (domain.JobNotification, bool) {
	if l.opts.WaitForMatchingJobID {
		n, err := domain.DecodeNotification([]byte(msg.Body))
		if err == nil && n.JobID != l.opts.JobID {
			l.logger.Debug("Ignoring notification of another job",
				slog.String("message_id", msg.ID),
				slog.String("job_id", n.JobID),
			)
			return n, false
		}
		l.delete(ctx, queueURL, msg)
		if err != nil {
			l.dropped(msg, err)
			return n, false
		}
		return n, true
	}

	l.delete(ctx, queueURL, msg)
	n, err := domain.DecodeNotification([]byte(msg.Body))
	if err != nil {
		l.dropped(msg, err)
		return n, false
	}
	return n, true
}

func (l *Listener) delete(ctx context.Context, queueURL string, msg awsx.Message) {
	if err := l.queue.Delete(ctx, queueURL, msg.ReceiptHandle); err != nil {
		l.logger.Warn("Failed to delete message",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (l *Listener) dropped(msg awsx.Message, err error) {
	l.logger.Error("Dropping undecodable message",
		slog.String("message_id", msg.ID),
		slog.String("error", err.Error()),
	)
}

func (l *Listener) dispatch(ctx context.Context, handler Handler, n domain.JobNotification) error {
	l.logger.Info("Job notification received",
		slog.String("job_id", n.JobID),
		slog.String("action", n.Action),
		slog.String("status", n.StatusCode),
	)

	if err := handler.Handle(ctx, n); err != nil {
		return fmt.Errorf("handle notification for job %s: %w", n.JobID, err)
	}
	return nil
}
