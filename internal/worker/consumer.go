// Package worker runs background work: the in-process fan-out pool and the
// SQS push job consumer.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/metrics"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/push"
	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/sqs"
)

// JobSource is where push jobs come from.
type JobSource interface {
	Receive(ctx context.Context) ([]sqs.Envelope, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Dispatcher delivers one push job.
type Dispatcher interface {
	Dispatch(ctx context.Context, job push.Job) push.Result
}

// ConsumerConfig tunes the poll loop.
type ConsumerConfig struct {
	JobTimeout   time.Duration
	ErrorBackoff time.Duration
}

// Consumer polls a JobSource and dispatches each job exactly once from the
// queue's point of view: handled messages are always deleted.
type Consumer struct {
	source     JobSource
	dispatcher Dispatcher
	config     ConsumerConfig
	logger     *zap.Logger
}

// NewConsumer creates a Consumer.
func NewConsumer(source JobSource, dispatcher Dispatcher, cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	return &Consumer{
		source:     source,
		dispatcher: dispatcher,
		config:     cfg,
		logger:     logger,
	}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("push consumer started")
	for {
		if ctx.Err() != nil {
			c.logger.Info("push consumer stopping")
			return
		}

		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error("failed to receive push jobs", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(c.config.ErrorBackoff):
			}
		}
	}
}

func (c *Consumer) poll(ctx context.Context) error {
	envelopes, err := c.source.Receive(ctx)
	if err != nil {
		return err
	}

	metrics.SetSQSMessagesInFlight(len(envelopes))
	defer metrics.SetSQSMessagesInFlight(0)

	for _, env := range envelopes {
		c.handle(ctx, env)
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, env sqs.Envelope) {
	switch {
	case errors.Is(env.Err, sqs.ErrMalformedMessage):
		c.logger.Error("discarding malformed push job", zap.Error(env.Err))
	case env.Message != nil:
		jobCtx, cancel := context.WithTimeout(ctx, c.config.JobTimeout)
		res := c.dispatcher.Dispatch(jobCtx, env.Message.Job)
		cancel()

		if env.Message.EnqueuedAt > 0 {
			c.logger.Debug("push job handled",
				zap.Duration("queue_latency", time.Since(time.Unix(0, env.Message.EnqueuedAt))),
				zap.Int("tokens_attempted", res.Attempted),
			)
		}
	}

	// Deletion uses a fresh context so shutdown does not leave handled jobs
	// to be redelivered.
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.source.Delete(delCtx, env.ReceiptHandle); err != nil {
		c.logger.Error("failed to delete push job", zap.Error(err))
	}
}
