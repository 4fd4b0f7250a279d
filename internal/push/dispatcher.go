package push

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/metrics"
)

// Registry is the slice of the device token registry the dispatcher needs.
type Registry interface {
	ActiveTokensFor(ctx context.Context, userIDs []string) ([]string, error)
	DeactivateMany(ctx context.Context, tokens []string) error
}

// Gateway sends one batch and returns one ticket per message.
type Gateway interface {
	Send(ctx context.Context, messages []Message) ([]Ticket, error)
}

// Job is one push fan-out: the same title, body and data to every recipient.
type Job struct {
	RecipientIDs []string       `json:"recipient_ids"`
	Title        string         `json:"title"`
	Body         string         `json:"body"`
	Data         map[string]any `json:"data,omitempty"`
}

// Result summarises one Dispatch.
type Result struct {
	Tokens       int
	Invalid      int
	Attempted    int
	Cleaned      int
	FailedChunks int
}

// DispatcherConfig tunes message shape and batching.
//
// RequestsPerSecond and RequestTimeout mirror the gateway's limits. When set,
// the send phase gets at least n/RequestsPerSecond + RequestTimeout for n
// chunks even if the caller's deadline is shorter, so a large fan-out is not
// cut off by a fixed task timeout.
type DispatcherConfig struct {
	ChunkSize         int
	ChannelID         string
	RequestsPerSecond float64
	RequestTimeout    time.Duration
}

// Dispatcher resolves tokens, sends in chunks, and deactivates dead tokens.
// Nothing it does returns an error to the caller.
type Dispatcher struct {
	registry Registry
	gateway  Gateway
	config   DispatcherConfig
	logger   *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry Registry, gateway Gateway, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChannelID == "" {
		cfg.ChannelID = "default"
	}
	return &Dispatcher{
		registry: registry,
		gateway:  gateway,
		config:   cfg,
		logger:   logger,
	}
}

// Dispatch pushes job to every active device of its recipients.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) Result {
	var res Result
	if len(job.RecipientIDs) == 0 {
		return res
	}

	start := time.Now()
	defer func() { metrics.RecordPushDispatch(time.Since(start)) }()

	tokens, err := d.registry.ActiveTokensFor(ctx, job.RecipientIDs)
	if err != nil {
		d.logger.Error("failed to load device tokens",
			zap.Int("recipient_count", len(job.RecipientIDs)),
			zap.Error(err),
		)
		return res
	}
	res.Tokens = len(tokens)

	valid := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if IsExpoPushToken(t) {
			valid = append(valid, t)
		}
	}
	res.Invalid = len(tokens) - len(valid)
	metrics.RecordPushTokens(metrics.TokensInvalid, res.Invalid)

	if len(valid) == 0 {
		return res
	}

	messages := make([]Message, len(valid))
	for i, t := range valid {
		messages[i] = Message{
			To:        t,
			Title:     job.Title,
			Body:      job.Body,
			Sound:     "default",
			Priority:  "high",
			ChannelID: d.config.ChannelID,
			Data:      job.Data,
		}
	}

	chunks := Chunk(messages, d.config.ChunkSize)
	sendCtx, cancel := d.withSendBudget(ctx, len(chunks))
	defer cancel()

	var dead []string
	for i, chunk := range chunks {
		res.Attempted += len(chunk)

		tickets, err := d.gateway.Send(sendCtx, chunk)
		if err != nil {
			res.FailedChunks++
			metrics.RecordPushChunkFailure()
			d.logger.Error("push chunk failed",
				zap.Int("chunk_index", i),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			continue
		}

		// tickets pair with this chunk's messages only
		for j, ticket := range tickets {
			if j >= len(chunk) {
				break
			}
			if ticket.DeviceNotRegistered() {
				dead = append(dead, chunk[j].To)
			}
		}
	}
	metrics.RecordPushTokens(metrics.TokensAttempted, res.Attempted)

	if len(dead) > 0 {
		if err := d.registry.DeactivateMany(sendCtx, dead); err != nil {
			d.logger.Error("failed to deactivate unregistered tokens",
				zap.Int("token_count", len(dead)),
				zap.Error(err),
			)
		} else {
			res.Cleaned = len(dead)
			metrics.RecordPushTokens(metrics.TokensCleaned, res.Cleaned)
		}
	}

	d.logger.Info("push dispatched",
		zap.Int("recipient_count", len(job.RecipientIDs)),
		zap.Int("tokens_attempted", res.Attempted),
		zap.Int("tokens_invalid", res.Invalid),
		zap.Int("tokens_cleaned", res.Cleaned),
		zap.Int("failed_chunks", res.FailedChunks),
	)

	return res
}

// sendBudget is the time n chunks need at the gateway's request rate plus one
// request timeout of slack. Zero means no rate is configured.
func (d *Dispatcher) sendBudget(n int) time.Duration {
	if d.config.RequestsPerSecond <= 0 {
		return 0
	}
	spacing := time.Duration(float64(time.Second) / d.config.RequestsPerSecond)
	return time.Duration(n)*spacing + d.config.RequestTimeout
}

// withSendBudget returns the context chunks are sent on. Its deadline is the
// later of ctx's and sendBudget(n); cancelling ctx still cancels it.
func (d *Dispatcher) withSendBudget(ctx context.Context, n int) (context.Context, context.CancelFunc) {
	budget := d.sendBudget(n)
	if budget <= 0 {
		return context.WithCancel(ctx)
	}
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) >= budget {
		return context.WithCancel(ctx)
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	stop := context.AfterFunc(ctx, func() {
		if errors.Is(ctx.Err(), context.Canceled) {
			cancel()
		}
	})
	d.logger.Debug("extending deadline for push send",
		zap.Int("chunks", n),
		zap.Duration("budget", budget),
	)
	return sendCtx, func() {
		stop()
		cancel()
	}
}

// InlineQueue runs dispatch on the calling goroutine. The caller is expected
// to already be off the request path.
type InlineQueue struct {
	dispatcher *Dispatcher
}

// NewInlineQueue wraps d.
func NewInlineQueue(d *Dispatcher) *InlineQueue {
	return &InlineQueue{dispatcher: d}
}

// Enqueue dispatches job immediately. It never fails.
func (q *InlineQueue) Enqueue(ctx context.Context, job Job) error {
	q.dispatcher.Dispatch(ctx, job)
	return nil
}
