// Package sqs carries push jobs between the gateway and the push worker.
package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/push"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
}

// API is the subset of the SQS client used here.
type API interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Message is the payload sent to SQS.
type Message struct {
	Job        push.Job `json:"job"`
	EnqueuedAt int64    `json:"enqueued_at"`
}

// ErrMalformedMessage marks a received body that is not a Message.
var ErrMalformedMessage = errors.New("malformed push job message")

// NewClient loads the default AWS credential chain for cfg.Region.
func NewClient(ctx context.Context, cfg Config) (*sqs.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}

// Producer publishes push jobs. It satisfies the orchestrator's push queue.
type Producer struct {
	client   API
	queueURL string
	logger   *zap.Logger
}

// NewProducer creates a new SQS producer.
func NewProducer(client API, queueURL string, logger *zap.Logger) *Producer {
	logger.Info("sqs producer initialized",
		zap.String("queue_url", queueURL),
	)

	return &Producer{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Enqueue publishes job. Jobs without recipients are dropped here.
func (p *Producer) Enqueue(ctx context.Context, job push.Job) error {
	if len(job.RecipientIDs) == 0 {
		return nil
	}

	body, err := json.Marshal(Message{Job: job, EnqueuedAt: time.Now().UnixNano()})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		p.logger.Error("failed to send message to sqs",
			zap.Error(err),
			zap.Int("recipient_count", len(job.RecipientIDs)),
		)
		return fmt.Errorf("sqs send failed: %w", err)
	}

	p.logger.Debug("push job enqueued",
		zap.String("message_id", aws.ToString(result.MessageId)),
		zap.Int("recipient_count", len(job.RecipientIDs)),
	)
	return nil
}

// Envelope is one received message. Err is ErrMalformedMessage (wrapped) when
// the body could not be decoded; the receipt handle is still valid.
type Envelope struct {
	Message       *Message
	ReceiptHandle string
	Err           error
}

// Consumer reads push jobs from SQS.
type Consumer struct {
	client      API
	queueURL    string
	maxMessages int32
	waitSeconds int32
	logger      *zap.Logger
}

// NewConsumer creates a consumer that long-polls for up to ten messages.
func NewConsumer(client API, queueURL string, logger *zap.Logger) *Consumer {
	logger.Info("sqs consumer initialized",
		zap.String("queue_url", queueURL),
	)

	return &Consumer{
		client:      client,
		queueURL:    queueURL,
		maxMessages: 10,
		waitSeconds: 20,
		logger:      logger,
	}
}

// Receive long-polls once. An empty slice means the poll timed out.
func (c *Consumer) Receive(ctx context.Context) ([]Envelope, error) {
	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: c.maxMessages,
		WaitTimeSeconds:     c.waitSeconds,
		VisibilityTimeout:   60,
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive failed: %w", err)
	}

	envelopes := make([]Envelope, 0, len(result.Messages))
	for _, m := range result.Messages {
		env := Envelope{ReceiptHandle: aws.ToString(m.ReceiptHandle)}

		var msg Message
		if err := json.Unmarshal([]byte(aws.ToString(m.Body)), &msg); err != nil {
			env.Err = fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		} else {
			env.Message = &msg
		}
		envelopes = append(envelopes, env)
	}

	return envelopes, nil
}

// Delete removes a message after it has been handled.
func (c *Consumer) Delete(ctx context.Context, receiptHandle string) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete failed: %w", err)
	}

	return nil
}
