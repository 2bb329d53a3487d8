package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"filescout/internal/observability"
)

// SQSEmitter publishes notifications to SQS queues named by each target's
// destination.
type SQSEmitter struct {
	client  *sqs.Client
	logger  observability.Logger
	metrics observability.Metrics

	// Cache queue URLs to avoid repeated lookups. The worker pool publishes
	// through one shared emitter, so the cache needs the lock.
	mu        sync.Mutex
	queueURLs map[string]string
}

func NewSQSEmitter(ctx context.Context, region string, logger observability.Logger, metrics observability.Metrics) (*SQSEmitter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
	)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("SQS emitter initialized", "region", region)

	return &SQSEmitter{
		client:    sqs.NewFromConfig(awsCfg),
		logger:    logger,
		metrics:   metrics,
		queueURLs: make(map[string]string),
	}, nil
}

func (e *SQSEmitter) getQueueURL(ctx context.Context, queueName string) (string, error) {
	e.mu.Lock()
	url, ok := e.queueURLs[queueName]
	e.mu.Unlock()
	if ok {
		return url, nil
	}

	// Lookup happens outside the lock; racing publishers for the same queue
	// may fetch twice, which is harmless.
	result, err := e.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(queueName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get queue URL for %s: %w", queueName, err)
	}

	e.mu.Lock()
	e.queueURLs[queueName] = *result.QueueUrl
	e.mu.Unlock()
	return *result.QueueUrl, nil
}

func (e *SQSEmitter) Publish(ctx context.Context, n *Notification) error {
	startTime := time.Now()
	defer func() {
		e.metrics.RecordHistogram("notify.publish.duration",
			time.Since(startTime).Seconds(),
			map[string]string{"destination": n.Destination})
	}()

	queueURL, err := e.getQueueURL(ctx, n.Destination)
	if err != nil {
		e.logger.Error("failed to get queue URL", "error", err, "destination", n.Destination)
		e.metrics.IncrementCounter("notify.publish.error",
			map[string]string{"destination": n.Destination, "error": "queue_url_failed"})
		return err
	}

	body, err := json.Marshal(n)
	if err != nil {
		e.metrics.IncrementCounter("notify.publish.error",
			map[string]string{"destination": n.Destination, "error": "marshal_failed"})
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = e.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		e.logger.Error("failed to send notification", "error", err, "destination", n.Destination)
		e.metrics.IncrementCounter("notify.publish.error",
			map[string]string{"destination": n.Destination, "error": "send_failed"})
		return fmt.Errorf("failed to send notification: %w", err)
	}

	e.logger.Info("notification sent",
		"destination", n.Destination,
		"tenant_id", n.TenantID,
		"file_reference", n.FileReference)
	e.metrics.IncrementCounter("notify.publish.success",
		map[string]string{"destination": n.Destination})

	return nil
}

func (e *SQSEmitter) Close() error {
	return nil
}

var _ Emitter = (*SQSEmitter)(nil)
