package notify

import (
	"context"
	"fmt"

	"filescout/internal/config"
	"filescout/internal/observability"
)

// NewEmitter selects the notification transport from configuration.
func NewEmitter(ctx context.Context, cfg config.NotifyConfig, logger observability.Logger, metrics observability.Metrics) (Emitter, error) {
	switch cfg.Backend {
	case "rabbitmq":
		logger.Info("creating RabbitMQ notification emitter")
		return NewRabbitMQEmitter(cfg.RabbitMQURL, observability.Component(logger, "notify.rabbitmq"), metrics)

	case "sqs":
		logger.Info("creating SQS notification emitter", "region", cfg.Region)
		return NewSQSEmitter(ctx, cfg.Region, observability.Component(logger, "notify.sqs"), metrics)

	default:
		return nil, fmt.Errorf("unsupported notify backend: %s", cfg.Backend)
	}
}
