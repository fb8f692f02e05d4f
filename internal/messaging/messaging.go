package messaging

import (
	"context"
	"time"

	"prediction-backend/pkg/models"
)

const (
	PredictionQueue = "prediction_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

// Task is a single delivery from the queue. The consumer must settle every
// task exactly one way: Ack after a successful commit, Nack to requeue for a
// transient failure, or Reject to discard a poison message.
type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type Publisher interface {
	PublishPredictionTask(ctx context.Context, payload models.PredictionTaskPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
