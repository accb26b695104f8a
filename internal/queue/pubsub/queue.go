// Package pubsub implements the job queue on Google Cloud Pub/Sub. The
// broker owns redelivery and visibility timeouts; a job abandoned by a dying
// process is re-delivered according to the subscription's ack deadline.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

// Config identifies the topic and subscription backing the queue.
type Config struct {
	ProjectID      string
	TopicID        string
	SubscriptionID string
}

// Queue implements scrape.Queue on a Pub/Sub topic/subscription pair.
// Priority travels as a message attribute only; Pub/Sub delivers in
// arrival order and does not reorder by it.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	items  chan scrape.QueueItem
	logger *zap.Logger
}

// New creates the Pub/Sub client and verifies the topic exists. It
// authenticates with Application Default Credentials.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" {
		return nil, fmt.Errorf("pubsub project id and topic id are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check pubsub topic %q: %w", cfg.TopicID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after missing topic", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
	}

	q := &Queue{
		client: client,
		topic:  topic,
		items:  make(chan scrape.QueueItem),
		logger: logger,
	}
	if cfg.SubscriptionID != "" {
		q.sub = client.Subscription(cfg.SubscriptionID)
	}
	return q, nil
}

// Enqueue publishes the queue item and waits for the server ack.
func (q *Queue) Enqueue(ctx context.Context, item scrape.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"job_type": item.Type,
			"priority": strconv.Itoa(item.Params.Priority),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish queue item: %w", err)
	}
	return nil
}

// Start begins receiving from the subscription and feeding Dequeue. It
// blocks until the context finishes; run it in its own goroutine.
func (q *Queue) Start(ctx context.Context) error {
	if q.sub == nil {
		return fmt.Errorf("pubsub subscription id is required to consume")
	}
	err := q.sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
		var item scrape.QueueItem
		if err := json.Unmarshal(msg.Data, &item); err != nil {
			q.logger.Error("drop malformed queue message", zap.Error(err))
			msg.Ack()
			return
		}
		// The ack travels with the item: a job is acked only once a worker
		// reports its terminal state, so an in-flight job lost to a crash
		// is redelivered under the subscription's ack deadline.
		item.Done = func(ok bool) {
			if ok {
				msg.Ack()
				return
			}
			msg.Nack()
		}
		select {
		case q.items <- item:
		case <-msgCtx.Done():
			// Not handed to a worker: leave unacked for redelivery.
			msg.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("pubsub receive: %w", err)
	}
	return nil
}

// Dequeue pops the next received job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (scrape.QueueItem, error) {
	select {
	case <-ctx.Done():
		return scrape.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item := <-q.items:
		return item, nil
	}
}

// Close stops the publisher and closes the client connection.
func (q *Queue) Close() error {
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
