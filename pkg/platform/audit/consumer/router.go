package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"audittrail/internal/platform/kafka/consumer"
)

// TopicHandler handles the messages of one topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router picks the handler for a message by topic. Messages on topics nobody
// registered go to the fallback, or are logged and committed.
type Router struct {
	handlers map[string]TopicHandler
	fallback TopicHandler
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger, fallback TopicHandler) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers: make(map[string]TopicHandler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register binds handler to topic. A topic can be bound once.
func (r *Router) Register(topic string, handler TopicHandler) error {
	if topic == "" {
		return errors.New("register handler: empty topic")
	}
	if handler == nil {
		return fmt.Errorf("register handler for %s: nil handler", topic)
	}
	if _, dup := r.handlers[topic]; dup {
		return fmt.Errorf("register handler for %s: topic already bound", topic)
	}
	r.handlers[topic] = handler
	return nil
}

// Topics lists the registered topics in order, for the consumer subscription.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	if handler, ok := r.handlers[msg.Topic]; ok {
		return handler.Handle(ctx, msg)
	}
	if r.fallback != nil {
		return r.fallback.Handle(ctx, msg)
	}
	r.logger.WarnContext(ctx, "no handler for topic, skipping message",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)
	return nil
}
