package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/erp/ledgercore/internal/infrastructure/config"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// NewPubSubClient connects to Pub/Sub. An Endpoint selects an emulator and
// skips authentication; otherwise a credentials file or Application Default
// Credentials are used.
func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*pubsub.Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("pubsub project id is not set")
	}

	var opts []option.ClientOption
	switch {
	case cfg.Endpoint != "":
		opts = append(opts,
			option.WithEndpoint(cfg.Endpoint),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return client, nil
}

// EnsureTopic returns the topic, creating it when missing
func EnsureTopic(ctx context.Context, client *pubsub.Client, topicID string) (*pubsub.Topic, error) {
	if topicID == "" {
		return nil, errors.New("topic is required")
	}
	t := client.Topic(topicID)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %q: %w", topicID, err)
	}
	if ok {
		return t, nil
	}
	t, err = client.CreateTopic(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topicID, err)
	}
	return t, nil
}

// EnsureSubscription returns the subscription, creating an ordered one when missing
func EnsureSubscription(ctx context.Context, client *pubsub.Client, name string, topic *pubsub.Topic, ordering bool) (*pubsub.Subscription, error) {
	if name == "" {
		return nil, errors.New("subscription name is required")
	}
	sub := client.Subscription(name)
	ok, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription %q: %w", name, err)
	}
	if ok {
		return sub, nil
	}
	sub, err = client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
		Topic:                 topic,
		AckDeadline:           30 * time.Second,
		EnableMessageOrdering: ordering,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription %q: %w", name, err)
	}
	return sub, nil
}

// PubSubBus publishes outbox messages to a Pub/Sub topic. With ordering on,
// messages sharing a partition key are delivered in publish order.
type PubSubBus struct {
	topic    *pubsub.Topic
	ordering bool
	logger   *zap.Logger
}

// NewPubSubBus wraps topic
func NewPubSubBus(topic *pubsub.Topic, ordering bool, logger *zap.Logger) *PubSubBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	topic.EnableMessageOrdering = ordering
	return &PubSubBus{topic: topic, ordering: ordering, logger: logger}
}

// Publish sends msg and waits for the server id
func (b *PubSubBus) Publish(ctx context.Context, msg shared.BusMessage) error {
	m := &pubsub.Message{
		Data:       msg.Payload,
		Attributes: msg.Attributes,
	}
	if b.ordering {
		m.OrderingKey = msg.PartitionKey
	}

	id, err := b.topic.Publish(ctx, m).Get(ctx)
	if err != nil {
		if b.ordering && msg.PartitionKey != "" {
			// a failed ordered publish pauses the key until resumed
			b.topic.ResumePublish(msg.PartitionKey)
		}
		return fmt.Errorf("publish %s: %w", msg.EventID, err)
	}

	b.logger.Debug("message published",
		zap.String("event_id", msg.EventID.String()),
		zap.String("message_id", id),
		zap.String("ordering_key", m.OrderingKey),
	)
	return nil
}

// Stop flushes pending publishes
func (b *PubSubBus) Stop() {
	b.topic.Stop()
}

var _ shared.MessageBus = (*PubSubBus)(nil)

// Subscriber receives envelopes from a subscription and routes them
type Subscriber struct {
	sub    *pubsub.Subscription
	router *HandlerRegistry
	logger *zap.Logger
}

// NewSubscriber creates a subscriber. maxOutstanding bounds in-flight messages.
func NewSubscriber(sub *pubsub.Subscription, router *HandlerRegistry, maxOutstanding int, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	}
	return &Subscriber{sub: sub, router: router, logger: logger}
}

// Run blocks receiving messages until ctx is cancelled.
// Handler errors nack for redelivery; undecodable messages are acked and logged.
func (s *Subscriber) Run(ctx context.Context) error {
	s.logger.Info("subscriber started", zap.String("subscription", s.sub.ID()))
	err := s.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		env, err := DecodeEnvelope(m.Data)
		if err != nil {
			s.logger.Error("dropping undecodable message",
				zap.String("message_id", m.ID),
				zap.Any("attributes", m.Attributes),
				zap.Error(err),
			)
			m.Ack()
			return
		}
		if err := s.router.Route(ctx, env); err != nil {
			m.Nack()
			return
		}
		m.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive %s: %w", s.sub.ID(), err)
	}
	return nil
}
