package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/config"
)

// AccountSessionRevoker ends every session of an account.
type AccountSessionRevoker interface {
	RevokeAllForAccount(ctx context.Context, accountID, revokedBy, reason string) (int, error)
}

// SessionRevocationConsumer applies auth.session.revoke_requested commands.
type SessionRevocationConsumer struct {
	revoker AccountSessionRevoker
	logger  *zap.Logger
}

// NewSessionRevocationConsumer constructs a consumer bound to revoker.
func NewSessionRevocationConsumer(revoker AccountSessionRevoker, logger *zap.Logger) *SessionRevocationConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRevocationConsumer{revoker: revoker, logger: logger}
}

// HandleMessage decodes a Kafka message prior to processing.
func (c *SessionRevocationConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	var event domain.SessionRevokeRequestedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("decode session revoke request: %w", err)
	}

	return c.HandleEvent(ctx, event)
}

// HandleEvent revokes every refresh family of the named account.
func (c *SessionRevocationConsumer) HandleEvent(ctx context.Context, event domain.SessionRevokeRequestedEvent) error {
	if strings.TrimSpace(event.AccountID) == "" {
		return fmt.Errorf("session revoke request without account id")
	}

	reason := event.Reason
	if reason == "" {
		reason = "revoke_requested"
	}
	revokedBy := event.RequestedBy
	if revokedBy == "" {
		revokedBy = "admin-portal"
	}

	families, err := c.revoker.RevokeAllForAccount(ctx, event.AccountID, revokedBy, reason)
	if err != nil {
		return fmt.Errorf("revoke account sessions: %w", err)
	}

	c.logger.Info("session revoke request applied",
		zap.String("event_id", event.EventID),
		zap.String("account_id", event.AccountID),
		zap.Int("families", families),
	)
	return nil
}

// Setup is run at the beginning of a new consumer group session.
func (c *SessionRevocationConsumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup is run at the end of a consumer group session.
func (c *SessionRevocationConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim processes messages until the claim closes. Malformed commands are logged and
// committed so they cannot block the partition; store failures leave the offset uncommitted.
func (c *SessionRevocationConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.HandleMessage(session.Context(), msg); err != nil {
				if errors.Is(err, domain.ErrServiceUnavailable) {
					c.logger.Warn("session revoke request deferred", zap.Int64("offset", msg.Offset), zap.Error(err))
					return err
				}
				c.logger.Error("session revoke request dropped",
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// ConsumerGroup runs a consumer group handler until its context is cancelled.
type ConsumerGroup struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler sarama.ConsumerGroupHandler
	logger  *zap.Logger
}

// NewConsumerGroup joins cfg.ConsumerGroup and subscribes handler to eventType.
func NewConsumerGroup(cfg config.KafkaSettings, eventType string, handler sarama.ConsumerGroupHandler, logger *zap.Logger) (*ConsumerGroup, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("kafka consumer group is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0
	saramaConfig.ClientID = "marketplace-auth"
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	return &ConsumerGroup{
		group:   group,
		topics:  []string{topicName(cfg.TopicPrefix, eventType)},
		handler: handler,
		logger:  logger,
	}, nil
}

// Run consumes until ctx is cancelled, rejoining after every rebalance.
func (g *ConsumerGroup) Run(ctx context.Context) {
	go func() {
		for err := range g.group.Errors() {
			g.logger.Warn("kafka consumer group error", zap.Error(err))
		}
	}()

	for {
		if err := g.group.Consume(ctx, g.topics, g.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			g.logger.Error("kafka consume failed", zap.Strings("topics", g.topics), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Close leaves the consumer group.
func (g *ConsumerGroup) Close() error {
	return g.group.Close()
}
