package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	AccountID string            `json:"account_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// publish keys every message by account so one account's events stay ordered within a partition.
func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, accountID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := map[string]string{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	bytes, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		AccountID: accountID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}
	if accountID != "" {
		message.Key = sarama.StringEncoder(accountID)
	}

	select {
	case p.producer.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAccountRegistered publishes auth.account.registered events.
func (p *EventPublisher) PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error {
	payload := struct {
		AccountID    string    `json:"account_id"`
		TenantID     string    `json:"tenant_id"`
		Email        string    `json:"email"`
		Role         string    `json:"role"`
		RegisteredAt time.Time `json:"registered_at"`
	}{
		AccountID:    event.AccountID,
		TenantID:     event.TenantID,
		Email:        event.Email,
		Role:         event.Role.String(),
		RegisteredAt: event.RegisteredAt.UTC(),
	}
	return p.publish(ctx, event.EventID, domain.EventAccountRegistered, event.AccountID, event.RegisteredAt, payload)
}

// PublishOneTimeTokenRequested publishes email verification and password reset deliveries.
func (p *EventPublisher) PublishOneTimeTokenRequested(ctx context.Context, event domain.OneTimeTokenRequestedEvent) error {
	eventType := domain.EventEmailVerificationRequested
	if event.Purpose == domain.PurposePasswordReset {
		eventType = domain.EventPasswordResetRequested
	}
	payload := struct {
		AccountID   string    `json:"account_id"`
		Email       string    `json:"email"`
		Purpose     string    `json:"purpose"`
		Token       string    `json:"token"`
		RequestedAt time.Time `json:"requested_at"`
		ExpiresAt   time.Time `json:"expires_at"`
		IPAddress   string    `json:"ip_address,omitempty"`
	}{
		AccountID:   event.AccountID,
		Email:       event.Email,
		Purpose:     string(event.Purpose),
		Token:       event.Token,
		RequestedAt: event.RequestedAt.UTC(),
		ExpiresAt:   event.ExpiresAt.UTC(),
		IPAddress:   event.IPAddress,
	}
	return p.publish(ctx, event.EventID, eventType, event.AccountID, event.RequestedAt, payload)
}

// PublishPasswordChanged publishes auth.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		AccountID       string    `json:"account_id"`
		ChangedAt       time.Time `json:"changed_at"`
		SessionsRevoked int       `json:"sessions_revoked"`
	}{
		AccountID:       event.AccountID,
		ChangedAt:       event.ChangedAt.UTC(),
		SessionsRevoked: event.SessionsRevoked,
	}
	return p.publish(ctx, event.EventID, domain.EventPasswordChanged, event.AccountID, event.ChangedAt, payload)
}

// PublishLogin publishes auth.login.succeeded and auth.login.failed events.
func (p *EventPublisher) PublishLogin(ctx context.Context, event domain.LoginEvent) error {
	eventType := domain.EventLoginFailed
	if event.Succeeded {
		eventType = domain.EventLoginSucceeded
	}
	payload := struct {
		AccountID  string    `json:"account_id,omitempty"`
		TenantID   string    `json:"tenant_id,omitempty"`
		Reason     string    `json:"reason,omitempty"`
		IPAddress  string    `json:"ip_address,omitempty"`
		UserAgent  string    `json:"user_agent,omitempty"`
		OccurredAt time.Time `json:"occurred_at"`
	}{
		AccountID:  event.AccountID,
		TenantID:   event.TenantID,
		Reason:     event.Reason,
		IPAddress:  event.IPAddress,
		UserAgent:  event.UserAgent,
		OccurredAt: event.OccurredAt.UTC(),
	}
	return p.publish(ctx, event.EventID, eventType, event.AccountID, event.OccurredAt, payload)
}

// PublishAccountLocked publishes auth.account.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		Identity  string    `json:"identity"`
		Scope     string    `json:"scope"`
		LockUntil time.Time `json:"lock_until"`
		Lockouts  int       `json:"lockouts"`
		LockedAt  time.Time `json:"locked_at"`
	}{
		Identity:  event.Identity,
		Scope:     event.Scope,
		LockUntil: event.LockUntil.UTC(),
		Lockouts:  event.Lockouts,
		LockedAt:  event.LockedAt.UTC(),
	}
	return p.publish(ctx, event.EventID, domain.EventAccountLocked, "", event.LockedAt, payload)
}

// PublishTokenReuseDetected publishes auth.refresh.reuse_detected events.
func (p *EventPublisher) PublishTokenReuseDetected(ctx context.Context, event domain.TokenReuseDetectedEvent) error {
	payload := struct {
		AccountID  string    `json:"account_id"`
		TenantID   string    `json:"tenant_id"`
		FamilyID   string    `json:"family_id"`
		IPAddress  string    `json:"ip_address,omitempty"`
		UserAgent  string    `json:"user_agent,omitempty"`
		DetectedAt time.Time `json:"detected_at"`
	}{
		AccountID:  event.AccountID,
		TenantID:   event.TenantID,
		FamilyID:   event.FamilyID,
		IPAddress:  event.IPAddress,
		UserAgent:  event.UserAgent,
		DetectedAt: event.DetectedAt.UTC(),
	}
	return p.publish(ctx, event.EventID, domain.EventRefreshReuseDetected, event.AccountID, event.DetectedAt, payload)
}

// PublishSessionRevoked publishes auth.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		AccountID string    `json:"account_id"`
		FamilyID  string    `json:"family_id,omitempty"`
		Families  int       `json:"families"`
		RevokedBy string    `json:"revoked_by"`
		Reason    string    `json:"reason"`
		RevokedAt time.Time `json:"revoked_at"`
	}{
		AccountID: event.AccountID,
		FamilyID:  event.FamilyID,
		Families:  event.Families,
		RevokedBy: event.RevokedBy,
		Reason:    event.Reason,
		RevokedAt: event.RevokedAt.UTC(),
	}
	return p.publish(ctx, event.EventID, domain.EventSessionRevoked, event.AccountID, event.RevokedAt, payload)
}

// PublishTwoFactorChanged publishes auth.two_factor.enabled and auth.two_factor.disabled events.
func (p *EventPublisher) PublishTwoFactorChanged(ctx context.Context, event domain.TwoFactorChangedEvent) error {
	eventType := domain.EventTwoFactorDisabled
	if event.Enabled {
		eventType = domain.EventTwoFactorEnabled
	}
	payload := struct {
		AccountID string    `json:"account_id"`
		ChangedAt time.Time `json:"changed_at"`
	}{
		AccountID: event.AccountID,
		ChangedAt: event.ChangedAt.UTC(),
	}
	return p.publish(ctx, event.EventID, eventType, event.AccountID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
