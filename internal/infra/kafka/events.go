package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
	"github.com/ArsPalazzz/memora-api-sub000/internal/core/port"
	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types, published under the configured topic prefix.
const (
	EventGameSessionFinished = "game_session.finished"
	EventReviewBatchNotified = "review_batch.notified"
	EventFcmTokenDeactivated = "fcm_token.deactivated"
)

// EventPublisher implements port.EventPublisher on Kafka.
type EventPublisher struct {
	producer *Producer
	appCfg   config.AppSettings
	now      func() time.Time
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, now: time.Now}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserSub   string            `json:"user_sub"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userSub string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = p.now()
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

	body, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		UserSub:   userSub,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(userSub),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
			{Key: []byte("event_id"), Value: []byte(eventID)},
		},
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishGameSessionFinished publishes game_session.finished events.
func (p *EventPublisher) PublishGameSessionFinished(ctx context.Context, event domain.GameSessionFinishedEvent) error {
	payload := struct {
		SessionSub string    `json:"session_sub"`
		Kind       string    `json:"kind"`
		Reason     string    `json:"reason"`
		Total      int       `json:"total"`
		Answered   int       `json:"answered"`
		Correct    int       `json:"correct"`
		FinishedAt time.Time `json:"finished_at"`
	}{
		SessionSub: event.SessionSub,
		Kind:       string(event.Kind),
		Reason:     event.Reason,
		Total:      event.Total,
		Answered:   event.Answered,
		Correct:    event.Correct,
		FinishedAt: event.FinishedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventGameSessionFinished, event.UserSub, event.FinishedAt, payload)
}

// PublishReviewBatchNotified publishes review_batch.notified events.
func (p *EventPublisher) PublishReviewBatchNotified(ctx context.Context, event domain.ReviewBatchNotifiedEvent) error {
	payload := struct {
		BatchSub   string    `json:"batch_sub"`
		DueCount   int       `json:"due_count"`
		CardCount  int       `json:"card_count"`
		Delivered  int       `json:"delivered"`
		Failed     int       `json:"failed"`
		NotifiedAt time.Time `json:"notified_at"`
	}{
		BatchSub:   event.BatchSub,
		DueCount:   event.DueCount,
		CardCount:  event.CardCount,
		Delivered:  event.Delivered,
		Failed:     event.Failed,
		NotifiedAt: event.NotifiedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventReviewBatchNotified, event.UserSub, event.NotifiedAt, payload)
}

// PublishFcmTokenDeactivated publishes fcm_token.deactivated events. Only the token suffix leaves the service.
func (p *EventPublisher) PublishFcmTokenDeactivated(ctx context.Context, event domain.FcmTokenDeactivatedEvent) error {
	payload := struct {
		TokenSuffix   string    `json:"token_suffix"`
		Reason        string    `json:"reason"`
		DeactivatedAt time.Time `json:"deactivated_at"`
	}{
		TokenSuffix:   event.TokenSuffix,
		Reason:        event.Reason,
		DeactivatedAt: event.DeactivatedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventFcmTokenDeactivated, event.UserSub, event.DeactivatedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
