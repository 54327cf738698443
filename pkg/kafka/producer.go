package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Config holds Kafka configuration
type Config struct {
	Brokers           []string
	NotificationTopic string
	ErrorTopic        string
}

// Producer publishes notification events for the email-like delivery channel.
// The in-app channel is the persisted notification row; downstream mailers
// consume this topic.
type Producer struct {
	writer      *kafka.Writer
	errorWriter *kafka.Writer
	logger      ectologger.Logger
	topic       string
	errorTopic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.NotificationTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// Allow Kafka to auto-create the topic in dev environments when it doesn't exist yet.
		// Without this, a first publish may fail with "Unknown Topic Or Partition".
		AllowAutoTopicCreation: true,
	}

	errorWriter := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.ErrorTopic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer:      writer,
		errorWriter: errorWriter,
		logger:      logger,
		topic:       cfg.NotificationTopic,
		errorTopic:  cfg.ErrorTopic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	var firstErr error
	if err := p.writer.Close(); err != nil {
		firstErr = err
	}
	if p.errorWriter != nil {
		if err := p.errorWriter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NotificationEventMessage is one notification delivery for one recipient
type NotificationEventMessage struct {
	Type           string    `json:"type"`
	NotificationID string    `json:"notification_id"`
	ActorID        string    `json:"actor_id"`
	ActorEmail     string    `json:"actor_email,omitempty"`
	Message        string    `json:"message"`
	FlaggedCount   int       `json:"flagged_count,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`

	// Tracing
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// PublishNotification publishes one notification event to Kafka
func (p *Producer) PublishNotification(ctx context.Context, msg *NotificationEventMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishNotification")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("notification_id", msg.NotificationID),
		attribute.String("actor_id", msg.ActorID),
		attribute.String("type", msg.Type),
	)

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	// Inject trace context into the message
	msg.TraceID = tracing.GetTraceID(ctx)
	msg.SpanID = tracing.GetSpanID(ctx)

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// Key by recipient so one admin's notifications stay ordered
	key := msg.ActorID

	headers := []kafka.Header{
		{Key: "actor_id", Value: []byte(msg.ActorID)},
		{Key: "notification_id", Value: []byte(msg.NotificationID)},
		{Key: "type", Value: []byte(msg.Type)},
	}

	// W3C trace context headers for distributed tracing
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	if tracestate := tracing.GetTraceState(ctx); tracestate != "" {
		headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(tracestate)})
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to Kafka topic %s", p.topic)
		return err
	}

	span.SetStatus(codes.Ok, "message published")
	p.logger.WithContext(ctx).Debugf("Published notification to Kafka: notification=%s actor=%s type=%s trace=%s",
		msg.NotificationID, msg.ActorID, msg.Type, msg.TraceID)

	return nil
}

// DeliveryFailureMessage records a notification that could not be delivered
type DeliveryFailureMessage struct {
	NotificationID string    `json:"notification_id"`
	ActorID        string    `json:"actor_id"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
	TraceID        string    `json:"trace_id,omitempty"`
}

// PublishDeliveryFailure reports an isolated per-recipient delivery failure to
// the error topic for later inspection
func (p *Producer) PublishDeliveryFailure(ctx context.Context, msg *DeliveryFailureMessage) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.PublishDeliveryFailure")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.errorTopic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("notification_id", msg.NotificationID),
		attribute.String("actor_id", msg.ActorID),
	)

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.TraceID = tracing.GetTraceID(ctx)

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if p.errorWriter == nil {
		return fmt.Errorf("errorWriter is nil (error topic not configured)")
	}

	headers := []kafka.Header{
		{Key: "actor_id", Value: []byte(msg.ActorID)},
		{Key: "notification_id", Value: []byte(msg.NotificationID)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}

	if err := p.errorWriter.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.ActorID),
		Value:   data,
		Headers: headers,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to Kafka error topic %s", p.errorTopic)
		return err
	}

	span.SetStatus(codes.Ok, "message published")
	return nil
}

// Stats returns producer statistics
func (p *Producer) Stats() kafka.WriterStats {
	return p.writer.Stats()
}
