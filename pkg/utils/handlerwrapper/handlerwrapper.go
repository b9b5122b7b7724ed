// Package handlerwrapper adapts typed event handlers to Watermill handler
// functions: it decodes the payload, runs the handler inside a span and turns
// the handler's results into outgoing messages routed by metadata topic.
package handlerwrapper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TopicMetadataKey is the metadata key the event bus reads the destination topic from.
const TopicMetadataKey = "topic"

// Result is one outgoing message produced by a handler.
type Result struct {
	Topic    string
	Payload  any
	Metadata map[string]string
}

// Metrics is the optional handler instrumentation.
type Metrics interface {
	RecordHandlerAttempt(ctx context.Context, handlerName string)
	RecordHandlerSuccess(ctx context.Context, handlerName string)
	RecordHandlerFailure(ctx context.Context, handlerName string)
	RecordHandlerDuration(ctx context.Context, handlerName string, duration time.Duration)
}

// WrapTransformingTyped decodes the incoming JSON payload into T, invokes the
// handler and publishes every returned Result.
func WrapTransformingTyped[T any](
	handlerName string,
	logger *slog.Logger,
	tracer trace.Tracer,
	metrics Metrics,
	handler func(context.Context, *T) ([]Result, error),
) message.HandlerFunc {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(handlerName)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(msg *message.Message) ([]*message.Message, error) {
		ctx := msg.Context()
		if cid := msg.Metadata.Get(attr.CorrelationIDKey); cid != "" {
			ctx = attr.WithCorrelationID(ctx, cid)
		}
		ctx, span := tracer.Start(ctx, handlerName, trace.WithAttributes(
			attribute.String("message.uuid", msg.UUID),
			attribute.String("handler", handlerName),
		))
		defer span.End()

		start := time.Now()
		if metrics != nil {
			metrics.RecordHandlerAttempt(ctx, handlerName)
			defer func() { metrics.RecordHandlerDuration(ctx, handlerName, time.Since(start)) }()
		}

		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			logger.ErrorContext(ctx, "Failed to decode message payload",
				attr.ExtractCorrelationID(ctx),
				attr.String("handler", handlerName),
				attr.String("message_id", msg.UUID),
				attr.Error(err),
			)
			if metrics != nil {
				metrics.RecordHandlerFailure(ctx, handlerName)
			}
			// Poison payloads are acked; redelivery would never succeed.
			return nil, nil
		}

		results, err := handler(ctx, payload)
		if err != nil {
			span.RecordError(err)
			if metrics != nil {
				metrics.RecordHandlerFailure(ctx, handlerName)
			}
			logger.ErrorContext(ctx, "Handler returned error",
				attr.ExtractCorrelationID(ctx),
				attr.String("handler", handlerName),
				attr.Error(err),
			)
			return nil, err
		}

		out := make([]*message.Message, 0, len(results))
		for _, r := range results {
			m, err := NewMessage(ctx, r)
			if err != nil {
				if metrics != nil {
					metrics.RecordHandlerFailure(ctx, handlerName)
				}
				return nil, fmt.Errorf("%s: %w", handlerName, err)
			}
			out = append(out, m)
		}

		if metrics != nil {
			metrics.RecordHandlerSuccess(ctx, handlerName)
		}
		return out, nil
	}
}

// NewMessage builds a Watermill message from a Result, carrying the
// correlation id and destination topic as metadata.
func NewMessage(ctx context.Context, r Result) (*message.Message, error) {
	if r.Topic == "" {
		return nil, fmt.Errorf("result has no topic")
	}
	body, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for %s: %w", r.Topic, err)
	}

	m := message.NewMessage(watermill.NewUUID(), body)
	m.SetContext(ctx)
	for k, v := range r.Metadata {
		m.Metadata.Set(k, v)
	}
	m.Metadata.Set(TopicMetadataKey, r.Topic)
	if cid := attr.CorrelationIDFromContext(ctx); cid != "" {
		m.Metadata.Set(attr.CorrelationIDKey, cid)
	}
	return m, nil
}
