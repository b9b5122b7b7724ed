// Package attr provides slog attribute constructors used across the engine so
// log keys stay consistent between modules.
package attr

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type correlationKey struct{}

// CorrelationIDKey is the message metadata key carrying the correlation id.
const CorrelationIDKey = "correlation_id"

func String(key, value string) slog.Attr { return slog.String(key, value) }

func Int(key string, value int) slog.Attr { return slog.Int(key, value) }

func Int64(key string, value int64) slog.Attr { return slog.Int64(key, value) }

func Bool(key string, value bool) slog.Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) slog.Attr { return slog.Duration(key, value) }

func Time(key string, value time.Time) slog.Attr { return slog.Time(key, value) }

func Any(key string, value any) slog.Attr { return slog.Any(key, value) }

// Error renders err under the "error" key; a nil error renders as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// RoundID renders a round id.
func RoundID(key string, id uuid.UUID) slog.Attr {
	return slog.String(key, id.String())
}

// UserID renders a user id.
func UserID(key string, id string) slog.Attr {
	return slog.String(key, id)
}

// WithCorrelationID stores a correlation id on the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the correlation id stored on ctx, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// ExtractCorrelationID returns the context's correlation id as a log attribute.
func ExtractCorrelationID(ctx context.Context) slog.Attr {
	return slog.String(CorrelationIDKey, CorrelationIDFromContext(ctx))
}
