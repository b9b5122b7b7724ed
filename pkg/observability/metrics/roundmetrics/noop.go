package roundmetrics

import (
	"context"
	"time"
)

type noop struct{}

// NewNoop returns metrics that record nothing.
func NewNoop() RoundMetrics { return noop{} }

func (noop) RecordOperationAttempt(context.Context, string, string)                 {}
func (noop) RecordOperationSuccess(context.Context, string, string)                 {}
func (noop) RecordOperationFailure(context.Context, string, string)                 {}
func (noop) RecordOperationDuration(context.Context, string, string, time.Duration) {}
func (noop) RecordTransition(context.Context, string, string)                       {}
func (noop) RecordTransitionConflict(context.Context, string)                       {}
func (noop) RecordSettlement(context.Context, string, int64)                        {}
func (noop) RecordTickDuration(context.Context, time.Duration)                      {}
func (noop) RecordHandlerAttempt(context.Context, string)                           {}
func (noop) RecordHandlerSuccess(context.Context, string)                           {}
func (noop) RecordHandlerFailure(context.Context, string)                           {}
func (noop) RecordHandlerDuration(context.Context, string, time.Duration)           {}
