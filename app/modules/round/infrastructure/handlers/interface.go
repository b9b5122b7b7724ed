package roundhandlers

import (
	"context"

	roundevents "github.com/Black-And-White-Club/lastword/app/modules/round/domain/events"
	"github.com/Black-And-White-Club/lastword/pkg/utils/handlerwrapper"
)

// Handlers defines the interface for round event handlers.
type Handlers interface {
	// HandleTickRequested runs one lifecycle driver pass.
	HandleTickRequested(ctx context.Context, payload *roundevents.TickRequestedPayloadV1) ([]handlerwrapper.Result, error)

	// HandleAdvanceRequested applies the step a due timer asks for.
	HandleAdvanceRequested(ctx context.Context, payload *roundevents.AdvanceRequestedPayloadV1) ([]handlerwrapper.Result, error)

	// HandleForceRequested applies an administrative forced step.
	HandleForceRequested(ctx context.Context, payload *roundevents.ForceRequestedPayloadV1) ([]handlerwrapper.Result, error)
}
