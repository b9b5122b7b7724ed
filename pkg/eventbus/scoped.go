package eventbus

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
)

// PublishScoped publishes msg on {baseTopic}.{scope}, letting consumers pick
// either one scope or all of them with a wildcard:
//   - "round.changed.v1.*" receives every round
//   - "round.changed.v1.<round id>" receives a single round
func PublishScoped(bus message.Publisher, baseTopic, scope string, msg *message.Message) error {
	if scope == "" {
		return fmt.Errorf("scope cannot be empty for scoped publish on %s", baseTopic)
	}
	return bus.Publish(ScopedTopic(baseTopic, scope), msg)
}

// ScopedTopic formats a scoped topic without publishing.
func ScopedTopic(baseTopic, scope string) string {
	return fmt.Sprintf("%s.%s", baseTopic, scope)
}

// AllScopes returns the wildcard subject matching every scope of baseTopic.
func AllScopes(baseTopic string) string {
	return baseTopic + ".*"
}
