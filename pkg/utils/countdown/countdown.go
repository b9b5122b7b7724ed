package countdown

import (
	"math"
	"time"
)

// SecondsBetween returns the whole seconds from now until target, rounded up
// so a countdown only reaches zero once the instant has passed. Never negative.
func SecondsBetween(now, target time.Time) int {
	d := target.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
