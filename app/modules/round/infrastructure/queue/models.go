package roundqueue

import "time"

// TransitionKind is the River job kind for round timer wake-ups.
const TransitionKind = "round_transition"

// TransitionJob wakes the engine when a round's next timer is due.
// Status and DueAt are part of the unique key, so every distinct timer gets
// its own job while repeated scheduling of the same timer is skipped.
type TransitionJob struct {
	RoundID string    `json:"round_id"`
	Status  string    `json:"status"`
	DueAt   time.Time `json:"due_at"`
}

// Kind returns the job type identifier for River
func (TransitionJob) Kind() string { return TransitionKind }

// JobInfo represents information about a scheduled job (for debugging/monitoring)
type JobInfo struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	RoundID     string `json:"round_id"`
	Status      string `json:"status"`
	State       string `json:"state"`
	ScheduledAt string `json:"scheduled_at"`
	CreatedAt   string `json:"created_at"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
}
