package constants

// RecipeStatus is the canonical status for rows in recipes and jobs.
type RecipeStatus string

// Stable values (store these exact strings in DB).
const (
	StatusQueued    RecipeStatus = "queued"    // accepted, waiting for a worker
	StatusRunning   RecipeStatus = "running"   // claimed by a worker, stages in flight
	StatusSucceeded RecipeStatus = "succeeded" // terminal: all artifacts durable
	StatusFailed    RecipeStatus = "failed"    // terminal: non-retryable error or retry exhaustion
)

// Terminal reports whether no further transition is allowed from s.
func (s RecipeStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Rank orders statuses along the queued→running→terminal progression.
// Unknown statuses rank below everything.
func (s RecipeStatus) Rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusRunning:
		return 1
	case StatusSucceeded, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is one of the defined enum values.
func (s RecipeStatus) Valid() bool {
	return s.Rank() >= 0
}

// CanTransition reports whether moving from "from" to "next" is a legal
// forward transition. Re-asserting the current status is allowed (idempotent
// re-execution); terminal statuses accept nothing, including each other.
func CanTransition(from, next RecipeStatus) bool {
	if from.Terminal() {
		return false
	}
	return next.Valid() && next.Rank() >= from.Rank()
}
