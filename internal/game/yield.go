package game

import "time"

// Yield is the outcome computed when a charge starts and applied when the
// ready result is collected. Exactly one of the payload groups is set,
// depending on the charged node's kind.
type Yield struct {
	// Cash is a client income payout.
	Cash int64 `json:"cash,omitempty"`
	// ProfileSet and Risk carry a contact or project gathering result.
	ProfileSet *ProfileSet `json:"profile_set,omitempty"`
	Risk       int         `json:"risk,omitempty"`
	// TokenTopUp and TopUp carry a token upgrade result plus the
	// provenance to store on the token node.
	TokenTopUp map[string]float64 `json:"token_top_up,omitempty"`
	TopUp      *TopUp             `json:"top_up,omitempty"`
}

// ProfileSet is a weighted population batch waiting to be merged into the
// owner's pool.
type ProfileSet struct {
	Profiles int64              `json:"profiles"`
	Tokens   map[string]float64 `json:"tokens"`
}

// ChargeJob is a running charge cycle. It is consumed exactly once by the
// deferred ready transition.
type ChargeJob struct {
	Path  string    `json:"path"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Result Yield    `json:"result"`
}

// Collectible is a finished charge waiting for its collect operation. It is
// consumed exactly once.
type Collectible struct {
	Path   string `json:"path"`
	Result Yield  `json:"result"`
}

// Delivery is a queued profile-set integration. It is consumed exactly once
// by the integrate operation.
type Delivery struct {
	// Origin names the producing path or mission for auditing.
	Origin string `json:"origin"`
	// CollectID is the caller-facing handle used to integrate the batch.
	CollectID  string      `json:"collect_id"`
	ProfileSet ProfileSet  `json:"profile_set"`
	QueuedAt   time.Time   `json:"queued_at"`
}
