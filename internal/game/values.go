package game

import "time"

// KarmaMin and KarmaMax bound the karma scale.
const (
	KarmaMin = -100
	KarmaMax = 100
)

// Values holds the scalar player state of one game document.
type Values struct {
	// Cash is the spendable currency balance.
	Cash int64 `json:"cash"`
	// CashSpent accumulates lifetime spending for rankings.
	CashSpent int64 `json:"cash_spent"`
	// XP is lifetime experience; it never decreases.
	XP int64 `json:"xp"`
	// Level is derived from XP via the ruleset level table.
	Level int `json:"level"`
	// Karma is clamped to [KarmaMin, KarmaMax].
	Karma int `json:"karma"`
	// Profiles is the current population size of the profile pool.
	Profiles int64 `json:"profiles"`
	// ProfilesMax is the population ceiling; Profiles never exceeds it
	// except transiently before clamping inside a merge.
	ProfilesMax int64 `json:"profiles_max"`
	// APSnapshot and APUpdated form the action-point regeneration
	// snapshot pair. The current value is always recomputed from them.
	APSnapshot int       `json:"ap_snapshot"`
	APUpdated  time.Time `json:"ap_updated"`
}

// AddKarma applies a karma delta and clamps the result to the legal range.
func (v *Values) AddKarma(delta int) {
	v.Karma = ClampKarma(v.Karma + delta)
}

// ClampKarma bounds a karma value to [KarmaMin, KarmaMax].
func ClampKarma(karma int) int {
	return min(KarmaMax, max(KarmaMin, karma))
}
