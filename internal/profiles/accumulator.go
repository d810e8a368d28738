package profiles

// upgradeCategory is the single category an accumulator combination
// flows through the merge model.
const upgradeCategory = "upgrade"

// Accumulator tracks one token's 0-100 scale amount across repeated
// top-ups. LastAmount/LastProfiles record the provenance of the previous
// top-up so a repeat contribution from the same source counts only the
// part that is new.
type Accumulator struct {
	// Amount is the contributed amount on the 0-100 scale.
	Amount float64
	// Weight scales the contribution, as a percentage.
	Weight float64
	// Profiles and ProfilesMax describe the current population the
	// amount is relative to.
	Profiles    float64
	ProfilesMax float64
	// LastAmount and LastProfiles are the previous top-up's amount and
	// the population size it was relative to. Zero means no prior top-up.
	LastAmount   float64
	LastProfiles float64
}

// Usable returns the part of the amount not already covered by the
// previous top-up, rescaled for population growth since then. A zero
// previous population contributes nothing to the discount.
func (a Accumulator) Usable() float64 {
	var last float64
	if a.LastProfiles != 0 && a.Profiles != 0 {
		last = a.LastAmount * a.LastProfiles / a.Profiles
	}
	if u := a.Amount - last; u > 0 {
		return u
	}
	return 0
}

// Combine folds b into a through the population merge, each side
// contributing its usable amount scaled by its weight. The result is a
// fresh accumulator at full weight against a's population; the zero
// accumulator is the identity. The merged amount is clamped to 100.
func Combine(a, b Accumulator) Accumulator {
	pool := Population{
		Size:   a.Profiles,
		Shares: map[string]float64{upgradeCategory: a.Usable() * a.Weight / 100},
	}
	batch := Population{
		Size:   a.Profiles,
		Shares: map[string]float64{upgradeCategory: b.Usable() * b.Weight / 100},
	}
	res := Merge(pool, batch, a.ProfilesMax, false)

	var amount float64
	if a.Profiles > 0 {
		absolute := res.Shares[upgradeCategory] * res.Size / 100
		amount = 100 * absolute / a.Profiles
		if amount > 100 {
			amount = 100
		}
	}
	return Accumulator{
		Amount:      amount,
		Weight:      100,
		Profiles:    a.Profiles,
		ProfilesMax: a.ProfilesMax,
	}
}
