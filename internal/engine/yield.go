package engine

import (
	"math"

	"github.com/datadealer/dd-app/internal/game"
	apperrors "github.com/datadealer/dd-app/internal/platform/errors"
	"github.com/datadealer/dd-app/internal/profiles"
	"github.com/datadealer/dd-app/internal/rules"
)

// chargeCost is the price of starting one charge cycle. Exactly one of
// the fields is non-zero.
type chargeCost struct {
	Cash int64
	AP   int
}

// chargeYield computes the outcome a charge will deliver, priced at
// charge time so collecting later cannot re-roll it.
func (e *Engine) chargeYield(s *session, node *game.Node, def *rules.EntityDef) (game.Yield, chargeCost, error) {
	switch node.Kind {
	case game.KindContact, game.KindProject:
		return e.gatherYield(node, def)
	case game.KindClient:
		return clientYield(s, def), chargeCost{AP: 1}, nil
	case game.KindToken:
		return tokenYield(s, node, def), chargeCost{AP: 1}, nil
	}
	return game.Yield{}, chargeCost{}, apperrors.New(apperrors.CodeInvalidTarget, "node kind has no charge cycle")
}

// gatherYield is the contact and project outcome: a varied profile batch
// with the node's token distribution and collect risk. Instance overrides
// written by add-on modifiers take precedence over the definition.
func (e *Engine) gatherYield(node *game.Node, def *rules.EntityDef) (game.Yield, chargeCost, error) {
	amount := def.CollectAmount
	if node.Instance.CollectAmount != nil {
		amount = *node.Instance.CollectAmount
	}
	cost := def.ChargeCost
	if node.Instance.ChargeCost != nil {
		cost = *node.Instance.ChargeCost
	}
	risk := def.CollectRisk
	if node.Instance.CollectRisk != nil {
		risk = *node.Instance.CollectRisk
	}
	tokens := cloneFloatMap(def.Tokens)
	if node.Instance.Tokens != nil {
		tokens = make(map[string]float64, len(node.Instance.Tokens))
		for _, t := range node.Instance.Tokens {
			if t.Amount > 0 {
				tokens[t.Gestalt] = t.Amount
			}
		}
	}
	y := game.Yield{
		ProfileSet: &game.ProfileSet{
			Profiles: e.variated(amount),
			Tokens:   tokens,
		},
		Risk: risk,
	}
	return y, chargeCost{Cash: cost}, nil
}

// variated spreads an amount by up to five percent in either direction.
func (e *Engine) variated(amount int64) int64 {
	e.randMu.Lock()
	variation := e.rand.Float64()*10 - 5
	e.randMu.Unlock()
	return amount + int64(math.Round(float64(amount)/100*variation))
}

// clientYield prices a client's income from the token pool state: how
// well the consumed token mix is stocked, how full the pool is relative
// to the owned cities' capacity, and a karma penalty below neutral.
func clientYield(s *session, def *rules.EntityDef) game.Yield {
	amounts := s.doc.TokenAmounts()
	var mix float64
	for gestalt, weight := range def.ConsumedTokens {
		mix += amounts[gestalt] * weight / 10000
	}
	fill := cityFillFactor(s, amounts)
	supply := math.Pow(mix*fill, 0.6)
	income := float64(def.IncomeBase) + supply*float64(def.IncomeBase)*float64(def.IncomeFactor)/1000
	cash := int64(karmaPenalty(s.doc.Values.Karma) * math.Round(income))
	return game.Yield{Cash: cash}
}

// cityFillFactor sums, over the owned cities' origin tokens, the pool
// population attributed to each city normalized by that city's capacity.
func cityFillFactor(s *session, amounts map[string]float64) float64 {
	owned := make(map[string]bool)
	for _, n := range s.doc.Nodes {
		if n.Kind == game.KindCity {
			owned[n.Gestalt] = true
		}
	}
	var factor float64
	for gestalt, def := range s.rs.Entities {
		if def.Origin == "" || !owned[def.Origin] {
			continue
		}
		cityDef, err := s.rs.Entity(def.Origin)
		if err != nil || cityDef.ProfilesMax == 0 {
			continue
		}
		attributed := amounts[gestalt] / 100 * float64(s.doc.Values.Profiles)
		factor += attributed / float64(cityDef.ProfilesMax)
	}
	return factor
}

// karmaPenalty maps karma in [-100, 100] to an income multiplier in
// [0.5, 1]: neutral and positive karma pay full price.
func karmaPenalty(karma int) float64 {
	return math.Min(1, float64(karma+100)/200+0.5)
}

// tokenYield combines the container's consumed tokens into a top-up,
// discounting amounts already counted by the previous top-up of each
// source token.
func tokenYield(s *session, node *game.Node, def *rules.EntityDef) game.Yield {
	pool := float64(s.doc.Values.Profiles)
	poolMax := float64(s.doc.Values.ProfilesMax)

	var last game.TopUp
	if node.Instance.LastTopUp != nil {
		last = *node.Instance.LastTopUp
	}
	consumed := make(map[string]float64)

	sum := profiles.Accumulator{Profiles: pool, ProfilesMax: poolMax}
	for gestalt, weight := range def.ContainedTokens {
		source := s.doc.TokenNode(gestalt)
		if source == nil {
			continue
		}
		consumed[gestalt] = source.Instance.Amount
		sum = profiles.Combine(sum, profiles.Accumulator{
			Amount:       source.Instance.Amount,
			Weight:       weight,
			Profiles:     pool,
			ProfilesMax:  poolMax,
			LastAmount:   last.Amounts[gestalt],
			LastProfiles: float64(last.Profiles),
		})
	}
	current := profiles.Accumulator{Amount: node.Instance.Amount, Weight: 100, Profiles: pool, ProfilesMax: poolMax}
	merged := profiles.Combine(current, sum)

	return game.Yield{
		TokenTopUp: map[string]float64{node.Gestalt: merged.Amount - node.Instance.Amount},
		TopUp: &game.TopUp{
			Profiles: s.doc.Values.Profiles,
			Amounts:  consumed,
		},
	}
}
