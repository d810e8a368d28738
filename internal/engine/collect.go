package engine

import (
	"context"
	"math"
	"time"

	"github.com/datadealer/dd-app/internal/game"
	"github.com/datadealer/dd-app/internal/missions"
	apperrors "github.com/datadealer/dd-app/internal/platform/errors"
	"github.com/datadealer/dd-app/internal/platform/id"
	"github.com/datadealer/dd-app/internal/random"
	"github.com/datadealer/dd-app/internal/rules"
	"github.com/datadealer/dd-app/internal/storage"
)

// incidentPadding keeps the no-incident branch drawable even at the
// bottom of the karma scale.
const incidentPadding = 0.05

// CollectResult reports an applied ready result.
type CollectResult struct {
	Result
	// Cash is a client payout, zero otherwise.
	Cash int64
	// Delivery is the queued population batch of a gathering result.
	Delivery *game.Delivery
	// TokenAmount is the token's new 0-100 amount after a top-up.
	TokenAmount float64
	// Incident names the drawn karma incident, empty when none fired.
	Incident string
}

// Collect consumes the ready result of a finished charge: the payout is
// applied, collect risk decrements karma and may draw an incident, and
// collection goals advance.
func (e *Engine) Collect(ctx context.Context, owner string, version int, locale, path string) (result *CollectResult, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "collect", owner)
	defer func() { e.observe(span, "collect", start, err) }()

	s, err := e.begin(ctx, owner, version, locale)
	if err != nil {
		return nil, err
	}
	ready := s.doc.CollectibleFor(path)
	if ready == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "nothing to collect at path")
	}
	node := s.doc.NodeByPath(path)
	if node == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "no node at path")
	}
	def, err := s.rs.Entity(node.Gestalt)
	if err != nil {
		return nil, err
	}
	apCost := def.CollectAPCost
	current, _ := s.apNow()
	if current < apCost {
		return nil, apperrors.New(apperrors.CodeInsufficientActionPoints, "not enough action points to collect")
	}

	yield := ready.Result
	s.doc.RemoveCollectible(path)

	tracker := missions.NewTracker(s.rs, s.doc)
	out := &CollectResult{}

	if yield.ProfileSet != nil {
		collectID, err := id.NewID()
		if err != nil {
			return nil, err
		}
		d := game.Delivery{
			Origin:     path,
			CollectID:  collectID,
			ProfileSet: *yield.ProfileSet,
			QueuedAt:   s.now,
		}
		s.doc.Deliveries = append(s.doc.Deliveries, d)
		out.Delivery = &d
		if _, err := tracker.HandleCollect(game.WorkflowCollectProfiles, node.Gestalt, float64(yield.ProfileSet.Profiles)); err != nil {
			return nil, err
		}
	}
	if yield.Cash != 0 {
		s.doc.Values.Cash += yield.Cash
		out.Cash = yield.Cash
		if _, err := tracker.HandleCollect(game.WorkflowCollectCash, node.Gestalt, float64(yield.Cash)); err != nil {
			return nil, err
		}
	}
	if yield.TokenTopUp != nil {
		out.TokenAmount = applyTokenTopUp(s, node, yield)
		if _, err := tracker.HandleUpgrade(node.Gestalt); err != nil {
			return nil, err
		}
		if _, err := tracker.HandleAccumulate(node.Gestalt); err != nil {
			return nil, err
		}
	}

	rewards, err := tracker.Rewards(s.now)
	if err != nil {
		return nil, err
	}
	s.applyRewards(rewards)

	// Risk settles after rewards so an incident draw sees the karma the
	// decrement produced.
	if yield.Risk > 0 {
		s.doc.Values.AddKarma(-yield.Risk)
		if node.Kind != game.KindClient {
			incident, err := e.drawIncident(s.rs, s.doc.Values.Level, s.doc.Values.Karma)
			if err != nil {
				return nil, err
			}
			if incident != nil {
				s.doc.Values.AddKarma(incident.KarmaPoints)
				out.Incident = incident.Gestalt
			}
		}
	}

	match := s.match(owner, version)
	match.AP = s.apGuard(apCost)
	s.spendAP(apCost)
	// A level-up overwrites the deduction with the new level's refill.
	leveledUp := s.applyXP(def.XPInc + rewards.XP)

	stored, err := e.commit(ctx, s, match)
	if err != nil {
		return nil, err
	}

	completed := tracker.Completed()
	e.audit(ctx, storage.EventCollect, owner, node.Gestalt, stored.Values)
	e.auditMissions(ctx, owner, completed, stored.Values)
	if out.Incident != "" {
		e.audit(ctx, storage.EventIncident, owner, out.Incident, stored.Values)
	}
	if leveledUp {
		e.audit(ctx, storage.EventLevelUp, owner, "", stored.Values)
	}

	out.Result = Result{
		Document:          stored,
		Rewards:           rewards,
		CompletedMissions: completed,
		LevelUp:           leveledUp,
		APSpent:           apCost,
	}
	return out, nil
}

// applyTokenTopUp adds a top-up increment to the token node's amount,
// rescaled for population growth since the charge priced it and capped at
// the full mark.
func applyTokenTopUp(s *session, node *game.Node, yield game.Yield) float64 {
	increment := yield.TokenTopUp[node.Gestalt]
	if yield.TopUp != nil && yield.TopUp.Profiles > 0 && s.doc.Values.Profiles > 0 {
		increment = increment * float64(yield.TopUp.Profiles) / float64(s.doc.Values.Profiles)
	}
	if toFull := 100 - node.Instance.Amount; increment > toFull {
		increment = toFull
	}
	node.Instance.Amount += increment
	return node.Instance.Amount
}

// drawIncident samples whether a negative-karma event fires, with
// probability rising as the square root of how far below neutral the
// karma sits, then picks uniformly among the level-eligible incidents.
func (e *Engine) drawIncident(rs *rules.Ruleset, level, karma int) (*rules.IncidentDef, error) {
	if karma >= 0 {
		return nil, nil
	}
	eligible := rs.IncidentsForLevel(level)
	if len(eligible) == 0 {
		return nil, nil
	}
	factor := math.Sqrt(float64(-karma) / float64(-game.KarmaMin))
	sampler, err := random.NewWeighted(map[bool]float64{
		true:  factor,
		false: 1 - factor + incidentPadding,
	}, func(a, b bool) int {
		if a == b {
			return 0
		}
		if a {
			return 1
		}
		return -1
	})
	if err != nil {
		return nil, err
	}
	e.randMu.Lock()
	hit := sampler.Draw(e.rand)
	pick := e.rand.IntN(len(eligible))
	e.randMu.Unlock()
	if !hit {
		return nil, nil
	}
	return eligible[pick], nil
}
