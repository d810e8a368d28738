package engine

import (
	"context"
	"time"

	"github.com/datadealer/dd-app/internal/game"
	"github.com/datadealer/dd-app/internal/missions"
	apperrors "github.com/datadealer/dd-app/internal/platform/errors"
	"github.com/datadealer/dd-app/internal/storage"
)

const chargeXP = 1

// ChargeResult reports a started charge cycle.
type ChargeResult struct {
	Result
	// Duration is the cycle length; the deferred ready transition is due
	// at Start.Add(Duration).
	Duration time.Duration
	Start    time.Time
	End      time.Time
}

// Charge starts a charge cycle on a node. The yield is computed and
// priced now; the deferred ready transition only moves it to the
// collectible queue.
func (e *Engine) Charge(ctx context.Context, owner string, version int, locale, path string) (result *ChargeResult, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "charge", owner)
	defer func() { e.observe(span, "charge", start, err) }()

	s, err := e.begin(ctx, owner, version, locale)
	if err != nil {
		return nil, err
	}
	node := s.doc.NodeByPath(path)
	if node == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "no node at path")
	}
	def, err := s.rs.Entity(node.Gestalt)
	if err != nil {
		return nil, err
	}
	if def.ChargeTimeMS <= 0 {
		return nil, apperrors.New(apperrors.CodeInvalidTarget, "node kind has no charge cycle")
	}
	if s.doc.ChargeJobFor(path) != nil || s.doc.CollectibleFor(path) != nil {
		return nil, apperrors.New(apperrors.CodeAlreadyPresent, "node is already charging or ready")
	}

	yield, cost, err := e.chargeYield(s, node, def)
	if err != nil {
		return nil, err
	}
	match := s.match(owner, version)
	if cost.Cash > 0 {
		if s.doc.Values.Cash < cost.Cash {
			return nil, apperrors.New(apperrors.CodeInsufficientFunds, "not enough cash to start charge")
		}
		s.doc.Values.Cash -= cost.Cash
		s.doc.Values.CashSpent += cost.Cash
		match.Cash = &storage.CashGuard{Minimum: cost.Cash}
	}
	if cost.AP > 0 {
		current, _ := s.apNow()
		if current < cost.AP {
			return nil, apperrors.New(apperrors.CodeInsufficientActionPoints, "not enough action points to start charge")
		}
		match.AP = s.apGuard(cost.AP)
		s.spendAP(cost.AP)
	}

	chargeStart := s.now
	end := chargeStart.Add(def.ChargeDuration())
	node.Instance.ChargeStart = &chargeStart
	if yield.TopUp != nil {
		topUp := *yield.TopUp
		node.Instance.LastTopUp = &topUp
	}
	s.doc.Charging = append(s.doc.Charging, game.ChargeJob{
		Path:   path,
		Start:  chargeStart,
		End:    end,
		Result: yield,
	})

	tracker := missions.NewTracker(s.rs, s.doc)
	if _, err = tracker.HandleCharge(node.Gestalt); err != nil {
		return nil, err
	}
	rewards, err := tracker.Rewards(s.now)
	if err != nil {
		return nil, err
	}
	s.applyRewards(rewards)
	leveledUp := s.applyXP(chargeXP + rewards.XP)

	stored, err := e.commit(ctx, s, match)
	if err != nil {
		return nil, err
	}

	completed := tracker.Completed()
	e.audit(ctx, storage.EventCharge, owner, node.Gestalt, stored.Values)
	e.auditMissions(ctx, owner, completed, stored.Values)
	if leveledUp {
		e.audit(ctx, storage.EventLevelUp, owner, "", stored.Values)
	}

	return &ChargeResult{
		Result: Result{
			Document:          stored,
			Rewards:           rewards,
			CompletedMissions: completed,
			LevelUp:           leveledUp,
			APSpent:           cost.AP,
		},
		Duration: def.ChargeDuration(),
		Start:    chargeStart,
		End:      end,
	}, nil
}

// FinishCharge is the deferred ready transition: an independent
// conditional write that moves an expired charge to the collectible
// queue. A document that moved on since the charge started makes it a
// silent no-op. On success the owner's client is notified.
func (e *Engine) FinishCharge(ctx context.Context, owner string, version int, path string, chargeStart time.Time) (ok bool, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "finishcharge", owner)
	defer func() { e.observe(span, "finishcharge", start, err) }()

	ok, err = e.store.FinishCharge(ctx, owner, version, path, chargeStart)
	if err != nil || !ok {
		return ok, err
	}
	_ = e.notify.NodeReady(ctx, owner, path)
	return true, nil
}
