package engine

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/datadealer/dd-app/internal/game"
	"github.com/datadealer/dd-app/internal/missions"
	apperrors "github.com/datadealer/dd-app/internal/platform/errors"
	"github.com/datadealer/dd-app/internal/rules"
	"github.com/datadealer/dd-app/internal/storage"
)

const (
	powerupXP = 1
	// sellFactor is the fraction of the purchase price refunded when an
	// add-on is removed.
	sellFactor = 0.75
)

// PowerupResult reports an add-on installation or removal.
type PowerupResult struct {
	Result
	// Node is the host project after the modifier recomputation.
	Node *game.Node
	// Refund is the cash returned by a removal, zero on install.
	Refund int64
}

// InstallPowerup buys an add-on into a slot of a host project and applies
// its modifiers. Validation order: host resolution, applicability, level,
// affordability, duplicate, slot availability.
func (e *Engine) InstallPowerup(ctx context.Context, owner string, version int, locale, path string, slot int, gestalt string) (result *PowerupResult, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "buypowerup", owner)
	defer func() { e.observe(span, "buypowerup", start, err) }()

	s, err := e.begin(ctx, owner, version, locale)
	if err != nil {
		return nil, err
	}
	node, def, pdef, err := resolvePowerupHost(s.rs, s.doc, path, gestalt)
	if err != nil {
		return nil, err
	}
	if pdef.ModFor(node.Gestalt) == nil {
		return nil, apperrors.New(apperrors.CodeInvalidTarget, "add-on does not apply to this project")
	}
	if s.doc.Values.Level < pdef.RequiredLevel {
		return nil, apperrors.New(apperrors.CodeLevelLocked, "add-on locked at current level")
	}
	if s.doc.Values.Cash < pdef.Price {
		return nil, apperrors.New(apperrors.CodeInsufficientFunds, "not enough cash for add-on purchase")
	}
	for _, installed := range node.Instance.Powerups {
		if installed.Gestalt == gestalt {
			return nil, apperrors.New(apperrors.CodeAlreadyPresent, "add-on already installed")
		}
	}
	capacity := slotCapacity(node, def, pdef.SlotType)
	if slot < 0 || slot >= capacity {
		return nil, apperrors.New(apperrors.CodeSlotsFull, "slot index out of range")
	}
	for _, installed := range node.Instance.Powerups {
		if installed.Slot == slot {
			return nil, apperrors.New(apperrors.CodeSlotOccupied, "slot already occupied")
		}
	}

	node.Instance.Powerups = append(node.Instance.Powerups, game.PowerupSlot{Slot: slot, Gestalt: gestalt})
	if err = recomputeModifiers(node, def, s.rs); err != nil {
		return nil, err
	}
	s.doc.Values.Cash -= pdef.Price
	s.doc.Values.CashSpent += pdef.Price

	tracker := missions.NewTracker(s.rs, s.doc)
	if _, err = tracker.HandlePowerup(node.Gestalt, gestalt); err != nil {
		return nil, err
	}
	rewards, err := tracker.Rewards(s.now)
	if err != nil {
		return nil, err
	}
	s.applyRewards(rewards)
	leveledUp := s.applyXP(powerupXP + rewards.XP)

	match := s.match(owner, version)
	match.Cash = &storage.CashGuard{Minimum: pdef.Price}
	stored, err := e.commit(ctx, s, match)
	if err != nil {
		return nil, err
	}

	completed := tracker.Completed()
	e.audit(ctx, storage.EventBuyPowerup, owner, gestalt, stored.Values)
	e.auditMissions(ctx, owner, completed, stored.Values)
	if leveledUp {
		e.audit(ctx, storage.EventLevelUp, owner, "", stored.Values)
	}

	return &PowerupResult{
		Result: Result{
			Document:          stored,
			Rewards:           rewards,
			CompletedMissions: completed,
			LevelUp:           leveledUp,
		},
		Node: stored.NodeByPath(path),
	}, nil
}

// RemovePowerup sells an installed add-on back at a fraction of its price
// and retracts its modifiers.
func (e *Engine) RemovePowerup(ctx context.Context, owner string, version int, locale, path string, slot int, gestalt string) (result *PowerupResult, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "sellpowerup", owner)
	defer func() { e.observe(span, "sellpowerup", start, err) }()

	s, err := e.begin(ctx, owner, version, locale)
	if err != nil {
		return nil, err
	}
	node, def, pdef, err := resolvePowerupHost(s.rs, s.doc, path, gestalt)
	if err != nil {
		return nil, err
	}
	installed := slices.IndexFunc(node.Instance.Powerups, func(p game.PowerupSlot) bool {
		return p.Slot == slot && p.Gestalt == gestalt
	})
	if installed < 0 {
		return nil, apperrors.New(apperrors.CodeNotFound, "no such add-on in that slot")
	}

	node.Instance.Powerups = slices.Delete(node.Instance.Powerups, installed, installed+1)
	if err = recomputeModifiers(node, def, s.rs); err != nil {
		return nil, err
	}
	refund := int64(float64(pdef.Price) * sellFactor)
	s.doc.Values.Cash += refund
	leveledUp := s.applyXP(powerupXP)

	stored, err := e.commit(ctx, s, s.match(owner, version))
	if err != nil {
		return nil, err
	}
	if leveledUp {
		e.audit(ctx, storage.EventLevelUp, owner, "", stored.Values)
	}
	return &PowerupResult{
		Result: Result{Document: stored, LevelUp: leveledUp},
		Node:   stored.NodeByPath(path),
		Refund: refund,
	}, nil
}

func resolvePowerupHost(rs *rules.Ruleset, doc *game.Document, path, gestalt string) (*game.Node, *rules.EntityDef, *rules.PowerupDef, error) {
	node := doc.NodeByPath(path)
	if node == nil {
		return nil, nil, nil, apperrors.New(apperrors.CodeNotFound, "no node at path")
	}
	if node.Kind != game.KindProject {
		return nil, nil, nil, apperrors.New(apperrors.CodeInvalidTarget, "add-ons install on projects only")
	}
	def, err := rs.Entity(node.Gestalt)
	if err != nil {
		return nil, nil, nil, err
	}
	pdef, err := rs.Powerup(gestalt)
	if err != nil {
		return nil, nil, nil, err
	}
	return node, def, pdef, nil
}

// slotCapacity is the purchased capacity for a slot type, falling back to
// the definition's initial capacity.
func slotCapacity(node *game.Node, def *rules.EntityDef, slotType string) int {
	if n, ok := node.Instance.Slots[slotType]; ok {
		return n
	}
	return def.Slots[slotType].Initial
}

// recomputeModifiers rebuilds the host project's override fields from its
// definition plus every installed add-on, in slot order. Scalar modifiers
// replace the definition value; token contributions add to the token map.
func recomputeModifiers(node *game.Node, def *rules.EntityDef, rs *rules.Ruleset) error {
	node.Instance.ChargeCost = nil
	node.Instance.CollectAmount = nil
	node.Instance.CollectRisk = nil
	node.Instance.Tokens = nil

	slots := slices.Clone(node.Instance.Powerups)
	slices.SortFunc(slots, func(a, b game.PowerupSlot) int { return a.Slot - b.Slot })

	tokens := cloneFloatMap(def.Tokens)
	tokensModified := false
	for _, installed := range slots {
		pdef, err := rs.Powerup(installed.Gestalt)
		if err != nil {
			return err
		}
		mod := pdef.ModFor(node.Gestalt)
		if mod == nil {
			continue
		}
		if mod.ChargeCost != nil {
			v := *mod.ChargeCost
			node.Instance.ChargeCost = &v
		}
		if mod.CollectAmount != nil {
			v := *mod.CollectAmount
			node.Instance.CollectAmount = &v
		}
		if mod.CollectRisk != nil {
			v := *mod.CollectRisk
			node.Instance.CollectRisk = &v
		}
		if len(mod.Tokens) > 0 {
			tokensModified = true
			if tokens == nil {
				tokens = make(map[string]float64)
			}
			for k, v := range mod.Tokens {
				tokens[k] += v
			}
		}
	}
	if tokensModified {
		node.Instance.Tokens = make([]game.TokenAmount, 0, len(tokens))
		for k, v := range tokens {
			node.Instance.Tokens = append(node.Instance.Tokens, game.TokenAmount{Gestalt: k, Amount: v})
		}
		slices.SortFunc(node.Instance.Tokens, func(a, b game.TokenAmount) int {
			return strings.Compare(a.Gestalt, b.Gestalt)
		})
	}
	return nil
}
