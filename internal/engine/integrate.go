package engine

import (
	"context"
	"sort"
	"time"

	"github.com/datadealer/dd-app/internal/game"
	"github.com/datadealer/dd-app/internal/missions"
	apperrors "github.com/datadealer/dd-app/internal/platform/errors"
	"github.com/datadealer/dd-app/internal/platform/id"
	"github.com/datadealer/dd-app/internal/profiles"
	"github.com/datadealer/dd-app/internal/storage"
)

const (
	integrateXP     = 1
	integrateAPCost = 1
)

// IntegrateResult reports a population merge.
type IntegrateResult struct {
	Result
	// Increment is the number of profiles that landed in the pool.
	Increment int64
	// Duplicates is the number discarded as already present.
	Duplicates int64
	// Profiles is the pool size after the merge.
	Profiles int64
}

// Integrate merges one queued delivery into the owner's profile pool.
// Token nodes for categories new to the pool are created under the pool
// root; existing ones get their share updated.
func (e *Engine) Integrate(ctx context.Context, owner string, version int, locale, collectID string) (result *IntegrateResult, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "integrate", owner)
	defer func() { e.observe(span, "integrate", start, err) }()

	s, err := e.begin(ctx, owner, version, locale)
	if err != nil {
		return nil, err
	}
	delivery := s.doc.DeliveryByID(collectID)
	if delivery == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "no queued delivery for that id")
	}
	current, _ := s.apNow()
	if current < integrateAPCost {
		return nil, apperrors.New(apperrors.CodeInsufficientActionPoints, "not enough action points to integrate")
	}

	// The pool population covers every token category the ruleset knows,
	// zero-filled, so the merge sees the same category universe each time.
	pool := profiles.Population{
		Size:   float64(s.doc.Values.Profiles),
		Shares: make(map[string]float64),
	}
	for gestalt, def := range s.rs.Entities {
		if def.Kind == string(game.KindToken) {
			pool.Shares[gestalt] = 0
		}
	}
	for gestalt, amount := range s.doc.TokenAmounts() {
		pool.Shares[gestalt] = amount
	}
	batch := profiles.Population{
		Size:   float64(delivery.ProfileSet.Profiles),
		Shares: delivery.ProfileSet.Tokens,
	}
	merged := profiles.Merge(pool, batch, float64(s.doc.Values.ProfilesMax), false)

	s.doc.RemoveDelivery(collectID)
	s.doc.Values.Profiles = int64(merged.Population.Size)

	modified := make([]string, 0, len(merged.Population.Shares))
	for gestalt := range merged.Population.Shares {
		modified = append(modified, gestalt)
	}
	sort.Strings(modified)

	tracker := missions.NewTracker(s.rs, s.doc)
	for _, gestalt := range modified {
		share := merged.Population.Shares[gestalt]
		node := s.doc.TokenNode(gestalt)
		if node == nil {
			if share == 0 {
				continue
			}
			node, err = newTokenNode(gestalt)
			if err != nil {
				return nil, err
			}
			s.doc.Nodes = append(s.doc.Nodes, node)
		}
		node.Instance.Amount = share
		if _, err := tracker.HandleAccumulate(gestalt); err != nil {
			return nil, err
		}
	}

	rewards, err := tracker.Rewards(s.now)
	if err != nil {
		return nil, err
	}
	s.applyRewards(rewards)

	match := s.match(owner, version)
	match.AP = s.apGuard(integrateAPCost)
	s.spendAP(integrateAPCost)
	leveledUp := s.applyXP(integrateXP + rewards.XP)

	stored, err := e.commit(ctx, s, match)
	if err != nil {
		return nil, err
	}

	completed := tracker.Completed()
	e.audit(ctx, storage.EventIntegrate, owner, delivery.Origin, stored.Values)
	e.auditMissions(ctx, owner, completed, stored.Values)
	if leveledUp {
		e.audit(ctx, storage.EventLevelUp, owner, "", stored.Values)
	}

	return &IntegrateResult{
		Result: Result{
			Document:          stored,
			Rewards:           rewards,
			CompletedMissions: completed,
			LevelUp:           leveledUp,
			APSpent:           integrateAPCost,
		},
		Increment:  int64(merged.Increment),
		Duplicates: int64(merged.Duplicates),
		Profiles:   stored.Values.Profiles,
	}, nil
}

func newTokenNode(gestalt string) (*game.Node, error) {
	nodeID, err := id.NewID()
	if err != nil {
		return nil, err
	}
	return &game.Node{
		ID:      nodeID,
		Kind:    game.KindToken,
		Gestalt: gestalt,
		Path:    game.JoinPath(game.PoolRootPath, nodeID),
	}, nil
}
