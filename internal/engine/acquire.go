package engine

import (
	"context"
	"slices"
	"time"

	"github.com/datadealer/dd-app/internal/game"
	"github.com/datadealer/dd-app/internal/missions"
	apperrors "github.com/datadealer/dd-app/internal/platform/errors"
	"github.com/datadealer/dd-app/internal/platform/id"
	"github.com/datadealer/dd-app/internal/rules"
	"github.com/datadealer/dd-app/internal/storage"
	"github.com/datadealer/dd-app/internal/tree"
)

const acquireXP = 1

// AcquireResult reports a completed entity purchase.
type AcquireResult struct {
	Result
	// Node is the freshly attached node.
	Node *game.Node
	// Delivery is the queued population batch of a city purchase, nil
	// for every other kind.
	Delivery *game.Delivery
}

// AcquireEntity buys one entity and attaches it beneath the parent path.
// Validation order: parent resolution, affordability, tree predicates.
// City purchases queue their profile-set delivery and raise the
// population ceiling.
func (e *Engine) AcquireEntity(ctx context.Context, owner string, version int, locale, parentPath, gestalt string) (result *AcquireResult, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "acquire", owner)
	defer func() { e.observe(span, "acquire", start, err) }()

	s, err := e.begin(ctx, owner, version, locale)
	if err != nil {
		return nil, err
	}
	def, err := s.rs.Entity(gestalt)
	if err != nil {
		return nil, err
	}
	if s.doc.Values.Cash < def.Price {
		return nil, apperrors.New(apperrors.CodeInsufficientFunds, "not enough cash for entity purchase")
	}

	node, err := tree.New(s.rs, s.doc).Attach(gestalt, parentPath)
	if err != nil {
		return nil, err
	}

	s.doc.Values.Cash -= def.Price
	s.doc.Values.CashSpent += def.Price

	var delivery *game.Delivery
	if node.Kind == game.KindCity && def.ProfileSet != nil {
		collectID, err := id.NewID()
		if err != nil {
			return nil, err
		}
		d := game.Delivery{
			Origin:    node.Path,
			CollectID: collectID,
			ProfileSet: game.ProfileSet{
				Profiles: def.ProfileSet.Profiles,
				Tokens:   cloneFloatMap(def.ProfileSet.Tokens),
			},
			QueuedAt: s.now,
		}
		s.doc.Deliveries = append(s.doc.Deliveries, d)
		s.doc.Values.ProfilesMax += def.ProfilesMax
		delivery = &d
	}

	tracker := missions.NewTracker(s.rs, s.doc)
	if _, err = tracker.HandleAcquire(gestalt); err != nil {
		return nil, err
	}
	rewards, err := tracker.Rewards(s.now)
	if err != nil {
		return nil, err
	}
	s.applyRewards(rewards)
	leveledUp := s.applyXP(acquireXP + rewards.XP)

	match := s.match(owner, version)
	match.Cash = &storage.CashGuard{Minimum: def.Price}
	stored, err := e.commit(ctx, s, match)
	if err != nil {
		return nil, err
	}

	completed := tracker.Completed()
	e.audit(ctx, storage.EventBuyPerp, owner, gestalt, stored.Values)
	e.auditMissions(ctx, owner, completed, stored.Values)
	if leveledUp {
		e.audit(ctx, storage.EventLevelUp, owner, "", stored.Values)
	}
	e.notifyAvailable(ctx, owner, s.rs, stored, parentPath)

	return &AcquireResult{
		Result: Result{
			Document:          stored,
			Rewards:           rewards,
			CompletedMissions: completed,
			LevelUp:           leveledUp,
		},
		Node:     node,
		Delivery: delivery,
	}, nil
}

// notifyAvailable pushes the parent's attachable listing after a mutation
// that may have widened it. Best effort.
func (e *Engine) notifyAvailable(ctx context.Context, owner string, rs *rules.Ruleset, doc *game.Document, parentPath string) {
	available := slices.Collect(tree.New(rs, doc).Available(parentPath))
	if len(available) == 0 {
		return
	}
	_ = e.notify.ItemsAvailable(ctx, owner, available)
}

func cloneFloatMap(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
