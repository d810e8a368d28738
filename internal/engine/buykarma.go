package engine

import (
	"context"
	"time"

	apperrors "github.com/datadealer/dd-app/internal/platform/errors"
	"github.com/datadealer/dd-app/internal/storage"
)

const karmaXP = 1

// BuyKarmaResult reports a karma offer purchase.
type BuyKarmaResult struct {
	Result
	// Karma is the balance after the clamped bonus.
	Karma int
}

// BuyKarma trades cash for a karma bonus, clamped at the top of the
// scale.
func (e *Engine) BuyKarma(ctx context.Context, owner string, version int, locale, gestalt string) (result *BuyKarmaResult, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "buykarma", owner)
	defer func() { e.observe(span, "buykarma", start, err) }()

	s, err := e.begin(ctx, owner, version, locale)
	if err != nil {
		return nil, err
	}
	offer, err := s.rs.KarmaOffer(gestalt)
	if err != nil {
		return nil, err
	}
	if s.doc.Values.Level < offer.RequiredLevel {
		return nil, apperrors.New(apperrors.CodeLevelLocked, "karma offer locked at current level")
	}
	if s.doc.Values.Cash < offer.Price {
		return nil, apperrors.New(apperrors.CodeInsufficientFunds, "not enough cash for karma offer")
	}

	s.doc.Values.Cash -= offer.Price
	s.doc.Values.CashSpent += offer.Price
	s.doc.Values.AddKarma(offer.KarmaPoints)
	leveledUp := s.applyXP(karmaXP)

	match := s.match(owner, version)
	match.Cash = &storage.CashGuard{Minimum: offer.Price}
	stored, err := e.commit(ctx, s, match)
	if err != nil {
		return nil, err
	}
	if leveledUp {
		e.audit(ctx, storage.EventLevelUp, owner, "", stored.Values)
	}
	return &BuyKarmaResult{
		Result: Result{Document: stored, LevelUp: leveledUp},
		Karma:  stored.Values.Karma,
	}, nil
}
