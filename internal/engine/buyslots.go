package engine

import (
	"context"
	"time"

	apperrors "github.com/datadealer/dd-app/internal/platform/errors"
	"github.com/datadealer/dd-app/internal/storage"
)

// BuySlotsResult reports a slot capacity purchase.
type BuySlotsResult struct {
	Result
	// Slots is the node's capacity for the slot type after the purchase.
	Slots int
	// Price is the cash paid.
	Price int64
}

// BuySlots raises a node's purchasable slot capacity by n, bounded by the
// definition's maximum.
func (e *Engine) BuySlots(ctx context.Context, owner string, version int, locale, path, slotType string, n int) (result *BuySlotsResult, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "buyslots", owner)
	defer func() { e.observe(span, "buyslots", start, err) }()

	if n <= 0 {
		return nil, apperrors.New(apperrors.CodeInvalidTarget, "slot count must be positive")
	}
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
	bounds, ok := def.Slots[slotType]
	if !ok {
		return nil, apperrors.New(apperrors.CodeInvalidTarget, "node has no such slot type")
	}
	current := bounds.Initial
	if purchased, ok := node.Instance.Slots[slotType]; ok {
		current = purchased
	}
	if current+n > bounds.Max {
		return nil, apperrors.New(apperrors.CodeSlotsFull, "slot capacity maximum exceeded")
	}
	price := def.SlotCost * int64(n)
	if s.doc.Values.Cash < price {
		return nil, apperrors.New(apperrors.CodeInsufficientFunds, "not enough cash for slot purchase")
	}

	if node.Instance.Slots == nil {
		node.Instance.Slots = make(map[string]int)
	}
	node.Instance.Slots[slotType] = current + n
	s.doc.Values.Cash -= price
	s.doc.Values.CashSpent += price

	match := s.match(owner, version)
	match.Cash = &storage.CashGuard{Minimum: price}
	stored, err := e.commit(ctx, s, match)
	if err != nil {
		return nil, err
	}
	return &BuySlotsResult{
		Result: Result{Document: stored},
		Slots:  current + n,
		Price:  price,
	}, nil
}
