package engine

import (
	"context"
	"slices"
	"time"

	"github.com/datadealer/dd-app/internal/tree"
)

// CoordinateUpdate moves one owned node on the board. Nil axes keep the
// current value.
type CoordinateUpdate struct {
	Path string
	X    *int
	Y    *int
}

// Reposition applies board coordinate updates in one write. Paths the
// owner does not hold are skipped; the count of applied updates is
// returned.
func (e *Engine) Reposition(ctx context.Context, owner string, version int, locale string, updates []CoordinateUpdate) (updated int, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "reposition", owner)
	defer func() { e.observe(span, "reposition", start, err) }()

	s, err := e.begin(ctx, owner, version, locale)
	if err != nil {
		return 0, err
	}
	for _, u := range updates {
		node := s.doc.NodeByPath(u.Path)
		if node == nil || (u.X == nil && u.Y == nil) {
			continue
		}
		if u.X != nil {
			node.Instance.X = *u.X
		}
		if u.Y != nil {
			node.Instance.Y = *u.Y
		}
		updated++
	}
	if updated == 0 {
		return 0, nil
	}
	if _, err = e.commit(ctx, s, s.match(owner, version)); err != nil {
		return 0, err
	}
	return updated, nil
}

// Available lists the gestalten currently attachable beneath a parent
// path, read-only.
func (e *Engine) Available(ctx context.Context, owner string, version int, locale, parentPath string) (gestalten []string, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "available", owner)
	defer func() { e.observe(span, "available", start, err) }()

	s, err := e.begin(ctx, owner, version, locale)
	if err != nil {
		return nil, err
	}
	return slices.Collect(tree.New(s.rs, s.doc).Available(parentPath)), nil
}
