package engine

import (
	"context"
	"errors"
	"time"

	"github.com/datadealer/dd-app/internal/actionpoints"
	"github.com/datadealer/dd-app/internal/game"
	"github.com/datadealer/dd-app/internal/storage"
)

// LoadResult is the game snapshot handed to a connecting client.
type LoadResult struct {
	Document *game.Document
	// Created reports that this load started a brand-new game.
	Created bool
	// AP and APUpdated are the regenerated action point pair at load time.
	AP        int
	APUpdated time.Time
}

// LoadGame fetches the owner's document, creating the ruleset's default
// game on first load.
func (e *Engine) LoadGame(ctx context.Context, owner string, version int, locale string) (result *LoadResult, err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "loadgame", owner)
	defer func() { e.observe(span, "loadgame", start, err) }()

	rs, err := e.catalog.Ruleset(version, locale)
	if err != nil {
		return nil, err
	}
	created := false
	doc, err := e.store.Get(ctx, owner, version)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		doc, err = rs.NewGame(owner, e.now())
		if err != nil {
			return nil, err
		}
		if err = e.store.Create(ctx, doc); err != nil {
			return nil, err
		}
		created = true
	case err != nil:
		return nil, mapStoreErr(err)
	}

	level := rs.LevelInfo(doc.Values.Level)
	ap, updated := actionpoints.Compute(doc.Values.APSnapshot, doc.Values.APUpdated, level.Rate(), e.now())

	kind := storage.EventLoadGame
	if created {
		kind = storage.EventNewGame
	}
	e.audit(ctx, kind, owner, "", doc.Values)
	return &LoadResult{Document: doc, Created: created, AP: ap, APUpdated: updated}, nil
}

// ResetGame deletes the owner's document for one ruleset version.
// Resetting a missing game is not an error.
func (e *Engine) ResetGame(ctx context.Context, owner string, version int) (err error) {
	start := time.Now()
	ctx, span := e.startSpan(ctx, "resetgame", owner)
	defer func() { e.observe(span, "resetgame", start, err) }()

	return e.store.Reset(ctx, owner, version)
}
