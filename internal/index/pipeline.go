// Package index runs the two indexing passes over the bookmark collection.
//
// The metadata pass embeds "title\nfolderPath\nurl" for every bookmark in
// the source tree and deletes stored documents that are no longer in it.
// The content pass fetches every stored http(s) bookmark and embeds the
// extracted page snippet.
//
// Both passes work in batches. Batch size and the pause after each batch
// come from a Planner that is consulted at the start of every batch, so a
// change of mode takes effect on the next batch. Each batch makes exactly
// one embedding call and one store write. Batches run strictly in order.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/markrag/internal/bookmarks"
	"github.com/Aman-CERP/markrag/internal/content"
	"github.com/Aman-CERP/markrag/internal/embed"
	merrors "github.com/Aman-CERP/markrag/internal/errors"
	"github.com/Aman-CERP/markrag/internal/store"
)

// Pass identifies one of the two indexing passes.
type Pass string

const (
	PassMetadata Pass = "metadata"
	PassContent  Pass = "content"
)

// BatchPlan is the sizing for the next batch of a pass.
type BatchPlan struct {
	Size  int
	Pause time.Duration
}

// Planner decides the next batch plan for a pass.
type Planner interface {
	Plan(pass Pass) BatchPlan
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(pass Pass) BatchPlan

// Plan calls f.
func (f PlannerFunc) Plan(pass Pass) BatchPlan { return f(pass) }

// FixedPlanner always returns the same plan for each pass.
type FixedPlanner struct {
	Metadata BatchPlan
	Content  BatchPlan
}

// Plan returns the configured plan for pass.
func (p FixedPlanner) Plan(pass Pass) BatchPlan {
	if pass == PassContent {
		return p.Content
	}
	return p.Metadata
}

// ProgressFunc receives done/total counts after every batch.
type ProgressFunc func(done, total int)

// Dependencies contains the injected collaborators of a Pipeline.
type Dependencies struct {
	// Store persists documents and meta (required).
	Store store.Store

	// Embedder embeds batches of text (required). It must not be shared
	// with callers that could issue overlapping calls; see embed.Serial.
	Embedder embed.Embedder

	// Source provides the bookmark tree (required).
	Source bookmarks.Source

	// Fetcher retrieves page snippets (required).
	Fetcher content.Fetcher

	// Planner sizes batches (required).
	Planner Planner

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Pipeline executes indexing passes.
type Pipeline struct {
	store    store.Store
	embedder embed.Embedder
	source   bookmarks.Source
	fetcher  content.Fetcher
	planner  Planner
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Pipeline with injected dependencies.
func New(deps Dependencies) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("bookmark source is required")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Planner == nil {
		return nil, fmt.Errorf("planner is required")
	}

	p := &Pipeline{
		store:    deps.Store,
		embedder: deps.Embedder,
		source:   deps.Source,
		fetcher:  deps.Fetcher,
		planner:  deps.Planner,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Store returns the pipeline's document store.
func (p *Pipeline) Store() store.Store {
	return p.store
}

// DeleteDocument removes a single document.
func (p *Pipeline) DeleteDocument(ctx context.Context, id string) error {
	return p.store.Delete(ctx, id)
}

// plan returns the next batch plan, never smaller than one item.
func (p *Pipeline) plan(pass Pass) BatchPlan {
	plan := p.planner.Plan(pass)
	if plan.Size < 1 {
		plan.Size = 1
	}
	if plan.Pause < 0 {
		plan.Pause = 0
	}
	return plan
}

// pause waits d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// embedTexts calls the embedder once and checks the result shape.
func (p *Pipeline) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, merrors.EmbeddingError(
			fmt.Sprintf("embedder returned %d vectors for %d texts", len(vectors), len(texts)), nil)
	}
	return vectors, nil
}

// recordFailure stores msg under key, logging if the store itself fails.
func (p *Pipeline) recordFailure(ctx context.Context, key string, runErr error) {
	if err := p.store.SetMeta(context.WithoutCancel(ctx), key, runErr.Error()); err != nil {
		p.logger.Error("record_index_error_failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}
