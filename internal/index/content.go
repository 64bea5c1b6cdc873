package index

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/markrag/internal/content"
	"github.com/Aman-CERP/markrag/internal/store"
)

// ContentResult summarizes a content pass.
type ContentResult struct {
	Candidates  int
	WithContent int
	Batches     int
	Duration    time.Duration
}

// RunContent fetches every stored http(s) bookmark and embeds the page
// snippets.
//
// Fetches within a batch run concurrently; a failed fetch yields an empty
// snippet and clears that document's content fields. Only non-empty
// snippets are sent to the embedder. An embedding or storage failure stops
// the pass; committed batches stay committed.
func (p *Pipeline) RunContent(ctx context.Context, reason string, onProgress ProgressFunc) (ContentResult, error) {
	start := p.now()
	p.logger.Info("content_pass_started", slog.String("reason", reason))

	res, err := p.runContent(ctx, onProgress)
	res.Duration = time.Since(start)
	if err != nil {
		p.recordFailure(ctx, store.MetaContentLastError, err)
		p.logger.Error("content_pass_failed",
			slog.String("reason", reason),
			slog.Int("batches_committed", res.Batches),
			slog.String("error", err.Error()))
		return res, err
	}

	p.logger.Info("content_pass_complete",
		slog.String("reason", reason),
		slog.Int("candidates", res.Candidates),
		slog.Int("with_content", res.WithContent),
		slog.Duration("duration", res.Duration))

	metaErr := p.setMetas(ctx, map[string]any{
		store.MetaContentLastIndexedAt:   p.now(),
		store.MetaContentLastError:       nil,
		store.MetaContentIndexedDocCount: res.Candidates,
		store.MetaLastContentIndexReason: reason,
	})
	return res, metaErr
}

func (p *Pipeline) runContent(ctx context.Context, onProgress ProgressFunc) (ContentResult, error) {
	var res ContentResult

	if err := p.store.SetMeta(ctx, store.MetaContentLastError, nil); err != nil {
		return res, err
	}

	docs, err := p.store.All(ctx)
	if err != nil {
		return res, err
	}
	var candidates []store.Document
	for _, d := range docs {
		if content.IsFetchableURL(d.URL) {
			candidates = append(candidates, d)
		}
	}
	res.Candidates = len(candidates)
	report(onProgress, 0, len(candidates))

	for cursor := 0; cursor < len(candidates); {
		plan := p.plan(PassContent)
		end := min(cursor+plan.Size, len(candidates))
		batch := candidates[cursor:end]

		snippets, err := p.fetchAll(ctx, batch)
		if err != nil {
			return res, err
		}

		// Only non-empty snippets are embedded. embedIndex maps each batch
		// position to its row in the embedding call, or -1.
		embedIndex := make([]int, len(batch))
		var texts []string
		for i, snippet := range snippets {
			embedIndex[i] = -1
			if snippet != "" {
				embedIndex[i] = len(texts)
				texts = append(texts, snippet)
			}
		}
		vectors, err := p.embedTexts(ctx, texts)
		if err != nil {
			return res, err
		}

		now := p.now()
		updated := make([]store.Document, 0, len(batch))
		for i, doc := range batch {
			// Re-read so a concurrent metadata pass is not overwritten and
			// deleted bookmarks are not resurrected.
			fresh, err := p.store.Get(ctx, doc.ID)
			if err != nil {
				return res, err
			}
			if fresh == nil {
				continue
			}
			fresh.ContentText = snippets[i]
			fresh.ContentEmbedding = nil
			fresh.ContentUpdatedAt = nil
			if idx := embedIndex[i]; idx >= 0 {
				fresh.ContentEmbedding = vectors[idx]
				fresh.ContentUpdatedAt = &now
				res.WithContent++
			}
			updated = append(updated, *fresh)
		}

		if err := p.store.UpsertMany(ctx, updated); err != nil {
			return res, err
		}

		cursor = end
		res.Batches++
		report(onProgress, cursor, len(candidates))

		if err := pause(ctx, plan.Pause); err != nil {
			return res, err
		}
	}

	return res, nil
}

// fetchAll fetches every document of a batch concurrently. Snippets are
// returned in batch order. The only possible error is ctx's.
func (p *Pipeline) fetchAll(ctx context.Context, batch []store.Document) ([]string, error) {
	snippets := make([]string, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range batch {
		g.Go(func() error {
			snippets[i] = p.fetcher.Fetch(gctx, doc.URL)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return snippets, nil
}
