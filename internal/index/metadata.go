package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/markrag/internal/bookmarks"
	"github.com/Aman-CERP/markrag/internal/store"
)

// MetadataResult summarizes a successful metadata pass.
type MetadataResult struct {
	Total    int
	Deleted  int
	Batches  int
	Duration time.Duration
}

// RunMetadata embeds every bookmark in the source tree and removes stored
// documents whose bookmark no longer exists.
//
// Content fields of an existing document are carried over when its URL is
// unchanged, so search keeps content scores until the next content pass.
// They are read right before each batch is written, so content committed
// while the pass runs is kept.
// On success the totalDocs, lastIndexedAt, and lastIndexReason meta keys
// are written and lastError is cleared. On failure lastError holds the
// error message and already-written batches stay committed.
func (p *Pipeline) RunMetadata(ctx context.Context, reason string, onProgress ProgressFunc) (MetadataResult, error) {
	start := p.now()
	p.logger.Info("metadata_pass_started", slog.String("reason", reason))

	res, err := p.runMetadata(ctx, onProgress)
	res.Duration = time.Since(start)
	if err != nil {
		p.recordFailure(ctx, store.MetaLastError, err)
		p.logger.Error("metadata_pass_failed",
			slog.String("reason", reason),
			slog.Int("batches_committed", res.Batches),
			slog.String("error", err.Error()))
		return res, err
	}

	p.logger.Info("metadata_pass_complete",
		slog.String("reason", reason),
		slog.Int("docs", res.Total),
		slog.Int("deleted", res.Deleted),
		slog.Duration("duration", res.Duration))

	metaErr := p.setMetas(ctx, map[string]any{
		store.MetaLastIndexedAt:   p.now(),
		store.MetaTotalDocs:       res.Total,
		store.MetaLastError:       nil,
		store.MetaLastIndexReason: reason,
	})
	return res, metaErr
}

func (p *Pipeline) runMetadata(ctx context.Context, onProgress ProgressFunc) (MetadataResult, error) {
	var res MetadataResult

	if err := p.store.SetMeta(ctx, store.MetaLastError, nil); err != nil {
		return res, err
	}

	tree, err := p.source.Tree(ctx)
	if err != nil {
		return res, err
	}
	docs := bookmarks.Flatten(tree, p.now())
	res.Total = len(docs)
	report(onProgress, 0, len(docs))

	existing, err := p.store.IDs(ctx)
	if err != nil {
		return res, err
	}
	stale := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		stale[id] = struct{}{}
	}

	for cursor := 0; cursor < len(docs); {
		plan := p.plan(PassMetadata)
		end := min(cursor+plan.Size, len(docs))
		batch := docs[cursor:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Text
		}
		vectors, err := p.embedTexts(ctx, texts)
		if err != nil {
			return res, err
		}

		for i := range batch {
			batch[i].Embedding = vectors[i]
			prev, err := p.store.Get(ctx, batch[i].ID)
			if err != nil {
				return res, err
			}
			if prev != nil && prev.URL == batch[i].URL {
				batch[i].ContentText = prev.ContentText
				batch[i].ContentEmbedding = prev.ContentEmbedding
				batch[i].ContentUpdatedAt = prev.ContentUpdatedAt
			}
		}

		if err := p.store.UpsertMany(ctx, batch); err != nil {
			return res, err
		}
		for _, d := range batch {
			delete(stale, d.ID)
		}

		cursor = end
		res.Batches++
		report(onProgress, cursor, len(docs))

		if err := pause(ctx, plan.Pause); err != nil {
			return res, err
		}
	}

	for id := range stale {
		if err := p.store.Delete(ctx, id); err != nil {
			return res, err
		}
		res.Deleted++
	}

	return res, nil
}

// setMetas writes several meta keys, stopping at the first failure.
func (p *Pipeline) setMetas(ctx context.Context, values map[string]any) error {
	for key, value := range values {
		if err := p.store.SetMeta(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

func report(fn ProgressFunc, done, total int) {
	if fn != nil {
		fn(done, total)
	}
}
