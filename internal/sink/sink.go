// Package sink writes output rows to the tabular files and their mirrors.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DeafMist/decl-radar/backend/internal/models"
)

// Sink appends one row.
type Sink interface {
	Append(ctx context.Context, row models.Row) error
}

// IDSource lists declaration ids already stored.
type IDSource interface {
	IDs() ([]string, error)
}

// Store is a durable sink that can be read back.
type Store interface {
	Sink
	Rows() ([]models.Row, error)
}

// Fanout writes to every durable sink, then to the mirrors. A durable failure
// fails the append; a mirror failure is only logged, since the durable files
// are what the dedup index is rebuilt from.
//
// After a partial durable failure the sinks that took the row are remembered,
// so appending the same row again only retries the ones that failed.
type Fanout struct {
	Durable []Sink
	Mirrors []Sink
	Log     *slog.Logger

	written map[string]map[int]struct{}
}

// Append implements Sink.
func (f *Fanout) Append(ctx context.Context, row models.Row) error {
	id := row.DeclarationID
	done := f.written[id]

	var errs []error
	for i, s := range f.Durable {
		if _, ok := done[i]; ok {
			continue
		}
		if err := s.Append(ctx, row); err != nil {
			errs = append(errs, err)
			continue
		}
		if done == nil {
			done = make(map[int]struct{})
		}
		done[i] = struct{}{}
	}
	if err := errors.Join(errs...); err != nil {
		if len(done) > 0 {
			if f.written == nil {
				f.written = make(map[string]map[int]struct{})
			}
			f.written[id] = done
			f.Log.Warn("durable outputs out of sync",
				slog.String("declaration_id", id),
				slog.Int("written", len(done)),
				slog.Int("failed", len(errs)),
			)
		}
		return fmt.Errorf("append %s: %w", id, err)
	}
	delete(f.written, id)

	for _, s := range f.Mirrors {
		if err := s.Append(ctx, row); err != nil {
			f.Log.Warn("mirror append failed",
				slog.String("declaration_id", row.DeclarationID),
				slog.Any("err", err),
			)
		}
	}
	return nil
}

// Reconcile copies rows that are present in some stores but missing from
// others, so every store ends up holding the same ids. It returns how many
// rows were copied.
func Reconcile(ctx context.Context, log *slog.Logger, stores ...Store) (int, error) {
	held := make([]map[string]struct{}, len(stores))
	var union []models.Row
	seen := make(map[string]struct{})
	for i, st := range stores {
		rows, err := st.Rows()
		if err != nil {
			return 0, err
		}
		held[i] = make(map[string]struct{}, len(rows))
		for _, r := range rows {
			held[i][r.DeclarationID] = struct{}{}
			if _, ok := seen[r.DeclarationID]; ok {
				continue
			}
			seen[r.DeclarationID] = struct{}{}
			union = append(union, r)
		}
	}

	copied := 0
	for i, st := range stores {
		for _, r := range union {
			if _, ok := held[i][r.DeclarationID]; ok {
				continue
			}
			if err := st.Append(ctx, r); err != nil {
				return copied, fmt.Errorf("reconcile %s: %w", r.DeclarationID, err)
			}
			held[i][r.DeclarationID] = struct{}{}
			copied++
			log.Info("restored missing row", slog.String("declaration_id", r.DeclarationID))
		}
	}
	return copied, nil
}

// ExistingIDs returns the union of ids in every source.
func ExistingIDs(sources ...IDSource) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, src := range sources {
		ids, err := src.IDs()
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok || id == "" {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out, nil
}

type rowIndexer interface {
	IndexRow(ctx context.Context, row models.Row) error
}

// Index mirrors rows into a search index.
type Index struct {
	Indexer rowIndexer
}

// Append implements Sink.
func (s Index) Append(ctx context.Context, row models.Row) error {
	return s.Indexer.IndexRow(ctx, row)
}

type rowPublisher interface {
	Publish(ctx context.Context, row models.Row) error
}

// Events publishes related rows; unrelated rows are dropped.
type Events struct {
	Publisher rowPublisher
}

// Append implements Sink.
func (s Events) Append(ctx context.Context, row models.Row) error {
	if !row.Related {
		return nil
	}
	return s.Publisher.Publish(ctx, row)
}
