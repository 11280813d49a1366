// Package crawl drives the window-by-window harvest of declarations.
package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DeafMist/decl-radar/backend/internal/classify"
	"github.com/DeafMist/decl-radar/backend/internal/dedupe"
	"github.com/DeafMist/decl-radar/backend/internal/models"
	"github.com/DeafMist/decl-radar/backend/internal/registry"
	"github.com/DeafMist/decl-radar/backend/internal/sink"
	"github.com/DeafMist/decl-radar/backend/internal/window"
)

// ErrListing marks a run abandoned because a listing page could not be read.
// The window it happened in is left incomplete.
var ErrListing = errors.New("listing failed")

// Registry is the remote side of a crawl.
type Registry interface {
	List(ctx context.Context, start, end int64, page int) (registry.Page, error)
	Fetch(ctx context.Context, id string) (models.Detail, error)
}

// Ledger tracks completed windows.
type Ledger interface {
	IsComplete(w window.Window) bool
	MarkComplete(w window.Window) error
}

// Config holds the fixed crawl parameters.
type Config struct {
	EmployerCode  string
	EmployerName  string
	PageSize      int
	ItemDelay     time.Duration
	PermalinkBase string
}

// Stats counts what a run did.
type Stats struct {
	WindowsDone    int
	WindowsSkipped int
	Pages          int
	Items          int
	Duplicates     int
	OffTarget      int
	Emitted        int
	Flagged        int
	Failed         int
}

func (s Stats) attrs() []any {
	return []any{
		slog.Int("windows_done", s.WindowsDone),
		slog.Int("windows_skipped", s.WindowsSkipped),
		slog.Int("pages", s.Pages),
		slog.Int("items", s.Items),
		slog.Int("duplicates", s.Duplicates),
		slog.Int("off_target", s.OffTarget),
		slog.Int("emitted", s.Emitted),
		slog.Int("flagged", s.Flagged),
		slog.Int("failed", s.Failed),
	}
}

// Controller processes windows strictly in order, one item at a time.
type Controller struct {
	reg      Registry
	ledger   Ledger
	seen     *dedupe.Index
	out      sink.Sink
	cfg      Config
	log      *slog.Logger
	classify func(models.Detail) classify.Verdict
	sleep    func(ctx context.Context, d time.Duration) error
	stats    Stats
}

// New wires a controller. seen must already hold every id in the output.
func New(reg Registry, ledger Ledger, seen *dedupe.Index, out sink.Sink, cfg Config, log *slog.Logger) *Controller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	cfg.EmployerCode = strings.TrimSpace(cfg.EmployerCode)
	cfg.EmployerName = strings.TrimSpace(cfg.EmployerName)
	return &Controller{
		reg:      reg,
		ledger:   ledger,
		seen:     seen,
		out:      out,
		cfg:      cfg,
		log:      log,
		classify: classify.Classify,
		sleep:    sleepCtx,
	}
}

// Run crawls every window not yet in the ledger. It stops at the first
// listing failure or when ctx is done; the window being crawled at that point
// is not marked complete.
func (c *Controller) Run(ctx context.Context, windows []window.Window) (Stats, error) {
	for _, w := range windows {
		if c.ledger.IsComplete(w) {
			c.log.Info("window already processed, skipping", slog.String("window", w.String()))
			c.stats.WindowsSkipped++
			continue
		}

		c.log.Info("processing window", slog.String("window", w.String()))
		if err := c.crawlWindow(ctx, w); err != nil {
			c.log.Warn("run stopped early", c.stats.attrs()...)
			return c.stats, err
		}

		if err := c.ledger.MarkComplete(w); err != nil {
			c.log.Error("record window progress", slog.String("window", w.String()), slog.Any("err", err))
		}
		c.stats.WindowsDone++
	}

	c.log.Info("all windows processed", c.stats.attrs()...)
	return c.stats, nil
}

func (c *Controller) crawlWindow(ctx context.Context, w window.Window) error {
	start, end := w.UnixRange()

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		pg, err := c.reg.List(ctx, start, end, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			c.log.Error("list page failed, abandoning run",
				slog.String("window", w.String()),
				slog.Int("page", page),
				slog.Any("err", err),
			)
			return fmt.Errorf("%w: window %s page %d: %w", ErrListing, w, page, err)
		}
		c.stats.Pages++

		if len(pg.Items) == 0 {
			return nil
		}

		for _, raw := range pg.Items {
			fetched := c.processItem(ctx, raw)
			if fetched && c.cfg.ItemDelay > 0 {
				if err := c.sleep(ctx, c.cfg.ItemDelay); err != nil {
					return err
				}
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if more, ok := pg.HasMore(); ok {
			if !more {
				return nil
			}
		} else if len(pg.Items) < c.cfg.PageSize {
			return nil
		}
	}
}

// processItem handles one listing entry and reports whether it reached the
// registry for the full declaration. Failures are logged and swallowed.
func (c *Controller) processItem(ctx context.Context, raw json.RawMessage) (fetched bool) {
	c.stats.Items++
	defer func() {
		if r := recover(); r != nil {
			c.itemFailed("", fmt.Errorf("panic: %v", r))
		}
	}()

	var s models.Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		c.itemFailed("", fmt.Errorf("decode item: %w", err))
		return false
	}
	if s.ID == "" {
		c.itemFailed("", errors.New("item without id"))
		return false
	}
	if c.seen.Contains(s.ID) {
		c.stats.Duplicates++
		return false
	}

	person := s.Person()
	if !c.isTarget(person) {
		c.stats.OffTarget++
		return false
	}

	date, err := models.FormatSubmissionDate(s.Date)
	if err != nil {
		c.itemFailed(s.ID, err)
		return false
	}

	detail, err := c.reg.Fetch(ctx, s.ID)
	if err != nil {
		c.itemFailed(s.ID, fmt.Errorf("fetch declaration: %w", err))
		return true
	}

	verdict := c.classify(detail)
	row := models.Row{
		FullName:       person.FullName(),
		JobTitle:       person.WorkPost,
		Workplace:      person.WorkPlace,
		DeclarationID:  s.ID,
		SubmissionDate: date,
		Related:        verdict.Related,
		Permalink:      c.permalink(s.ID),
	}
	if verdict.Related {
		row.Reason = verdict.Reason
	}

	if err := c.out.Append(ctx, row); err != nil {
		c.itemFailed(s.ID, err)
		return true
	}
	c.seen.Add(s.ID)
	c.stats.Emitted++

	attrs := []any{
		slog.String("name", row.FullName),
		slog.String("date", row.SubmissionDate),
		slog.String("declaration_id", row.DeclarationID),
	}
	if row.Related {
		c.stats.Flagged++
		c.log.Warn("flagged declaration", append(attrs, slog.String("reason", row.Reason))...)
	} else {
		if verdict.Reason != "" {
			attrs = append(attrs, slog.String("classifier", verdict.Reason))
		}
		c.log.Info("clean declaration", attrs...)
	}
	return true
}

// isTarget matches the registration code exactly or the employer name
// ignoring case.
func (c *Controller) isTarget(p models.Declarant) bool {
	if c.cfg.EmployerCode != "" && strings.TrimSpace(p.WorkPlaceEDR) == c.cfg.EmployerCode {
		return true
	}
	return c.cfg.EmployerName != "" && strings.EqualFold(strings.TrimSpace(p.WorkPlace), c.cfg.EmployerName)
}

func (c *Controller) permalink(id string) string {
	return strings.TrimSuffix(c.cfg.PermalinkBase, "/") + "/" + id
}

func (c *Controller) itemFailed(id string, err error) {
	c.stats.Failed++
	c.log.Warn("item processing failed", slog.String("declaration_id", id), slog.Any("err", err))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
