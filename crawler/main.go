package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/decl-radar/backend/internal/config"
	"github.com/DeafMist/decl-radar/backend/internal/crawl"
	"github.com/DeafMist/decl-radar/backend/internal/dedupe"
	"github.com/DeafMist/decl-radar/backend/internal/elasticsearch"
	"github.com/DeafMist/decl-radar/backend/internal/events"
	"github.com/DeafMist/decl-radar/backend/internal/logger"
	"github.com/DeafMist/decl-radar/backend/internal/progress"
	"github.com/DeafMist/decl-radar/backend/internal/registry"
	"github.com/DeafMist/decl-radar/backend/internal/sink"
	"github.com/DeafMist/decl-radar/backend/internal/window"
)

func main() {
	log := logger.New("crawler")
	if err := config.LoadDotEnv(); err != nil {
		log.Warn("dotenv", slog.Any("err", err))
	}
	cfg, err := config.LoadCrawler()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	runID := uuid.NewString()
	log = log.With("run_id", runID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if code := exitCode(log, run(ctx, log, cfg, runID, time.Now())); code != 0 {
		os.Exit(code)
	}
}

// exitCode logs how the run ended. An abandoned listing leaves the ledger
// consistent and is not a process failure; only startup problems are.
func exitCode(log *slog.Logger, err error) int {
	switch {
	case err == nil:
		log.Info("crawl finished")
		return 0
	case errors.Is(err, context.Canceled):
		log.Info("crawl interrupted, progress kept")
		return 0
	case errors.Is(err, crawl.ErrListing):
		log.Error("crawl aborted", slog.Any("err", err))
		return 0
	default:
		log.Error("crawl failed", slog.Any("err", err))
		return 1
	}
}

func run(ctx context.Context, log *slog.Logger, cfg *config.Crawler, runID string, now time.Time) error {
	csvOut := sink.CSV{Path: cfg.CSVPath}
	xlsxOut := sink.XLSX{Path: cfg.XLSXPath}

	copied, err := sink.Reconcile(ctx, log, csvOut, xlsxOut)
	if err != nil {
		return fmt.Errorf("reconcile outputs: %w", err)
	}
	if copied > 0 {
		log.Warn("outputs were out of sync, missing rows restored", slog.Int("rows", copied))
	}

	ids, err := sink.ExistingIDs(csvOut, xlsxOut)
	if err != nil {
		return fmt.Errorf("seed dedup index: %w", err)
	}
	seen := dedupe.NewIndex()
	seen.Seed(ids)
	log.Info("dedup index seeded", slog.Int("ids", seen.Len()))

	out := &sink.Fanout{Durable: []sink.Sink{csvOut, xlsxOut}, Log: log}

	if cfg.ElasticsearchAddr != "" {
		es, err := connectIndex(ctx, log, cfg)
		if err != nil {
			log.Warn("search index disabled for this run", slog.Any("err", err))
		} else {
			out.Mirrors = append(out.Mirrors, sink.Index{Indexer: es})
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, runID)
		defer func() {
			if err := pub.Close(); err != nil {
				log.Warn("close kafka writer", slog.Any("err", err))
			}
		}()
		out.Mirrors = append(out.Mirrors, sink.Events{Publisher: pub})
		log.Info("publishing flagged declarations", slog.String("topic", cfg.KafkaTopic))
	}

	reg, err := registry.New(registry.Config{
		ListURL:    cfg.ListURL,
		DocURL:     cfg.DocURL,
		Timeout:    cfg.HTTPTimeout,
		MaxRetries: cfg.ListMaxRetries,
	}, log)
	if err != nil {
		return err
	}

	ledger := progress.Open(cfg.ProgressPath, log)
	windows := window.Monthly(cfg.LookbackYears, now)
	log.Info("crawl started",
		slog.Int("windows", len(windows)),
		slog.Int("lookback_years", cfg.LookbackYears),
	)

	ctrl := crawl.New(reg, ledger, seen, out, crawl.Config{
		EmployerCode:  cfg.EmployerCode,
		EmployerName:  cfg.EmployerName,
		PageSize:      cfg.PageSize,
		ItemDelay:     cfg.ItemDelay,
		PermalinkBase: cfg.PermalinkBase,
	}, log)

	_, err = ctrl.Run(ctx, windows)
	return err
}

func connectIndex(ctx context.Context, log *slog.Logger, cfg *config.Crawler) (*elasticsearch.Client, error) {
	es, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := es.Ping(pingCtx); err != nil {
		return nil, err
	}
	return es, nil
}
