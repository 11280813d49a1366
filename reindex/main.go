package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/DeafMist/decl-radar/backend/internal/config"
	"github.com/DeafMist/decl-radar/backend/internal/elasticsearch"
	"github.com/DeafMist/decl-radar/backend/internal/logger"
	"github.com/DeafMist/decl-radar/backend/internal/models"
	"github.com/DeafMist/decl-radar/backend/internal/sink"
)

type rowIndexer interface {
	IndexRow(ctx context.Context, row models.Row) error
}

func main() {
	log := logger.New("reindex")
	if err := config.LoadDotEnv(); err != nil {
		log.Warn("dotenv", slog.Any("err", err))
	}
	cfg, err := config.LoadReindex()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * time.Second
	policy.MaxInterval = 30 * time.Second
	esClient, err := connect(ctx, log, cfg.ElasticsearchAddr, cfg.ElasticsearchIndex,
		backoff.WithMaxRetries(policy, 10))
	if err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("failed to connect to elasticsearch after retries", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("connected to elasticsearch")

	rows, err := sink.CSV{Path: cfg.CSVPath}.Rows()
	if err != nil {
		log.Error("read csv", slog.String("path", cfg.CSVPath), slog.Any("err", err))
		os.Exit(1)
	}

	indexed, failed := reindex(ctx, log, esClient, rows)
	log.Info("reindex finished",
		slog.Int("rows", len(rows)),
		slog.Int("indexed", indexed),
		slog.Int("failed", failed),
	)
	if failed > 0 {
		os.Exit(1)
	}
}

// connect builds a client and pings it until it answers or policy gives up.
func connect(ctx context.Context, log *slog.Logger, addr, index string, policy backoff.BackOff) (*elasticsearch.Client, error) {
	var es *elasticsearch.Client
	op := func() error {
		c, err := elasticsearch.New(addr, index, log)
		if err != nil {
			return backoff.Permanent(err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := c.Ping(pingCtx); err != nil {
			return err
		}
		es = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("elasticsearch not ready, retrying",
			slog.Duration("retry_in", wait),
			slog.Any("err", err),
		)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, err
	}
	return es, nil
}

// reindex upserts every row, continuing past individual failures.
func reindex(ctx context.Context, log *slog.Logger, idx rowIndexer, rows []models.Row) (indexed, failed int) {
	for _, row := range rows {
		if ctx.Err() != nil {
			return indexed, len(rows) - indexed
		}
		if err := idx.IndexRow(ctx, row); err != nil {
			log.Warn("index row failed", slog.String("declaration_id", row.DeclarationID), slog.Any("err", err))
			failed++
			continue
		}
		indexed++
	}
	return indexed, failed
}
