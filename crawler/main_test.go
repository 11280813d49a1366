package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/decl-radar/backend/internal/config"
	"github.com/DeafMist/decl-radar/backend/internal/crawl"
	"github.com/DeafMist/decl-radar/backend/internal/logger"
	"github.com/DeafMist/decl-radar/backend/internal/models"
	"github.com/DeafMist/decl-radar/backend/internal/progress"
	"github.com/DeafMist/decl-radar/backend/internal/sink"
)

const listing = `{"data": [
	{"id": "X1", "date": "2024-01-20T08:00:00+00:00", "data": {"step_1": {"data": {
		"lastname": "Мельник", "firstname": "Андрій", "middlename": "Іванович",
		"workPost": "директор департаменту", "workPlace": "Національний банк України",
		"workPlaceEdrpou": "00032106"}}}},
	{"id": "Z9", "date": "2024-01-21T08:00:00+00:00", "data": {"step_1": {"data": {
		"lastname": "Ткач", "firstname": "Марія",
		"workPost": "бухгалтер", "workPlace": "ТОВ Ромашка",
		"workPlaceEdrpou": "12345678"}}}}
]}`

func TestRunEndToEnd(t *testing.T) {
	var (
		lists, docs atomic.Int32
		mu          sync.Mutex
		docPaths    []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/list":
			lists.Add(1)
			if r.URL.Query().Get("start_date") == "1704067200" && r.URL.Query().Get("page") == "1" {
				_, _ = w.Write([]byte(listing))
				return
			}
			_, _ = w.Write([]byte(`{"data": []}`))
		case strings.HasPrefix(r.URL.Path, "/docs/"):
			docs.Add(1)
			mu.Lock()
			docPaths = append(docPaths, r.URL.Path)
			mu.Unlock()
			_, _ = w.Write([]byte(`{"data": {"step_1": {"data": {"actual_country": "180"}}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := &config.Crawler{
		ListURL:        srv.URL + "/list",
		DocURL:         srv.URL + "/docs/",
		PermalinkBase:  "https://public.nazk.gov.ua/declaration/",
		EmployerCode:   "00032106",
		EmployerName:   "національний банк україни",
		LookbackYears:  1,
		PageSize:       100,
		HTTPTimeout:    time.Second,
		ListMaxRetries: 0,
		CSVPath:        filepath.Join(dir, "out.csv"),
		XLSXPath:       filepath.Join(dir, "out.xlsx"),
		ProgressPath:   filepath.Join(dir, "progress.json"),
	}
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, run(context.Background(), logger.Discard(), cfg, "run-1", now))

	require.Equal(t, int32(13), lists.Load())
	require.Equal(t, int32(1), docs.Load())
	mu.Lock()
	require.Equal(t, []string{"/docs/X1"}, docPaths)
	mu.Unlock()

	rows, err := sink.CSV{Path: cfg.CSVPath}.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, models.Row{
		FullName:       "Мельник Андрій Іванович",
		JobTitle:       "директор департаменту",
		Workplace:      "Національний банк України",
		DeclarationID:  "X1",
		SubmissionDate: "20-01-2024",
		Related:        true,
		Reason:         "actual_country == 180",
		Permalink:      "https://public.nazk.gov.ua/declaration/X1",
	}, rows[0])

	xlsxIDs, err := sink.XLSX{Path: cfg.XLSXPath}.IDs()
	require.NoError(t, err)
	require.Equal(t, []string{"X1"}, xlsxIDs)

	require.Len(t, progress.Open(cfg.ProgressPath, logger.Discard()).Completed(), 13)

	// Same clock: every window is in the ledger, nothing is requested again.
	require.NoError(t, run(context.Background(), logger.Discard(), cfg, "run-2", now))
	require.Equal(t, int32(13), lists.Load())
	require.Equal(t, int32(1), docs.Load())

	// Lost ledger: windows are crawled again but the output is not duplicated.
	require.NoError(t, run(context.Background(), logger.Discard(), &config.Crawler{
		ListURL: cfg.ListURL, DocURL: cfg.DocURL, PermalinkBase: cfg.PermalinkBase,
		EmployerCode: cfg.EmployerCode, EmployerName: cfg.EmployerName,
		LookbackYears: 1, PageSize: 100, HTTPTimeout: time.Second,
		CSVPath: cfg.CSVPath, XLSXPath: cfg.XLSXPath,
		ProgressPath: filepath.Join(dir, "fresh-progress.json"),
	}, "run-3", now))
	require.Equal(t, int32(26), lists.Load())
	require.Equal(t, int32(1), docs.Load())

	rows, err = sink.CSV{Path: cfg.CSVPath}.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestRunAbortsOnListingFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := &config.Crawler{
		ListURL:       srv.URL + "/list",
		DocURL:        srv.URL + "/docs/",
		PermalinkBase: "https://public.nazk.gov.ua/declaration/",
		EmployerCode:  "00032106",
		LookbackYears: 1,
		PageSize:      100,
		HTTPTimeout:   time.Second,
		CSVPath:       filepath.Join(dir, "out.csv"),
		XLSXPath:      filepath.Join(dir, "out.xlsx"),
		ProgressPath:  filepath.Join(dir, "progress.json"),
	}

	err := run(context.Background(), logger.Discard(), cfg, "run-1", time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, crawl.ErrListing)
	require.Empty(t, progress.Open(cfg.ProgressPath, logger.Discard()).Completed())
	require.Equal(t, 0, exitCode(logger.Discard(), err))
}

func TestExitCode(t *testing.T) {
	log := logger.Discard()
	require.Equal(t, 0, exitCode(log, nil))
	require.Equal(t, 0, exitCode(log, fmt.Errorf("window: %w", context.Canceled)))
	require.Equal(t, 0, exitCode(log, fmt.Errorf("%w: page 1: %w", crawl.ErrListing, errors.New("502"))))
	require.Equal(t, 1, exitCode(log, fmt.Errorf("seed dedup index: %w", errors.New("permission denied"))))
}
