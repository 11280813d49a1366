// Package progress keeps the durable ledger of fully crawled windows.
package progress

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/DeafMist/decl-radar/backend/internal/window"
)

const legacyDateLayout = "2006-01-02"

// State is the on-disk shape of the ledger. LegacyRanges is only read: files
// written by the older script use the snake_case key with date-only bounds.
type State struct {
	CompletedRanges [][2]string `json:"completedRanges"`
	LegacyRanges    [][2]string `json:"completed_ranges,omitempty"`
}

type key struct {
	start int64
	end   int64
}

// Ledger records which windows were fully processed. The whole state is
// rewritten on every MarkComplete.
type Ledger struct {
	mu   sync.Mutex
	path string
	done map[key]window.Window
	log  *slog.Logger
}

// Open loads the ledger stored at path. A missing or unreadable file yields an
// empty ledger; the problem is logged and never returned.
func Open(path string, log *slog.Logger) *Ledger {
	l := &Ledger{path: path, done: make(map[key]window.Window), log: log}
	for _, w := range l.load() {
		l.done[keyOf(w)] = w
	}
	return l
}

// IsComplete reports whether w was marked complete, by exact bounds.
func (l *Ledger) IsComplete(w window.Window) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.done[keyOf(w)]
	return ok
}

// MarkComplete adds w and persists the full state before returning. Entries
// with the same start and an earlier end are dropped: they are the clamped
// trailing month of earlier runs and are never asked about again.
func (l *Ledger) MarkComplete(w window.Window) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := keyOf(w)
	if _, ok := l.done[k]; ok {
		return nil
	}

	superseded := make(map[key]window.Window)
	for old, ow := range l.done {
		if old.start == k.start && old.end < k.end {
			superseded[old] = ow
			delete(l.done, old)
		}
	}
	l.done[k] = w
	if err := l.save(); err != nil {
		delete(l.done, k)
		for old, ow := range superseded {
			l.done[old] = ow
		}
		return err
	}
	return nil
}

// Completed returns the completed windows, oldest first.
func (l *Ledger) Completed() []window.Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sorted()
}

func (l *Ledger) sorted() []window.Window {
	out := make([]window.Window, 0, len(l.done))
	for _, w := range l.done {
		out = append(out, w)
	}
	sortWindows(out)
	return out
}

func (l *Ledger) load() []window.Window {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.log.Warn("read progress, starting fresh", slog.String("path", l.path), slog.Any("err", err))
		}
		return nil
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		l.log.Warn("corrupt progress, starting fresh", slog.String("path", l.path), slog.Any("err", err))
		return nil
	}

	ranges := append(st.CompletedRanges, st.LegacyRanges...)
	out := make([]window.Window, 0, len(ranges))
	for _, r := range ranges {
		w, err := parseRange(r)
		if err != nil {
			l.log.Warn("skip progress entry", slog.Any("range", r), slog.Any("err", err))
			continue
		}
		out = append(out, w)
	}
	return out
}

func (l *Ledger) save() error {
	st := State{CompletedRanges: make([][2]string, 0, len(l.done))}
	for _, w := range l.sorted() {
		st.CompletedRanges = append(st.CompletedRanges, [2]string{
			w.Start.UTC().Format(time.RFC3339),
			w.End.UTC().Format(time.RFC3339),
		})
	}

	payload, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create progress dir: %w", err)
		}
	}
	if err := os.WriteFile(l.path, payload, 0o644); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}

// parseRange accepts RFC 3339 instants as well as bare YYYY-MM-DD dates. A
// bare end date covers its whole day.
func parseRange(r [2]string) (window.Window, error) {
	start, err := time.Parse(time.RFC3339, r[0])
	if err != nil {
		start, err = time.Parse(legacyDateLayout, r[0])
		if err != nil {
			return window.Window{}, fmt.Errorf("parse start %q: %w", r[0], err)
		}
	}
	end, err := time.Parse(time.RFC3339, r[1])
	if err != nil {
		end, err = time.Parse(legacyDateLayout, r[1])
		if err != nil {
			return window.Window{}, fmt.Errorf("parse end %q: %w", r[1], err)
		}
		end = end.Add(24*time.Hour - time.Second)
	}
	if end.Before(start) {
		return window.Window{}, fmt.Errorf("end %q before start %q", r[1], r[0])
	}
	return window.Window{Start: start.UTC(), End: end.UTC()}, nil
}

func keyOf(w window.Window) key {
	return key{start: w.Start.Unix(), end: w.End.Unix()}
}

func sortWindows(ws []window.Window) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].Start.Equal(ws[j].Start) {
			return ws[i].End.Before(ws[j].End)
		}
		return ws[i].Start.Before(ws[j].Start)
	})
}
