// Package resolver reverses the crawl link graph. It indexes the pages whose
// own fetch failed and then scans every edge to find the origin pages that
// link to them.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lukemcguire/zombietrail/record"
	"github.com/lukemcguire/zombietrail/result"
)

// Phase is a state of a resolution run.
type Phase int

const (
	PhaseIndexing Phase = iota
	PhaseResolving
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIndexing:
		return "indexing"
	case PhaseResolving:
		return "resolving"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Strategy selects how the second phase reads the edges.
type Strategy string

const (
	// StrategyAuto buffers edges while memory allows and falls back to a
	// second read of the source otherwise.
	StrategyAuto Strategy = "auto"
	// StrategyTwoPass reads the source once per phase.
	StrategyTwoPass Strategy = "two-pass"
	// StrategyBuffered keeps every edge in memory after the first read.
	StrategyBuffered Strategy = "buffered"
)

// ParseStrategy validates a strategy name. The empty string means auto.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(name))); s {
	case "":
		return StrategyAuto, nil
	case StrategyAuto, StrategyTwoPass, StrategyBuffered:
		return s, nil
	default:
		return "", fmt.Errorf("unknown resolver strategy %q (want auto, two-pass or buffered)", name)
	}
}

// Config controls a resolution run.
type Config struct {
	BrokenStatuses record.StatusSet // Origin statuses that make a page failing
	Strategy       Strategy
	MemoryLimitMB  int64 // Heap budget for StrategyAuto
	CheckEvery     int   // Records between memory checks for StrategyAuto
}

// PhaseEvent reports a phase transition.
type PhaseEvent struct {
	Phase        Phase
	Records      int  // Records scanned so far
	FailingPages int  // Index size, known from PhaseResolving on
	Broken       int  // Resolved links, known at PhaseDone
	Passes       int  // Reads of the source so far
	Fallback     bool // Buffer was dropped for a second pass
}

// Resolver runs the indexing and resolving phases over a record source.
type Resolver struct {
	cfg        Config
	log        zerolog.Logger
	watcher    *MemoryWatcher
	progressCh chan<- PhaseEvent
}

// New creates a Resolver. The progressCh parameter is optional; pass nil to
// disable phase events.
func New(cfg Config, log zerolog.Logger, progressCh chan<- PhaseEvent) *Resolver {
	if cfg.BrokenStatuses.Len() == 0 {
		cfg.BrokenStatuses = record.DefaultBrokenStatuses()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyAuto
	}
	if cfg.MemoryLimitMB <= 0 {
		cfg.MemoryLimitMB = 512
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = 1000
	}
	return &Resolver{
		cfg:        cfg,
		log:        log.With().Str("component", "resolver").Logger(),
		watcher:    NewMemoryWatcher(cfg.MemoryLimitMB),
		progressCh: progressCh,
	}
}

// Watcher exposes the memory watcher used by StrategyAuto.
func (r *Resolver) Watcher() *MemoryWatcher {
	return r.watcher
}

// Run indexes src, resolves its edges and returns the broken links. An
// error from either phase aborts the run and no partial result is returned.
func (r *Resolver) Run(ctx context.Context, src record.Source) (*result.Result, error) {
	start := time.Now()
	stats := result.ResolveStats{}

	r.emit(ctx, PhaseEvent{Phase: PhaseIndexing})
	r.log.Info().Str("strategy", string(r.cfg.Strategy)).Stringer("broken_statuses", r.cfg.BrokenStatuses).Msg("indexing failing pages")

	builder := newIndexBuilder(r.cfg.BrokenStatuses)
	buf := &edgeBuffer{enabled: r.cfg.Strategy != StrategyTwoPass}
	err := src.Scan(ctx, func(rec record.Record) error {
		builder.add(rec)
		buf.add(rec)
		if r.cfg.Strategy == StrategyAuto && buf.enabled && builder.scanned%r.cfg.CheckEvery == 0 {
			r.checkMemory(buf, builder.scanned)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build failing page index: %w", err)
	}
	ix := builder.build()
	stats.Passes = 1
	stats.RecordsScanned = builder.scanned
	stats.FailingPages = ix.Len()

	r.emit(ctx, PhaseEvent{
		Phase:        PhaseResolving,
		Records:      stats.RecordsScanned,
		FailingPages: stats.FailingPages,
		Passes:       stats.Passes,
		Fallback:     buf.droppedAt > 0,
	})
	r.log.Info().Int("records", stats.RecordsScanned).Int("failing_pages", stats.FailingPages).Msg("resolving edges")
	if evt := r.log.Trace(); evt.Enabled() {
		evt.Strs("urls", ix.URLs()).Msg("failing page index")
	}

	second := record.Source(buf.edges)
	if !buf.enabled {
		second = src
		stats.Passes++
	}
	links := []result.ResolvedLink{}
	err = second.Scan(ctx, func(rec record.Record) error {
		if _, ok := rec.(record.Edge); ok {
			stats.EdgesScanned++
		}
		if link, ok := resolveEdge(rec, ix); ok {
			links = append(links, link)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve edges: %w", err)
	}

	stats.BrokenCount = len(links)
	stats.AffectedOrigins = countOrigins(links)
	stats.Duration = time.Since(start)

	r.emit(ctx, PhaseEvent{
		Phase:        PhaseDone,
		Records:      stats.RecordsScanned,
		FailingPages: stats.FailingPages,
		Broken:       stats.BrokenCount,
		Passes:       stats.Passes,
		Fallback:     buf.droppedAt > 0,
	})
	r.log.Info().
		Int("broken_links", stats.BrokenCount).
		Int("affected_origins", stats.AffectedOrigins).
		Int("passes", stats.Passes).
		Dur("duration", stats.Duration).
		Msg("resolution complete")

	return &result.Result{BrokenLinks: links, Stats: stats}, nil
}

// checkMemory drops the edge buffer once heap use reaches the warning level.
func (r *Resolver) checkMemory(buf *edgeBuffer, scanned int) {
	usedPercent, level := r.watcher.Check()
	if level < PressureWarning {
		return
	}
	buf.drop(scanned)
	r.log.Warn().
		Float64("heap_percent", usedPercent).
		Stringer("level", level).
		Int("records", scanned).
		Msg("edge buffer dropped, falling back to a second pass")
}

func (r *Resolver) emit(ctx context.Context, evt PhaseEvent) {
	if r.progressCh == nil {
		return
	}
	select {
	case r.progressCh <- evt:
	case <-ctx.Done():
	}
}

// edgeBuffer holds the edges seen during indexing so the resolving phase
// does not have to read the source again.
type edgeBuffer struct {
	enabled   bool
	edges     record.Records
	droppedAt int
}

func (b *edgeBuffer) add(rec record.Record) {
	if !b.enabled {
		return
	}
	if _, ok := rec.(record.Edge); ok {
		b.edges = append(b.edges, rec)
	}
}

func (b *edgeBuffer) drop(scanned int) {
	b.enabled = false
	b.edges = nil
	b.droppedAt = scanned
}

func countOrigins(links []result.ResolvedLink) int {
	seen := make(map[string]struct{})
	for _, link := range links {
		seen[link.OriginURL] = struct{}{}
	}
	return len(seen)
}
