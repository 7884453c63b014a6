// Package supervisor wires the crawl run: it partitions the loaded frontier
// by registrable domain, spawns one worker per allowed domain under a
// bounded admission gate, isolates worker panics, and reports per-domain
// outcomes. Permit release is scope-guaranteed on every exit path.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/sync/semaphore"

	"github.com/jonesrussell/domaincrawl/internal/cache"
	"github.com/jonesrussell/domaincrawl/internal/config"
	"github.com/jonesrussell/domaincrawl/internal/extract"
	"github.com/jonesrussell/domaincrawl/internal/fetch"
	"github.com/jonesrussell/domaincrawl/internal/frontier"
	"github.com/jonesrussell/domaincrawl/internal/logger"
	"github.com/jonesrussell/domaincrawl/internal/trust"
	"github.com/jonesrussell/domaincrawl/internal/urls"
	"github.com/jonesrussell/domaincrawl/internal/useragent"
	"github.com/jonesrussell/domaincrawl/internal/worker"
)

// pollInterval is the completion-polling resolution; idle ticks log the
// domains still in flight.
const pollInterval = 250 * time.Millisecond

// ErrFrontierEmpty is returned when the frontier loads no URLs at all.
var ErrFrontierEmpty = errors.New("supervisor: no URLs configured in the frontier")

// domainResult is one finished worker, successful or not.
type domainResult struct {
	domain string
	stats  worker.Stats
	err    error
}

// Supervisor owns a single crawl run.
type Supervisor struct {
	cfg      *config.Config
	frontier *frontier.Store
	cache    *cache.Cache
	log      logger.Interface
	out      io.Writer

	// runDomain executes one domain batch; swapped in tests.
	runDomain func(ctx context.Context, batch *frontier.DomainBatch) (worker.Stats, error)
}

// New assembles a supervisor over an opened frontier store and cache.
func New(cfg *config.Config, store *frontier.Store, contentCache *cache.Cache, log logger.Interface) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		frontier: store,
		cache:    contentCache,
		log:      log,
		out:      os.Stdout,
	}
	s.runDomain = s.crawlDomain
	return s
}

// ParseAllowList lowercases each argument, parses it as a URL, and reduces
// it to a registrable domain. An empty argument list allows every domain.
func ParseAllowList(args []string) map[string]bool {
	if len(args) == 0 {
		return nil
	}

	allowed := make(map[string]bool, len(args))
	for _, arg := range args {
		u := urls.Parse(strings.ToLower(arg))
		key := u.RegistrableDomain()
		if key == "" {
			key = u.Host()
		}
		if key != "" {
			allowed[key] = true
		}
	}

	return allowed
}

// Run loads the frontier, spawns workers for every allowed domain, and
// waits for all of them. Worker failures are reported per domain and never
// abort the run; an error is returned only when the frontier fails to load
// or is empty, or when the context ends before every worker has started.
func (s *Supervisor) Run(ctx context.Context, allowed map[string]bool) error {
	batches, err := s.frontier.Load()
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		return ErrFrontierEmpty
	}

	for key, batch := range batches {
		batch.RateLimit = s.cfg.RateLimit(key)
	}

	selected := selectBatches(batches, allowed)
	if len(selected) == 0 {
		s.log.Warn("allow-list matched no configured domains")
		return nil
	}

	permits := int64(max(1, runtime.NumCPU()))
	gate := semaphore.NewWeighted(permits)

	results := make(chan domainResult, len(selected))

	for _, batch := range selected {
		if acquireErr := gate.Acquire(ctx, 1); acquireErr != nil {
			return fmt.Errorf("supervisor: acquire permit: %w", acquireErr)
		}

		s.log.Info("crawler starting", "domain", batch.Domain.Canonical())
		go s.spawn(ctx, gate, batch, results)
	}

	finished := s.await(ctx, selected, results)
	s.printSummary(finished)

	return nil
}

// spawn runs one worker goroutine. The permit is released on every exit
// path, panics included; a panicked worker is reported like any failure.
func (s *Supervisor) spawn(
	ctx context.Context,
	gate *semaphore.Weighted,
	batch *frontier.DomainBatch,
	results chan<- domainResult,
) {
	defer gate.Release(1)

	domain := batch.Domain.Canonical()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("crawler panicked", "domain", domain, "panic", fmt.Sprint(r))
			results <- domainResult{domain: domain, err: fmt.Errorf("panic: %v", r)}
		}
	}()

	stats, err := s.runDomain(ctx, batch)
	if err != nil {
		s.log.Error("crawler failed", "domain", domain, "error", err.Error())
	} else {
		s.log.Info("crawler finished", "domain", domain)
	}

	results <- domainResult{domain: domain, stats: stats, err: err}
}

// await collects completions at the polling resolution, logging in-flight
// domains on every idle tick.
func (s *Supervisor) await(ctx context.Context, selected []*frontier.DomainBatch, results <-chan domainResult) []domainResult {
	inFlight := make(map[string]bool, len(selected))
	for _, batch := range selected {
		inFlight[batch.Domain.Canonical()] = true
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	finished := make([]domainResult, 0, len(selected))
	progressed := false

	for len(inFlight) > 0 {
		select {
		case result := <-results:
			delete(inFlight, result.domain)
			finished = append(finished, result)
			progressed = true

		case <-ticker.C:
			if !progressed {
				domains := make([]string, 0, len(inFlight))
				for domain := range inFlight {
					domains = append(domains, domain)
				}
				sort.Strings(domains)
				s.log.Info("waiting on domains", "count", len(domains), "domains", strings.Join(domains, ", "))
			}
			progressed = false
		}
	}

	return finished
}

// crawlDomain is the production per-domain task: script lookup, trust and
// fetch wiring, then the worker loop.
func (s *Supervisor) crawlDomain(ctx context.Context, batch *frontier.DomainBatch) (worker.Stats, error) {
	domain := batch.Domain

	extractor, err := extract.NewLuaExtractor(s.cfg.ScriptDir, domain)
	if err != nil {
		return worker.Stats{}, err
	}
	defer extractor.Close()

	if !extractor.HasScript() {
		s.log.Warn("no extraction script", "domain", domain.Canonical())
		return worker.Stats{Seeds: len(batch.Seeds)}, nil
	}

	trustStore, err := trust.NewStore(s.cfg.PemDir, s.baseCAPath())
	if err != nil {
		return worker.Stats{}, err
	}

	agents := useragent.Default()
	if s.cfg.UserAgentList != "" {
		agents, err = useragent.Load(s.cfg.UserAgentList)
		if err != nil {
			return worker.Stats{}, err
		}
	}

	fetcher, err := fetch.NewFetcher(trustStore, agents, s.log)
	if err != nil {
		return worker.Stats{}, err
	}

	pacer := fetch.NewRateGate(batch.RateLimit)

	w := worker.New(domain, batch.Seeds, pacer, s.cache, extractor, s.frontier, fetcher, s.log)

	return w.Run(ctx), nil
}

func (s *Supervisor) baseCAPath() string {
	if s.cfg.CABundlePath != "" {
		return s.cfg.CABundlePath
	}

	path, err := trust.SystemBundlePath()
	if err != nil {
		s.log.Warn("no system CA bundle found; using process defaults")
		return ""
	}
	return path
}

// selectBatches filters by the allow-list and orders deterministically by
// domain.
func selectBatches(batches map[string]*frontier.DomainBatch, allowed map[string]bool) []*frontier.DomainBatch {
	var selected []*frontier.DomainBatch
	for key, batch := range batches {
		if allowed != nil && !allowed[key] {
			continue
		}
		selected = append(selected, batch)
	}

	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Domain.Less(selected[j].Domain)
	})

	return selected
}

// printSummary renders the final per-domain report.
func (s *Supervisor) printSummary(finished []domainResult) {
	sort.Slice(finished, func(i, j int) bool { return finished[i].domain < finished[j].domain })

	t := table.NewWriter()
	t.SetOutputMirror(s.out)
	t.AppendHeader(table.Row{"Domain", "Seeds", "Fetched", "Cached", "Discovered", "Errors", "Status"})

	for _, result := range finished {
		status := "ok"
		if result.err != nil {
			status = result.err.Error()
		}
		t.AppendRow(table.Row{
			result.domain,
			result.stats.Seeds,
			result.stats.Fetched,
			result.stats.CacheHits,
			result.stats.Discovered,
			result.stats.Errors,
			status,
		})
	}

	t.Render()
}
