// Package worker implements the per-domain crawl loop: cache lookup,
// paced fetching, extraction, frontier feedback, and client-redirect
// handling. One worker owns one domain; all of its mutable collaborators
// (pacer, fetcher, trust state, extractor) are exclusive to it.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonesrussell/domaincrawl/internal/extract"
	"github.com/jonesrussell/domaincrawl/internal/fetch"
	"github.com/jonesrussell/domaincrawl/internal/logger"
	"github.com/jonesrussell/domaincrawl/internal/urls"
)

// maxAttempts bounds the state machine per seed; client redirects share the
// same budget.
const maxAttempts = 3

// Fetcher performs one paced-from-outside HTTP fetch.
type Fetcher interface {
	Fetch(ctx context.Context, u urls.URL) (*fetch.Response, error)
}

// Pacer gates network fetches. Cache hits bypass it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// ContentCache is the read/write surface the worker needs from the cache.
type ContentCache interface {
	Fetch(u urls.URL) ([]byte, bool)
	StoreBody(u urls.URL, body []byte) error
	StoreHeaders(u urls.URL, headers map[string]string) error
	StoreExtraction(u urls.URL, result json.RawMessage) error
}

// FrontierAppender accepts newly discovered same-domain URLs.
type FrontierAppender interface {
	Append(domain urls.URL, list []urls.URL) error
}

// Stats summarizes one worker run for the final report.
type Stats struct {
	Seeds      int
	Fetched    int
	CacheHits  int
	Extracted  int
	Discovered int
	Errors     int
}

// Worker crawls the seed set of a single registrable domain.
type Worker struct {
	domain    urls.URL
	seeds     []urls.URL
	pacer     Pacer
	cache     ContentCache
	extractor extract.Extractor
	frontier  FrontierAppender
	fetcher   Fetcher
	log       logger.Interface

	// sleep implements the cooperative client-redirect delay.
	sleep func(time.Duration)
}

// New assembles a worker. The seed slice is not copied; it is immutable
// after startup by contract.
func New(
	domain urls.URL,
	seeds []urls.URL,
	pacer Pacer,
	cache ContentCache,
	extractor extract.Extractor,
	frontier FrontierAppender,
	fetcher Fetcher,
	log logger.Interface,
) *Worker {
	return &Worker{
		domain:    domain,
		seeds:     seeds,
		pacer:     pacer,
		cache:     cache,
		extractor: extractor,
		frontier:  frontier,
		fetcher:   fetcher,
		log:       log,
		sleep:     time.Sleep,
	}
}

// Run crawls every seed to completion. Recoverable failures consume
// attempts and move on; Run itself only stops early when the context ends.
func (w *Worker) Run(ctx context.Context) Stats {
	stats := Stats{Seeds: len(w.seeds)}

	for _, seed := range w.seeds {
		if ctx.Err() != nil {
			break
		}
		w.crawlSeed(ctx, seed, &stats)
	}

	return stats
}

// crawlSeed runs the attempt state machine for one seed. The current URL is
// reassigned on client redirects; the attempt budget is shared across them.
func (w *Worker) crawlSeed(ctx context.Context, seed urls.URL, stats *Stats) {
	current := seed

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		w.log.Debug("attempt",
			"domain", w.domain.Canonical(),
			"url", current.Canonical(),
			"sha256", current.Sha256Hex(),
			"n", attempt,
		)

		body, ok := w.lookupOrFetch(ctx, current, stats)
		if !ok {
			continue
		}

		result, err := w.extractor.Process(current, body)
		if err != nil || result == nil {
			if err != nil {
				w.log.Warn("extractor failed", "url", current.Canonical(), "error", err.Error())
			}
			stats.Errors++
			continue
		}

		if storeErr := w.cache.StoreExtraction(current, result.Raw); storeErr != nil {
			w.log.Warn("store extraction failed", "url", current.Canonical(), "error", storeErr.Error())
		}
		stats.Extracted++

		w.feedFrontier(current, result, stats)

		redirect := result.ClientRedirect
		if redirect == nil {
			return // seed done
		}

		current = w.resolveRedirect(current, redirect)
		if redirect.Delay > 0 {
			w.sleep(time.Duration(redirect.Delay) * time.Second)
		}
	}
}

// lookupOrFetch returns the page body from cache, or fetches it. Pacing
// runs before every network fetch but never before a cache hit.
func (w *Worker) lookupOrFetch(ctx context.Context, current urls.URL, stats *Stats) ([]byte, bool) {
	if body, hit := w.cache.Fetch(current); hit {
		stats.CacheHits++
		return body, true
	}

	if err := w.pacer.Wait(ctx); err != nil {
		stats.Errors++
		return nil, false
	}

	resp, err := w.fetcher.Fetch(ctx, current)
	if err != nil {
		w.log.Warn("fetch failed", "url", current.Canonical(), "error", err.Error())
		stats.Errors++
		return nil, false
	}

	if !resp.IsOkay() {
		w.log.Debug("fetch not okay", "url", current.Canonical(), "status", resp.Status)
		stats.Errors++
		return nil, false
	}

	stats.Fetched++

	if storeErr := w.cache.StoreBody(current, resp.Body); storeErr != nil {
		w.log.Warn("store body failed", "url", current.Canonical(), "error", storeErr.Error())
	}
	if storeErr := w.cache.StoreHeaders(current, resp.HeaderMap()); storeErr != nil {
		w.log.Warn("store headers failed", "url", current.Canonical(), "error", storeErr.Error())
	}

	return resp.Body, true
}

// feedFrontier resolves the extracted links against the current URL and
// appends the same-domain ones; everything else is silently dropped. A
// result without urls leaves the frontier untouched.
func (w *Worker) feedFrontier(current urls.URL, result *extract.Result, stats *Stats) {
	if len(result.URLs) == 0 {
		return
	}

	var discovered []urls.URL
	for _, raw := range result.URLs {
		resolved := current.Resolve(raw)
		if !resolved.IsValid() {
			continue
		}
		if resolved.RegistrableDomain() != w.domain.Host() {
			continue
		}
		discovered = append(discovered, resolved)
	}

	if len(discovered) == 0 {
		return
	}

	if err := w.frontier.Append(w.domain, discovered); err != nil {
		w.log.Warn("frontier append failed", "domain", w.domain.Canonical(), "error", err.Error())
		return
	}
	stats.Discovered += len(discovered)
}

// resolveRedirect computes the next URL: against the explicit base when the
// directive carries one, else against the current URL.
func (w *Worker) resolveRedirect(current urls.URL, redirect *extract.ClientRedirect) urls.URL {
	if redirect.Base != "" {
		return urls.Parse(redirect.Base).Resolve(redirect.URL)
	}
	return current.Resolve(redirect.URL)
}
