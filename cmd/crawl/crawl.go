// Package crawl implements the crawl command: one run over every allowed
// domain in the configured frontier.
package crawl

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/domaincrawl/internal/cache"
	"github.com/jonesrussell/domaincrawl/internal/config"
	"github.com/jonesrussell/domaincrawl/internal/frontier"
	"github.com/jonesrussell/domaincrawl/internal/logger"
	"github.com/jonesrussell/domaincrawl/internal/supervisor"
)

// ExitCoder carries the process exit code for expected non-fatal outcomes.
type ExitCoder struct {
	Code int
	Err  error
}

func (e *ExitCoder) Error() string { return e.Err.Error() }
func (e *ExitCoder) Unwrap() error { return e.Err }

// Command returns the crawl cobra command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl [DOMAIN ...]",
		Short: "Crawl the configured frontier",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), args)
		},
	}
}

// Run executes one crawl over the allow-listed domains. An empty frontier
// maps to exit code 1; worker failures do not fail the run.
func Run(ctx context.Context, args []string) error {
	log, err := logger.New(logger.ResolveLevel(), "console", false)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log.Info("configuration loaded",
		"cache_dir", cfg.CacheDir,
		"data_dir", cfg.DataDir,
		"script_dir", cfg.ScriptDir,
		"pem_dir", cfg.PemDir,
	)

	store, err := frontier.NewStore(cfg.DataDir)
	if err != nil {
		return err
	}

	contentCache, err := cache.New(cfg.CacheDir, cfg.CacheAge())
	if err != nil {
		return err
	}

	allowed := supervisor.ParseAllowList(args)
	if allowed == nil {
		log.Info("crawling all configured domains")
	} else {
		for domain := range allowed {
			log.Info("crawling domain", "domain", domain)
		}
	}

	s := supervisor.New(cfg, store, contentCache, log)

	runErr := s.Run(ctx, allowed)
	if errors.Is(runErr, supervisor.ErrFrontierEmpty) {
		log.Warn("frontier is empty", "data_dir", cfg.DataDir)
		return &ExitCoder{Code: 1, Err: runErr}
	}
	if runErr != nil {
		return fmt.Errorf("crawl: %w", runErr)
	}

	return nil
}
