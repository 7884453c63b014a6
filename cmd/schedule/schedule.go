// Package schedule implements recurring crawls on a cron spec.
package schedule

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/domaincrawl/cmd/crawl"
	"github.com/jonesrussell/domaincrawl/internal/logger"
)

// Command returns the schedule cobra command.
func Command() *cobra.Command {
	var spec string

	cmd := &cobra.Command{
		Use:   "schedule [DOMAIN ...]",
		Short: "Run the crawl on a cron schedule",
		Long: `Runs the crawl repeatedly on a cron schedule until interrupted.
The schedule uses the standard five-field cron syntax.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(spec, args)
		},
	}

	cmd.Flags().StringVar(&spec, "every", "0 * * * *", "cron schedule for crawl runs")

	return cmd
}

func run(spec string, args []string) error {
	log, err := logger.New(logger.ResolveLevel(), "console", false)
	if err != nil {
		return err
	}

	scheduler := cron.New()

	_, err = scheduler.AddFunc(spec, func() {
		log.Info("scheduled crawl starting", "spec", spec)
		if crawlErr := crawl.Run(context.Background(), args); crawlErr != nil {
			log.Error("scheduled crawl failed", "error", crawlErr.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("schedule: invalid cron spec %q: %w", spec, err)
	}

	log.Info("scheduler starting", "spec", spec)
	scheduler.Start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	log.Info("scheduler stopping")
	<-scheduler.Stop().Done()

	return nil
}
