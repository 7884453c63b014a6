// Package cmd implements the command-line interface for domaincrawl.
package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/domaincrawl/cmd/crawl"
	"github.com/jonesrussell/domaincrawl/cmd/schedule"
)

const version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "domaincrawl [DOMAIN ...]",
	Short: "A polite, script-driven web crawler",
	Long: `A polite, script-driven web crawler. Seed URLs are partitioned by
registrable domain; each domain gets one rate-limited worker that fetches
pages, caches them, and runs the domain's extraction script.

With no arguments every configured domain is crawled; arguments restrict
the run to the named registrable domains.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Bare invocation is an alias for crawl.
		return crawl.Run(cmd.Context(), args)
	},
}

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are available to every
	// subcommand; absence is fine.
	_ = godotenv.Load()

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("domaincrawl version %s\n", version)
		},
	})

	rootCmd.AddCommand(crawl.Command())
	rootCmd.AddCommand(schedule.Command())
}
