// Package cmd provides the command-line interface of pagesim.
package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var rootCmd = &cobra.Command{
	Use:   "pagesim",
	Short: "pagesim simulates the paged memory of a teaching kernel.",
	Long: `pagesim simulates the paged memory of a teaching kernel. ` +
		`It runs workload scripts against a five-level page table backed by ` +
		`simulated RAM and swap devices, and can record every page-table ` +
		`change into an SQLite database.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
