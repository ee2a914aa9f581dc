package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sarchlab/pagesim/datarecording"
	"github.com/sarchlab/pagesim/tracing"
	"github.com/spf13/cobra"
)

var (
	eventsKind  string
	eventsLimit int
)

var eventsCmd = &cobra.Command{
	Use:   "events [database]",
	Short: "List the page events of a recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		reader, err := datarecording.OpenReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		return listEvents(cmd.Context(), reader, cmd.OutOrStdout(),
			eventsKind, eventsLimit)
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsKind, "kind", "",
		"only list events of this kind")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 0,
		"maximum number of events, 0 for all")

	rootCmd.AddCommand(eventsCmd)
}

func listEvents(
	ctx context.Context,
	reader *datarecording.Reader,
	w io.Writer,
	kind string,
	limit int,
) error {
	events, total, err := tracing.QueryEvents(ctx, reader, kind, limit)
	if err != nil {
		return err
	}

	for _, e := range events {
		fmt.Fprintf(w, "%6d %-15s pid=%d pgn=%d fpn=%d swp=%d:%d level=%d\n",
			e.Seq, e.Kind, e.PID, e.PGN, e.Frame, e.SwapType, e.SwapOffset,
			e.Level)
	}

	fmt.Fprintf(w, "%d of %d events\n", len(events), total)

	return nil
}
