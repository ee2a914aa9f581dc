package cmd

import (
	"fmt"
	"io"

	"github.com/sarchlab/pagesim/config"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/spf13/cobra"
)

var pgtblMode string

var pgtblCmd = &cobra.Command{
	Use:   "pgtbl",
	Short: "Print the virtual address layout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.SilenceUsage = true

		cfg := config.Default()
		cfg.AddressMode = pgtblMode

		layout, err := cfg.Layout()
		if err != nil {
			return err
		}

		printLayout(cmd.OutOrStdout(), layout)

		return nil
	},
}

func init() {
	pgtblCmd.Flags().StringVar(&pgtblMode, "mode", "mm64",
		"address mode, mm64 or mm48")

	rootCmd.AddCommand(pgtblCmd)
}

func printLayout(w io.Writer, layout vm.Layout) {
	fmt.Fprintf(w, "address bits: %d\n", layout.AddressBits())
	fmt.Fprintf(w, "page size:    %d\n", layout.PageSize())

	for _, l := range layout.Levels {
		fmt.Fprintf(w, "%-4s bits %2d-%2d  %d entries\n",
			l.Name, l.Shift+l.Bits-1, l.Shift, l.Entries())
	}

	fmt.Fprintf(w, "OFF  bits %2d-%2d\n", layout.PageShift-1, 0)
}
