package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "List the tradable pairs and their simulation parameters",
	RunE:  runPairs,
}

func init() {
	rootCmd.AddCommand(pairsCmd)
}

func runPairs(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	pairs, err := a.store.ListPairs(cmd.Context())
	if err != nil {
		return fmt.Errorf("list pairs: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tPIP SIZE\tCONTRACT\tSPREAD\tBASE PRICE\tTIMEFRAME")
	for _, p := range pairs {
		fmt.Fprintf(w, "%s\t%g\t%d\t%g\t%.5f\t%s\n",
			p.Symbol, p.PipSize, p.ContractSize, p.Spread, p.BasePrice, p.DefaultTimeframe)
	}
	return w.Flush()
}
