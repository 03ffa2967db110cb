package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cropsense/internal/assess"
	"github.com/sells-group/cropsense/internal/config"
	"github.com/sells-group/cropsense/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded assessments",
}

// -- history list --

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent assessments",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		outcomes, err := st.ListOutcomes(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "history list")
		}
		if len(outcomes) == 0 {
			fmt.Fprintln(os.Stderr, "No assessments recorded.")
			return nil
		}
		formatHistory(os.Stdout, outcomes)
		return nil
	},
}

// -- history show --

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one assessment with its diagnostics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out, err := st.GetOutcome(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "history show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func openHistory(cmd *cobra.Command) (store.Store, error) {
	if err := cfg.Validate(config.ModeHistory); err != nil {
		return nil, err
	}
	return initStore(cmd.Context())
}

func init() {
	historyListCmd.Flags().Int("limit", store.DefaultListLimit, "max number of assessments to display")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

// formatHistory writes a tabular list of outcomes to out.
func formatHistory(out io.Writer, outcomes []assess.Outcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSAMPLED\tLAT\tLON\tNDVI\tSOIL\tDEPTH\tSTAGE\tYIELD")
	_, _ = fmt.Fprintln(w, "--\t-------\t---\t---\t----\t----\t-----\t-----\t-----")
	for i := range outcomes {
		o := &outcomes[i]
		ndvi := o.NDVIString()
		if ndvi == "" {
			ndvi = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.5f\t%.5f\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(o.ID),
			o.SampledAt.Format("2006-01-02 15:04"),
			o.Coordinate.Lat, o.Coordinate.Lon,
			ndvi,
			o.SoilType,
			o.SoilDepth,
			o.GrowthStage,
			o.YieldPotential,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
