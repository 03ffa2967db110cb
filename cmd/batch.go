package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cropsense/internal/batch"
	"github.com/sells-group/cropsense/internal/config"
	"github.com/sells-group/cropsense/internal/store"
)

var batchCmd = &cobra.Command{
	Use:   "batch <input.csv|input.xlsx|input.shp>",
	Short: "Assess every point in a CSV, XLSX or shapefile",
	Example: `  cropsense batch plots.csv --out results.csv
  cropsense batch fields.shp --id-col FIELD_ID --out results.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if c, _ := cmd.Flags().GetInt("concurrency"); c > 0 {
			cfg.Batch.Concurrency = c
		}
		if err := cfg.Validate(config.ModeBatch); err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		latCol, _ := cmd.Flags().GetString("lat-col")
		lonCol, _ := cmd.Flags().GetString("lon-col")
		idCol, _ := cmd.Flags().GetString("id-col")
		sheet, _ := cmd.Flags().GetString("sheet")
		record, _ := cmd.Flags().GetBool("record")

		engine, err := initEngine(ctx, nil)
		if err != nil {
			return err
		}

		rows, summary, err := batch.Process(ctx, engine, args[0], out, batch.Options{
			Read:        batch.ReadOptions{LatColumn: latCol, LonColumn: lonCol, IDColumn: idCol, Sheet: sheet},
			Concurrency: cfg.Batch.Concurrency,
		})
		if err != nil {
			return eris.Wrap(err, "batch")
		}

		if record {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close() //nolint:errcheck
			}
			store.NewRecorder(st, nil).Record(ctx, batch.Outcomes(rows)...)
		}

		cmd.Printf("%d points: %d classified, %d unknown, %d invalid -> %s\n",
			summary.Total, summary.Classified, summary.Unknown, summary.Invalid, out)
		return nil
	},
}

func init() {
	batchCmd.Flags().String("out", "results.csv", "output file (.csv, .xlsx or .geojson)")
	batchCmd.Flags().Int("concurrency", 0, "parallel evaluations (default from config)")
	batchCmd.Flags().String("lat-col", "lat", "latitude column name")
	batchCmd.Flags().String("lon-col", "lon", "longitude column name")
	batchCmd.Flags().String("id-col", "id", "identifier column or shapefile attribute")
	batchCmd.Flags().String("sheet", "", "XLSX sheet name (default first sheet)")
	batchCmd.Flags().Bool("record", false, "save outcomes to the history store")
	rootCmd.AddCommand(batchCmd)
}
