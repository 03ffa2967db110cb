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
	"github.com/sells-group/cropsense/internal/geo"
	"github.com/sells-group/cropsense/internal/store"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Assess a single coordinate",
	Example: `  cropsense sample --lat 12.97 --lon 77.59
  cropsense sample --lat 12.97 --lon 77.59 --format geojson`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeSample); err != nil {
			return err
		}

		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")
		format, _ := cmd.Flags().GetString("format")
		record, _ := cmd.Flags().GetBool("record")

		switch format {
		case "text", "json", "geojson":
		default:
			return eris.Errorf("unknown format %q (text, json, geojson)", format)
		}

		engine, err := initEngine(ctx, nil)
		if err != nil {
			return err
		}
		out, err := engine.Evaluate(ctx, geo.Coordinate{Lat: lat, Lon: lon})
		if err != nil {
			return err
		}

		if record {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close() //nolint:errcheck
			}
			store.NewRecorder(st, nil).Record(ctx, out)
		}

		return writeOutcome(os.Stdout, out, format)
	},
}

// writeOutcome prints out as text, JSON or a GeoJSON Feature.
func writeOutcome(w io.Writer, out *assess.Outcome, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "geojson":
		data, err := out.Feature()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	default:
		ndvi := out.NDVIString()
		if ndvi == "" {
			ndvi = "no data"
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(tw, "Coordinate:\t%.6f, %.6f\n", out.Coordinate.Lat, out.Coordinate.Lon)
		_, _ = fmt.Fprintf(tw, "NDVI:\t%s\n", ndvi)
		_, _ = fmt.Fprintf(tw, "Soil type:\t%s\n", out.SoilType)
		_, _ = fmt.Fprintf(tw, "Soil depth:\t%s\n", out.SoilDepth)
		_, _ = fmt.Fprintf(tw, "Growth stage:\t%s\n", out.GrowthStage)
		_, _ = fmt.Fprintf(tw, "Yield potential:\t%s\n", out.YieldPotential)
		return tw.Flush()
	}
}

func init() {
	sampleCmd.Flags().Float64("lat", 0, "latitude in decimal degrees")
	sampleCmd.Flags().Float64("lon", 0, "longitude in decimal degrees")
	sampleCmd.Flags().String("format", "text", "output format: text, json, geojson")
	sampleCmd.Flags().Bool("record", false, "save the outcome to the history store")
	_ = sampleCmd.MarkFlagRequired("lat")
	_ = sampleCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(sampleCmd)
}
