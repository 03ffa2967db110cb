package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cropsense/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cropsense",
	Short: "Point assessment of NDVI, soil and crop stage from rasters",
	Long:  "Samples NDVI, soil texture and soil depth rasters at a coordinate and derives growth stage and yield potential. Serves the map UI API, runs batch files and manages the raster data directory.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// setup loads configuration into cfg and installs the global logger.
func setup() error {
	c, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "load config")
	}
	if err := config.InitLogger(c.Log); err != nil {
		return eris.Wrap(err, "init logger")
	}
	cfg = c

	zap.L().Debug("config loaded",
		zap.String("data_dir", cfg.Rasters.DataDir),
		zap.String("catalog", cfg.Rasters.Catalog),
		zap.String("store", cfg.Store.Driver),
	)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
