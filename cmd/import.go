package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/dat2sqlite-go/internal/logger"
	"github.com/wegman-software/dat2sqlite-go/internal/pipeline"
)

var (
	strictMode bool
	encoding   string
	force      bool
)

var importCmd = &cobra.Command{
	Use:   "import <data-dir> <store.db>",
	Short: "Run the full import pipeline (parse → resolve → transform → load)",
	Long: `Run the complete import pipeline:

  1. Parse every recognized DAT file against its declared schema
  2. Resolve cross references into the entity graph
  3. Transform projected EOV coordinates to WGS84
  4. Load the store, build indexes and publish it atomically

A store already present at the target path makes the run a no-op; pass
--force to rebuild. Nothing is visible at the target path until the run
succeeds, so a failed or killed run leaves any previous store untouched.`,
	Args: cobra.ExactArgs(2),
	Run:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&strictMode, "strict", false, "Abort on the first malformed row instead of skipping it")
	importCmd.Flags().StringVarP(&encoding, "encoding", "e", "utf8", "Source file encoding (utf8 or latin2)")
	importCmd.Flags().BoolVarP(&force, "force", "f", false, "Rebuild even when the store already exists")
}

func runImport(cmd *cobra.Command, args []string) {
	cfg.DataDir = args[0]
	cfg.StorePath = args[1]
	cfg.Strict = strictMode
	cfg.Encoding = encoding
	cfg.Force = force
	log := logger.Get()
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	p := pipeline.New(cfg)
	report, err := p.Run(context.Background())
	if err != nil {
		exitWithError("import failed", err)
	}

	if report.SkippedExisting {
		log.Info("Nothing to do, store is already present",
			zap.String("store", cfg.StorePath))
		return
	}

	log.Info("Store published",
		zap.String("store", cfg.StorePath),
		zap.Int("roads", report.Roads),
		zap.Int("points", report.Points),
		zap.Int("rows_dropped", report.RowErrors),
		zap.Duration("duration", report.Duration))
}
