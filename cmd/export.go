package cmd

import (
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spf13/cobra"
	"github.com/wegman-software/dat2sqlite-go/internal/export"
	"github.com/wegman-software/dat2sqlite-go/internal/logger"
	"github.com/wegman-software/dat2sqlite-go/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export <store.db> <out-dir>",
	Short: "Export store contents to Parquet files",
	Long: `Write the points and roads of a published store to Parquet files
(points.parquet and roads.parquet) in the output directory. Suitable for
analytical tooling such as DuckDB or pandas.`,
	Args: cobra.ExactArgs(2),
	Run:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	outDir := args[1]
	log := logger.Get()
	defer logger.Sync()

	st, err := store.Open(args[0])
	if err != nil {
		exitWithError("failed to open store", err)
	}
	defer st.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		exitWithError("failed to create output directory", err)
	}

	var points, roads int64
	g := new(errgroup.Group)
	g.Go(func() error {
		var err error
		points, err = export.Points(st, outDir)
		return err
	})
	g.Go(func() error {
		var err error
		roads, err = export.Roads(st, outDir)
		return err
	})
	if err := g.Wait(); err != nil {
		exitWithError("export failed", err)
	}

	log.Info("Export complete",
		zap.String("dir", outDir),
		zap.Int64("points", points),
		zap.Int64("roads", roads))
}
