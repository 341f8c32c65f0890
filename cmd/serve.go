package cmd

import (
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/dat2sqlite-go/internal/logger"
	"github.com/wegman-software/dat2sqlite-go/internal/server"
	"github.com/wegman-software/dat2sqlite-go/internal/store"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve <store.db>",
	Short: "Serve viewport queries over HTTP from a published store",
	Long: `Open a published store read-only, build the in-memory spatial index
and answer viewport, search and statistics queries over HTTP until
interrupted.`,
	Args: cobra.ExactArgs(1),
	Run:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":8000", "Address to listen on")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg.StorePath = args[0]
	cfg.ListenAddr = listenAddr
	log := logger.Get()
	defer logger.Sync()

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		exitWithError("failed to open store", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Serving", zap.String("store", cfg.StorePath), zap.String("addr", cfg.ListenAddr))
	if err := server.New(st, cfg.ListenAddr).Run(ctx); err != nil {
		exitWithError("server failed", err)
	}
}
