package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/satark-cli/internal/server"
	"github.com/KaramelBytes/satark-cli/internal/table"
)

var (
	serveAddr     string
	serveNoSync   bool
	serveSyncDemo bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis over HTTP",
	Long: `Starts the HTTP API:
  GET  /health          liveness
  GET  /initial-data    analysis over the stored masters
  POST /upload          multipart enrolment/biometric/demographic files
  POST /sync-official   fetch from the open-data portal and merge
  GET  /metrics         Prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var fetcher server.Fetcher
		if !serveNoSync {
			client, err := newDataGovClient()
			if err != nil {
				return err
			}
			fetcher = client
		}
		addr := cfg.ServerAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		sc := server.Config{Addr: addr, CORSOrigins: cfg.CORSOrigins}
		if serveSyncDemo {
			sc.SyncKinds = table.Kinds
		}
		srv := server.New(sc, st, fetcher, logger)
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Listening on %s\n", addr)
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server_addr)")
	serveCmd.Flags().BoolVar(&serveNoSync, "no-sync", false, "disable /sync-official")
	serveCmd.Flags().BoolVar(&serveSyncDemo, "sync-demographic", false, "also fetch the demographic dataset on /sync-official")
}
