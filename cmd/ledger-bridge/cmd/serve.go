package cmd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/server"
)

var serveAddr string

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin HTTP API",
	Long: `Run the admin HTTP API for triggering and inspecting sync cycles.

Endpoints:
  POST /api/sync          trigger one cycle (409 while one is running)
  GET  /api/status        watermarks and aggregate statistics
  GET  /api/runs/{runID}  decision log of one run
  GET  /healthz           liveness probe

Example:
  ledger-bridge serve --addr :8090`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8090", "listen address")
}

func runServe(cmd *cobra.Command, args []string) {
	orch, st := setupOrchestrator()
	defer st.Close()

	srv := &http.Server{
		Addr:         serveAddr,
		Handler:      server.New(orch, st).Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // a sync cycle runs inside the request
	}

	slog.Info("Admin API listening", "addr", serveAddr)
	err := srv.ListenAndServe()
	exitOnError(err, "server stopped")
}
