package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/creditloom-cli/internal/scores"
)

const (
	serverShutdownWait = 5 * time.Second
	serverTimeout      = 30 * time.Second
	serverMaxHeader    = 1 << 20
)

var (
	serveAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve score lookups over HTTP",
	Long: `Loads the scores file once and serves GET /api/scores/{beneficiary_id}
and GET /healthz. Restart the server to pick up a new scores file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.ServeAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		tbl, err := scores.Load(cfg.LookupPath(), cfg.RiskBands)
		if err != nil {
			return err
		}

		s := &http.Server{
			Addr:           addr,
			Handler:        scores.Handler(tbl),
			ReadTimeout:    serverTimeout,
			WriteTimeout:   serverTimeout,
			MaxHeaderBytes: serverMaxHeader,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()
		slog.Info("server started", "address", "http://"+addr, "scores", tbl.Len(), "file", tbl.Path)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		sctx, cancel := context.WithTimeout(context.Background(), serverShutdownWait)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("error shutting down server", "error", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides serve_addr)")
}
