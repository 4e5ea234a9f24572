package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xueqianLu/ticketdesk/internal/config"
	"github.com/xueqianLu/ticketdesk/internal/server"
	"go.uber.org/zap"
)

var serveUnlock bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API. The wallet is unlocked over the API unless --unlock is
given, in which case the configured key-store file is unlocked at startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, serveUnlock, config.Config.ValidateServe)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := server.NewServer(a.Handler(), a.Config.Server.Address, a.Config.Server.Port)
		// ends open event streams so Shutdown does not wait on them
		srv.RegisterOnShutdown(a.Desk.Close)
		errCh := make(chan error, 1)
		go func() {
			a.Logger.Info("server listening", zap.String("addr", srv.Addr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		a.Logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveUnlock, "unlock", false, "unlock the configured key-store file at startup")
	rootCmd.AddCommand(serveCmd)
}
