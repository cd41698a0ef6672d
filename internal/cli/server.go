package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mithrel/pushline/internal/server"
)

func newServerCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the reference push server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			v := app.Cfg
			if listen != "" {
				v.Set("http_addr", listen)
			}
			addr := v.GetString("http_addr")
			if addr == "" {
				addr = ":8080"
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			srv := server.New(v, app.Log)
			httpSrv := &http.Server{Handler: srv.Router(), ReadHeaderTimeout: 10 * time.Second}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				_ = httpSrv.Shutdown(shutdownCtx)
			}()

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "push server listening on %s%s\n", ln.Addr(), v.GetString("server.prefix"))
			if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (override config http_addr)")
	return cmd
}
