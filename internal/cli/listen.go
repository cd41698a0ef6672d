package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mithrel/pushline/internal/wire"
	"github.com/mithrel/pushline/pkg/connection"
)

func newListenCmd() *cobra.Command {
	var (
		groups  []string
		count   int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Connect and print every received message, one per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return runListen(ctx, cmd, app, groups, count)
		},
	}
	cmd.Flags().StringSliceVar(&groups, "groups", nil, "groups to join on connect (when no state is persisted)")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many messages (0 = run until interrupted)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "exit after this long (0 = no limit)")
	return cmd
}

func runListen(ctx context.Context, cmd *cobra.Command, app *wire.App, groups []string, count int) error {
	out := cmd.OutOrStdout()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		received int
	)
	opts := []connection.Option{
		connection.OnReceived(func(msg string) error {
			mu.Lock()
			defer mu.Unlock()
			if count > 0 && received >= count {
				return nil
			}
			if _, err := fmt.Fprintln(out, msg); err != nil {
				return err
			}
			received++
			if count > 0 && received >= count {
				cancel()
			}
			return nil
		}),
		connection.OnError(func(err error) {
			app.Log.Warn("receive error", "err", err)
		}),
	}
	if len(groups) > 0 {
		opts = append(opts, connection.WithGroups(groups...))
	}
	conn, err := app.NewConnection(ctx, opts...)
	if err != nil {
		return err
	}
	tr, err := app.NewTransport()
	if err != nil {
		return err
	}

	if addr := app.Cfg.GetString("metrics.addr"); addr != "" {
		msrv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})}
		go func() {
			if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.Log.Error("metrics server", "addr", addr, "err", err)
			}
		}()
		defer msrv.Close()
		app.Log.Info("serving metrics", "addr", addr)
	}

	if err := tr.Start(ctx, conn, app.Cfg.GetString("connection_data")); err != nil {
		return err
	}
	app.Log.Info("listening", "url", conn.URL(), "connection_id", conn.ConnectionID(), "transport", tr.Name())

	<-ctx.Done()
	tr.Stop(conn)
	select {
	case <-tr.Done():
	case <-time.After(5 * time.Second):
		app.Log.Warn("poll loop did not exit in time")
	}
	return nil
}
