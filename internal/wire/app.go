package wire

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/mithrel/pushline/internal/config"
	"github.com/mithrel/pushline/internal/logging"
	"github.com/mithrel/pushline/internal/longpolling"
	"github.com/mithrel/pushline/internal/state"
	"github.com/mithrel/pushline/pkg/connection"
	"github.com/mithrel/pushline/pkg/httpclient"
	"github.com/mithrel/pushline/pkg/transport"
)

// App aggregates the major services for easy injection.
type App struct {
	Cfg      *viper.Viper
	Log      *slog.Logger
	Client   *httpclient.Client
	Store    state.Store
	Registry *prometheus.Registry
	Metrics  *transport.Metrics
}

// BuildApp wires dependencies with the provided config.
func BuildApp(ctx context.Context, cfg *viper.Viper) (*App, error) {
	logger, err := logging.New(os.Stderr, cfg.GetString("log.level"), cfg.GetString("log.format"))
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	dsn := "mem://"
	if cfg.GetBool("state.enabled") {
		dsn = "sqlite://" + config.ResolveDBPath(cfg)
	}
	store, err := state.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open state %s: %w", dsn, err)
	}

	reg := prometheus.NewRegistry()
	return &App{
		Cfg:      cfg,
		Log:      logger,
		Client:   httpclient.New(&http.Client{Timeout: cfg.GetDuration("http.timeout")}),
		Store:    store,
		Registry: reg,
		Metrics:  transport.NewMetrics(reg),
	}, nil
}

// NewConnection builds a connection from config, restoring persisted cursor
// and groups for a fixed connection id.
func (a *App) NewConnection(ctx context.Context, opts ...connection.Option) (*connection.Connection, error) {
	base := []connection.Option{
		connection.WithUserAgent(a.Cfg.GetString("user_agent")),
		connection.WithLogger(a.Log.With("component", "connection")),
		connection.WithStateStore(a.Store),
	}
	if id := a.Cfg.GetString("connection_id"); id != "" {
		base = append(base, connection.WithConnectionID(id))
	}
	for k, v := range a.Cfg.GetStringMapString("headers") {
		base = append(base, connection.WithHeader(k, v))
	}
	conn := connection.New(a.Cfg.GetString("url"), append(base, opts...)...)
	if err := conn.Restore(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// NewTransport builds the configured transport.
func (a *App) NewTransport() (*longpolling.Transport, error) {
	if name := a.Cfg.GetString("transport"); name != longpolling.Name {
		return nil, fmt.Errorf("unsupported transport %q (available: %s)", name, longpolling.Name)
	}
	return longpolling.New(a.Client,
		longpolling.WithRetryDelay(a.Cfg.GetDuration("poll.retry_delay")),
		longpolling.WithMaxBackoff(a.Cfg.GetDuration("poll.max_backoff")),
		longpolling.WithBaseOptions(
			transport.WithLogger(a.Log.With("component", "transport")),
			transport.WithMetrics(a.Metrics),
		),
	)
}

func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
