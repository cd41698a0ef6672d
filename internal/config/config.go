package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// applyDefaults seeds Viper with defaults defined in GetConfigOptions.
func applyDefaults(v *viper.Viper) {
	for _, o := range GetConfigOptions() {
		v.SetDefault(o.Key, o.Default)
	}
}

// Load resolves configuration with precedence: defaults < file < env.
// The provided Viper instance is mutated with defaults, file contents, and env.
func Load(ctx context.Context, v *viper.Viper) error {
	// SetConfigFile upstream takes precedence over these search paths.
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "pushline"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "pushline"))
		}
		v.AddConfigPath(".")
	}

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && v.ConfigFileUsed() != "" && fileExists(v.ConfigFileUsed()) {
			return fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	// PUSHLINE_* wins over file values
	v.SetEnvPrefix("pushline")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.GetString("data_dir") == "" {
		v.Set("data_dir", defaultDataDir())
	}
	if u := strings.TrimSpace(v.GetString("url")); u != "" && !strings.HasSuffix(u, "/") {
		v.Set("url", u+"/")
	}
	return nil
}

// defaultDataDir resolves $XDG_DATA_HOME/pushline or ~/.local/share/pushline.
func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "pushline")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "pushline")
}

// DefaultConfigPath resolves the standard config.toml location.
func DefaultConfigPath() string {
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		home, _ := os.UserHomeDir()
		xdg = filepath.Join(home, ".config")
	}
	return filepath.Join(xdg, "pushline", "config.toml")
}

type ConfigOption struct {
	Key     string
	Default any
	Comment string
}

// GetConfigOptions returns the default configuration options and their meanings.
// This is the single source of truth for default values and generator output.
func GetConfigOptions() []ConfigOption {
	return []ConfigOption{
		{Key: "url", Default: "http://localhost:8080/signalr/", Comment: "Endpoint base URL; transports append connect/poll/send"},
		{Key: "transport", Default: "longPolling", Comment: "Transport name sent in every query string"},
		{Key: "connection_id", Default: "", Comment: "Fixed connection id; generated when empty"},
		{Key: "connection_data", Default: "", Comment: "Opaque connectionData token, passed through verbatim"},
		{Key: "user_agent", Default: "pushline/1.0", Comment: "User-Agent header on every request"},
		{Key: "headers", Default: map[string]any{}, Comment: "Extra request headers"},
		{Key: "data_dir", Default: defaultDataDir(), Comment: "Directory for local state; DB is data_dir/pushline.db"},
		{Key: "http_addr", Default: ":8080", Comment: "Listen address for the reference server"},

		{Key: "state.enabled", Default: true, Comment: "Persist cursor and groups between runs"},
		{Key: "http.timeout", Default: 2 * time.Minute, Comment: "Per-request client timeout; must exceed server.poll_timeout"},
		{Key: "poll.retry_delay", Default: 2 * time.Second, Comment: "Base delay after a failed poll"},
		{Key: "poll.max_backoff", Default: time.Minute, Comment: "Upper bound for the fibonacci poll backoff"},
		{Key: "server.poll_timeout", Default: 30 * time.Second, Comment: "How long the reference server holds a poll open"},
		{Key: "server.prefix", Default: "/signalr/", Comment: "Mount prefix of the reference server endpoints"},
		{Key: "server.retain", Default: 1024, Comment: "Messages the reference server keeps for late pollers"},
		{Key: "metrics.addr", Default: "", Comment: "Serve Prometheus /metrics on this address during listen; empty disables"},
		{Key: "log.level", Default: "info", Comment: "debug, info, warn or error"},
		{Key: "log.format", Default: "auto", Comment: "auto (text on a terminal, json otherwise), text or json"},
	}
}

// ResolveDBPath returns the sqlite DB file path under data_dir.
func ResolveDBPath(v *viper.Viper) string {
	dir := v.GetString("data_dir")
	if dir == "" {
		dir = defaultDataDir()
	}
	// Expand ~ for convenience
	if len(dir) > 0 && dir[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[1:])
		}
	}
	return filepath.Join(dir, "pushline.db")
}

// CheckConfigValidity reports every problem in v as one error.
func CheckConfigValidity(v *viper.Viper) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	raw := strings.TrimSpace(v.GetString("url"))
	if raw == "" {
		add("url is required")
	} else if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("url %q must be an absolute http(s) url", raw)
	}
	if strings.TrimSpace(v.GetString("transport")) == "" {
		add("transport is required")
	}
	if strings.TrimSpace(v.GetString("data_dir")) == "" {
		add("data_dir is required")
	}
	for _, key := range []string{"http.timeout", "poll.retry_delay", "poll.max_backoff", "server.poll_timeout"} {
		if v.GetDuration(key) <= 0 {
			add("%s must be greater than 0", key)
		}
	}
	if v.GetDuration("poll.max_backoff") < v.GetDuration("poll.retry_delay") {
		add("poll.max_backoff must not be less than poll.retry_delay")
	}
	if v.GetInt("server.retain") < 0 {
		add("server.retain must not be negative")
	}
	for _, key := range []string{"http_addr", "metrics.addr"} {
		addr := v.GetString(key)
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			add("%s %q is not host:port", key, addr)
		}
	}
	switch strings.ToLower(v.GetString("log.level")) {
	case "", "debug", "info", "warn", "error":
	default:
		add("log.level %q is not one of debug, info, warn, error", v.GetString("log.level"))
	}
	switch strings.ToLower(v.GetString("log.format")) {
	case "", "auto", "text", "json":
	default:
		add("log.format %q is not one of auto, text, json", v.GetString("log.format"))
	}
	return errors.Join(errs...)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
