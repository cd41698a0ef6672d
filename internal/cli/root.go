package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mithrel/pushline/internal/config"
	"github.com/mithrel/pushline/internal/wire"
)

type ctxKey string

const (
	appKey ctxKey = "app"
	cfgKey ctxKey = "cfg"
)

// skipAppAnnotation marks commands that only need configuration, not the
// wired App (no state DB, no validation).
const skipAppAnnotation = "pushline/skip-app"

// Execute builds the root command and runs it.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd constructs the Cobra root command and wires dependencies.
func NewRootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "pushline",
		Short:         "pushline - HTTP push transport client and reference server",
		SilenceUsage:  true, // don't show usage on runtime errors
		SilenceErrors: true, // let main print errors once
		Annotations:   map[string]string{skipAppAnnotation: "true"},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if cfgPath != "" {
				v.SetConfigFile(cfgPath)
			}
			if err := config.Load(cmd.Context(), v); err != nil {
				return err
			}
			applyConfigFlagOverrides(cmd, v, map[string]string{
				"connection-id":   "connection_id",
				"connection-data": "connection_data",
				"log-level":       "log.level",
				"log-format":      "log.format",
			})
			ctx := context.WithValue(cmd.Context(), cfgKey, v)
			if cmd.Annotations[skipAppAnnotation] != "" {
				cmd.SetContext(ctx)
				return nil
			}
			if err := config.CheckConfigValidity(v); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			app, err := wire.BuildApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(ctx, appKey, app))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app, ok := cmd.Context().Value(appKey).(*wire.App); ok {
				return app.Close()
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "path to config file (yaml|toml)")
	pf.String("url", "", "endpoint base URL (overrides config url)")
	pf.String("transport", "", "transport name (overrides config transport)")
	pf.String("connection-id", "", "fixed connection id (overrides config connection_id)")
	pf.String("connection-data", "", "opaque connectionData token")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "auto, text or json")

	cmd.AddCommand(newListenCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newServerCmd())
	cmd.AddCommand(newStateCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newCompletionCmd())

	cmd.Run = func(cmd *cobra.Command, args []string) { _ = cmd.Help() }

	return cmd
}

func getApp(cmd *cobra.Command) (*wire.App, error) {
	app, ok := cmd.Context().Value(appKey).(*wire.App)
	if !ok {
		return nil, fmt.Errorf("internal error: app not initialized")
	}
	return app, nil
}

func getConfig(cmd *cobra.Command) (*viper.Viper, error) {
	v, ok := cmd.Context().Value(cfgKey).(*viper.Viper)
	if !ok {
		return nil, fmt.Errorf("internal error: config not loaded")
	}
	return v, nil
}
