package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mithrel/pushline/pkg/api"
)

type stateView struct {
	ConnectionID string   `yaml:"connection_id"`
	MessageID    *int64   `yaml:"message_id"`
	Groups       []string `yaml:"groups"`
	Fingerprint  string   `yaml:"fingerprint"`
	UpdatedAt    string   `yaml:"updated_at,omitempty"`
}

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset persisted connection state",
	}
	cmd.AddCommand(newStateShowCmd())
	cmd.AddCommand(newStateResetCmd())
	return cmd
}

func newStateShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [connection-id]",
		Short: "Print persisted cursors and groups as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			var states []api.State
			if len(args) == 1 {
				st, err := app.Store.Load(cmd.Context(), args[0])
				if errors.Is(err, api.ErrStateNotFound) {
					return fmt.Errorf("no state for connection %q", args[0])
				}
				if err != nil {
					return err
				}
				states = []api.State{st}
			} else if states, err = app.Store.List(cmd.Context()); err != nil {
				return err
			}

			views := make([]stateView, 0, len(states))
			for _, st := range states {
				v := stateView{
					ConnectionID: st.ConnectionID,
					MessageID:    st.MessageID,
					Groups:       st.Groups,
					Fingerprint:  st.Fingerprint(),
				}
				if !st.UpdatedAt.IsZero() {
					v.UpdatedAt = st.UpdatedAt.Format(time.RFC3339)
				}
				if v.Groups == nil {
					v.Groups = []string{}
				}
				views = append(views, v)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(views); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newStateResetCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reset [connection-id]",
		Short: "Forget the persisted cursor and groups of a connection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			var ids []string
			switch {
			case all:
				states, err := app.Store.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, st := range states {
					ids = append(ids, st.ConnectionID)
				}
			case len(args) == 1:
				ids = []string{args[0]}
			case app.Cfg.GetString("connection_id") != "":
				ids = []string{app.Cfg.GetString("connection_id")}
			default:
				return fmt.Errorf("connection id required (argument, --connection-id or --all)")
			}
			for _, id := range ids {
				if err := app.Store.Delete(cmd.Context(), id); err != nil {
					if errors.Is(err, api.ErrStateNotFound) {
						return fmt.Errorf("no state for connection %q", id)
					}
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "reset every persisted connection")
	return cmd
}
