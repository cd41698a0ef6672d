package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mithrel/pushline/pkg/transport"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <data>",
		Short: "Post data to the endpoint's send URL and print the reply",
		Long: `Post data to the endpoint's send URL and print the reply.

Multiple arguments are joined with spaces. The reference server treats
{"join":"g"} and {"leave":"g"} as group commands and broadcasts anything else.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}
			conn, err := app.NewConnection(cmd.Context())
			if err != nil {
				return err
			}
			tr, err := app.NewTransport()
			if err != nil {
				return err
			}
			reply, err := transport.Send[json.RawMessage](cmd.Context(), tr.Base, conn, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(reply) > 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(reply))
			}
			return nil
		},
	}
	return cmd
}
