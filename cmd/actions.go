// File: cmd/actions.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/macbridge/internal/macos"
	"github.com/xkilldash9x/macbridge/internal/router"
)

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the action types accepted by the action command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nop := zap.NewNop()
			// Nothing is executed, so the runner path is never used.
			controller := macos.NewController(macos.NewOsascriptRunner("osascript", nop), nop)
			r, err := router.New(controller, nil, nop)
			if err != nil {
				return err
			}
			for _, a := range r.Actions() {
				fmt.Fprintln(cmd.OutOrStdout(), a)
			}
			return nil
		},
	}
}
