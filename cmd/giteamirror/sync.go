package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <configID>",
		Short: "Refresh the repository inventory of a configuration without mirroring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.syncer.Sync(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "%d added, %d updated, %d unchanged, %d organizations\n",
					result.Added, result.Updated, result.Unchanged, result.Organizations)
				return nil
			})
		},
	}
}
