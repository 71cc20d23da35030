package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"beatline/internal/app"
)

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <set-id...>",
		Short: "Remove beatmap sets and their unreferenced files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd.Context(), func(comps *app.Components) error {
				for _, id := range ids {
					if err := comps.Importer.Remove(cmd.Context(), id); err != nil {
						return fmt.Errorf("remove %s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
				}
				return nil
			})
		},
	}
}
