package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"beatline/internal/app"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "process [set-id...]",
		Short: "Recompute derived metadata for beatmap sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("pass set IDs or --all")
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			return ctx.withComponents(cmd.Context(), func(comps *app.Components) error {
				if all {
					sets, err := comps.Store.ListSets(cmd.Context())
					if err != nil {
						return err
					}
					ids = ids[:0]
					for _, set := range sets {
						ids = append(ids, set.ID)
					}
				}

				results := make(map[uuid.UUID]<-chan error, len(ids))
				for _, id := range ids {
					results[id] = comps.Updater.Queue(comps.Store.Live(id))
				}

				var failures int
				for _, id := range ids {
					if err := <-results[id]; err != nil {
						failures++
						fmt.Fprintf(cmd.ErrOrStderr(), "process %s: %v\n", id, err)
					}
				}
				comps.Drain()

				fmt.Fprintf(cmd.OutOrStdout(), "Processed %s\n", plural(len(ids)-failures, "set"))
				if failures > 0 {
					return fmt.Errorf("%s failed", plural(failures, "set"))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Process every set in the library")
	return cmd
}
