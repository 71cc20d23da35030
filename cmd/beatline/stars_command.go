package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"beatline/internal/app"
	"beatline/internal/beatmap"
	"beatline/internal/library"
	"beatline/internal/rulesets"
)

func newStarsCommand(ctx *commandContext) *cobra.Command {
	var modsFlag string

	cmd := &cobra.Command{
		Use:   "stars <beatmap-id>",
		Short: "Compute the star rating of a beatmap under mods",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			mods, err := rulesets.ParseMods(modsFlag)
			if err != nil {
				return err
			}

			return ctx.withComponents(cmd.Context(), func(comps *app.Components) error {
				var info *beatmap.Info
				err := comps.Store.Read(cmd.Context(), func(tx *library.Tx) error {
					var err error
					info, err = tx.BeatmapByID(cmd.Context(), ids[0])
					return err
				})
				if err != nil {
					return err
				}

				result, err := comps.Difficulty.Get(cmd.Context(), info.Detach(), mods)
				if err != nil {
					return err
				}

				label := rulesets.ModsKey(mods)
				if label == "" {
					label = "NM"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] +%s: %.2f stars, max combo %d\n",
					info.Filename, info.Ruleset, label, result.Stars, result.MaxCombo)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&modsFlag, "mods", "", "Mod acronyms, e.g. DT or HT")
	return cmd
}
