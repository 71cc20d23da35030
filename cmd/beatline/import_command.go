package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"beatline/internal/app"
	"beatline/internal/beatmap"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path...>",
		Short: "Import .osz archives or extracted beatmap folders",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd.Context(), func(comps *app.Components) error {
				out := cmd.OutOrStdout()
				var imported []*beatmap.SetInfo
				var failures int
				for _, path := range args {
					set, err := comps.Importer.ImportPath(cmd.Context(), path)
					if err != nil {
						failures++
						fmt.Fprintf(cmd.ErrOrStderr(), "import %s: %v\n", path, err)
						continue
					}
					imported = append(imported, set)
					size := ""
					if info, statErr := os.Stat(path); statErr == nil && !info.IsDir() {
						size = " [" + humanize.Bytes(uint64(info.Size())) + "]"
					}
					fmt.Fprintf(out, "Imported %s (%s)%s\n", setLabel(set), set.ID, size)
				}

				comps.Drain()

				for _, set := range imported {
					loaded, err := comps.Store.SetByID(cmd.Context(), set.ID)
					if err != nil {
						return err
					}
					processed := 0
					for _, b := range loaded.Beatmaps {
						if !b.LastProcessed.IsZero() {
							processed++
						}
					}
					fmt.Fprintf(out, "%s: %d/%d beatmaps processed\n", setLabel(loaded), processed, len(loaded.Beatmaps))
				}

				if failures > 0 {
					return errors.New(plural(failures, "archive") + " failed to import")
				}
				return nil
			})
		},
	}
}
