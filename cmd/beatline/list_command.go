package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"beatline/internal/app"
	"beatline/internal/beatmap"
)

var listHeaders = []string{"Set", "Artist", "Title", "Difficulty", "Mode", "Stars", "Length", "BPM", "Status"}

func newListCommand(ctx *commandContext) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List imported beatmaps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd.Context(), func(comps *app.Components) error {
				sets, err := comps.Store.ListSets(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(sets) == 0 {
					fmt.Fprintln(out, "Library is empty")
					return nil
				}

				rows := listRows(sets)
				if plain || !isTerminal(out) {
					writeTSV(out, listHeaders, rows)
					return nil
				}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}
				fmt.Fprintln(out, renderTable(listHeaders, rows, aligns))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Write tab-separated output even on a terminal")
	return cmd
}

func listRows(sets []*beatmap.SetInfo) [][]string {
	var rows [][]string
	for _, set := range sets {
		for _, b := range set.Beatmaps {
			rows = append(rows, []string{
				shortID(set.ID.String()),
				set.Metadata.Artist,
				set.Metadata.Title,
				b.DifficultyName,
				b.Ruleset,
				formatStars(b),
				formatLength(b),
				formatBPM(b),
				string(b.Status),
			})
		}
	}
	return rows
}

func writeTSV(w io.Writer, headers []string, rows [][]string) {
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
}
