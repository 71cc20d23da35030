package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"beatline/internal/beatmap"
)

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func setLabel(set *beatmap.SetInfo) string {
	if set == nil {
		return ""
	}
	artist := strings.TrimSpace(set.Metadata.Artist)
	title := strings.TrimSpace(set.Metadata.Title)
	switch {
	case artist != "" && title != "":
		return artist + " - " + title
	case title != "":
		return title
	default:
		return shortID(set.ID.String())
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatStars and the other format helpers render unprocessed beatmaps as "-".
func formatStars(b *beatmap.Info) string {
	if b.LastProcessed.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%.2f", b.StarRating)
}

func formatLength(b *beatmap.Info) string {
	if b.LastProcessed.IsZero() {
		return "-"
	}
	total := int(b.Length.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func formatBPM(b *beatmap.Info) string {
	if b.LastProcessed.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%.0f", b.BPM)
}
