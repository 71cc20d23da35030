package daemon

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"beatline/internal/logging"
)

// importArchive imports one archive from the import directory and removes it
// afterwards when configured to.
func (d *Daemon) importArchive(ctx context.Context, path string) {
	logger := d.logger.With(logging.String("archive", filepath.Base(path)))

	set, err := d.comps.Importer.ImportPath(ctx, path)
	switch {
	case err != nil && archiveVanished(path):
		logger.Debug("archive vanished before import")
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		logging.WarnWithContext(logger, "archive import failed", "import_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the file is a valid .osz archive"),
			logging.String(logging.FieldImpact, "archive left in the import directory"))
		return
	}

	logger.Info("archive imported",
		logging.SetID(set.ID),
		logging.String("title", set.Metadata.Title))

	if !d.cfg.Import.RemoveProcessed {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.WarnWithContext(logger, "failed to remove imported archive", "import_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "archive will be imported again on restart"))
	}
}

func archiveVanished(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}
