// Package importer turns beatmap set archives into library records.
//
// An import stores every archive entry in the content-addressed file store,
// decodes each .osu difficulty, checks that its ruleset is registered and
// inserts the set in one write scope. The new set is then handed to the
// update pipeline so its derived metadata is computed in the background.
// Archives whose combined file hash is already present resolve to the
// existing set.
package importer
