// Package workingcache keeps recently decoded beatmaps in memory.
//
// Entries are keyed by beatmap ID and bounded by an LRU. Invalidate drops all
// beatmaps of a set and bumps a per-beatmap generation; a decode that began
// before the bump finishes normally for its caller but is not stored, so an
// invalidated beatmap cannot be repopulated with data read before the change.
package workingcache
