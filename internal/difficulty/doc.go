// Package difficulty caches star ratings per beatmap, ruleset and mod
// combination.
//
// Misses are computed through the working beatmap cache and the ruleset
// registry. Concurrent misses for the same key share one computation.
// Invalidate removes every entry of a beatmap and makes any computation that
// started earlier return without storing its result.
package difficulty
