// Package updater keeps derived beatmap metadata consistent with note data.
//
// Process and ProcessInTx recompute a set inside a write scope. The order of
// work within a run is fixed:
//
//   - drop the set's rendered beatmaps from the working cache
//   - trigger the online lookup (not awaited)
//   - for each beatmap in stored order: drop its difficulty cache entries,
//     decode it again, resolve its ruleset, compute star rating, length and
//     BPM, and persist them
//
// Any failure aborts the run and rolls the scope back, so derived fields keep
// their previous values. Queue runs the same work in the background. Runs are
// keyed by set: a set never has two runs in flight, and requests that arrive
// during a run are folded into one follow-up run.
package updater
