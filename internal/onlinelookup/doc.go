// Package onlinelookup resolves online beatmap IDs and ranked status in the
// background.
//
// Queue.Update snapshots a set's beatmap hashes and hands them to a worker
// without blocking. The worker answers each hash from a local JSON cache when
// it can and from the remote get_beatmaps endpoint otherwise, then writes the
// results in its own library transaction. Failures are logged and dropped;
// callers never observe them.
package onlinelookup
