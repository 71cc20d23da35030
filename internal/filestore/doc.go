// Package filestore keeps imported beatmap files on disk addressed by their
// BLAKE3 content hash.
//
// Files live under <root>/<hex[:2]>/<hex>. Writes go through a temp file and a
// rename so a reader never sees a partial file, and storing content that
// already exists is a no-op.
package filestore
