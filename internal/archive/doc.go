// Package archive reads beatmap set archives.
//
// A Reader exposes the entry names of an archive and returns each entry as an
// in-memory seekable stream. Operating-system metadata that archivers leave
// behind (__MACOSX folders, .DS_Store, Thumbs.db) is never listed. The zip
// implementation backs .osz files; the directory implementation serves sets
// that were already extracted.
package archive
