// Command beatline manages a local beatmap library.
//
// Subcommands import .osz archives, recompute derived metadata, list the
// library, compute star ratings under mods, remove sets and run the import
// daemon. All commands share the configuration loaded from --config or the
// default locations.
package main
