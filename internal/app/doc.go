// Package app assembles beatline's components from configuration.
//
// The CLI and the daemon share one construction path: open the library
// store and file store, build the rendered-beatmap and difficulty caches,
// start the online lookup queue and create the update pipeline and importer
// on top of them.
package app
