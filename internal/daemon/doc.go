// Package daemon runs beatline as a long-lived background process.
//
// A daemon holds a flock-based lock inside the library directory so only one
// instance writes to a library at a time. While running it watches the import
// directory for new .osz archives, imports them once their writes settle, and
// optionally serves Prometheus metrics. Component construction lives in the
// app package; the daemon only owns startup, shutdown and the import loop.
package daemon
