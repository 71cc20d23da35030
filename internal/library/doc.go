// Package library persists beatmap sets and their beatmaps in SQLite.
//
// All access goes through transaction scopes: Write runs a function inside an
// immediate transaction and commits when it returns nil, Read does the same
// against a separate reader pool. A Live handle names a set by ID and is only
// resolved inside a scope, so callers never hold records across commits.
//
// Schema changes bump schemaVersion in schema.go; an existing database with a
// different version is rejected with ErrSchemaMismatch.
package library
