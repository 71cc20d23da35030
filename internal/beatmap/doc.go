// Package beatmap defines the beatmap library data model and the decoder for
// the line-based .osu difficulty format.
//
// A SetInfo is the unit of change: it owns an ordered list of beatmap records
// (Info) plus the files they were imported from. Derived attributes on Info
// (star rating, length, BPM) are only trustworthy after the update pipeline
// has run for the set. A WorkingBeatmap pairs a detached Info with its decoded
// note data and is the read-only view handed to difficulty calculators.
package beatmap
