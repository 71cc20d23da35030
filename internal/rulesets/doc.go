// Package rulesets resolves ruleset short names to implementations and
// provides their difficulty calculators.
//
// Resolution is explicit: Registry.Create returns ErrRulesetNotFound for a
// name nobody registered, so callers can fail a run without panicking. The
// built-in calculators share one strain model (see strain.go) and differ only
// in how a single object contributes strain and combo.
package rulesets
