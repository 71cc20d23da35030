package rulesets

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownMod is returned for an acronym that no built-in mod uses.
	ErrUnknownMod = errors.New("unknown mod")
	// ErrIncompatibleMods is returned when two rate-changing mods are combined.
	ErrIncompatibleMods = errors.New("incompatible mods")
)

// Mod is a gameplay modifier that affects difficulty.
type Mod struct {
	Acronym   string
	ClockRate float64
}

var knownMods = map[string]Mod{
	"DT": {Acronym: "DT", ClockRate: 1.5},
	"NC": {Acronym: "NC", ClockRate: 1.5},
	"HT": {Acronym: "HT", ClockRate: 0.75},
}

// ParseMods parses a comma or space separated acronym list such as "DT,HD".
// "NM" and empty input mean no mods.
func ParseMods(raw string) ([]Mod, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '+'
	})
	mods := make([]Mod, 0, len(fields))
	seen := map[string]struct{}{}
	for _, field := range fields {
		acronym := strings.ToUpper(strings.TrimSpace(field))
		if acronym == "" || acronym == "NM" {
			continue
		}
		mod, ok := knownMods[acronym]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMod, field)
		}
		if _, dup := seen[acronym]; dup {
			continue
		}
		seen[acronym] = struct{}{}
		mods = append(mods, mod)
	}
	if err := checkCompatible(mods); err != nil {
		return nil, err
	}
	return mods, nil
}

func checkCompatible(mods []Mod) error {
	var rateMod string
	for _, mod := range mods {
		if mod.ClockRate == 1 || mod.ClockRate == 0 {
			continue
		}
		if rateMod != "" {
			return fmt.Errorf("%w: %s and %s both change clock rate", ErrIncompatibleMods, rateMod, mod.Acronym)
		}
		rateMod = mod.Acronym
	}
	return nil
}

// ClockRate returns the combined playback rate of mods.
func ClockRate(mods []Mod) float64 {
	rate := 1.0
	for _, mod := range mods {
		if mod.ClockRate > 0 {
			rate *= mod.ClockRate
		}
	}
	return rate
}

// ModsKey returns a canonical string for mods, usable as a cache key.
func ModsKey(mods []Mod) string {
	if len(mods) == 0 {
		return ""
	}
	acronyms := make([]string, 0, len(mods))
	for _, mod := range mods {
		acronyms = append(acronyms, mod.Acronym)
	}
	sort.Strings(acronyms)
	return strings.Join(acronyms, ",")
}
