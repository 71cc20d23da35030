package rulesets

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ErrRulesetNotFound is returned when no ruleset is registered under a name.
var ErrRulesetNotFound = errors.New("ruleset not found")

// Registry maps ruleset short names and legacy mode IDs to implementations.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Ruleset
	byLegacy map[int]Ruleset
}

// NewRegistry returns a registry holding the supplied rulesets.
func NewRegistry(rulesets ...Ruleset) *Registry {
	r := &Registry{
		byName:   make(map[string]Ruleset, len(rulesets)),
		byLegacy: make(map[int]Ruleset, len(rulesets)),
	}
	for _, rs := range rulesets {
		r.Register(rs)
	}
	return r
}

// Default returns a registry with the four built-in rulesets.
func Default() *Registry {
	return NewRegistry(Osu{}, Taiko{}, Fruits{}, Mania{})
}

// Register adds or replaces a ruleset.
func (r *Registry) Register(rs Ruleset) {
	if rs == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[strings.ToLower(rs.ShortName())] = rs
	if id := rs.LegacyID(); id >= 0 {
		r.byLegacy[id] = rs
	}
}

// Create resolves name, which may be a short name or a legacy numeric mode ID.
func (r *Registry) Create(name string) (Ruleset, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %q (no registry)", ErrRulesetNotFound, name)
	}
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rs, ok := r.byName[key]; ok {
		return rs, nil
	}
	if id, err := strconv.Atoi(key); err == nil {
		if rs, ok := r.byLegacy[id]; ok {
			return rs, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrRulesetNotFound, name)
}

// Names lists registered short names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
