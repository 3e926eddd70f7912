// Package blackboard picks a storage backend by name and hands out stores to
// crews, either one shared store or one store per crew.
package blackboard

import (
	"fmt"
	"strings"
)

// Flavor names a storage backend.
type Flavor string

const (
	// FlavorBaseline is the plain list-backed compatibility store.
	FlavorBaseline Flavor = "baseline"

	// FlavorHashed is the concurrent content-addressed, hash-chained store.
	FlavorHashed Flavor = "hashed"

	// FlavorDurable is FlavorHashed backed by a SQL journal.
	FlavorDurable Flavor = "durable"
)

var flavorAliases = map[string]Flavor{
	"baseline": FlavorBaseline,
	"original": FlavorBaseline,
	"compat":   FlavorBaseline,

	"hashed":                  FlavorHashed,
	"blackboard":              FlavorHashed,
	"content-addressed":       FlavorHashed,
	"concurrent-hash-chained": FlavorHashed,

	"durable":  FlavorDurable,
	"sqlite":   FlavorDurable,
	"postgres": FlavorDurable,
	"lance":    FlavorDurable,
}

// ParseFlavor maps a flavor name or one of its aliases onto a Flavor. An
// empty name selects FlavorHashed.
func ParseFlavor(s string) (Flavor, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return FlavorHashed, nil
	}

	f, ok := flavorAliases[strings.ReplaceAll(name, "_", "-")]
	if !ok {
		return "", fmt.Errorf("unknown blackboard flavor %q", s)
	}
	return f, nil
}

func (f Flavor) String() string { return string(f) }

// Mode controls how a Registry hands stores to crews.
type Mode string

const (
	// ModeShared gives every crew the same store.
	ModeShared Mode = "shared"

	// ModeSeparate gives each crew its own store.
	ModeSeparate Mode = "separate"
)

// ParseMode maps a name onto a Mode. An empty name selects ModeShared.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeShared:
		return ModeShared, nil
	case ModeSeparate:
		return ModeSeparate, nil
	default:
		return "", fmt.Errorf("unknown store mode %q", s)
	}
}
