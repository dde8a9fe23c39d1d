// Package datasource resolves which logical data source (live or mock) the
// dashboard should read from. The choice is made once at process start from
// a single configuration string and exposed as an immutable Config that is
// passed to every consumer.
package datasource

import "strings"

// Mode is the logical data source selected for the process.
type Mode string

const (
	ModeLive    Mode = "live"
	ModeMock    Mode = "mock"
	ModeUnknown Mode = "unknown"
)

// String returns the mode name.
func (m Mode) String() string { return string(m) }

// Valid reports whether m is live or mock.
func (m Mode) Valid() bool {
	return m == ModeLive || m == ModeMock
}

// ResolveMode maps a raw configuration value onto a Mode. It never fails:
// anything it does not recognize resolves to ModeUnknown and the caller
// decides whether to abort.
//
// The canonical names "real" and "mock" match case-insensitively. The
// aliases "live" and "test" only match in lower case, so "LIVE" is unknown
// while "REAL" is live. Surrounding whitespace is not trimmed.
func ResolveMode(raw string) Mode {
	switch raw {
	case "live":
		return ModeLive
	case "test":
		return ModeMock
	}

	switch strings.ToLower(raw) {
	case "real":
		return ModeLive
	case "mock":
		return ModeMock
	default:
		return ModeUnknown
	}
}
