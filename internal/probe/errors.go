package probe

import (
	"context"
	"errors"
	"strings"
)

// Kind classifies a probe failure.
type Kind string

const (
	KindNone                 Kind = ""
	KindBackendUnavailable   Kind = "backend_unavailable"
	KindSchemaMismatch       Kind = "schema_mismatch"
	KindRelationshipMismatch Kind = "relationship_mismatch"
	KindDataMissing          Kind = "data_missing"
	KindQueryFailed          Kind = "query_failed"
)

// ErrNoRelationship is recorded as the join error when the backend has no
// declared foreign key from the child column to the parent table.
var ErrNoRelationship = errors.New("could not find a relationship")

// ErrNoRows is recorded when a lookup matches nothing.
var ErrNoRows = errors.New("no matching row")

// Classify maps a backend error to a Kind by inspecting driver messages.
// Drivers report these conditions with free-form text, so matching is on
// well-known substrings across postgres, mysql, sqlite and sql server.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrNoRelationship) {
		return KindRelationshipMismatch
	}
	if errors.Is(err, ErrNoRows) {
		return KindDataMissing
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindBackendUnavailable
	}

	lower := strings.ToLower(err.Error())
	switch {
	// Transport and authentication failures
	case strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "i/o timeout") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "broken pipe") ||
		strings.Contains(lower, "password authentication failed") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "login failed") ||
		strings.Contains(lower, "database is closed") ||
		strings.Contains(lower, "bad connection"):
		return KindBackendUnavailable

	// Missing table or column
	case strings.Contains(lower, "no such table") ||
		strings.Contains(lower, "no such column") ||
		strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist") ||
		strings.Contains(lower, "column") && strings.Contains(lower, "does not exist") ||
		strings.Contains(lower, "invalid object name") ||
		strings.Contains(lower, "invalid column name") ||
		strings.Contains(lower, "unknown column") ||
		strings.Contains(lower, "doesn't exist"):
		return KindSchemaMismatch

	case strings.Contains(lower, "relationship") ||
		strings.Contains(lower, "foreign key"):
		return KindRelationshipMismatch

	default:
		return KindQueryFailed
	}
}
