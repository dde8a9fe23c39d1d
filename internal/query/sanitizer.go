// Package query builds the read-only SQL statements the schema probe sends
// to a backend. Identifiers are validated and quoted by the caller's
// dialect; values always travel as bind parameters.
package query

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxIdentifierLength is the longest table or column name accepted.
const MaxIdentifierLength = 128

// MaxValueLength bounds string values used in equality filters.
const MaxValueLength = 1024

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// reservedWords are statement keywords never accepted as a table or column
// name, even though quoting would make them legal.
var reservedWords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true,
	"EXEC": true, "EXECUTE": true, "UNION": true, "INTO": true,
	"FROM": true, "WHERE": true, "TABLE": true, "GRANT": true,
	"REVOKE": true,
}

// ValidateIdentifier checks that name can be used as a table or column name.
func ValidateIdentifier(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("identifier cannot be empty")
	case len(name) > MaxIdentifierLength:
		return fmt.Errorf("identifier too long (max %d chars): %q", MaxIdentifierLength, name)
	case !identifierPattern.MatchString(name):
		return fmt.Errorf("invalid identifier %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	case reservedWords[strings.ToUpper(name)]:
		return fmt.Errorf("identifier %q is a SQL reserved word", name)
	}
	return nil
}

// ValidateIdentifiers validates every name and returns the first failure.
func ValidateIdentifiers(names ...string) error {
	for _, name := range names {
		if err := ValidateIdentifier(name); err != nil {
			return err
		}
	}
	return nil
}

// SanitizeValue rejects filter values that contain NUL bytes or exceed
// MaxValueLength. The value is returned unchanged.
func SanitizeValue(val string) (string, error) {
	if strings.ContainsRune(val, 0) {
		return "", fmt.Errorf("value contains a NUL byte")
	}
	if len(val) > MaxValueLength {
		return "", fmt.Errorf("value too long (max %d chars)", MaxValueLength)
	}
	return val, nil
}
