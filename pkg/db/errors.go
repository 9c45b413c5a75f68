package db

import "strings"

// IsUniqueViolation reports whether err looks like a Postgres unique
// constraint failure. Callers that know the constraint (one cart per user,
// unique category names) pass its name to disambiguate; otherwise any
// duplicate-key failure matches.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	if constraintName != "" {
		return strings.Contains(message, constraintName)
	}
	return strings.Contains(message, "duplicate key value")
}
