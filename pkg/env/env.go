// Package env holds the tiny lookup helper used before config is loaded.
package env

import "os"

// Get reads an environment variable, falling back when unset or empty.
func Get(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
