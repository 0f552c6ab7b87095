// Package utils provides shared utility helpers used across the node:
// environment-variable lookups with typed fallbacks and error wrapping.
package utils

import "fmt"

// Wrap adds context to an error message. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
