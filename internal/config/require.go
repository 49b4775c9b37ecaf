package config

import "log"

// Missing signing secrets are a fatal configuration error, not a
// per-request condition.
func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}
