package nats

import (
	"regexp"
	"strings"
)

var invalidDurableChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// sanitizeDurable converts an arbitrary string into a legal NATS durable
// consumer name (alphanumeric, dash, underscore only).
func sanitizeDurable(name string) string {
	return invalidDurableChars.ReplaceAllString(name, "_")
}

// streamNameForSubject derives the stream holding a subject by taking its
// first token. This is only used by the generic Broker.Consumer path; the
// bridge's own consumer always names its stream explicitly via topology.
func streamNameForSubject(subject string) string {
	parts := strings.SplitN(subject, ".", 2)
	return sanitizeDurable(parts[0])
}
