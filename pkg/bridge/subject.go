package bridge

import (
	"fmt"
	"regexp"
	"strings"
)

// SubjectFor returns the subject a producer publishes on to reach a given
// destination: "<producer>.sync.<destination>".
func SubjectFor(producer, destination string) string {
	return fmt.Sprintf("%s.sync.%s", producer, destination)
}

// DLQSubjectFor returns the dead-letter variant of SubjectFor:
// "<producer>.sync.<destination>.dlq".
func DLQSubjectFor(producer, destination string) string {
	return SubjectFor(producer, destination) + ".dlq"
}

// StreamName returns the stream name this bridge manages for env:
// "<env>-jetstream-bridge-stream".
func StreamName(env string) string {
	return env + "-jetstream-bridge-stream"
}

var invalidTokenChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeToken strips characters that are not legal in a NATS subject
// token, for use when producer/destination names come from user input.
func SanitizeToken(token string) string {
	return invalidTokenChars.ReplaceAllString(token, "_")
}

// MatchesWildcard reports whether the NATS subject pattern (using the
// standard "*" single-token and ">" trailing-tokens wildcards) matches the
// literal subject.
func MatchesWildcard(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	patternTokens := strings.Split(pattern, ".")
	subjectTokens := strings.Split(subject, ".")

	for i, pt := range patternTokens {
		if pt == ">" {
			return i < len(subjectTokens)
		}
		if i >= len(subjectTokens) {
			return false
		}
		if pt != "*" && pt != subjectTokens[i] {
			return false
		}
	}
	return len(patternTokens) == len(subjectTokens)
}

// Overlaps reports whether two subject patterns could both match at least
// one concrete subject, i.e. whether a publisher on one pattern risks
// delivery to a stream bound to the other. Two patterns overlap if, token
// by token, each position is compatible: equal literals, or either side is
// a wildcard, with ">" absorbing all remaining tokens on both sides.
func Overlaps(a, b string) bool {
	aTokens := strings.Split(a, ".")
	bTokens := strings.Split(b, ".")

	i, j := 0, 0
	for i < len(aTokens) && j < len(bTokens) {
		at, bt := aTokens[i], bTokens[j]
		if at == ">" || bt == ">" {
			return true
		}
		if at != "*" && bt != "*" && at != bt {
			return false
		}
		i++
		j++
	}
	return i == len(aTokens) && j == len(bTokens)
}

// CoversAll reports whether every subject in wanted is matched by at least
// one pattern in have.
func CoversAll(have []string, wanted []string) (ok bool, missing []string) {
	for _, w := range wanted {
		covered := false
		for _, h := range have {
			if MatchesWildcard(h, w) || h == w {
				covered = true
				break
			}
		}
		if !covered {
			missing = append(missing, w)
		}
	}
	return len(missing) == 0, missing
}
