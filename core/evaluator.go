package core

import (
	"math"
	"strings"
	"time"
)

var challengeTimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Evaluate applies constraints to a parsed result and returns a new result
// with violations appended after any existing codes. Checks run in a fixed
// order and never short-circuit. Success is never modified.
func Evaluate(result Result, constraints Constraints, now time.Time) Result {
	evaluated := result.clone()
	evaluated.Constraints = constraints

	var violations []string
	if expected, ok := constraints.Hostname(); ok && !equalFoldOptional(expected, result.Hostname) {
		violations = append(violations, ErrorHostnameMismatch)
	}
	if expected, ok := constraints.APKPackageName(); ok && !equalFoldOptional(expected, result.APKPackageName) {
		violations = append(violations, ErrorAPKPackageNameMismatch)
	}
	if expected, ok := constraints.Action(); ok && !equalFoldOptional(expected, result.Action) {
		violations = append(violations, ErrorActionMismatch)
	}
	if threshold, ok := constraints.Threshold(); ok && !scoreMeets(result.Score, threshold) {
		violations = append(violations, ErrorScoreThresholdNotMet)
	}
	if maxAge, ok := constraints.ChallengeTimeout(); ok && challengeExpired(result.ChallengeTS, maxAge, now) {
		violations = append(violations, ErrorChallengeTimeout)
	}

	evaluated.ErrorCodes = append(evaluated.ErrorCodes, violations...)
	return evaluated
}

// ParseChallengeTimestamp parses the challenge_ts attribute. Only instants
// after the Unix epoch are accepted.
func ParseChallengeTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range challengeTimestampLayouts {
		parsed, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if parsed.Unix() <= 0 {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	}
	return time.Time{}, false
}

// challengeExpired skips the check when the timestamp is missing or does not
// parse.
func challengeExpired(challengeTS *string, maxAgeSeconds int, now time.Time) bool {
	if challengeTS == nil {
		return false
	}
	issuedAt, ok := ParseChallengeTimestamp(*challengeTS)
	if !ok {
		return false
	}
	return int64(now.Sub(issuedAt)/time.Second) > int64(maxAgeSeconds)
}

func equalFoldOptional(expected string, actual *string) bool {
	if actual == nil {
		return false
	}
	return strings.EqualFold(expected, *actual)
}

// scoreMeets is false for absent or NaN scores.
func scoreMeets(score *float64, threshold float64) bool {
	if score == nil || math.IsNaN(*score) {
		return false
	}
	return *score >= threshold
}
