package core

import (
	"encoding/json"
	"regexp"
)

var unsafeActionChars = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// Constraints is an immutable set of expectations checked against a
// verification response. The zero value checks nothing. Every With* method
// returns a modified copy.
type Constraints struct {
	hostname         *string
	apkPackageName   *string
	action           *string
	threshold        *float64
	challengeTimeout *int
}

func NewConstraints() Constraints {
	return Constraints{}
}

// WithHostname expects the challenge hostname to match (case-insensitive).
// An empty hostname clears the constraint.
func (c Constraints) WithHostname(hostname string) Constraints {
	c.hostname = optionalString(hostname)
	return c
}

// WithAPKPackageName expects the Android package name to match
// (case-insensitive). An empty name clears the constraint.
func (c Constraints) WithAPKPackageName(name string) Constraints {
	c.apkPackageName = optionalString(name)
	return c
}

// WithAction expects the v3 action name to match (case-insensitive).
// An empty action clears the constraint.
func (c Constraints) WithAction(action string) Constraints {
	c.action = optionalString(action)
	return c
}

// WithSaneAction strips every character outside [A-Za-z0-9-] before
// delegating to WithAction.
func (c Constraints) WithSaneAction(action string) Constraints {
	return c.WithAction(SanitizeAction(action))
}

// WithThreshold requires a reported score of at least threshold.
func (c Constraints) WithThreshold(threshold float64) Constraints {
	c.threshold = &threshold
	return c
}

// WithChallengeTimeout rejects challenges older than seconds. Non-positive
// values clear the constraint.
func (c Constraints) WithChallengeTimeout(seconds int) Constraints {
	if seconds <= 0 {
		c.challengeTimeout = nil
		return c
	}
	c.challengeTimeout = &seconds
	return c
}

func (c Constraints) Hostname() (string, bool) {
	return derefString(c.hostname)
}

func (c Constraints) APKPackageName() (string, bool) {
	return derefString(c.apkPackageName)
}

func (c Constraints) Action() (string, bool) {
	return derefString(c.action)
}

func (c Constraints) Threshold() (float64, bool) {
	if c.threshold == nil {
		return 0, false
	}
	return *c.threshold, true
}

func (c Constraints) ChallengeTimeout() (int, bool) {
	if c.challengeTimeout == nil {
		return 0, false
	}
	return *c.challengeTimeout, true
}

func (c Constraints) IsZero() bool {
	return c.hostname == nil &&
		c.apkPackageName == nil &&
		c.action == nil &&
		c.threshold == nil &&
		c.challengeTimeout == nil
}

// Equal compares the constraint values, not pointer identity.
func (c Constraints) Equal(other Constraints) bool {
	return equalStringPtr(c.hostname, other.hostname) &&
		equalStringPtr(c.apkPackageName, other.apkPackageName) &&
		equalStringPtr(c.action, other.action) &&
		equalFloatPtr(c.threshold, other.threshold) &&
		equalIntPtr(c.challengeTimeout, other.challengeTimeout)
}

// ToMap returns the constraint set keyed by wire name; absent values are nil.
func (c Constraints) ToMap() map[string]any {
	return map[string]any{
		"hostname":         anyString(c.hostname),
		"apk_package_name": anyString(c.apkPackageName),
		"action":           anyString(c.action),
		"threshold":        anyFloat(c.threshold),
		"challenge_ts":     anyInt(c.challengeTimeout),
	}
}

type constraintsWire struct {
	Hostname       *string  `json:"hostname"`
	APKPackageName *string  `json:"apk_package_name"`
	Action         *string  `json:"action"`
	Threshold      *float64 `json:"threshold"`
	ChallengeTS    *int     `json:"challenge_ts"`
}

func (c Constraints) MarshalJSON() ([]byte, error) {
	return json.Marshal(constraintsWire{
		Hostname:       c.hostname,
		APKPackageName: c.apkPackageName,
		Action:         c.action,
		Threshold:      c.threshold,
		ChallengeTS:    c.challengeTimeout,
	})
}

func (c *Constraints) UnmarshalJSON(data []byte) error {
	var wire constraintsWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	next := Constraints{}
	if wire.Hostname != nil {
		next = next.WithHostname(*wire.Hostname)
	}
	if wire.APKPackageName != nil {
		next = next.WithAPKPackageName(*wire.APKPackageName)
	}
	if wire.Action != nil {
		next = next.WithAction(*wire.Action)
	}
	if wire.Threshold != nil {
		next = next.WithThreshold(*wire.Threshold)
	}
	if wire.ChallengeTS != nil {
		next = next.WithChallengeTimeout(*wire.ChallengeTS)
	}
	*c = next
	return nil
}

// SanitizeAction removes every character outside [A-Za-z0-9-].
func SanitizeAction(action string) string {
	return unsafeActionChars.ReplaceAllString(action, "")
}

// optionalString treats only the empty string as unset. Whitespace is an
// expectation like any other and will not match a real response.
func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) (string, bool) {
	if value == nil {
		return "", false
	}
	return *value, true
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func anyString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func anyFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func anyInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}
