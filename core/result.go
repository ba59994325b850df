package core

import (
	"encoding/json"
	"slices"
)

// Result is the outcome of a single verification. Attributes reported by the
// remote service are nil when the service did not return them.
type Result struct {
	// Success is the raw flag from the remote service, before constraint checks.
	Success bool
	// ErrorCodes holds remote codes first, then local constraint violations.
	ErrorCodes []string

	Hostname       *string
	APKPackageName *string
	ChallengeTS    *string
	Score          *float64
	Action         *string

	// Constraints is the set the result was evaluated against.
	Constraints Constraints
}

// Valid requires both the remote success flag and zero accumulated errors.
func (r Result) Valid() bool {
	return r.Success && len(r.ErrorCodes) == 0
}

func (r Result) Invalid() bool {
	return !r.Valid()
}

// Errors returns a copy of the accumulated error codes.
func (r Result) Errors() []string {
	if len(r.ErrorCodes) == 0 {
		return []string{}
	}
	return append([]string(nil), r.ErrorCodes...)
}

// HasError reports whether every given code is present. It returns false
// when called without codes.
func (r Result) HasError(codes ...string) bool {
	if len(codes) == 0 {
		return false
	}
	for _, code := range codes {
		if !slices.Contains(r.ErrorCodes, code) {
			return false
		}
	}
	return true
}

// WithErrors returns a copy with codes appended after the existing ones.
func (r Result) WithErrors(codes ...string) Result {
	next := r.clone()
	next.ErrorCodes = append(next.ErrorCodes, codes...)
	return next
}

// Equal compares every field by value.
func (r Result) Equal(other Result) bool {
	return r.Success == other.Success &&
		slices.Equal(r.Errors(), other.Errors()) &&
		equalStringPtr(r.Hostname, other.Hostname) &&
		equalStringPtr(r.APKPackageName, other.APKPackageName) &&
		equalStringPtr(r.ChallengeTS, other.ChallengeTS) &&
		equalFloatPtr(r.Score, other.Score) &&
		equalStringPtr(r.Action, other.Action) &&
		r.Constraints.Equal(other.Constraints)
}

// ToMap returns the result keyed by the siteverify wire names, plus the
// evaluated constraints under "constraints".
func (r Result) ToMap() map[string]any {
	return map[string]any{
		"success":          r.Success,
		"error-codes":      r.Errors(),
		"hostname":         anyString(r.Hostname),
		"apk_package_name": anyString(r.APKPackageName),
		"challenge_ts":     anyString(r.ChallengeTS),
		"score":            anyFloat(r.Score),
		"action":           anyString(r.Action),
		"constraints":      r.Constraints.ToMap(),
	}
}

type resultWire struct {
	Success        bool        `json:"success"`
	ErrorCodes     []string    `json:"error-codes"`
	Hostname       *string     `json:"hostname"`
	APKPackageName *string     `json:"apk_package_name"`
	ChallengeTS    *string     `json:"challenge_ts"`
	Score          *float64    `json:"score"`
	Action         *string     `json:"action"`
	Constraints    Constraints `json:"constraints"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultWire{
		Success:        r.Success,
		ErrorCodes:     r.Errors(),
		Hostname:       r.Hostname,
		APKPackageName: r.APKPackageName,
		ChallengeTS:    r.ChallengeTS,
		Score:          r.Score,
		Action:         r.Action,
		Constraints:    r.Constraints,
	})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var wire resultWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = Result{
		Success:        wire.Success,
		ErrorCodes:     append([]string(nil), wire.ErrorCodes...),
		Hostname:       wire.Hostname,
		APKPackageName: wire.APKPackageName,
		ChallengeTS:    wire.ChallengeTS,
		Score:          wire.Score,
		Action:         wire.Action,
		Constraints:    wire.Constraints,
	}
	return nil
}

func (r Result) String() string {
	data, err := r.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (r Result) clone() Result {
	next := r
	next.ErrorCodes = append([]string(nil), r.ErrorCodes...)
	next.Hostname = cloneString(r.Hostname)
	next.APKPackageName = cloneString(r.APKPackageName)
	next.ChallengeTS = cloneString(r.ChallengeTS)
	next.Action = cloneString(r.Action)
	if r.Score != nil {
		score := *r.Score
		next.Score = &score
	}
	return next
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
