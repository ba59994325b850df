package core

import (
	"encoding/json"
	"slices"
	"testing"
)

func TestResult_ValidRequiresSuccessAndNoErrors(t *testing.T) {
	if (Result{Success: true}).Invalid() {
		t.Fatalf("expected success without errors to be valid")
	}
	if (Result{Success: false}).Valid() {
		t.Fatalf("expected success=false to be invalid")
	}
	if (Result{Success: true, ErrorCodes: []string{"x"}}).Valid() {
		t.Fatalf("expected errors to invalidate result")
	}
}

func TestResult_HasErrorRequiresEveryCode(t *testing.T) {
	result := Result{ErrorCodes: []string{ErrorHostnameMismatch, ErrorActionMismatch}}
	if !result.HasError(ErrorHostnameMismatch) {
		t.Fatalf("expected single code match")
	}
	if !result.HasError(ErrorActionMismatch, ErrorHostnameMismatch) {
		t.Fatalf("expected all codes to match")
	}
	if result.HasError(ErrorActionMismatch, ErrorChallengeTimeout) {
		t.Fatalf("expected partial match to fail")
	}
	if result.HasError() {
		t.Fatalf("expected empty query to be false")
	}
}

func TestResult_ErrorsReturnsCopy(t *testing.T) {
	result := Result{ErrorCodes: []string{"a"}}
	codes := result.Errors()
	codes[0] = "b"
	if result.ErrorCodes[0] != "a" {
		t.Fatalf("expected Errors to return a copy")
	}
	if got := (Result{}).Errors(); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestResult_WithErrorsAppends(t *testing.T) {
	base := Result{Success: true, ErrorCodes: []string{"remote"}}
	next := base.WithErrors(ErrorHostnameMismatch)
	if !slices.Equal(next.Errors(), []string{"remote", ErrorHostnameMismatch}) {
		t.Fatalf("unexpected errors %v", next.Errors())
	}
	if len(base.ErrorCodes) != 1 {
		t.Fatalf("expected base result to stay unchanged")
	}
}

func TestResult_JSONRoundTripKeepsConstraints(t *testing.T) {
	original := Result{
		Success:     true,
		ErrorCodes:  []string{ErrorScoreThresholdNotMet},
		Hostname:    stringPtr("example.com"),
		Score:       floatPtr(0.2),
		Action:      stringPtr("login"),
		Constraints: NewConstraints().WithThreshold(0.5).WithAction("login"),
	}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	var decoded Result
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !decoded.Equal(original) {
		t.Fatalf("expected round trip to preserve result, got %s", decoded)
	}
}

func TestResult_ToMapUsesWireNames(t *testing.T) {
	result := Result{Success: true, Hostname: stringPtr("example.com")}
	mapped := result.ToMap()
	if mapped["hostname"] != "example.com" {
		t.Fatalf("unexpected hostname %#v", mapped["hostname"])
	}
	if mapped["score"] != nil {
		t.Fatalf("expected absent score to be nil, got %#v", mapped["score"])
	}
	if _, ok := mapped["error-codes"].([]string); !ok {
		t.Fatalf("expected error-codes slice")
	}
	if _, ok := mapped["constraints"].(map[string]any); !ok {
		t.Fatalf("expected constraints map")
	}
}

func TestConstraints_WithReturnsCopies(t *testing.T) {
	base := NewConstraints()
	withHost := base.WithHostname("example.com")
	if !base.IsZero() {
		t.Fatalf("expected base constraints to stay empty")
	}
	if host, ok := withHost.Hostname(); !ok || host != "example.com" {
		t.Fatalf("unexpected hostname %q %v", host, ok)
	}
	if !withHost.WithHostname("").IsZero() {
		t.Fatalf("expected empty hostname to clear the constraint")
	}
	if host, ok := base.WithHostname(" ").Hostname(); !ok || host != " " {
		t.Fatalf("expected whitespace hostname to stay set, got %q %v", host, ok)
	}
	if _, ok := base.WithChallengeTimeout(0).ChallengeTimeout(); ok {
		t.Fatalf("expected non-positive timeout to be absent")
	}
	if value, ok := base.WithThreshold(0).Threshold(); !ok || value != 0 {
		t.Fatalf("expected zero threshold to be present")
	}
}

func TestConstraints_SaneAction(t *testing.T) {
	constraints := NewConstraints().WithSaneAction("log in/home_page!-2")
	action, ok := constraints.Action()
	if !ok || action != "loginhomepage-2" {
		t.Fatalf("unexpected sanitized action %q", action)
	}
	if _, ok := NewConstraints().WithSaneAction("!!!").Action(); ok {
		t.Fatalf("expected fully stripped action to be absent")
	}
}

func TestConstraints_JSONRoundTrip(t *testing.T) {
	original := NewConstraints().
		WithHostname("example.com").
		WithAPKPackageName("com.example.app").
		WithAction("login").
		WithThreshold(0.5).
		WithChallengeTimeout(120)
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal constraints: %v", err)
	}
	var decoded Constraints
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal constraints: %v", err)
	}
	if !decoded.Equal(original) {
		t.Fatalf("expected round trip to preserve constraints, got %s", data)
	}

	empty, err := json.Marshal(NewConstraints())
	if err != nil {
		t.Fatalf("marshal empty constraints: %v", err)
	}
	want := `{"hostname":null,"apk_package_name":null,"action":null,"threshold":null,"challenge_ts":null}`
	if string(empty) != want {
		t.Fatalf("expected %s, got %s", want, empty)
	}
}
