package core

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseResponse converts a raw siteverify body into a Result. It never fails:
// empty or malformed bodies yield invalid-json, objects without a success
// field yield unknown-error.
func ParseResponse(raw []byte) Result {
	result, _ := parseResponse(raw)
	return result
}

// parseResponse reports false when the body was not a usable response.
func parseResponse(raw []byte) (Result, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return failureResult(ErrorInvalidJSON), false
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &payload); err != nil || len(payload) == 0 {
		return failureResult(ErrorInvalidJSON), false
	}

	successRaw, ok := payload["success"]
	if !ok {
		return failureResult(ErrorUnknownError), false
	}

	return Result{
		Success:        coerceBool(successRaw),
		ErrorCodes:     decodeErrorCodes(payload["error-codes"]),
		Hostname:       decodeOptionalString(payload["hostname"]),
		APKPackageName: decodeOptionalString(payload["apk_package_name"]),
		ChallengeTS:    decodeOptionalString(payload["challenge_ts"]),
		Score:          decodeOptionalFloat(payload["score"]),
		Action:         decodeOptionalString(payload["action"]),
	}, true
}

// TransportFailureResult is the result for a call that never produced a
// usable body. Blank codes fall back to connection-failed.
func TransportFailureResult(code string) Result {
	code = strings.TrimSpace(code)
	if code == "" {
		code = ErrorConnectionFailed
	}
	return failureResult(code)
}

func failureResult(code string) Result {
	return Result{
		Success:    false,
		ErrorCodes: []string{code},
	}
}

func coerceBool(raw json.RawMessage) bool {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return false
	}
	switch typed := value.(type) {
	case bool:
		return typed
	case float64:
		return typed != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "true", "1":
			return true
		}
	}
	return false
}

func decodeErrorCodes(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var values []any
	if err := json.Unmarshal(raw, &values); err != nil {
		return []string{}
	}
	codes := make([]string, 0, len(values))
	for _, value := range values {
		code, ok := value.(string)
		if !ok {
			continue
		}
		codes = append(codes, code)
	}
	return codes
}

func decodeOptionalString(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil || value == nil {
		return nil
	}
	switch typed := value.(type) {
	case string:
		return &typed
	case float64:
		formatted := strconv.FormatFloat(typed, 'f', -1, 64)
		return &formatted
	case bool:
		formatted := strconv.FormatBool(typed)
		return &formatted
	default:
		return nil
	}
}

func decodeOptionalFloat(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil || value == nil {
		return nil
	}
	var parsed float64
	switch typed := value.(type) {
	case float64:
		parsed = typed
	case string:
		number, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return nil
		}
		parsed = number
	default:
		return nil
	}
	// NaN and infinities are treated as a missing score
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return nil
	}
	return &parsed
}
