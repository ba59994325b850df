package core

// Verification error codes. Codes are opaque strings so remote codes the
// library does not define pass through unchanged.
const (
	ErrorMissingInputResponse = "missing-input-response"
	ErrorInvalidJSON          = "invalid-json"
	ErrorConnectionFailed     = "connection-failed"
	ErrorBadResponse          = "bad-response"
	ErrorUnknownError         = "unknown-error"

	ErrorHostnameMismatch       = "hostname-mismatch"
	ErrorAPKPackageNameMismatch = "apk_package_name-mismatch"
	ErrorActionMismatch         = "action-mismatch"
	ErrorScoreThresholdNotMet   = "score-threshold-not-met"
	ErrorChallengeTimeout       = "challenge-timeout"
)

// Codes reported by the siteverify endpoint itself.
const (
	RemoteErrorMissingInputSecret   = "missing-input-secret"
	RemoteErrorInvalidInputSecret   = "invalid-input-secret"
	RemoteErrorInvalidInputResponse = "invalid-input-response"
	RemoteErrorBadRequest           = "bad-request"
	RemoteErrorTimeoutOrDuplicate   = "timeout-or-duplicate"
)

// ErrorCodeOther is the metric label for codes outside the known set.
const ErrorCodeOther = "other"

// IsKnownErrorCode reports whether code is a local, transport or documented
// remote code.
func IsKnownErrorCode(code string) bool {
	if IsConstraintError(code) || IsTransportError(code) {
		return true
	}
	switch code {
	case ErrorMissingInputResponse,
		RemoteErrorMissingInputSecret,
		RemoteErrorInvalidInputSecret,
		RemoteErrorInvalidInputResponse,
		RemoteErrorBadRequest,
		RemoteErrorTimeoutOrDuplicate:
		return true
	default:
		return false
	}
}

// IsConstraintError reports whether code is produced by local constraint
// evaluation rather than by the remote service or the transport.
func IsConstraintError(code string) bool {
	switch code {
	case ErrorHostnameMismatch,
		ErrorAPKPackageNameMismatch,
		ErrorActionMismatch,
		ErrorScoreThresholdNotMet,
		ErrorChallengeTimeout:
		return true
	default:
		return false
	}
}

// IsTransportError reports whether code describes a failure to obtain a
// usable response from the remote service.
func IsTransportError(code string) bool {
	switch code {
	case ErrorConnectionFailed, ErrorBadResponse, ErrorInvalidJSON, ErrorUnknownError:
		return true
	default:
		return false
	}
}
