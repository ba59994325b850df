package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	RecaptchaErrorBadInput           = "RECAPTCHA_BAD_INPUT"
	RecaptchaErrorConfigInvalid      = "RECAPTCHA_CONFIG_INVALID"
	RecaptchaErrorTransportFailed    = "RECAPTCHA_TRANSPORT_FAILED"
	RecaptchaErrorVerificationFailed = "RECAPTCHA_VERIFICATION_FAILED"
	RecaptchaErrorInternal           = "RECAPTCHA_INTERNAL_ERROR"
)

var (
	ErrVerificationFailed = errors.New("core: recaptcha verification failed")
	ErrSecretRequired     = errors.New("core: secret is required")
	ErrTransportRequired  = errors.New("core: transport is required")
)

// VerificationError carries the full result of a failed verification.
type VerificationError struct {
	Result Result
}

func (e *VerificationError) Error() string {
	if e == nil {
		return ErrVerificationFailed.Error()
	}
	codes := e.Result.Errors()
	if len(codes) == 0 {
		return ErrVerificationFailed.Error()
	}
	return fmt.Sprintf("%s: %s", ErrVerificationFailed.Error(), strings.Join(codes, ", "))
}

func (e *VerificationError) Is(target error) bool {
	return target == ErrVerificationFailed
}

func (e *VerificationError) ToServiceError() *goerrors.Error {
	result := Result{}
	if e != nil {
		result = e.Result
	}
	return goerrors.New(e.Error(), goerrors.CategoryValidation).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(RecaptchaErrorVerificationFailed).
		WithMetadata(map[string]any{
			"error_codes": result.Errors(),
			"success":     result.Success,
		})
}

// ResultFromError extracts the verification result from a VerifyOrFail error.
func ResultFromError(err error) (Result, bool) {
	var verificationErr *VerificationError
	if errors.As(err, &verificationErr) && verificationErr != nil {
		return verificationErr.Result, true
	}
	return Result{}, false
}

// TransportFailureCode maps a transport error onto a verification error code.
// Envelopes carrying a known code keep it; anything else is connection-failed.
func TransportFailureCode(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		switch strings.TrimSpace(richErr.TextCode) {
		case ErrorBadResponse:
			return ErrorBadResponse
		case ErrorInvalidJSON:
			return ErrorInvalidJSON
		}
	}
	return ErrorConnectionFailed
}

func recaptchaErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var verificationErr *VerificationError
	if errors.As(err, &verificationErr) {
		return verificationErr.ToServiceError()
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureRecaptchaErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case errors.Is(err, ErrSecretRequired), errors.Is(err, ErrTransportRequired):
		return newRecaptchaError(err.Error(), goerrors.CategoryBadInput, RecaptchaErrorConfigInvalid)
	case strings.Contains(msg, "config"), strings.Contains(msg, "verify_url"), strings.Contains(msg, "timeout"):
		return newRecaptchaError(err.Error(), goerrors.CategoryValidation, RecaptchaErrorConfigInvalid)
	case strings.Contains(msg, "transport"):
		return newRecaptchaError(err.Error(), goerrors.CategoryExternal, RecaptchaErrorTransportFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newRecaptchaError(err.Error(), goerrors.CategoryBadInput, RecaptchaErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureRecaptchaErrorEnvelope(mapped)
}

func newRecaptchaError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureRecaptchaErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureRecaptchaErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = recaptchaHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultRecaptchaTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultRecaptchaTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return RecaptchaErrorBadInput
	case goerrors.CategoryValidation:
		return RecaptchaErrorConfigInvalid
	case goerrors.CategoryExternal:
		return RecaptchaErrorTransportFailed
	default:
		return RecaptchaErrorInternal
	}
}

func recaptchaHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}
