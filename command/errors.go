package command

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-recaptcha/core"
)

func commandDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.RecaptchaErrorInternal)
}

func commandValidationError(field string, message string) error {
	return goerrors.NewValidation("command: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.RecaptchaErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

// verificationFailure converts a failed verification into the go-errors
// envelope returned through the command bus.
func verificationFailure(err error) error {
	var verificationErr *core.VerificationError
	if errors.As(err, &verificationErr) && verificationErr != nil {
		return verificationErr.ToServiceError()
	}
	return err
}
