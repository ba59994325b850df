package transport

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-recaptcha/core"
)

// transportError builds an envelope whose TextCode is the verification error
// code the failure maps to (core.ErrorConnectionFailed or core.ErrorBadResponse).
func transportError(
	message string,
	reason string,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, transportCategory(reason)).
		WithCode(code).
		WithTextCode(reason)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	reason string,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, reason, code, metadata)
	}
	err := goerrors.Wrap(source, transportCategory(reason), message).
		WithCode(code).
		WithTextCode(reason)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportCategory(reason string) goerrors.Category {
	switch reason {
	case core.ErrorConnectionFailed, core.ErrorBadResponse:
		return goerrors.CategoryExternal
	default:
		return goerrors.CategoryInternal
	}
}
