package command

import (
	"strings"
	"time"

	"github.com/goliatone/go-recaptcha/core"
)

const (
	TypeVerify             = "recaptcha.command.verify"
	TypePruneVerifications = "recaptcha.command.verifications.prune"
)

type VerifyMessage struct {
	Token       string
	RemoteIP    string
	Constraints core.Constraints
}

func (VerifyMessage) Type() string { return TypeVerify }

func (m VerifyMessage) Validate() error {
	if strings.TrimSpace(m.Token) == "" {
		return commandValidationError("token", "token is required")
	}
	if threshold, ok := m.Constraints.Threshold(); ok && (threshold < 0 || threshold > 1) {
		return commandValidationError("threshold", "threshold must be between 0 and 1")
	}
	return nil
}

// PruneVerificationsMessage removes audit records created more than
// OlderThan ago.
type PruneVerificationsMessage struct {
	OlderThan time.Duration
}

func (PruneVerificationsMessage) Type() string { return TypePruneVerifications }

func (m PruneVerificationsMessage) Validate() error {
	if m.OlderThan <= 0 {
		return commandValidationError("older_than", "older_than must be positive")
	}
	return nil
}
