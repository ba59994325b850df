package query

import (
	"github.com/goliatone/go-recaptcha/core"
)

const (
	TypeCheckToken        = "recaptcha.query.token.check"
	TypeListVerifications = "recaptcha.query.verifications.list"
)

// CheckTokenMessage asks for a verification result without failing on an
// invalid token. An empty token yields a missing-input-response result.
type CheckTokenMessage struct {
	Token       string
	RemoteIP    string
	Constraints core.Constraints
}

func (CheckTokenMessage) Type() string { return TypeCheckToken }

type ListVerificationsMessage struct {
	Filter core.VerificationFilter
}

func (ListVerificationsMessage) Type() string { return TypeListVerifications }

func (m ListVerificationsMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	if m.Filter.From != nil && m.Filter.To != nil && m.Filter.To.Before(*m.Filter.From) {
		return queryValidationError("to", "to must not be before from")
	}
	return nil
}
