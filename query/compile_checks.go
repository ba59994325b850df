package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-recaptcha/core"
)

var (
	_ gocmd.Querier[CheckTokenMessage, core.Result]                  = (*CheckTokenQuery)(nil)
	_ gocmd.Querier[ListVerificationsMessage, core.VerificationPage] = (*ListVerificationsQuery)(nil)
	_ TokenChecker                                                   = (*core.Verifier)(nil)
)
