package sqlstore

import (
	rcommand "github.com/goliatone/go-recaptcha/command"
	"github.com/goliatone/go-recaptcha/core"
	rquery "github.com/goliatone/go-recaptcha/query"
)

var (
	_ core.VerificationRecorder    = (*VerificationLogStore)(nil)
	_ rcommand.VerificationPruner  = (*VerificationLogStore)(nil)
	_ rquery.VerificationLogReader = (*VerificationLogStore)(nil)
)
