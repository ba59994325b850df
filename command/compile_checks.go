package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[VerifyMessage]             = (*VerifyCommand)(nil)
	_ gocmd.Commander[PruneVerificationsMessage] = (*PruneVerificationsCommand)(nil)
)
