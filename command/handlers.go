package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-recaptcha/core"
)

type Verifier interface {
	VerifyOrFail(ctx context.Context, token string, remoteIP string, constraints core.Constraints) (core.Result, error)
}

type VerificationPruner interface {
	PruneVerifications(ctx context.Context, before time.Time) (int64, error)
}

// PruneResult reports how many audit records were removed.
type PruneResult struct {
	Deleted int64
	Before  time.Time
}

type VerifyCommand struct {
	verifier Verifier
}

func NewVerifyCommand(verifier Verifier) *VerifyCommand {
	return &VerifyCommand{verifier: verifier}
}

// Execute stores the result whether or not verification passed, and returns
// a RECAPTCHA_VERIFICATION_FAILED envelope for invalid results.
func (c *VerifyCommand) Execute(ctx context.Context, msg VerifyMessage) error {
	if c == nil || c.verifier == nil {
		return commandDependencyError("command: verifier is required")
	}
	result, err := c.verifier.VerifyOrFail(ctx, msg.Token, msg.RemoteIP, msg.Constraints)
	storeResult(ctx, result)
	if err != nil {
		return verificationFailure(err)
	}
	return nil
}

type PruneVerificationsCommand struct {
	pruner VerificationPruner
	now    func() time.Time
}

func NewPruneVerificationsCommand(pruner VerificationPruner) *PruneVerificationsCommand {
	return &PruneVerificationsCommand{
		pruner: pruner,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (c *PruneVerificationsCommand) Execute(ctx context.Context, msg PruneVerificationsMessage) error {
	if c == nil || c.pruner == nil {
		return commandDependencyError("command: verification pruner is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	before := c.now().Add(-msg.OlderThan)
	deleted, err := c.pruner.PruneVerifications(ctx, before)
	if err != nil {
		return err
	}
	storeResult(ctx, PruneResult{Deleted: deleted, Before: before})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
