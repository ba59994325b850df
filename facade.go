package recaptcha

import (
	"fmt"

	rcommand "github.com/goliatone/go-recaptcha/command"
	"github.com/goliatone/go-recaptcha/core"
	rquery "github.com/goliatone/go-recaptcha/query"
)

type Commands struct {
	Verify             *rcommand.VerifyCommand
	PruneVerifications *rcommand.PruneVerificationsCommand
}

type Queries struct {
	CheckToken        *rquery.CheckTokenQuery
	ListVerifications *rquery.ListVerificationsQuery
}

// Facade bundles the command and query handlers around one verifier. The
// audit log handlers are only wired when a log is available.
type Facade struct {
	verifier *core.Verifier
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	pruner rcommand.VerificationPruner
	reader rquery.VerificationLogReader
}

// WithVerificationLog wires prune and list handlers to log. When omitted the
// verifier's recorder is used if it also reads and prunes.
func WithVerificationLog(log interface {
	rcommand.VerificationPruner
	rquery.VerificationLogReader
}) FacadeOption {
	return func(options *facadeOptions) {
		if log == nil {
			return
		}
		options.pruner = log
		options.reader = log
	}
}

func NewFacade(verifier *core.Verifier, opts ...FacadeOption) (*Facade, error) {
	if verifier == nil {
		return nil, fmt.Errorf("recaptcha: verifier is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.pruner == nil && cfg.reader == nil {
		cfg.pruner, cfg.reader = resolveVerificationLog(verifier)
	}

	facade := &Facade{verifier: verifier}
	facade.commands = Commands{
		Verify: rcommand.NewVerifyCommand(verifier),
	}
	facade.queries = Queries{
		CheckToken: rquery.NewCheckTokenQuery(verifier),
	}
	if cfg.pruner != nil {
		facade.commands.PruneVerifications = rcommand.NewPruneVerificationsCommand(cfg.pruner)
	}
	if cfg.reader != nil {
		facade.queries.ListVerifications = rquery.NewListVerificationsQuery(cfg.reader)
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Verifier() *core.Verifier {
	if f == nil {
		return nil
	}
	return f.verifier
}

func resolveVerificationLog(verifier *core.Verifier) (rcommand.VerificationPruner, rquery.VerificationLogReader) {
	recorder := verifier.Dependencies().Recorder
	if recorder == nil {
		return nil, nil
	}
	pruner, _ := recorder.(rcommand.VerificationPruner)
	reader, _ := recorder.(rquery.VerificationLogReader)
	return pruner, reader
}
