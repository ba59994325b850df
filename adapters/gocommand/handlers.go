package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	rcommand "github.com/goliatone/go-recaptcha/command"
	"github.com/goliatone/go-recaptcha/core"
	rquery "github.com/goliatone/go-recaptcha/query"
)

// ValidateMessageContract checks that msg has a non-empty Type() and passes
// its own Validate(), when it has one.
func ValidateMessageContract(msg any) error {
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return command.ValidateMessage(msg)
}

// RegistryAdapter owns the go-command registry the recaptcha handlers are
// registered in. Dispatch itself goes through the process-wide dispatcher.
type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

// AddQueueResolver mirrors the verify and prune commands into a go-job queue
// registry so they can also run as queued jobs. Queries are not queueable.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	resolve := jobqueuecommand.QueueResolver(queueRegistry)
	return a.registry.AddResolver(strings.TrimSpace(key), func(cmd any, meta command.CommandMeta, r *command.Registry) error {
		if !queueable(cmd) {
			return nil
		}
		return resolve(cmd, meta, r)
	})
}

func queueable(cmd any) bool {
	switch cmd.(type) {
	case command.Commander[rcommand.VerifyMessage], command.Commander[rcommand.PruneVerificationsMessage]:
		return true
	default:
		return false
	}
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

// Handlers groups the collaborators the recaptcha commands and queries need.
// Nil fields skip the handlers that depend on them.
type Handlers struct {
	Verifier  *core.Verifier
	Pruner    rcommand.VerificationPruner
	LogReader rquery.VerificationLogReader
}

// Registration is the set of subscriptions created by RegisterHandlers.
type Registration struct {
	subscriptions []commanddispatcher.Subscription
}

func (r *Registration) Len() int {
	if r == nil {
		return 0
	}
	return len(r.subscriptions)
}

func (r *Registration) Unsubscribe() {
	if r == nil {
		return
	}
	for _, subscription := range r.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	r.subscriptions = nil
}

func (r *Registration) add(subscription commanddispatcher.Subscription, err error) error {
	if err != nil {
		return err
	}
	r.subscriptions = append(r.subscriptions, subscription)
	return nil
}

// RegisterHandlers registers and subscribes the verify, prune, check-token and
// list-verifications handlers. On error every subscription made so far is
// released.
func RegisterHandlers(adapter *RegistryAdapter, handlers Handlers, runnerOpts ...runner.Option) (*Registration, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if handlers.Verifier == nil {
		return nil, fmt.Errorf("gocommand: verifier is required")
	}

	registration := &Registration{}
	fail := func(err error) (*Registration, error) {
		registration.Unsubscribe()
		return nil, err
	}

	if err := registration.add(registerCommand[rcommand.VerifyMessage](
		adapter, rcommand.NewVerifyCommand(handlers.Verifier), runnerOpts...,
	)); err != nil {
		return fail(err)
	}
	if err := registration.add(registerQuery[rquery.CheckTokenMessage, core.Result](
		adapter, rquery.NewCheckTokenQuery(handlers.Verifier), runnerOpts...,
	)); err != nil {
		return fail(err)
	}
	if handlers.Pruner != nil {
		if err := registration.add(registerCommand[rcommand.PruneVerificationsMessage](
			adapter, rcommand.NewPruneVerificationsCommand(handlers.Pruner), runnerOpts...,
		)); err != nil {
			return fail(err)
		}
	}
	if handlers.LogReader != nil {
		if err := registration.add(registerQuery[rquery.ListVerificationsMessage, core.VerificationPage](
			adapter, rquery.NewListVerificationsQuery(handlers.LogReader), runnerOpts...,
		)); err != nil {
			return fail(err)
		}
	}
	return registration, nil
}

func registerCommand[T any](adapter *RegistryAdapter, cmd command.Commander[T], runnerOpts ...runner.Option) (commanddispatcher.Subscription, error) {
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.registry.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func registerQuery[T any, R any](adapter *RegistryAdapter, qry command.Querier[T, R], runnerOpts ...runner.Option) (commanddispatcher.Subscription, error) {
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.registry.RegisterCommand(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// DispatchVerify runs the verify command. A token that fails verification is
// returned as an error.
func DispatchVerify(ctx context.Context, msg rcommand.VerifyMessage) error {
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

func DispatchPrune(ctx context.Context, msg rcommand.PruneVerificationsMessage) error {
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

// CheckToken runs the check-token query. Unlike DispatchVerify a failed
// verification comes back as a Result, not an error.
func CheckToken(ctx context.Context, msg rquery.CheckTokenMessage) (core.Result, error) {
	if err := ValidateMessageContract(msg); err != nil {
		return core.Result{}, err
	}
	return commanddispatcher.Query[rquery.CheckTokenMessage, core.Result](ctx, msg)
}

func ListVerifications(ctx context.Context, msg rquery.ListVerificationsMessage) (core.VerificationPage, error) {
	if err := ValidateMessageContract(msg); err != nil {
		return core.VerificationPage{}, err
	}
	return commanddispatcher.Query[rquery.ListVerificationsMessage, core.VerificationPage](ctx, msg)
}
