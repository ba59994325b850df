package gojob

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	rcommand "github.com/goliatone/go-recaptcha/command"
)

const (
	JobIDPruneVerifications  = "recaptcha.verifications.prune"
	ScriptPruneVerifications = "recaptcha/verifications/prune"

	paramOlderThan = "older_than"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation. An
// empty disposition means retry. A retry at or past MaxAttempts becomes
// dead_letter, or failed when DeadLetterOnMax is off.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.Disposition == queue.NackDispositionRetry && p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Disposition = queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		}
	}
	if out.Disposition != queue.NackDispositionRetry {
		out.Delay = 0
	}
	return out
}

// Retrying reports whether opts hands the delivery back for another attempt.
func Retrying(opts queue.NackOptions) bool {
	return opts.Disposition == "" || opts.Disposition == queue.NackDispositionRetry
}

// PruneJobMessage builds the queued form of a prune command. The idempotency
// key collapses duplicate schedules for the same window.
func PruneJobMessage(msg rcommand.PruneVerificationsMessage, idempotencyKey string) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:          JobIDPruneVerifications,
		ScriptPath:     ScriptPruneVerifications,
		Parameters:     map[string]any{paramOlderThan: msg.OlderThan.String()},
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
		DedupPolicy:    job.DedupPolicyDrop,
	}
}

// PruneMessageFromJob reads a prune command back out of a queued message.
// older_than may be a duration string or a number of seconds.
func PruneMessageFromJob(msg *job.ExecutionMessage) (rcommand.PruneVerificationsMessage, error) {
	if msg == nil {
		return rcommand.PruneVerificationsMessage{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDPruneVerifications {
		return rcommand.PruneVerificationsMessage{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	olderThan, err := durationParam(msg.Parameters[paramOlderThan])
	if err != nil {
		return rcommand.PruneVerificationsMessage{}, err
	}
	out := rcommand.PruneVerificationsMessage{OlderThan: olderThan}
	return out, out.Validate()
}

func durationParam(value any) (time.Duration, error) {
	switch typed := value.(type) {
	case time.Duration:
		return typed, nil
	case string:
		trimmed := strings.TrimSpace(typed)
		if parsed, err := time.ParseDuration(trimmed); err == nil {
			return parsed, nil
		}
		seconds, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, fmt.Errorf("gojob: invalid %s %q", paramOlderThan, typed)
		}
		return time.Duration(seconds * float64(time.Second)), nil
	case int:
		return time.Duration(typed) * time.Second, nil
	case int64:
		return time.Duration(typed) * time.Second, nil
	case float64:
		return time.Duration(typed * float64(time.Second)), nil
	case nil:
		return 0, fmt.Errorf("gojob: %s is required", paramOlderThan)
	default:
		return 0, fmt.Errorf("gojob: unsupported %s type %T", paramOlderThan, value)
	}
}

// PruneScheduler enqueues prune jobs on a go-job queue.
type PruneScheduler struct {
	enqueuer queue.Enqueuer
}

func NewPruneScheduler(enqueuer queue.Enqueuer) *PruneScheduler {
	return &PruneScheduler{enqueuer: enqueuer}
}

// Schedule enqueues a prune of records older than olderThan and returns the
// queue receipt.
func (s *PruneScheduler) Schedule(ctx context.Context, olderThan time.Duration, idempotencyKey string) (queue.EnqueueReceipt, error) {
	if s == nil || s.enqueuer == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg := rcommand.PruneVerificationsMessage{OlderThan: olderThan}
	if err := msg.Validate(); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	receipt, err := s.enqueuer.Enqueue(ctx, PruneJobMessage(msg, idempotencyKey))
	if err != nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: enqueue prune job: %w", err)
	}
	return receipt, nil
}

// PruneWorker drains prune jobs from a dequeuer and runs them through the
// prune command. Attempts are counted per idempotency key, falling back to the
// job id.
type PruneWorker struct {
	dequeuer queue.Dequeuer
	handler  *rcommand.PruneVerificationsCommand
	policy   RetryPolicy
	hook     worker.Hook
	logger   glog.Logger
	now      func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

type WorkerOption func(*PruneWorker)

func WithRetryPolicy(policy RetryPolicy) WorkerOption {
	return func(w *PruneWorker) { w.policy = policy }
}

func WithHook(hook worker.Hook) WorkerOption {
	return func(w *PruneWorker) { w.hook = hook }
}

func WithLogger(logger glog.Logger) WorkerOption {
	return func(w *PruneWorker) { w.logger = logger }
}

func NewPruneWorker(dequeuer queue.Dequeuer, handler *rcommand.PruneVerificationsCommand, opts ...WorkerOption) *PruneWorker {
	w := &PruneWorker{
		dequeuer: dequeuer,
		handler:  handler,
		policy:   RetryPolicy{MaxAttempts: 3, MaxDelay: time.Minute, DeadLetterOnMax: true},
		now:      time.Now,
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if w.hook == nil {
		w.hook = NewLoggingHook(w.logger)
	}
	w.logger = glog.Ensure(w.logger)
	return w
}

// RunOnce dequeues a single delivery and acks or nacks it.
func (w *PruneWorker) RunOnce(ctx context.Context) error {
	if w == nil || w.dequeuer == nil || w.handler == nil {
		return fmt.Errorf("gojob: prune worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}

	raw := delivery.Message()
	key := attemptKey(raw)
	attempt := w.nextAttempt(key)
	event := worker.Event{Message: raw, Delivery: delivery, Attempt: attempt, StartedAt: w.now()}
	w.hook.OnStart(ctx, event)

	msg, err := PruneMessageFromJob(raw)
	if err != nil {
		event.Err = err
		event.Duration = w.now().Sub(event.StartedAt)
		w.hook.OnFailure(ctx, event)
		w.forget(key)
		return delivery.Nack(ctx, queue.NackOptions{
			Disposition: queue.NackDispositionDeadLetter,
			Reason:      err.Error(),
		})
	}

	if err := w.handler.Execute(ctx, msg); err != nil {
		opts := w.policy.NormalizeAttempt(queue.NackOptions{
			Disposition: queue.NackDispositionRetry,
			Delay:       backoff(attempt),
			Reason:      err.Error(),
		}, attempt)
		event.Err = err
		event.Delay = opts.Delay
		event.Duration = w.now().Sub(event.StartedAt)
		if Retrying(opts) {
			w.hook.OnRetry(ctx, event)
		} else {
			w.hook.OnFailure(ctx, event)
			w.forget(key)
		}
		return delivery.Nack(ctx, opts)
	}

	event.Duration = w.now().Sub(event.StartedAt)
	w.forget(key)
	if err := delivery.Ack(ctx); err != nil {
		return err
	}
	w.hook.OnSuccess(ctx, event)
	return nil
}

func (w *PruneWorker) nextAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *PruneWorker) forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

func attemptKey(msg *job.ExecutionMessage) string {
	if msg == nil {
		return ""
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(msg.JobID)
}

func backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt*attempt) * time.Second
}

// LoggingHook reports worker events through glog.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("prune job started", eventArgs(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Info("prune job succeeded", eventArgs(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger.Error("prune job failed", eventArgs(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger.Warn("prune job retry", eventArgs(event)...)
}

func eventArgs(event worker.Event) []any {
	args := []any{"attempt", event.Attempt, "duration_ms", event.Duration.Milliseconds()}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message != nil {
		args = append(args, "job_id", message.JobID)
	}
	if event.Delay > 0 {
		args = append(args, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	return args
}

var (
	_ worker.Hook = (*LoggingHook)(nil)
)
