package gojob

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	rcommand "github.com/goliatone/go-recaptcha/command"
)

func TestPruneMessageMappingRoundTrip(t *testing.T) {
	original := rcommand.PruneVerificationsMessage{OlderThan: 72 * time.Hour}
	converted := PruneJobMessage(original, "prune-daily")
	if converted.JobID != JobIDPruneVerifications || converted.ScriptPath != ScriptPruneVerifications {
		t.Fatalf("unexpected job identity %q %q", converted.JobID, converted.ScriptPath)
	}
	if converted.IdempotencyKey != "prune-daily" {
		t.Fatalf("expected idempotency key, got %q", converted.IdempotencyKey)
	}

	roundTrip, err := PruneMessageFromJob(converted)
	if err != nil {
		t.Fatalf("map back: %v", err)
	}
	if roundTrip.OlderThan != original.OlderThan {
		t.Fatalf("expected %s, got %s", original.OlderThan, roundTrip.OlderThan)
	}
}

func TestPruneMessageFromJob_AcceptsSecondsAndRejectsInvalid(t *testing.T) {
	for _, value := range []any{float64(3600), "3600", int64(3600), time.Hour} {
		msg, err := PruneMessageFromJob(&job.ExecutionMessage{
			JobID:      JobIDPruneVerifications,
			Parameters: map[string]any{"older_than": value},
		})
		if err != nil {
			t.Fatalf("%#v: %v", value, err)
		}
		if msg.OlderThan != time.Hour {
			t.Fatalf("%#v: expected 1h, got %s", value, msg.OlderThan)
		}
	}

	invalid := []*job.ExecutionMessage{
		nil,
		{JobID: "other.job", Parameters: map[string]any{"older_than": "1h"}},
		{JobID: JobIDPruneVerifications},
		{JobID: JobIDPruneVerifications, Parameters: map[string]any{"older_than": "soon"}},
		{JobID: JobIDPruneVerifications, Parameters: map[string]any{"older_than": "-1h"}},
	}
	for _, msg := range invalid {
		if _, err := PruneMessageFromJob(msg); err == nil {
			t.Fatalf("expected %#v to be rejected", msg)
		}
	}
}

func TestPruneScheduler_Enqueues(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	scheduler := NewPruneScheduler(enqueuer)
	receipt, err := scheduler.Schedule(context.Background(), 24*time.Hour, "daily")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if receipt.DispatchID != "dispatch-1" {
		t.Fatalf("expected enqueue receipt, got %+v", receipt)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDPruneVerifications {
		t.Fatalf("expected prune job to be enqueued")
	}
	if enqueuer.last.DedupPolicy != job.DedupPolicyDrop {
		t.Fatalf("expected drop dedup policy, got %q", enqueuer.last.DedupPolicy)
	}
	if _, err := scheduler.Schedule(context.Background(), 0, "daily"); err == nil {
		t.Fatalf("expected zero window to be rejected")
	}
	if _, err := NewPruneScheduler(nil).Schedule(context.Background(), time.Hour, ""); err == nil {
		t.Fatalf("expected missing enqueuer to fail")
	}

	enqueuer.err = errors.New("queue full")
	if _, err := scheduler.Schedule(context.Background(), time.Hour, "daily"); err == nil {
		t.Fatalf("expected enqueue error to surface")
	}
}

func TestPruneWorker_AcksOnSuccess(t *testing.T) {
	pruner := &stubPruner{deleted: 4}
	delivery := &stubQueueDelivery{msg: PruneJobMessage(rcommand.PruneVerificationsMessage{OlderThan: time.Hour}, "k1")}
	hook := &capturingHook{}
	w := NewPruneWorker(&stubQueueDequeuer{delivery: delivery}, rcommand.NewPruneVerificationsCommand(pruner), WithHook(hook))

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected delivery to be acked")
	}
	if pruner.calls != 1 {
		t.Fatalf("expected one prune call, got %d", pruner.calls)
	}
	if hook.started != 1 || hook.succeeded != 1 || hook.last.Attempt != 1 {
		t.Fatalf("unexpected hook calls %+v", hook)
	}
}

func TestPruneWorker_RetriesThenDeadLetters(t *testing.T) {
	pruner := &stubPruner{err: errors.New("db locked")}
	delivery := &stubQueueDelivery{msg: PruneJobMessage(rcommand.PruneVerificationsMessage{OlderThan: time.Hour}, "k2")}
	hook := &capturingHook{}
	w := NewPruneWorker(
		&stubQueueDequeuer{delivery: delivery},
		rcommand.NewPruneVerificationsCommand(pruner),
		WithHook(hook),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 2, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}),
	)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionRetry || delivery.nackOpts.Delay != time.Second {
		t.Fatalf("expected first failure to retry after 1s, got %+v", delivery.nackOpts)
	}
	if hook.retried != 1 {
		t.Fatalf("expected retry hook, got %+v", hook)
	}

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run twice: %v", err)
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter at max attempts, got %+v", delivery.nackOpts)
	}
	if hook.failed != 1 || hook.last.Attempt != 2 {
		t.Fatalf("expected failure hook on attempt 2, got %+v", hook)
	}
}

func TestPruneWorker_DeadLettersMalformedJobs(t *testing.T) {
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDPruneVerifications}}
	w := NewPruneWorker(&stubQueueDequeuer{delivery: delivery}, rcommand.NewPruneVerificationsCommand(&stubPruner{}))
	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionDeadLetter || delivery.nackOpts.Reason == "" {
		t.Fatalf("expected malformed job to be dead-lettered, got %+v", delivery.nackOpts)
	}
}

func TestNackRetryPolicyBoundaries(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}

	out := policy.NormalizeAttempt(queue.NackOptions{Delay: 30 * time.Second, Reason: " transient "}, 1)
	if out.Disposition != queue.NackDispositionRetry || out.Delay != 10*time.Second || out.Reason != "transient" {
		t.Fatalf("unexpected normalized options %+v", out)
	}
	if !Retrying(out) {
		t.Fatalf("expected retry disposition to be retrying")
	}

	out = policy.NormalizeAttempt(queue.NackOptions{Disposition: queue.NackDispositionRetry, Delay: time.Second}, 3)
	if out.Disposition != queue.NackDispositionDeadLetter || out.Delay != 0 || Retrying(out) {
		t.Fatalf("expected dead letter on max attempts, got %+v", out)
	}

	out = RetryPolicy{MaxAttempts: 2}.NormalizeAttempt(queue.NackOptions{Disposition: queue.NackDispositionRetry}, 2)
	if out.Disposition != queue.NackDispositionFailed {
		t.Fatalf("expected failed without dead letter queue, got %+v", out)
	}

	out = policy.NormalizeAttempt(queue.NackOptions{Disposition: queue.NackDispositionCanceled}, 1)
	if out.Disposition != queue.NackDispositionCanceled {
		t.Fatalf("expected terminal disposition to be kept, got %+v", out)
	}

	out = RetryPolicy{}.NormalizeAttempt(queue.NackOptions{Delay: -time.Second}, 9)
	if out.Disposition != queue.NackDispositionRetry || out.Delay != 0 {
		t.Fatalf("expected unbounded policy to retry with zero delay, got %+v", out)
	}
}

type stubPruner struct {
	calls   int
	deleted int64
	err     error
}

func (s *stubPruner) PruneVerifications(context.Context, time.Time) (int64, error) {
	s.calls++
	return s.deleted, s.err
}

type stubQueueEnqueuer struct {
	last  *job.ExecutionMessage
	count int
	err   error
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if s.err != nil {
		return queue.EnqueueReceipt{}, s.err
	}
	s.last = msg
	s.count++
	return queue.EnqueueReceipt{DispatchID: fmt.Sprintf("dispatch-%d", s.count), EnqueuedAt: time.Now()}, nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}

type capturingHook struct {
	started   int
	succeeded int
	failed    int
	retried   int
	last      worker.Event
}

func (h *capturingHook) OnStart(_ context.Context, event worker.Event) {
	h.started++
	h.last = event
}

func (h *capturingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.succeeded++
	h.last = event
}

func (h *capturingHook) OnFailure(_ context.Context, event worker.Event) {
	h.failed++
	h.last = event
}

func (h *capturingHook) OnRetry(_ context.Context, event worker.Event) {
	h.retried++
	h.last = event
}

var (
	_ queue.Enqueuer = (*stubQueueEnqueuer)(nil)
	_ queue.Dequeuer = (*stubQueueDequeuer)(nil)
	_ queue.Delivery = (*stubQueueDelivery)(nil)
	_ worker.Hook    = (*capturingHook)(nil)
)
