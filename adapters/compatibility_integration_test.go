package adapters_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-recaptcha/adapters/gocommand"
	"github.com/goliatone/go-recaptcha/adapters/gojob"
	"github.com/goliatone/go-recaptcha/adapters/gologger"
	recaptchaprom "github.com/goliatone/go-recaptcha/adapters/prometheus"
	rcommand "github.com/goliatone/go-recaptcha/command"
	"github.com/goliatone/go-recaptcha/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRuntimeCompatibility_LoggerMetricsCommandsAndJobs(t *testing.T) {
	ctx := context.Background()

	var logs bytes.Buffer
	provider := gologger.NewZerologProvider(gologger.NewZerologLogger(gologger.ZerologConfig{
		Level:  "debug",
		Output: &logs,
	}))
	_, _, jobProvider, jobLogger := gologger.ResolveForJob("recaptcha", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	registry := prometheus.NewRegistry()
	transport := core.TransportFunc(func(_ context.Context, req core.SiteVerifyRequest) ([]byte, error) {
		if req.Response != "good" {
			return []byte(`{"success":false,"error-codes":["invalid-input-response"]}`), nil
		}
		return []byte(`{"success":true,"hostname":"example.com","score":0.8,"action":"signup"}`), nil
	})
	verifier, err := core.NewVerifier(core.Config{Secret: "secret"},
		core.WithTransport(transport),
		core.WithLoggerProvider(provider),
		core.WithMetricsRecorder(recaptchaprom.NewRecorder(registry)),
	)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	pruner := &countingPruner{}
	registration, err := gocommand.RegisterHandlers(adapter, gocommand.Handlers{Verifier: verifier, Pruner: pruner})
	if err != nil {
		t.Fatalf("register handlers: %v", err)
	}
	t.Cleanup(registration.Unsubscribe)
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if _, ok := queueRegistry.Get(rcommand.TypeVerify); !ok {
		t.Fatalf("expected verify command to be mirrored into the queue registry")
	}

	constraints := core.NewConstraints().WithHostname("example.com").WithAction("signup").WithThreshold(0.5)
	if err := gocommand.DispatchVerify(ctx, rcommand.VerifyMessage{Token: "good", Constraints: constraints}); err != nil {
		t.Fatalf("dispatch verify: %v", err)
	}
	if err := gocommand.DispatchVerify(ctx, rcommand.VerifyMessage{Token: "bad", Constraints: constraints}); err == nil {
		t.Fatalf("expected invalid token to fail")
	}

	count, err := testutil.GatherAndCount(registry, "recaptcha_verify_total")
	if err != nil || count != 2 {
		t.Fatalf("expected success and failure series, got %d (%v)", count, err)
	}
	if !strings.Contains(logs.String(), "verify failed") {
		t.Fatalf("expected failure to be logged through zerolog, got %q", logs.String())
	}
	if strings.Contains(logs.String(), "secret") {
		t.Fatalf("expected secret to stay out of logs")
	}

	enqueuer := &memoryQueue{}
	if _, err := gojob.NewPruneScheduler(enqueuer).Schedule(ctx, 30*24*time.Hour, "monthly"); err != nil {
		t.Fatalf("schedule prune: %v", err)
	}
	worker := gojob.NewPruneWorker(enqueuer, rcommand.NewPruneVerificationsCommand(pruner),
		gojob.WithLogger(provider.GetLogger("recaptcha.jobs")),
	)
	if err := worker.RunOnce(ctx); err != nil {
		t.Fatalf("run prune worker: %v", err)
	}
	if pruner.calls != 1 || !enqueuer.acked {
		t.Fatalf("expected queued prune to run and ack, calls=%d acked=%v", pruner.calls, enqueuer.acked)
	}
}

type countingPruner struct {
	calls int
}

func (p *countingPruner) PruneVerifications(context.Context, time.Time) (int64, error) {
	p.calls++
	return 0, nil
}

// memoryQueue is a single-slot queue that is its own delivery.
type memoryQueue struct {
	msg   *job.ExecutionMessage
	acked bool
}

func (q *memoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	q.msg = msg
	return queue.EnqueueReceipt{DispatchID: msg.IdempotencyKey, EnqueuedAt: time.Now()}, nil
}

func (q *memoryQueue) Dequeue(context.Context) (queue.Delivery, error) {
	return q, nil
}

func (q *memoryQueue) Message() *job.ExecutionMessage {
	return q.msg
}

func (q *memoryQueue) Ack(context.Context) error {
	q.acked = true
	return nil
}

func (q *memoryQueue) Nack(context.Context, queue.NackOptions) error {
	return nil
}
