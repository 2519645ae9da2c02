package app

import (
	"context"
	"testing"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/catalog"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/capability"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
)

// The whole pipeline over fakes: one evaluation pass turns a due schedule
// into pending tasks, and the worker side drives each of them to a
// terminal state, one sandbox invocation per hostname.
func TestScheduleEvaluationToTaskCompletion(t *testing.T) {
	p := hostnamePlugin(t)
	set := hostnameSet(t)
	objects := []catalog.Object{
		{Key: "a.example.com", Type: "hostname", Clearance: 2},
		{Key: "b.example.com", Type: "hostname", Clearance: 3},
	}
	s := hourlySchedule(t, p, set, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f := newEvaluatorFixture(t, p, set, s, objects)

	f.evaluator.EvaluateAll(context.Background())

	created := f.tasks.all()
	if len(created) != 1 {
		t.Fatalf("expected 1 task for 2 members under the default batch size, got %d", len(created))
	}
	if len(f.enqueuer.enqueued) != 1 {
		t.Fatalf("expected 1 enqueued run, got %d", len(f.enqueuer.enqueued))
	}

	engine := &fakeEngine{}
	issuer := capability.NewIssuer(capability.Config{
		Secret: "test-secret-string-at-least-32-bytes!",
		Issuer: "scheduler-test",
	})
	executor := NewExecutor(
		f.tasks, f.plugins, issuer, engine,
		ExecutorConfig{
			WorkerID:          "worker-1",
			APIBaseURL:        "http://scheduler:8080",
			Network:           "kat-sandbox",
			ShimVolume:        "kat-shim",
			ShimMount:         "/kat",
			ShimEntrypoint:    "/kat/shim",
			Timeout:           time.Minute,
			TokenGrace:        time.Minute,
			HeartbeatInterval: time.Minute,
		},
		testLogger(),
	)

	for _, id := range f.enqueuer.enqueued {
		if err := executor.ProcessTaskRun(context.Background(), id); err != nil {
			t.Fatalf("ProcessTaskRun(%s): %v", id, err)
		}
	}

	done := f.tasks.all()
	if done[0].Status != task.StatusCompleted {
		t.Fatalf("expected completed task, got %s", done[0].Status)
	}
	if len(engine.specs) != 2 {
		t.Fatalf("expected one sandbox invocation per hostname, got %d", len(engine.specs))
	}
	for i, want := range []string{"a.example.com", "b.example.com"} {
		if got := engine.specs[i].Args; len(got) != 1 || got[0] != want {
			t.Errorf("invocation %d: expected args [%s], got %v", i, want, got)
		}
	}

	// A second pass over the same window must not duplicate work.
	f.evaluator.EvaluateAll(context.Background())
	if got := len(f.tasks.all()); got != 1 {
		t.Errorf("expected no new tasks on the second pass, got %d total", got)
	}
}
