package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/sandbox"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/capability"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
)

type executorFixture struct {
	executor *Executor
	tasks    *fakeTaskRepo
	engine   *fakeEngine
}

func newExecutorFixture(t *testing.T, p *plugin.Plugin, timeout time.Duration) *executorFixture {
	t.Helper()

	f := &executorFixture{
		tasks:  newFakeTaskRepo(),
		engine: &fakeEngine{},
	}
	issuer := capability.NewIssuer(capability.Config{
		Secret: "test-secret-string-at-least-32-bytes!",
		Issuer: "scheduler-test",
	})
	f.executor = NewExecutor(
		f.tasks, newFakePluginRepo(p), issuer, f.engine,
		ExecutorConfig{
			WorkerID:          "worker-1",
			APIBaseURL:        "http://scheduler:8080",
			Network:           "kat-sandbox",
			ShimVolume:        "kat-shim",
			ShimMount:         "/kat",
			ShimEntrypoint:    "/kat/shim",
			Timeout:           timeout,
			TokenGrace:        time.Minute,
			HeartbeatInterval: time.Minute,
		},
		testLogger(),
	)
	return f
}

func pendingTask(t *testing.T, repo *fakeTaskRepo, pluginID string, input task.Input) *task.Task {
	t.Helper()
	tk, err := task.New(pluginID, input)
	if err != nil {
		t.Fatalf("task.New: %v", err)
	}
	if err := repo.Create(context.Background(), tk); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return tk
}

func TestProcessTaskRun_CompletesPerItemInvocations(t *testing.T) {
	p := hostnamePlugin(t) // args: {hostname}
	f := newExecutorFixture(t, p, time.Minute)
	tk := pendingTask(t, f.tasks, p.PluginID, task.ObjectInput("a.example.com", "b.example.com"))

	if err := f.executor.ProcessTaskRun(context.Background(), tk.ID.String()); err != nil {
		t.Fatalf("ProcessTaskRun: %v", err)
	}

	if tk.Status != task.StatusCompleted {
		t.Fatalf("expected completed, got %s", tk.Status)
	}
	if len(f.engine.specs) != 2 {
		t.Fatalf("expected one sandbox run per input value, got %d", len(f.engine.specs))
	}
	if got := f.engine.specs[0].Args; len(got) != 1 || got[0] != "a.example.com" {
		t.Errorf("expected first invocation args [a.example.com], got %v", got)
	}
	if got := f.engine.specs[1].Args; len(got) != 1 || got[0] != "b.example.com" {
		t.Errorf("expected second invocation args [b.example.com], got %v", got)
	}

	spec := f.engine.specs[0]
	if spec.Image != p.OCIImage {
		t.Errorf("expected image %s, got %s", p.OCIImage, spec.Image)
	}
	if spec.Entrypoint != "/kat/shim" {
		t.Errorf("expected shim entrypoint, got %s", spec.Entrypoint)
	}
	assertEnvSet(t, spec.Env, EnvAPIBaseURL)
	assertEnvSet(t, spec.Env, EnvToken)
	assertEnv(t, spec.Env, EnvPluginID, p.PluginID)
	assertEnv(t, spec.Env, EnvTaskID, tk.ID.String())

	if tk.OutputFileKey != task.OutputKey(tk.ID.String()) {
		t.Errorf("expected the deterministic output key recorded, got %q", tk.OutputFileKey)
	}
}

func TestProcessTaskRun_SideChannelInput(t *testing.T) {
	p := hostnamePlugin(t)
	p.OCIArguments = []string{"--bulk"} // no placeholder
	f := newExecutorFixture(t, p, time.Minute)
	tk := pendingTask(t, f.tasks, p.PluginID, task.ObjectInput("a.example.com", "b.example.com"))

	if err := f.executor.ProcessTaskRun(context.Background(), tk.ID.String()); err != nil {
		t.Fatalf("ProcessTaskRun: %v", err)
	}

	if len(f.engine.specs) != 1 {
		t.Fatalf("expected a single invocation, got %d", len(f.engine.specs))
	}
	assertEnv(t, f.engine.specs[0].Env, EnvBulkInput, "a.example.com\nb.example.com")
}

func TestProcessTaskRun_ClaimLostIsBenign(t *testing.T) {
	p := hostnamePlugin(t)
	f := newExecutorFixture(t, p, time.Minute)
	tk := pendingTask(t, f.tasks, p.PluginID, task.ObjectInput("a.example.com"))

	if err := tk.Claim("worker-2", time.Now()); err != nil {
		t.Fatalf("pre-claim: %v", err)
	}

	if err := f.executor.ProcessTaskRun(context.Background(), tk.ID.String()); err != nil {
		t.Fatalf("expected nil for a lost claim, got %v", err)
	}
	if len(f.engine.specs) != 0 {
		t.Errorf("expected no sandbox runs after a lost claim, got %d", len(f.engine.specs))
	}
	if tk.WorkerID != "worker-2" {
		t.Errorf("expected the original claim preserved, got worker %q", tk.WorkerID)
	}
}

func TestProcessTaskRun_NonZeroExitFailsTask(t *testing.T) {
	p := hostnamePlugin(t)
	f := newExecutorFixture(t, p, time.Minute)
	f.engine.results = []*sandbox.RunResult{{ExitCode: 2, StderrTail: "resolution failed"}}
	tk := pendingTask(t, f.tasks, p.PluginID, task.ObjectInput("a.example.com", "b.example.com"))

	if err := f.executor.ProcessTaskRun(context.Background(), tk.ID.String()); err != nil {
		t.Fatalf("ProcessTaskRun: %v", err)
	}

	if tk.Status != task.StatusFailed {
		t.Fatalf("expected failed, got %s", tk.Status)
	}
	if tk.Error == nil || tk.Error.Class != task.ErrorClassExitCode {
		t.Fatalf("expected exit_code failure, got %+v", tk.Error)
	}
	if tk.Error.ExitCode != 2 {
		t.Errorf("expected exit code 2, got %d", tk.Error.ExitCode)
	}
	if tk.Error.StderrTail != "resolution failed" {
		t.Errorf("expected stderr tail preserved, got %q", tk.Error.StderrTail)
	}
	if len(f.engine.specs) != 1 {
		t.Errorf("expected no further invocations after a failure, got %d", len(f.engine.specs))
	}
}

func TestProcessTaskRun_TimeoutKillsAndFails(t *testing.T) {
	p := hostnamePlugin(t)
	f := newExecutorFixture(t, p, 50*time.Millisecond)
	f.engine.block = true
	tk := pendingTask(t, f.tasks, p.PluginID, task.ObjectInput("a.example.com"))

	if err := f.executor.ProcessTaskRun(context.Background(), tk.ID.String()); err != nil {
		t.Fatalf("ProcessTaskRun: %v", err)
	}

	if tk.Status != task.StatusFailed {
		t.Fatalf("expected failed, got %s", tk.Status)
	}
	if tk.Error == nil || tk.Error.Class != task.ErrorClassTimeout {
		t.Fatalf("expected timeout failure, got %+v", tk.Error)
	}
}

func TestProcessTaskRun_CancellationWinsOverCompletion(t *testing.T) {
	p := hostnamePlugin(t)
	f := newExecutorFixture(t, p, time.Minute)
	f.engine.block = true
	tk := pendingTask(t, f.tasks, p.PluginID, task.ObjectInput("a.example.com"))

	done := make(chan error, 1)
	go func() {
		done <- f.executor.ProcessTaskRun(context.Background(), tk.ID.String())
	}()

	waitFor(t, func() bool {
		f.engine.mu.Lock()
		defer f.engine.mu.Unlock()
		return len(f.engine.specs) == 1
	})

	// Operator cancel: flip the ledger row first, then kill the sandbox the
	// way the notifier does.
	cancelled, err := f.tasks.Cancel(context.Background(), tk.ID, time.Now())
	if err != nil || !cancelled {
		t.Fatalf("cancel: %v (cancelled=%v)", err, cancelled)
	}
	f.executor.CancelRunning(tk.ID.String())

	if err := <-done; err != nil {
		t.Fatalf("ProcessTaskRun: %v", err)
	}
	if tk.Status != task.StatusCancelled {
		t.Errorf("expected the task to stay cancelled, got %s", tk.Status)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func assertEnv(t *testing.T, env []string, key, want string) {
	t.Helper()
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			if got := strings.TrimPrefix(kv, key+"="); got != want {
				t.Errorf("expected %s=%q, got %q", key, want, got)
			}
			return
		}
	}
	t.Errorf("expected %s in sandbox environment", key)
}

func assertEnvSet(t *testing.T, env []string, key string) {
	t.Helper()
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") && len(kv) > len(key)+1 {
			return
		}
	}
	t.Errorf("expected non-empty %s in sandbox environment", key)
}
