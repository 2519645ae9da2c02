package app

import (
	"context"
	"testing"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
)

type taskServiceFixture struct {
	service  *TaskService
	tasks    *fakeTaskRepo
	enqueuer *fakeEnqueuer
	notifier *fakeNotifier
}

func newTaskServiceFixture(t *testing.T, plugins ...*plugin.Plugin) *taskServiceFixture {
	t.Helper()
	f := &taskServiceFixture{
		tasks:    newFakeTaskRepo(),
		enqueuer: &fakeEnqueuer{},
		notifier: &fakeNotifier{},
	}
	f.service = NewTaskService(f.tasks, newFakePluginRepo(plugins...), f.enqueuer, f.notifier, testLogger())
	return f
}

func TestCreateAdHoc_DispatchesImmediately(t *testing.T) {
	p := hostnamePlugin(t)
	f := newTaskServiceFixture(t, p)

	tk, err := f.service.CreateAdHoc(context.Background(), p.PluginID, task.ObjectInput("a.example.com"), "org-1")
	if err != nil {
		t.Fatalf("CreateAdHoc: %v", err)
	}

	if tk.ScheduleID != nil {
		t.Errorf("expected ad-hoc task without schedule, got %v", tk.ScheduleID)
	}
	if tk.Organization != "org-1" {
		t.Errorf("expected organization carried over, got %q", tk.Organization)
	}
	if len(f.enqueuer.enqueued) != 1 || f.enqueuer.enqueued[0] != tk.ID.String() {
		t.Errorf("expected the task enqueued once, got %v", f.enqueuer.enqueued)
	}
}

func TestCreateAdHoc_UnknownPlugin(t *testing.T) {
	f := newTaskServiceFixture(t)

	_, err := f.service.CreateAdHoc(context.Background(), "does-not-exist", task.NoInput(), "")
	if !shared.IsNotFound(err) {
		t.Fatalf("expected not-found for unknown plugin, got %v", err)
	}
	if len(f.enqueuer.enqueued) != 0 {
		t.Errorf("expected nothing enqueued, got %v", f.enqueuer.enqueued)
	}
}

func TestCancel_NotifiesRunningWorker(t *testing.T) {
	p := hostnamePlugin(t)
	f := newTaskServiceFixture(t, p)
	tk := pendingTask(t, f.tasks, p.PluginID, task.ObjectInput("a.example.com"))
	if err := tk.Claim("worker-1", time.Now()); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := f.service.Cancel(context.Background(), tk.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if tk.Status != task.StatusCancelled {
		t.Errorf("expected cancelled, got %s", tk.Status)
	}
	if len(f.notifier.notified) != 1 || f.notifier.notified[0] != tk.ID.String() {
		t.Errorf("expected a cancel notification, got %v", f.notifier.notified)
	}
}

func TestCancel_TerminalTaskIsConflict(t *testing.T) {
	p := hostnamePlugin(t)
	f := newTaskServiceFixture(t, p)
	tk := pendingTask(t, f.tasks, p.PluginID, task.ObjectInput("a.example.com"))
	now := time.Now()
	if err := tk.Claim("worker-1", now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := tk.Complete(nil, now); err != nil {
		t.Fatalf("complete: %v", err)
	}

	err := f.service.Cancel(context.Background(), tk.ID)
	if !shared.IsConflict(err) {
		t.Fatalf("expected conflict cancelling a completed task, got %v", err)
	}
	if tk.Status != task.StatusCompleted {
		t.Errorf("expected the terminal state preserved, got %s", tk.Status)
	}
}

func TestRequeue_FailedTaskGoesBackToQueue(t *testing.T) {
	p := hostnamePlugin(t)
	f := newTaskServiceFixture(t, p)
	tk := pendingTask(t, f.tasks, p.PluginID, task.ObjectInput("a.example.com"))
	now := time.Now()
	if err := tk.Claim("worker-1", now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := tk.Fail(task.ExecError{Class: task.ErrorClassExitCode, ExitCode: 1}, now); err != nil {
		t.Fatalf("fail: %v", err)
	}

	if err := f.service.Requeue(context.Background(), tk.ID); err != nil {
		t.Fatalf("Requeue: %v", err)
	}

	if tk.Status != task.StatusPending {
		t.Errorf("expected pending after requeue, got %s", tk.Status)
	}
	if len(tk.Attempts) != 1 {
		t.Errorf("expected attempt history preserved, got %d attempts", len(tk.Attempts))
	}
	if len(f.enqueuer.enqueued) != 1 {
		t.Errorf("expected the task re-enqueued, got %v", f.enqueuer.enqueued)
	}
}
