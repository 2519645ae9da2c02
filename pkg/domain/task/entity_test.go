package task

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New("", NoInput()); err == nil {
		t.Fatal("expected error for empty plugin_id")
	}
	if _, err := New("dns-lookup", Input{Kind: InputObjects}); err == nil {
		t.Fatal("expected error for object input without keys")
	}

	tk, err := New("dns-lookup", ObjectInput("example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Status != StatusPending {
		t.Errorf("expected pending, got %s", tk.Status)
	}
	if tk.Input.Kind != InputObjects || len(tk.Input.Keys) != 1 {
		t.Errorf("unexpected input: %+v", tk.Input)
	}
}

func TestClaim_OnlyPending(t *testing.T) {
	tk, _ := New("dns-lookup", NoInput())
	now := time.Now()

	if err := tk.Claim("worker-1", now); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if tk.Status != StatusRunning || tk.WorkerID != "worker-1" {
		t.Fatalf("unexpected state after claim: %s worker=%s", tk.Status, tk.WorkerID)
	}
	if len(tk.Attempts) != 1 {
		t.Fatalf("expected one attempt, got %d", len(tk.Attempts))
	}

	err := tk.Claim("worker-2", now)
	if err == nil {
		t.Fatal("expected second claim to fail")
	}
	if !shared.IsConflict(err) {
		t.Errorf("expected conflict error, got %v", err)
	}
	if tk.WorkerID != "worker-1" {
		t.Errorf("losing claim must not change the owner, got %s", tk.WorkerID)
	}
}

func TestCompleteAndFail_RequireRunning(t *testing.T) {
	tk, _ := New("dns-lookup", NoInput())
	now := time.Now()

	if err := tk.Complete(nil, now); err == nil {
		t.Fatal("expected complete of pending task to fail")
	}
	if err := tk.Fail(ExecError{Class: ErrorClassExitCode, ExitCode: 1}, now); err == nil {
		t.Fatal("expected fail of pending task to fail")
	}

	if err := tk.Claim("worker-1", now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	result := json.RawMessage(`{"objects": 3}`)
	if err := tk.Complete(result, now); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if tk.Status != StatusCompleted || tk.EndedAt == nil {
		t.Fatalf("unexpected state: %s", tk.Status)
	}
	if tk.Attempts[0].EndedAt == nil {
		t.Error("expected attempt to be closed")
	}
}

func TestFail_RecordsStructuredError(t *testing.T) {
	tk, _ := New("nmap", ObjectInput("10.0.0.1"))
	now := time.Now()
	_ = tk.Claim("worker-1", now)

	execErr := ExecError{Class: ErrorClassTimeout, StderrTail: "killed", Message: "sandbox timed out"}
	if err := tk.Fail(execErr, now); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if tk.Error == nil || tk.Error.Class != ErrorClassTimeout {
		t.Fatalf("unexpected error payload: %+v", tk.Error)
	}
	if tk.Attempts[0].Error == nil || tk.Attempts[0].Error.Class != ErrorClassTimeout {
		t.Error("expected attempt to carry the failure")
	}
}

func TestCancel_TerminalStatesWin(t *testing.T) {
	now := time.Now()

	tk, _ := New("dns-lookup", NoInput())
	if err := tk.Cancel(now); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	if tk.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", tk.Status)
	}

	tk2, _ := New("dns-lookup", NoInput())
	_ = tk2.Claim("worker-1", now)
	_ = tk2.Complete(nil, now)
	if err := tk2.Cancel(now); err == nil {
		t.Fatal("expected cancel of completed task to fail")
	}
	if tk2.Status != StatusCompleted {
		t.Errorf("completed task must stay completed, got %s", tk2.Status)
	}
}

func TestRequeue_PreservesAttemptHistory(t *testing.T) {
	tk, _ := New("dns-lookup", ObjectInput("example.com"))
	now := time.Now()
	_ = tk.Claim("worker-1", now)
	_ = tk.Fail(ExecError{Class: ErrorClassExitCode, ExitCode: 2}, now)

	if err := tk.Requeue(); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if tk.Status != StatusPending || tk.WorkerID != "" {
		t.Fatalf("unexpected state after requeue: %s worker=%q", tk.Status, tk.WorkerID)
	}
	if len(tk.Attempts) != 1 || tk.Error == nil {
		t.Error("requeue must preserve the failure history")
	}

	// A second run appends a second attempt.
	_ = tk.Claim("worker-2", now.Add(time.Minute))
	if len(tk.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(tk.Attempts))
	}

	// Requeue of a non-failed task is rejected.
	if err := tk.Requeue(); err == nil {
		t.Fatal("expected requeue of running task to fail")
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	for status, terminal := range map[Status]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	} {
		if status.IsTerminal() != terminal {
			t.Errorf("%s: expected terminal=%v", status, terminal)
		}
	}
}
