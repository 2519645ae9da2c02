package app

import (
	"reflect"
	"testing"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
)

func TestResolveArguments_NoInput(t *testing.T) {
	resolved, err := resolveArguments([]string{"--json", "--all"}, task.NoInput())
	if err != nil {
		t.Fatalf("resolveArguments: %v", err)
	}
	if len(resolved.Invocations) != 1 {
		t.Fatalf("expected one invocation, got %d", len(resolved.Invocations))
	}
	if !reflect.DeepEqual(resolved.Invocations[0], []string{"--json", "--all"}) {
		t.Errorf("arguments must be used verbatim, got %v", resolved.Invocations[0])
	}
	if resolved.BulkInput != nil {
		t.Errorf("no side channel expected, got %v", resolved.BulkInput)
	}
}

func TestResolveArguments_NoInputWithPlaceholderFails(t *testing.T) {
	_, err := resolveArguments([]string{"-host", "{hostname}"}, task.NoInput())
	if err == nil {
		t.Fatal("expected error for placeholder without input")
	}
}

func TestResolveArguments_SingleInputSubstitution(t *testing.T) {
	resolved, err := resolveArguments([]string{"-host", "{hostname}", "--json"}, task.ObjectInput("example.com"))
	if err != nil {
		t.Fatalf("resolveArguments: %v", err)
	}
	if len(resolved.Invocations) != 1 {
		t.Fatalf("expected one invocation, got %d", len(resolved.Invocations))
	}
	if !reflect.DeepEqual(resolved.Invocations[0], []string{"-host", "example.com", "--json"}) {
		t.Errorf("unexpected invocation %v", resolved.Invocations[0])
	}
}

func TestResolveArguments_MultiInputPerItemPlaceholder(t *testing.T) {
	resolved, err := resolveArguments([]string{"-host", "{hostname}"}, task.ObjectInput("a.test", "b.test", "c.test"))
	if err != nil {
		t.Fatalf("resolveArguments: %v", err)
	}
	want := [][]string{
		{"-host", "a.test"},
		{"-host", "b.test"},
		{"-host", "c.test"},
	}
	if !reflect.DeepEqual(resolved.Invocations, want) {
		t.Errorf("expected one invocation per input in order, got %v", resolved.Invocations)
	}
	if resolved.BulkInput != nil {
		t.Errorf("no side channel expected, got %v", resolved.BulkInput)
	}
}

func TestResolveArguments_MultiInputNoPlaceholderUsesSideChannel(t *testing.T) {
	resolved, err := resolveArguments([]string{"--json"}, task.ObjectInput("a.test", "b.test"))
	if err != nil {
		t.Fatalf("resolveArguments: %v", err)
	}
	if len(resolved.Invocations) != 1 {
		t.Fatalf("expected a single invocation, got %d", len(resolved.Invocations))
	}
	if !reflect.DeepEqual(resolved.Invocations[0], []string{"--json"}) {
		t.Errorf("arguments must stay verbatim, got %v", resolved.Invocations[0])
	}
	if !reflect.DeepEqual(resolved.BulkInput, []string{"a.test", "b.test"}) {
		t.Errorf("expected inputs on the side channel, got %v", resolved.BulkInput)
	}
}

func TestResolveArguments_FileInputSubstitutesFileReference(t *testing.T) {
	resolved, err := resolveArguments([]string{"--input", "{file}"}, task.FileInput("file-abc"))
	if err != nil {
		t.Fatalf("resolveArguments: %v", err)
	}
	if !reflect.DeepEqual(resolved.Invocations[0], []string{"--input", "{file/file-abc}"}) {
		t.Errorf("file inputs must substitute as shim file references, got %v", resolved.Invocations[0])
	}
}

func TestResolveArguments_FileReferencePassesThrough(t *testing.T) {
	// An explicit {file/<key>} marker in the template is the shim's to
	// resolve and must survive substitution untouched.
	resolved, err := resolveArguments([]string{"--config", "{file/cfg-1}", "-host", "{hostname}"}, task.ObjectInput("a.test"))
	if err != nil {
		t.Fatalf("resolveArguments: %v", err)
	}
	if !reflect.DeepEqual(resolved.Invocations[0], []string{"--config", "{file/cfg-1}", "-host", "a.test"}) {
		t.Errorf("unexpected invocation %v", resolved.Invocations[0])
	}
}
