package app

import (
	"context"
	"testing"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/pagination"
)

func TestRecord_WritesProvenance(t *testing.T) {
	tasks := newFakeTaskRepo()
	attributions := newFakeAttributionRepo()
	service := NewAttributionService(attributions, tasks, testLogger())

	tk := pendingTask(t, tasks, "dns-lookup", task.ObjectInput("a.example.com"))
	tk.Organization = "org-1"

	inserted, err := service.Record(context.Background(), tk.ID, []ProducedObject{
		{Key: "1.2.3.4", Type: "ip-address"},
		{Key: "mail.example.com", Type: "hostname"},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("expected 2 records inserted, got %d", inserted)
	}

	recs, err := service.ListByTask(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("ListByTask: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	for _, rec := range recs {
		if rec.PluginID != "dns-lookup" {
			t.Errorf("expected plugin id stamped from the task, got %q", rec.PluginID)
		}
		if rec.Organization != "org-1" {
			t.Errorf("expected organization stamped from the task, got %q", rec.Organization)
		}
	}
}

func TestRecord_RecreationIsAbsorbed(t *testing.T) {
	tasks := newFakeTaskRepo()
	attributions := newFakeAttributionRepo()
	service := NewAttributionService(attributions, tasks, testLogger())

	tk := pendingTask(t, tasks, "dns-lookup", task.ObjectInput("a.example.com"))
	objects := []ProducedObject{{Key: "1.2.3.4", Type: "ip-address"}}

	if _, err := service.Record(context.Background(), tk.ID, objects); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	inserted, err := service.Record(context.Background(), tk.ID, objects)
	if err != nil {
		t.Fatalf("second Record: %v", err)
	}
	if inserted != 0 {
		t.Errorf("expected re-creation absorbed, got %d inserted", inserted)
	}

	result, err := service.ListByObject(context.Background(), "1.2.3.4", pagination.New(1, 10))
	if err != nil {
		t.Fatalf("ListByObject: %v", err)
	}
	if len(result.Data) != 1 {
		t.Errorf("expected a single provenance record, got %d", len(result.Data))
	}
}

func TestRecord_UnknownTask(t *testing.T) {
	service := NewAttributionService(newFakeAttributionRepo(), newFakeTaskRepo(), testLogger())

	_, err := service.Record(context.Background(), shared.NewID(), []ProducedObject{{Key: "x", Type: "hostname"}})
	if !shared.IsNotFound(err) {
		t.Fatalf("expected not-found for unknown task, got %v", err)
	}
}
