package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
)

const dnsManifest = `id: dns-lookup
name: DNS lookup
description: Resolves hostnames to records.
scan_level: 2
consumes:
  - hostname
oci_image: ghcr.io/openkat/dns-lookup:latest
oci_arguments:
  - "{hostname}"
grants:
  - action: object:create
batch_size: 25
interval: 60
`

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestSyncDir_UpsertsManifests(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "dns-lookup.yaml", dnsManifest)
	writeManifest(t, dir, "notes.txt", "not a manifest")

	repo := newFakePluginRepo()
	sync := NewPluginSync(repo, testLogger())

	synced, err := sync.SyncDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("SyncDir: %v", err)
	}
	if synced != 1 {
		t.Fatalf("expected 1 plugin synced, got %d", synced)
	}

	p, err := repo.GetByPluginID(context.Background(), "dns-lookup")
	if err != nil {
		t.Fatalf("GetByPluginID: %v", err)
	}
	if p.ScanLevel != plugin.ScanLevelNormal {
		t.Errorf("expected scan level 2, got %d", p.ScanLevel)
	}
	if len(p.Consumes) != 1 || p.Consumes[0] != "hostname" {
		t.Errorf("expected consumes [hostname], got %v", p.Consumes)
	}
	if p.BatchSize != 25 {
		t.Errorf("expected batch size 25, got %d", p.BatchSize)
	}
	if len(p.Grants) != 1 || p.Grants[0].Action != plugin.ActionObjectCreate {
		t.Errorf("expected object:create grant, got %v", p.Grants)
	}
	if p.DefaultRecurrence() == "" {
		t.Error("expected a default recurrence from the interval field")
	}
}

func TestSyncDir_BrokenManifestDoesNotStopTheRest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "broken.yaml", "id: [not\nvalid yaml")
	writeManifest(t, dir, "dns-lookup.yaml", dnsManifest)

	repo := newFakePluginRepo()
	sync := NewPluginSync(repo, testLogger())

	synced, err := sync.SyncDir(context.Background(), dir)
	if err == nil {
		t.Fatal("expected the broken manifest reported as an error")
	}
	if synced != 1 {
		t.Fatalf("expected the valid manifest still synced, got %d", synced)
	}
	if _, err := repo.GetByPluginID(context.Background(), "dns-lookup"); err != nil {
		t.Errorf("expected dns-lookup present: %v", err)
	}
}

func TestSyncDir_MissingDirectory(t *testing.T) {
	sync := NewPluginSync(newFakePluginRepo(), testLogger())
	if _, err := sync.SyncDir(context.Background(), filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}
