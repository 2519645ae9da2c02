package capability

import (
	"errors"
	"testing"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
)

func testPlugin(t *testing.T, grants []plugin.Grant) *plugin.Plugin {
	t.Helper()
	p, err := plugin.New("dns-lookup", "DNS lookup", "ghcr.io/openkat/dns-lookup:latest", plugin.ScanLevelDiscovery)
	if err != nil {
		t.Fatalf("plugin.New: %v", err)
	}
	p.Consumes = []string{"hostname"}
	p.Grants = grants
	return p
}

func TestGrantsFor_ObjectInput(t *testing.T) {
	p := testPlugin(t, nil)
	tk, _ := task.New(p.PluginID, task.ObjectInput("example.com", "example.org"))

	grants := GrantsFor(tk, p)
	if len(grants) != 3 {
		t.Fatalf("expected 3 grants, got %d: %+v", len(grants), grants)
	}
	if grants[0].Action != plugin.ActionFileCreate || len(grants[0].Keys) != 0 {
		t.Errorf("expected unscoped file:create first, got %+v", grants[0])
	}
	if grants[1].Action != plugin.ActionFileRead || len(grants[1].Keys) != 1 || grants[1].Keys[0] != task.OutputKey(tk.ID.String()) {
		t.Errorf("expected file:read scoped to the task output key, got %+v", grants[1])
	}
	if grants[2].Action != plugin.ActionObjectRead {
		t.Errorf("expected object:read, got %+v", grants[2])
	}
	if len(grants[2].Keys) != 2 || grants[2].Keys[0] != "example.com" {
		t.Errorf("object:read must be scoped to the input keys, got %+v", grants[2].Keys)
	}
}

func TestGrantsFor_NoInputIsMinimal(t *testing.T) {
	p := testPlugin(t, nil)
	tk, _ := task.New(p.PluginID, task.NoInput())

	grants := GrantsFor(tk, p)
	if len(grants) != 2 {
		t.Fatalf("expected file:create plus own-output file:read, got %+v", grants)
	}
	if grants[0].Action != plugin.ActionFileCreate {
		t.Errorf("expected file:create first, got %+v", grants[0])
	}
	if grants[1].Action != plugin.ActionFileRead || len(grants[1].Keys) != 1 || grants[1].Keys[0] != task.OutputKey(tk.ID.String()) {
		t.Errorf("file:read must cover only the task's own output key, got %+v", grants[1])
	}
}

func TestGrantsFor_AppendsDeclaredGrants(t *testing.T) {
	declared := []plugin.Grant{{Action: plugin.ActionObjectQuery, Filter: "type=hostname"}}
	p := testPlugin(t, declared)
	tk, _ := task.New(p.PluginID, task.FileInput("file-1"))

	grants := GrantsFor(tk, p)
	if len(grants) != 4 {
		t.Fatalf("expected 4 grants, got %d", len(grants))
	}
	if grants[2].Action != plugin.ActionFileRead || grants[2].Keys[0] != "file-1" {
		t.Errorf("expected scoped file:read, got %+v", grants[2])
	}
	if grants[3].Action != plugin.ActionObjectQuery {
		t.Errorf("expected declared grant last, got %+v", grants[3])
	}
}

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer(Config{Secret: "test-secret", Issuer: "kat-scheduler"})
	p := testPlugin(t, nil)
	tk, _ := task.New(p.PluginID, task.ObjectInput("example.com"))

	token, expiresAt, err := issuer.Issue(tk.ID, p, GrantsFor(tk, p), time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expiresAt) > time.Minute+time.Second {
		t.Errorf("unexpected expiry %v", expiresAt)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.TaskID != tk.ID.String() || claims.PluginID != p.PluginID {
		t.Errorf("unexpected claims: %+v", claims)
	}

	if !claims.Allows(plugin.ActionObjectRead, "example.com") {
		t.Error("expected object:read on the input key")
	}
	if claims.Allows(plugin.ActionObjectRead, "other.test") {
		t.Error("object:read must not cover keys outside the input")
	}
	if !claims.Allows(plugin.ActionFileCreate, "anything") {
		t.Error("expected unscoped file:create")
	}
	if !claims.Allows(plugin.ActionFileRead, task.OutputKey(tk.ID.String())) {
		t.Error("expected file:read on the task's own output key")
	}
	if claims.Allows(plugin.ActionObjectCreate, "example.com") {
		t.Error("undeclared actions must be denied")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	issuer := NewIssuer(Config{Secret: "secret-a", Issuer: "kat-scheduler"})
	p := testPlugin(t, nil)
	tk, _ := task.New(p.PluginID, task.NoInput())
	token, _, err := issuer.Issue(tk.ID, p, GrantsFor(tk, p), time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := NewIssuer(Config{Secret: "secret-b", Issuer: "kat-scheduler"})
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	issuer := NewIssuer(Config{Secret: "test-secret", Issuer: "kat-scheduler"})
	p := testPlugin(t, nil)
	tk, _ := task.New(p.PluginID, task.NoInput())
	token, _, err := issuer.Issue(tk.ID, p, GrantsFor(tk, p), -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := issuer.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyAction(t *testing.T) {
	issuer := NewIssuer(Config{Secret: "test-secret", Issuer: "kat-scheduler"})
	p := testPlugin(t, nil)
	tk, _ := task.New(p.PluginID, task.ObjectInput("example.com"))
	token, _, err := issuer.Issue(tk.ID, p, GrantsFor(tk, p), time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := issuer.VerifyAction(token, plugin.ActionObjectRead, "example.com"); err != nil {
		t.Fatalf("expected action to be allowed: %v", err)
	}
	if _, err := issuer.VerifyAction(token, plugin.ActionObjectQuery, ""); !errors.Is(err, ErrMissingGrant) {
		t.Fatalf("expected ErrMissingGrant, got %v", err)
	}
}
