package mcp

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forest6511/habitctl/pkg/crypto"
	"github.com/forest6511/habitctl/pkg/habit"
	"github.com/forest6511/habitctl/pkg/vault"
)

const testPassword = "testpassword123"

// testNow is a Monday
var testNow = time.Date(2024, time.June, 3, 9, 30, 0, 0, time.Local)

func testClock() time.Time { return testNow }

// testVault creates a temporary vault with cheap KDF parameters
func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.New(t.TempDir(), vault.WithKDFParams(crypto.Params{
		Memory:      crypto.MinMemory,
		Iterations:  1,
		Parallelism: 1,
	}))
	if err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}
	return v
}

// seedVault saves a ledger holding the named habits and returns it
func seedVault(t *testing.T, v *vault.Vault, names ...string) *habit.Ledger {
	t.Helper()
	l := habit.NewLedger()
	l.SetClock(testClock)
	for _, name := range names {
		l.AddHabit(habit.NewHabit(name, name+" description"))
	}
	if err := v.Save(l, testPassword); err != nil {
		t.Fatalf("failed to save vault: %v", err)
	}
	return l
}

// createTestPolicy creates a test policy file
func createTestPolicy(t *testing.T, dir string, content string) {
	t.Helper()
	policyPath := filepath.Join(dir, PolicyFileName)
	if err := os.WriteFile(policyPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to create policy file: %v", err)
	}
}

// testServer creates a server over v using the test password and clock
func testServer(t *testing.T, v *vault.Vault) *Server {
	t.Helper()
	server, err := NewServer(&ServerOptions{
		Vault:    v,
		Password: testPassword,
		Clock:    testClock,
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server
}

func TestNewServer_NoVault(t *testing.T) {
	if _, err := NewServer(nil); err == nil {
		t.Error("expected error for nil options")
	}
	if _, err := NewServer(&ServerOptions{Password: testPassword}); err == nil {
		t.Error("expected error without vault")
	}
}

func TestNewServer_NoPassword(t *testing.T) {
	v := testVault(t)
	t.Setenv(PasswordEnv, "")

	_, err := NewServer(&ServerOptions{Vault: v})
	if err == nil {
		t.Fatal("expected error when no password provided")
	}
	if err.Error() != "no password provided: set HABITCTL_PASSWORD environment variable" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewServer_InvalidPassword(t *testing.T) {
	v := testVault(t)
	seedVault(t, v, "Read")

	_, err := NewServer(&ServerOptions{
		Vault:    v,
		Password: "wrongpassword",
	})
	if err == nil {
		t.Error("expected error with invalid password")
	}
}

func TestNewServer_Success(t *testing.T) {
	v := testVault(t)
	seedVault(t, v, "Read")

	server := testServer(t, v)
	if server.server == nil {
		t.Error("mcp server is nil")
	}
	if server.session == nil {
		t.Error("session is nil")
	}
	if server.policy != nil {
		t.Error("policy should be nil without a policy file")
	}
}

func TestNewServer_FreshVault(t *testing.T) {
	v := testVault(t)
	testServer(t, v)

	if v.Exists() {
		t.Error("starting the server must not create the vault file")
	}
}

func TestNewServer_FromEnvironment(t *testing.T) {
	v := testVault(t)
	seedVault(t, v, "Read")
	t.Setenv(PasswordEnv, testPassword)

	server, err := NewServer(&ServerOptions{Vault: v})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	defer server.Close()

	if os.Getenv(PasswordEnv) != "" {
		t.Errorf("%s should be cleared after reading", PasswordEnv)
	}
}

func TestNewServer_WithPolicy(t *testing.T) {
	v := testVault(t)
	createTestPolicy(t, v.Dir(), `version: 1
default_action: deny
allowed_tools:
  - habit_mark
`)

	server := testServer(t, v)
	if server.policy == nil {
		t.Fatal("policy should be loaded")
	}

	if allowed, _ := server.policy.IsToolAllowed(ToolMark); !allowed {
		t.Error("habit_mark should be allowed")
	}
	if allowed, _ := server.policy.IsToolAllowed(ToolUnmark); allowed {
		t.Error("habit_unmark should be denied")
	}
}

func TestNewServer_BrokenPolicyDisablesWrites(t *testing.T) {
	v := testVault(t)
	createTestPolicy(t, v.Dir(), "version: 7\n")

	server := testServer(t, v)
	if server.policy != nil {
		t.Error("an invalid policy must not be loaded")
	}
}

func TestServer_Close(t *testing.T) {
	v := testVault(t)
	seedVault(t, v, "Read")
	server := testServer(t, v)

	if err := server.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if _, err := server.session.Snapshot(); err == nil {
		t.Error("session should be closed")
	}
	// Closing twice is harmless
	if err := server.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
