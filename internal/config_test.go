package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/tabkeep/internal/tasks"
	pkgconfig "github.com/starford/tabkeep/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestInboxPathRequiredWhenEnabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Inbox.Enabled = true
	cfg.Inbox.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled inbox without path should fail")
	}
	cfg.Inbox.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled inbox without path should pass: %v", err)
	}
}

func TestTasksConfigBounds(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Tasks.RecentWindow = 10 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Error("sub-second recent window should fail")
	}
	cfg = NewDefaultConfig()
	cfg.Tasks.PreviewRows = 5000
	if err := cfg.Validate(); err == nil {
		t.Error("oversized preview should fail")
	}
}

func TestRoutesRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Routes = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty route list should fail")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("TABKEEP_TEST_TOKEN", "s3cret")
	yaml := `
app:
  log_level: debug
  http:
    port: 9090
auth:
  mode: token
  token: ${TABKEEP_TEST_TOKEN}
tasks:
  recent_window: 45s
  preview_rows: 10
inbox:
  enabled: true
  path: ./inbox
  auto_commit: true
routes:
  - key: home
    path: /
    title: Dashboard
    home: true
  - key: orders
    path: /orders
    title: Orders
    keep_alive: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Auth.Token != "s3cret" || !cfg.Auth.AuthEnabled() {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Tasks.RecentWindow != 45*time.Second || cfg.Tasks.PreviewRows != 10 {
		t.Errorf("tasks = %+v", cfg.Tasks)
	}
	if !cfg.Inbox.Enabled || !cfg.Inbox.AutoCommit {
		t.Errorf("inbox = %+v", cfg.Inbox)
	}
	if len(cfg.Routes) != 2 || !cfg.Routes[1].KeepAlive || cfg.Routes[0].Title != "Dashboard" {
		t.Errorf("routes = %+v", cfg.Routes)
	}
	if cfg.SQLite.Path != "./tabkeep.db" {
		t.Errorf("default sqlite path lost: %q", cfg.SQLite.Path)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("app:\n  htpp:\n    port: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := pkgconfig.Load(path, NewDefaultConfig()); err == nil {
		t.Fatal("misspelled key should fail")
	}
}

func TestSampleConfigLoads(t *testing.T) {
	t.Setenv("TABKEEP_AUTH_MODE", "")
	t.Setenv("TABKEEP_AUTH_TOKEN", "")

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(filepath.Join("..", "config", "config.yaml"), cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.AuthEnabled() {
		t.Error("sample config should run without auth")
	}
	if cfg.Tasks.RecentWindow != tasks.DefaultRecentWindow {
		t.Errorf("recent window = %s, want %s", cfg.Tasks.RecentWindow, tasks.DefaultRecentWindow)
	}
	table, err := BuildRoutes(cfg)
	if err != nil {
		t.Fatalf("BuildRoutes: %v", err)
	}
	if table.Home().Key != "home" {
		t.Errorf("home = %q", table.Home().Key)
	}
}
