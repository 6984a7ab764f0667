package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestGatewayConfig_SetDefaults(t *testing.T) {
	var cfg GatewayConfig
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("HTTPAddr = %q, want 0.0.0.0:8080", cfg.Server.HTTPAddr)
	}
	if cfg.Audit.Output != "stderr" {
		t.Errorf("Audit.Output = %q, want stderr while the console reviewer owns stdout", cfg.Audit.Output)
	}
	if !cfg.Approval.Console {
		t.Error("console approval should default to enabled")
	}
	if cfg.Approval.Admin {
		t.Error("admin approval should stay off without an admin token")
	}
	if got := cfg.ApprovalTimeout(); got != 30*time.Second {
		t.Errorf("ApprovalTimeout = %v, want 30s", got)
	}
	if got := cfg.UpstreamTimeout(); got != 60*time.Second {
		t.Errorf("UpstreamTimeout = %v, want 60s", got)
	}

	if len(cfg.Rules.DenyMethods) != 1 || cfg.Rules.DenyMethods[0] != "DELETE" {
		t.Errorf("DenyMethods = %v", cfg.Rules.DenyMethods)
	}
	if cfg.Rules.DenyQueryParams["force"] != "true" {
		t.Errorf("DenyQueryParams = %v", cfg.Rules.DenyQueryParams)
	}
	if got := cfg.Rules.AllowMethodPathFragments["POST"]; len(got) != 1 || got[0] != "/drafts" {
		t.Errorf("AllowMethodPathFragments = %v", cfg.Rules.AllowMethodPathFragments)
	}
}

func TestGatewayConfig_SetDefaults_AdminFollowsToken(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg := GatewayConfig{Approval: ApprovalConfig{AdminToken: "operator-token"}}
	cfg.SetDefaults()
	if !cfg.Approval.Admin {
		t.Error("admin approval should default to enabled when a token is configured")
	}
}

func TestGatewayConfig_SetDefaults_JournalOutput(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("approval.console", false)

	cfg := GatewayConfig{}
	cfg.SetDefaults()
	if cfg.Audit.Output != "stdout" {
		t.Errorf("Audit.Output = %q, want stdout without the console reviewer", cfg.Audit.Output)
	}

	cfg = GatewayConfig{Audit: AuditConfig{Output: "stdout"}}
	cfg.SetDefaults()
	if cfg.Audit.Output != "stdout" {
		t.Errorf("explicit Audit.Output overwritten: %q", cfg.Audit.Output)
	}
}

func TestGatewayConfig_SetDefaults_PortBuildsAddr(t *testing.T) {
	cfg := GatewayConfig{Server: ServerConfig{Port: 9090}}
	cfg.SetDefaults()
	if cfg.Server.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("HTTPAddr = %q", cfg.Server.HTTPAddr)
	}

	cfg = GatewayConfig{Server: ServerConfig{Port: 9090, HTTPAddr: "127.0.0.1:7000"}}
	cfg.SetDefaults()
	if cfg.Server.HTTPAddr != "127.0.0.1:7000" {
		t.Errorf("explicit HTTPAddr overwritten: %q", cfg.Server.HTTPAddr)
	}
}

func TestGatewayConfig_SetDefaults_PreservesRules(t *testing.T) {
	cfg := GatewayConfig{Rules: RulesConfig{DenyMethods: []string{"PUT"}}}
	cfg.SetDefaults()
	if len(cfg.Rules.DenyMethods) != 1 || cfg.Rules.DenyMethods[0] != "PUT" {
		t.Errorf("DenyMethods = %v", cfg.Rules.DenyMethods)
	}
}

func TestGatewayConfig_TimeoutSecondsOverrides(t *testing.T) {
	cfg := GatewayConfig{Approval: ApprovalConfig{Timeout: "5m", TimeoutSeconds: 0.5}}
	if got := cfg.ApprovalTimeout(); got != 500*time.Millisecond {
		t.Errorf("ApprovalTimeout = %v, want 500ms", got)
	}
}

func TestGatewayConfig_SetDevDefaults(t *testing.T) {
	cfg := GatewayConfig{DevMode: true}
	cfg.SetDefaults()
	cfg.Approval.Console = false
	cfg.SetDevDefaults()
	if cfg.Server.LogLevel != "debug" || !cfg.Approval.Console {
		t.Errorf("dev defaults not applied: %+v", cfg.Server)
	}
}

func TestGatewayConfig_StringHidesSecrets(t *testing.T) {
	cfg := GatewayConfig{
		Upstream: UpstreamConfig{Token: "ya29.secret"},
		Auth:     AuthConfig{GatewaySecret: "hunter2"},
		Approval: ApprovalConfig{AdminToken: "operator-token"},
	}
	cfg.SetDefaults()
	s := cfg.String()
	for _, secret := range []string{"ya29.secret", "hunter2", "operator-token"} {
		if strings.Contains(s, secret) {
			t.Errorf("String() leaks %q: %s", secret, s)
		}
	}
}

func TestFindConfigFileInPaths(t *testing.T) {
	dir := t.TempDir()
	if got := findConfigFileInPaths([]string{dir}); got != "" {
		t.Errorf("found %q in empty dir", got)
	}

	path := filepath.Join(dir, "approval-gate.yml")
	if err := os.WriteFile(path, []byte("dev_mode: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := findConfigFileInPaths([]string{t.TempDir(), dir}); got != path {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, path)
	}
}

func TestLoadConfig_FileAndLegacyEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	path := filepath.Join(dir, "approval-gate.yaml")
	yaml := `
rules:
  deny_methods: []
  allow_methods: [GET, HEAD]
  deny_conditions:
    - name: big-upload
      expression: 'size(body) > 1000'
audit:
  output: none
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PORT", "9191")
	t.Setenv("GOOGLE_ACCESS_TOKEN", "legacy-token")
	t.Setenv("APPROVAL_TIMEOUT_SECONDS", "2")

	InitViper(path)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9191" {
		t.Errorf("HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Upstream.Token != "legacy-token" {
		t.Errorf("Upstream.Token = %q", cfg.Upstream.Token)
	}
	if cfg.ApprovalTimeout() != 2*time.Second {
		t.Errorf("ApprovalTimeout = %v", cfg.ApprovalTimeout())
	}
	if len(cfg.Rules.DenyMethods) != 0 {
		t.Errorf("explicit empty deny_methods replaced by defaults: %v", cfg.Rules.DenyMethods)
	}
	if len(cfg.Rules.AllowMethods) != 2 {
		t.Errorf("AllowMethods = %v", cfg.Rules.AllowMethods)
	}
	if len(cfg.Rules.DenyPathFragments) != 3 {
		t.Errorf("unset deny_path_fragments should default: %v", cfg.Rules.DenyPathFragments)
	}
	if len(cfg.Rules.DenyConditions) != 1 || cfg.Rules.DenyConditions[0].Name != "big-upload" {
		t.Errorf("DenyConditions = %+v", cfg.Rules.DenyConditions)
	}
	if ConfigFileUsed() != path {
		t.Errorf("ConfigFileUsed = %q", ConfigFileUsed())
	}
}
