package config

import (
	"strings"
	"testing"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/auth"
)

func validConfig() *GatewayConfig {
	cfg := &GatewayConfig{}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*GatewayConfig)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *GatewayConfig) { c.Server.LogLevel = "verbose" },
			wantErr: "must be one of",
		},
		{
			name:    "bad approval timeout",
			mutate:  func(c *GatewayConfig) { c.Approval.Timeout = "soon" },
			wantErr: "positive duration",
		},
		{
			name:    "relative audit file",
			mutate:  func(c *GatewayConfig) { c.Audit.Output = "file://audit.log" },
			wantErr: "absolute-path",
		},
		{
			name:    "unknown audit scheme",
			mutate:  func(c *GatewayConfig) { c.Audit.Output = "postgres://db" },
			wantErr: "absolute-path",
		},
		{
			name:    "bad secret hash",
			mutate:  func(c *GatewayConfig) { c.Auth.GatewaySecretHash = "md5:abc" },
			wantErr: "sha256:",
		},
		{
			name:    "non-alpha method",
			mutate:  func(c *GatewayConfig) { c.Rules.DenyMethods = []string{"DEL ETE"} },
			wantErr: "only letters",
		},
		{
			name: "condition without expression",
			mutate: func(c *GatewayConfig) {
				c.Rules.DenyConditions = []ConditionConfig{{Name: "x"}}
			},
			wantErr: "is required",
		},
		{
			name: "duplicate condition names",
			mutate: func(c *GatewayConfig) {
				c.Rules.DenyConditions = []ConditionConfig{{Name: "x", Expression: "true"}}
				c.Rules.AllowConditions = []ConditionConfig{{Name: "x", Expression: "false"}}
			},
			wantErr: "duplicate condition name",
		},
		{
			name:    "admin review without admin token",
			mutate:  func(c *GatewayConfig) { c.Approval.Admin = true },
			wantErr: "requires approval.admin_token",
		},
		{
			name: "admin token reuses gateway secret",
			mutate: func(c *GatewayConfig) {
				c.Auth.GatewaySecret = "shared"
				c.Approval.Admin = true
				c.Approval.AdminToken = "shared"
			},
			wantErr: "must differ from auth.gateway_secret",
		},
		{
			name: "admin token matches gateway secret hash",
			mutate: func(c *GatewayConfig) {
				c.Auth.GatewaySecretHash = auth.HashSecretSHA256("shared")
				c.Approval.Admin = true
				c.Approval.AdminToken = "shared"
			},
			wantErr: "must differ from auth.gateway_secret",
		},
		{
			name: "bad admin token hash",
			mutate: func(c *GatewayConfig) {
				c.Approval.Admin = true
				c.Approval.AdminTokenHash = "md5:abc"
			},
			wantErr: "sha256:",
		},
		{
			name:    "bad listen address",
			mutate:  func(c *GatewayConfig) { c.Server.HTTPAddr = "not an addr" },
			wantErr: "host:port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_AcceptedAuditOutputs(t *testing.T) {
	for _, out := range []string{"stdout", "stderr", "none", "file:///var/log/approval-gate.jsonl", "sqlite:///var/lib/approval-gate/journal.db"} {
		cfg := validConfig()
		cfg.Audit.Output = out
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate(%q) = %v", out, err)
		}
	}
}

func TestValidate_AdminWithToken(t *testing.T) {
	for _, approvalCfg := range []ApprovalConfig{
		{Admin: true, AdminToken: "operator-token"},
		{Admin: true, AdminTokenHash: auth.HashSecretSHA256("operator-token")},
		{Admin: false},
	} {
		cfg := validConfig()
		cfg.Auth.GatewaySecret = "gateway-secret"
		cfg.Approval.Admin = approvalCfg.Admin
		cfg.Approval.AdminToken = approvalCfg.AdminToken
		cfg.Approval.AdminTokenHash = approvalCfg.AdminTokenHash
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate(%+v) = %v", approvalCfg, err)
		}
	}
}
