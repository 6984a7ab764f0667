// Package config provides configuration types for approval-gate.
//
// Configuration is read once at startup from approval-gate.yaml, environment
// variables (APPROVAL_GATE_* plus a few legacy names) and CLI flags, then
// frozen. Nothing in it is reloaded while the process runs.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/approval"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/policy"
)

// GatewayConfig is the top-level configuration.
type GatewayConfig struct {
	// Server configures the HTTP listener and logging.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Upstream configures how approved requests reach the upstream API.
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`

	// Auth configures the optional shared secret callers must present.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Approval configures the human review workflow.
	Approval ApprovalConfig `yaml:"approval" mapstructure:"approval"`

	// Rules holds the deny/allow rule sets.
	Rules RulesConfig `yaml:"rules" mapstructure:"rules"`

	// Audit configures where the outcome journal is written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Tracing configures OpenTelemetry span export.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// DevMode enables debug logging and console approval.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the listen address. When empty it is built from Port on
	// all interfaces.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// Port is used when HTTPAddr is empty. Defaults to 8080.
	Port int `yaml:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`

	// LogLevel is one of debug, info, warn, error. DevMode forces debug.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogFormat is "text" (default) or "json".
	LogFormat string `yaml:"log_format" mapstructure:"log_format" validate:"omitempty,oneof=text json"`

	// ShutdownTimeout bounds graceful shutdown (e.g. "10s").
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty,duration"`

	// MaxBodyBytes caps the inbound webhook payload. Defaults to 10 MiB.
	MaxBodyBytes int64 `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"omitempty,min=1"`
}

// UpstreamConfig configures the Forwarder.
type UpstreamConfig struct {
	// Token is the bearer credential injected into forwarded requests.
	// When empty, forwarding fails with a missing-credential error.
	Token string `yaml:"token" mapstructure:"token"`

	// Timeout bounds one upstream call (e.g. "60s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`

	// MaxRedirects limits redirect hops. 0 disables following.
	MaxRedirects *int `yaml:"max_redirects" mapstructure:"max_redirects" validate:"omitempty,min=0"`
}

// AuthConfig configures caller authentication.
type AuthConfig struct {
	// GatewaySecret is the plain shared secret.
	GatewaySecret string `yaml:"gateway_secret" mapstructure:"gateway_secret"`

	// GatewaySecretHash is a "sha256:<hex>" or argon2id PHC hash of the
	// secret. Takes precedence over GatewaySecret.
	GatewaySecretHash string `yaml:"gateway_secret_hash" mapstructure:"gateway_secret_hash" validate:"omitempty,secret_hash"`
}

// ApprovalConfig configures the review workflow.
type ApprovalConfig struct {
	// Timeout is how long a review waits for a decision (e.g. "30s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`

	// TimeoutSeconds overrides Timeout when positive. Fed by the legacy
	// APPROVAL_TIMEOUT_SECONDS variable.
	TimeoutSeconds float64 `yaml:"timeout_seconds" mapstructure:"timeout_seconds" validate:"omitempty,gte=0"`

	// Console enables the stdin/stdout reviewer. Defaults to true.
	Console bool `yaml:"console" mapstructure:"console"`

	// Admin enables decisions through the admin API. Defaults to true when
	// an admin token is configured. Requires AdminToken or AdminTokenHash.
	Admin bool `yaml:"admin" mapstructure:"admin"`

	// AdminToken is the bearer credential the admin API requires. It must
	// differ from the gateway secret.
	AdminToken string `yaml:"admin_token" mapstructure:"admin_token"`

	// AdminTokenHash is a "sha256:<hex>" or argon2id PHC hash of the admin
	// token. Takes precedence over AdminToken.
	AdminTokenHash string `yaml:"admin_token_hash" mapstructure:"admin_token_hash" validate:"omitempty,secret_hash"`

	// HeaderPreviewLen is the longest header value shown verbatim.
	HeaderPreviewLen int `yaml:"header_preview_len" mapstructure:"header_preview_len" validate:"omitempty,min=8"`

	// BodyPreviewBytes caps the body preview.
	BodyPreviewBytes int `yaml:"body_preview_bytes" mapstructure:"body_preview_bytes" validate:"omitempty,min=1"`
}

// RulesConfig holds the rule sets. Lists that are absent from every config
// source take the built-in defaults; an explicit empty list disables a set.
type RulesConfig struct {
	DenyMethods              []string            `yaml:"deny_methods" mapstructure:"deny_methods" validate:"dive,alpha"`
	DenyPathFragments        []string            `yaml:"deny_path_fragments" mapstructure:"deny_path_fragments" validate:"dive,required"`
	DenyQueryParams          map[string]string   `yaml:"deny_query_params" mapstructure:"deny_query_params" validate:"dive,keys,required,endkeys"`
	AllowMethods             []string            `yaml:"allow_methods" mapstructure:"allow_methods" validate:"dive,alpha"`
	AllowPathFragments       []string            `yaml:"allow_path_fragments" mapstructure:"allow_path_fragments" validate:"dive,required"`
	AllowMethodPathFragments map[string][]string `yaml:"allow_method_path_fragments" mapstructure:"allow_method_path_fragments" validate:"dive,keys,alpha,endkeys,dive,required"`

	// DenyConditions and AllowConditions are CEL expressions evaluated after
	// the static rules of their stage.
	DenyConditions  []ConditionConfig `yaml:"deny_conditions" mapstructure:"deny_conditions" validate:"omitempty,dive"`
	AllowConditions []ConditionConfig `yaml:"allow_conditions" mapstructure:"allow_conditions" validate:"omitempty,dive"`
}

// ConditionConfig is one named CEL condition.
type ConditionConfig struct {
	Name       string `yaml:"name" mapstructure:"name" validate:"required"`
	Expression string `yaml:"expression" mapstructure:"expression" validate:"required"`
}

// AuditConfig configures the outcome journal.
type AuditConfig struct {
	// Output is "stdout", "stderr", "none", "file:///abs/path" or
	// "sqlite:///abs/path". Defaults to "stderr" while the console reviewer
	// is enabled and "stdout" otherwise.
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`

	// ChannelSize is the journal channel buffer. Defaults to 1000.
	ChannelSize int `yaml:"channel_size" mapstructure:"channel_size" validate:"omitempty,min=1"`

	// BatchSize is the number of records written per flush. Defaults to 100.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"omitempty,min=1"`

	// FlushInterval is the maximum time a record waits in a batch. Defaults to "1s".
	FlushInterval string `yaml:"flush_interval" mapstructure:"flush_interval" validate:"omitempty,duration"`

	// BufferSize is the number of recent records kept for the admin API.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size" validate:"omitempty,min=1"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Output is "stderr" (default), "stdout" or a file path.
	Output string `yaml:"output" mapstructure:"output"`
}

const (
	defaultPort            = 8080
	defaultApprovalTimeout = "30s"
	defaultUpstreamTimeout = "60s"
	defaultShutdownTimeout = "10s"
	defaultMaxBodyBytes    = 10 << 20
)

// SetDevDefaults applies development defaults: debug logging and console
// review.
func (c *GatewayConfig) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Server.LogLevel = "debug"
	c.Approval.Console = true
}

// SetDefaults applies default values to unset fields.
func (c *GatewayConfig) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = net.JoinHostPort("0.0.0.0", strconv.Itoa(c.Server.Port))
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "text"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = defaultMaxBodyBytes
	}

	if c.Upstream.Timeout == "" {
		c.Upstream.Timeout = defaultUpstreamTimeout
	}

	if c.Approval.Timeout == "" {
		c.Approval.Timeout = defaultApprovalTimeout
	}
	// viper.IsSet distinguishes "not set" from an explicit false.
	if !viper.IsSet("approval.console") {
		c.Approval.Console = true
	}
	if !viper.IsSet("approval.admin") {
		c.Approval.Admin = c.AdminTokenConfigured()
	}
	if c.Approval.HeaderPreviewLen == 0 {
		c.Approval.HeaderPreviewLen = approval.DefaultHeaderPreviewLen
	}
	if c.Approval.BodyPreviewBytes == 0 {
		c.Approval.BodyPreviewBytes = approval.DefaultBodyPreviewBytes
	}

	c.setRuleDefaults()

	if c.Audit.Output == "" {
		// The console reviewer owns stdout.
		if c.Approval.Console {
			c.Audit.Output = "stderr"
		} else {
			c.Audit.Output = "stdout"
		}
	}
	if c.Audit.ChannelSize == 0 {
		c.Audit.ChannelSize = 1000
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 100
	}
	if c.Audit.FlushInterval == "" {
		c.Audit.FlushInterval = "1s"
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 1000
	}

	if c.Tracing.Output == "" {
		c.Tracing.Output = "stderr"
	}
}

// setRuleDefaults fills each rule set that no config source mentions.
func (c *GatewayConfig) setRuleDefaults() {
	def := policy.DefaultRuleSpec()
	if !viper.IsSet("rules.deny_methods") && c.Rules.DenyMethods == nil {
		c.Rules.DenyMethods = def.DenyMethods
	}
	if !viper.IsSet("rules.deny_path_fragments") && c.Rules.DenyPathFragments == nil {
		c.Rules.DenyPathFragments = def.DenyPathFragments
	}
	if !viper.IsSet("rules.deny_query_params") && c.Rules.DenyQueryParams == nil {
		c.Rules.DenyQueryParams = def.DenyQueryParams
	}
	if !viper.IsSet("rules.allow_methods") && c.Rules.AllowMethods == nil {
		c.Rules.AllowMethods = def.AllowMethods
	}
	if !viper.IsSet("rules.allow_path_fragments") && c.Rules.AllowPathFragments == nil {
		c.Rules.AllowPathFragments = def.AllowPathFragments
	}
	if !viper.IsSet("rules.allow_method_path_fragments") && c.Rules.AllowMethodPathFragments == nil {
		c.Rules.AllowMethodPathFragments = def.AllowMethodPath
	}
}

// AdminTokenConfigured reports whether the admin API has a credential.
func (c *GatewayConfig) AdminTokenConfigured() bool {
	return c.Approval.AdminToken != "" || c.Approval.AdminTokenHash != ""
}

// ApprovalTimeout returns the effective review timeout.
func (c *GatewayConfig) ApprovalTimeout() time.Duration {
	if c.Approval.TimeoutSeconds > 0 {
		return time.Duration(c.Approval.TimeoutSeconds * float64(time.Second))
	}
	return parseDurationOr(c.Approval.Timeout, approval.DefaultTimeout)
}

// UpstreamTimeout returns the effective upstream call timeout.
func (c *GatewayConfig) UpstreamTimeout() time.Duration {
	return parseDurationOr(c.Upstream.Timeout, 60*time.Second)
}

// ShutdownTimeout returns the effective graceful shutdown bound.
func (c *GatewayConfig) ShutdownTimeout() time.Duration {
	return parseDurationOr(c.Server.ShutdownTimeout, 10*time.Second)
}

// FlushInterval returns the journal flush interval.
func (c *GatewayConfig) FlushInterval() time.Duration {
	return parseDurationOr(c.Audit.FlushInterval, time.Second)
}

// RuleSpec converts the static rule sets into a policy.RuleSpec. Conditions
// are compiled separately by the caller.
func (c *GatewayConfig) RuleSpec() policy.RuleSpec {
	return policy.RuleSpec{
		DenyMethods:        c.Rules.DenyMethods,
		DenyPathFragments:  c.Rules.DenyPathFragments,
		DenyQueryParams:    c.Rules.DenyQueryParams,
		AllowMethods:       c.Rules.AllowMethods,
		AllowPathFragments: c.Rules.AllowPathFragments,
		AllowMethodPath:    c.Rules.AllowMethodPathFragments,
	}
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// String summarizes the config for startup logs without leaking secrets.
func (c *GatewayConfig) String() string {
	return fmt.Sprintf("addr=%s upstream_token=%t gateway_secret=%t admin_token=%t approval_timeout=%s audit=%s",
		c.Server.HTTPAddr,
		c.Upstream.Token != "",
		c.Auth.GatewaySecret != "" || c.Auth.GatewaySecretHash != "",
		c.AdminTokenConfigured(),
		c.ApprovalTimeout(),
		c.Audit.Output,
	)
}
