package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

const configName = "approval-gate"

// legacyEnv maps environment variables used by earlier deployments onto
// config keys. Each key also keeps its APPROVAL_GATE_* name; the prefixed
// name is listed first and wins when both are set.
var legacyEnv = map[string][]string{
	"server.port":              {"PORT"},
	"upstream.token":           {"UPSTREAM_TOKEN", "GOOGLE_ACCESS_TOKEN"},
	"auth.gateway_secret":      {"GATEWAY_SECRET"},
	"approval.timeout_seconds": {"APPROVAL_TIMEOUT_SECONDS"},
}

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, approval-gate.yaml/.yml is searched in
// standard locations. The explicit extension keeps Viper from matching the
// binary itself.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// ReadInConfig then returns ConfigFileNotFoundError, which callers
		// treat as "environment only".
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
	}

	// APPROVAL_GATE_SERVER_HTTP_ADDR overrides server.http_addr.
	viper.SetEnvPrefix("APPROVAL_GATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, "."+configName),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, configName))
		}
	} else {
		paths = append(paths, "/etc/"+configName)
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths returns the first approval-gate.yaml or .yml found
// in paths, or "".
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, configName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds scalar keys so that nested values can be
// overridden from the environment. Rule lists and conditions are file-only.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.log_format")
	_ = viper.BindEnv("server.shutdown_timeout")
	_ = viper.BindEnv("server.max_body_bytes")

	_ = viper.BindEnv("upstream.timeout")
	_ = viper.BindEnv("upstream.max_redirects")

	_ = viper.BindEnv("auth.gateway_secret_hash")

	_ = viper.BindEnv("approval.timeout")
	_ = viper.BindEnv("approval.console")
	_ = viper.BindEnv("approval.admin")
	_ = viper.BindEnv("approval.admin_token")
	_ = viper.BindEnv("approval.admin_token_hash")

	_ = viper.BindEnv("audit.output")

	_ = viper.BindEnv("tracing.enabled")
	_ = viper.BindEnv("tracing.output")

	_ = viper.BindEnv("dev_mode")

	for key, names := range legacyEnv {
		prefixed := "APPROVAL_GATE_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		_ = viper.BindEnv(append([]string{key, prefixed}, names...)...)
	}
}

// LoadConfig reads the configuration, applies defaults and dev defaults,
// and validates.
func LoadConfig() (*GatewayConfig, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration and applies defaults but neither
// dev defaults nor validation, so CLI flags can still change DevMode.
func LoadConfigRaw() (*GatewayConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg GatewayConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the loaded config file path, or "" in
// environment-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
