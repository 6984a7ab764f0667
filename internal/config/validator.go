package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/auth"
)

// RegisterCustomValidators registers approval-gate validation rules.
// Must be called before validating GatewayConfig.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("audit_output", validateAuditOutput); err != nil {
		return fmt.Errorf("failed to register audit_output validator: %w", err)
	}
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	if err := v.RegisterValidation("secret_hash", validateSecretHash); err != nil {
		return fmt.Errorf("failed to register secret_hash validator: %w", err)
	}
	return nil
}

// validateAuditOutput accepts "stdout", "stderr", "none", "file://<abs>"
// and "sqlite://<abs>".
func validateAuditOutput(fl validator.FieldLevel) bool {
	output := fl.Field().String()

	switch output {
	case "stdout", "stderr", "none":
		return true
	}
	for _, scheme := range []string{"file://", "sqlite://"} {
		if strings.HasPrefix(output, scheme) {
			path := strings.TrimPrefix(output, scheme)
			return path != "" && filepath.IsAbs(path)
		}
	}
	return false
}

// validateDuration accepts a positive time.ParseDuration string.
func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

func validateSecretHash(fl validator.FieldLevel) bool {
	return auth.DetectHashType(fl.Field().String()) != "unknown"
}

// Validate validates the config using struct tags and cross-field rules.
func (c *GatewayConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateConditionNames(); err != nil {
		return err
	}

	if c.ApprovalTimeout() <= 0 {
		return errors.New("approval timeout must be positive")
	}

	if err := c.validateAdminToken(); err != nil {
		return err
	}

	return nil
}

// validateAdminToken rejects an admin API without its own credential.
// Callers hold the gateway secret, so reusing it would let them approve
// their own requests.
func (c *GatewayConfig) validateAdminToken() error {
	if !c.Approval.Admin {
		return nil
	}
	if !c.AdminTokenConfigured() {
		return errors.New("approval.admin requires approval.admin_token or approval.admin_token_hash")
	}

	token := c.Approval.AdminToken
	if token == "" {
		return nil
	}
	if c.Auth.GatewaySecret != "" && token == c.Auth.GatewaySecret {
		return errors.New("approval.admin_token must differ from auth.gateway_secret")
	}
	if c.Auth.GatewaySecretHash != "" {
		if ok, err := auth.VerifySecret(token, c.Auth.GatewaySecretHash); err == nil && ok {
			return errors.New("approval.admin_token must differ from auth.gateway_secret")
		}
	}
	return nil
}

// validateConditionNames ensures condition names are unique across both
// lists so verdict reasons are unambiguous.
func (c *GatewayConfig) validateConditionNames() error {
	seen := make(map[string]struct{})
	all := append(append([]ConditionConfig(nil), c.Rules.DenyConditions...), c.Rules.AllowConditions...)
	for _, cond := range all {
		if _, dup := seen[cond.Name]; dup {
			return fmt.Errorf("rules: duplicate condition name %q", cond.Name)
		}
		seen[cond.Name] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to readable messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "alpha":
		return fmt.Sprintf("%s must contain only letters", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration like \"30s\"", field)
	case "audit_output":
		return fmt.Sprintf("%s must be 'stdout', 'stderr', 'none', 'file://<absolute-path>' or 'sqlite://<absolute-path>'", field)
	case "secret_hash":
		return fmt.Sprintf("%s must start with \"sha256:\" or \"$argon2id$\"", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
