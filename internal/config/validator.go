package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers aisafegate-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("duration_string", validateDurationString); err != nil {
		return fmt.Errorf("failed to register duration_string validator: %w", err)
	}
	if err := v.RegisterValidation("event_output", validateEventOutput); err != nil {
		return fmt.Errorf("failed to register event_output validator: %w", err)
	}
	if err := v.RegisterValidation("key_hash", validateKeyHash); err != nil {
		return fmt.Errorf("failed to register key_hash validator: %w", err)
	}
	return nil
}

// validateKeyHash validates stored API key hashes: Argon2id PHC format
// or a "sha256:"-prefixed hex hash.
func validateKeyHash(fl validator.FieldLevel) bool {
	hash := fl.Field().String()
	if strings.HasPrefix(hash, "$argon2id$") {
		return true
	}
	if suffix, ok := strings.CutPrefix(hash, "sha256:"); ok {
		return len(suffix) == 64
	}
	return false
}

// validateDurationString validates fields holding Go duration strings
// such as "30s" or "5m".
func validateDurationString(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// validateEventOutput validates the telemetry output field.
// Valid values: "stdout" or "file://<absolute-path>"
func validateEventOutput(fl validator.FieldLevel) bool {
	output := fl.Field().String()

	if output == "stdout" {
		return true
	}
	if strings.HasPrefix(output, "file://") {
		path := strings.TrimPrefix(output, "file://")
		return path != "" && filepath.IsAbs(path)
	}
	return false
}

// Validate validates the Config using struct tags and custom rules.
// Returns an error with actionable messages if validation fails.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
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

// formatSingleValidationError creates a user-friendly message for a
// single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration_string":
		return fmt.Sprintf("%s must be a positive duration like '30s' or '5m'", field)
	case "event_output":
		return fmt.Sprintf("%s must be 'stdout' or 'file://<absolute-path>'", field)
	case "key_hash":
		return fmt.Sprintf("%s must be an Argon2id PHC hash or 'sha256:<64-hex>'", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
