package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for field %q: %s", e.Field, e.Message)
}

// Validator accumulates configuration validation errors across a fluent
// chain of checks.
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: []ValidationError{}}
}

// RequireNonEmpty validates that a string field is not empty.
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: "value cannot be empty",
		})
	}
	return v
}

// RequirePositive validates that an integer field is greater than 0.
func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be positive, got %d", value),
		})
	}
	return v
}

// RequirePositiveDuration validates that a duration field is greater than 0.
func (v *Validator) RequirePositiveDuration(field string, value time.Duration) *Validator {
	if value <= 0 {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("duration must be positive, got %s", value),
		})
	}
	return v
}

// ValidateRange validates that an integer field is within [min, max].
func (v *Validator) ValidateRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be between %d and %d, got %d", min, max, value),
		})
	}
	return v
}

// ValidateFloatRange validates that a float field is within [min, max].
func (v *Validator) ValidateFloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be between %.2f and %.2f, got %.2f", min, max, value),
		})
	}
	return v
}

// RequireProviders validates the provider priority list: non-empty, known
// names, no duplicates.
func (v *Validator) RequireProviders(field string, priority []string) *Validator {
	if len(priority) == 0 {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: "at least one provider is required",
		})
		return v
	}

	known := map[string]bool{"claude": true, "openai": true, "gemini": true}
	seen := make(map[string]bool, len(priority))
	for _, name := range priority {
		if !known[name] {
			v.errors = append(v.errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown provider %q", name),
			})
		}
		if seen[name] {
			v.errors = append(v.errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate provider %q", name),
			})
		}
		seen[name] = true
	}
	return v
}

// HasErrors reports whether any check failed.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns the combined error, or nil when every check passed.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:")
	for _, e := range v.errors {
		fmt.Fprintf(&sb, "\n  - %s: %s", e.Field, e.Message)
	}
	return fmt.Errorf("%s", sb.String())
}
