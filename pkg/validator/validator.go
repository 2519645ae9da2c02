// Package validator provides struct validation utilities with custom
// validators for the scheduling domain.
package validator

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/recurrence"
)

// pluginIDRegex validates plugin identifiers: lowercase letters, numbers,
// hyphens, starting and ending alphanumeric.
var pluginIDRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validator wraps the go-playground validator with custom validations.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, e := range v {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return sb.String()
}

// New creates a new Validator with custom validators registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("plugin_id", validatePluginID)
	_ = v.RegisterValidation("scan_level", validateScanLevel)
	_ = v.RegisterValidation("recurrence", validateRecurrence)

	return &Validator{validate: v}
}

// Validate validates a struct and returns ValidationErrors on failure.
func (v *Validator) Validate(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalidErr *validator.InvalidValidationError
	if stderrors.As(err, &invalidErr) {
		return err
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fieldName(fe),
			Message: message(fe),
		})
	}
	return out
}

func fieldName(fe validator.FieldError) string {
	// Strip the struct name prefix: "CreateTaskRequest.PluginID" -> "PluginID".
	parts := strings.SplitN(fe.Namespace(), ".", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "plugin_id":
		return "must be a lowercase identifier like \"dns-lookup\""
	case "scan_level":
		return "must be a scan level between 0 and 4"
	case "recurrence":
		return "must be a valid cron expression or @-descriptor"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func validatePluginID(fl validator.FieldLevel) bool {
	return pluginIDRegex.MatchString(fl.Field().String())
}

func validateScanLevel(fl validator.FieldLevel) bool {
	return plugin.ScanLevel(fl.Field().Int()).IsValid()
}

func validateRecurrence(fl validator.FieldLevel) bool {
	rule := fl.Field().String()
	if rule == "" {
		return true // optional fields fall back to plugin defaults
	}
	_, err := recurrence.Parse(rule)
	return err == nil
}
