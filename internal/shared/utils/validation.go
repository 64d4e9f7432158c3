// Package utils holds input validation shared by the API surfaces.
package utils

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

// Size limits (in bytes unless noted)
const (
	MaxJSONSize     = 1 * 1024 * 1024 // request bodies and published payloads
	MaxCodeSize     = 256 * 1024      // one snippet, setup or data code
	MaxIDLength     = 128
	MaxNameLength   = 256
	MaxDependencies = 32  // per test case
	MaxSuiteCases   = 100 // per suite
	MaxJSONDepth    = 32
)

// SafeIDPattern allows alphanumeric, hyphens, underscores and dots
var SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidationError names the offending field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateID checks a case id
func ValidateID(id, field string) error {
	switch {
	case id == "":
		return invalid(field, "is required")
	case len(id) > MaxIDLength:
		return invalid(field, "exceeds %d characters", MaxIDLength)
	case !SafeIDPattern.MatchString(id):
		return invalid(field, "may contain only letters, digits, '.', '-' and '_'")
	}
	return nil
}

// ValidateCode checks the size and encoding of a source text
func ValidateCode(code, field string) error {
	if len(code) > MaxCodeSize {
		return invalid(field, "size %d bytes exceeds maximum %d bytes", len(code), MaxCodeSize)
	}
	if !utf8.ValidString(code) {
		return invalid(field, "is not valid UTF-8")
	}
	return nil
}

// ValidateTestCase checks a submitted test case
func ValidateTestCase(tc types.TestCase) error {
	if err := ValidateID(tc.ID, "id"); err != nil {
		return err
	}
	if utf8.RuneCountInString(tc.Name) > MaxNameLength {
		return invalid("name", "exceeds %d characters", MaxNameLength)
	}
	if err := ValidateCode(tc.Code, "code"); err != nil {
		return err
	}
	return validateDependencies(tc.Dependencies, "dependencies")
}

// ValidateConfig checks the shared part of a suite
func ValidateConfig(cfg types.Config) error {
	if utf8.RuneCountInString(cfg.Name) > MaxNameLength {
		return invalid("config.name", "exceeds %d characters", MaxNameLength)
	}
	if err := ValidateCode(cfg.DataCode, "config.dataCode"); err != nil {
		return err
	}
	if err := ValidateCode(cfg.GlobalTestConfig.Code, "config.globalTestConfig.code"); err != nil {
		return err
	}
	return validateDependencies(cfg.GlobalTestConfig.Dependencies, "config.globalTestConfig.dependencies")
}

// ValidateSuite checks a suite and each of its cases
func ValidateSuite(s types.Suite) error {
	if len(s.Cases) == 0 {
		return invalid("cases", "is empty")
	}
	if len(s.Cases) > MaxSuiteCases {
		return invalid("cases", "has %d entries, maximum is %d", len(s.Cases), MaxSuiteCases)
	}
	if err := ValidateConfig(s.Config); err != nil {
		return err
	}
	for i, tc := range s.Cases {
		if err := ValidateTestCase(tc); err != nil {
			return fmt.Errorf("cases[%d].%w", i, err)
		}
	}
	return nil
}

func validateDependencies(deps []types.Dependency, field string) error {
	if len(deps) > MaxDependencies {
		return invalid(field, "has %d entries, maximum is %d", len(deps), MaxDependencies)
	}
	for i, d := range deps {
		if d.URL == "" {
			return invalid(fmt.Sprintf("%s[%d].url", field, i), "is required")
		}
	}
	return nil
}

// ValidateJSON checks size, syntax and nesting depth of a JSON document
func ValidateJSON(data []byte) error {
	if len(data) > MaxJSONSize {
		return fmt.Errorf("JSON size %d bytes exceeds maximum %d bytes", len(data), MaxJSONSize)
	}
	var doc interface{}
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return checkDepth(doc, 0)
}

func checkDepth(data interface{}, depth int) error {
	if depth > MaxJSONDepth {
		return fmt.Errorf("JSON nesting depth exceeds maximum %d", MaxJSONDepth)
	}

	switch v := data.(type) {
	case map[string]interface{}:
		for _, value := range v {
			if err := checkDepth(value, depth+1); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, value := range v {
			if err := checkDepth(value, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
