package configstore

import (
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
)

// ValueType is the kind of value a key accepts.
type ValueType string

const (
	TypeString         ValueType = "string"
	TypePositiveNumber ValueType = "positive_number"
	TypeURL            ValueType = "url"
	TypeBool           ValueType = "bool"
)

// Validation messages shown to the operator.
const (
	MsgEmptyValue     = "Value cannot be empty"
	MsgPositiveNumber = "Must be a positive number"
	MsgURL            = "Must be a valid URL"
	MsgBool           = `Must be "true" or "false"`
)

// Rule binds every key containing Token to a value type.
type Rule struct {
	Token string    `yaml:"token" mapstructure:"token"`
	Type  ValueType `yaml:"type" mapstructure:"type"`
}

// DefaultRules reproduces the naming convention existing keys rely on. A key
// may match several rules; all of them apply, in this order.
func DefaultRules() []Rule {
	return []Rule{
		{Token: "maxRequests", Type: TypePositiveNumber},
		{Token: "windowMs", Type: TypePositiveNumber},
		{Token: "Url", Type: TypeURL},
		{Token: "url", Type: TypeURL},
		{Token: "enabled", Type: TypeBool},
		{Token: "noindex", Type: TypeBool},
	}
}

// DefaultProtectedKeys lists substrings that mark a key read-only.
func DefaultProtectedKeys() []string {
	return []string{"CONFIG_ADMIN_TOKEN", "ADMIN_TOKEN", "NEXT_PUBLIC_GA_MEASUREMENT_ID"}
}

// Schema resolves keys to value types and checks candidate values.
type Schema struct {
	rules     []Rule
	protected []string
	validate  *validator.Validate
}

// NewSchema creates a schema. Nil rules or protected lists fall back to the
// defaults; pass empty slices to disable them.
func NewSchema(rules []Rule, protected []string) *Schema {
	if rules == nil {
		rules = DefaultRules()
	}
	if protected == nil {
		protected = DefaultProtectedKeys()
	}
	return &Schema{
		rules:     rules,
		protected: protected,
		validate:  validator.New(),
	}
}

// IsProtected reports whether key contains a protected substring.
func (s *Schema) IsProtected(key string) bool {
	for _, p := range s.protected {
		if p != "" && strings.Contains(key, p) {
			return true
		}
	}
	return false
}

// TypesFor returns the value types that apply to key, TypeString when none.
func (s *Schema) TypesFor(key string) []ValueType {
	var out []ValueType
	seen := make(map[ValueType]bool)
	for _, r := range s.rules {
		if strings.Contains(key, r.Token) && !seen[r.Type] {
			out = append(out, r.Type)
			seen[r.Type] = true
		}
	}
	if len(out) == 0 {
		return []ValueType{TypeString}
	}
	return out
}

// Check validates a proposed update. Protection is checked before the value.
func (s *Schema) Check(key, value string) error {
	if strings.TrimSpace(key) == "" {
		return types.NewValidationError("Key cannot be empty")
	}
	if s.IsProtected(key) {
		return types.NewError(types.KindPermissionDenied, "update", "Cannot modify protected key: "+key)
	}
	if strings.TrimSpace(value) == "" {
		return types.NewValidationError(MsgEmptyValue)
	}
	for _, t := range s.TypesFor(key) {
		if err := s.checkType(t, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) checkType(t ValueType, value string) error {
	switch t {
	case TypePositiveNumber:
		n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || math.IsNaN(n) || n <= 0 {
			return types.NewValidationError(MsgPositiveNumber)
		}
	case TypeURL:
		if err := s.validate.Var(value, "required,url"); err != nil {
			return types.NewValidationError(MsgURL)
		}
	case TypeBool:
		if value != "true" && value != "false" {
			return types.NewValidationError(MsgBool)
		}
	}
	return nil
}
