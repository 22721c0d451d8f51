package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"

	"campus-backend/internal/metadata"
)

// ValidateFields checks a payload against the entity's field descriptors.
// On create every required field must be present; on update only the keys
// present in the payload are considered. A nil value is an explicit clear
// and is only legal on nullable fields.
func ValidateFields(entity *metadata.Entity, fields map[string]any, isCreate bool) []ErrorDetail {
	var errs []ErrorDetail

	if isCreate {
		for _, f := range entity.WritableFields() {
			if !f.Required || f.Nullable {
				continue
			}
			if v, ok := fields[f.Name]; !ok || v == nil {
				errs = append(errs, ErrorDetail{
					Field:   f.Name,
					Rule:    "required",
					Message: fmt.Sprintf("%s is required", f.Name),
				})
			}
		}
	}

	for name, value := range fields {
		f := entity.GetField(name)
		if f == nil {
			// Unknown keys are caught earlier by PlanWrite.
			continue
		}
		if name == entity.PrimaryKey.Field && entity.PrimaryKey.Generated {
			errs = append(errs, ErrorDetail{
				Field:   name,
				Rule:    "readonly",
				Message: fmt.Sprintf("%s is generated and cannot be set", name),
			})
			continue
		}
		if f.IsAuto() {
			errs = append(errs, ErrorDetail{
				Field:   name,
				Rule:    "readonly",
				Message: fmt.Sprintf("%s is managed by the engine", name),
			})
			continue
		}
		if value == nil {
			if !f.Nullable {
				errs = append(errs, ErrorDetail{
					Field:   name,
					Rule:    "nullable",
					Message: fmt.Sprintf("%s cannot be null", name),
				})
			}
			continue
		}
		if detail := checkValueShape(f, value); detail != nil {
			errs = append(errs, *detail)
			continue
		}
		if f.Rule != "" {
			if detail := evaluateFieldRule(f, value, fields, isCreate); detail != nil {
				errs = append(errs, *detail)
			}
		}
	}

	return errs
}

func checkValueShape(f *metadata.Field, v any) *ErrorDetail {
	fail := func(rule, msg string) *ErrorDetail {
		return &ErrorDetail{Field: f.Name, Rule: rule, Message: msg}
	}

	switch f.Type {
	case metadata.TypeInt, metadata.TypeBigint:
		switch n := v.(type) {
		case float64:
			if n != float64(int64(n)) {
				return fail("type", fmt.Sprintf("%s must be an integer", f.Name))
			}
		case int, int64:
		default:
			return fail("type", fmt.Sprintf("%s must be an integer", f.Name))
		}
	case metadata.TypeReal:
		switch v.(type) {
		case float64, int, int64:
		default:
			return fail("type", fmt.Sprintf("%s must be a number", f.Name))
		}
	case metadata.TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fail("type", fmt.Sprintf("%s must be a boolean", f.Name))
		}
	case metadata.TypeText:
		if _, ok := v.(string); !ok {
			return fail("type", fmt.Sprintf("%s must be a string", f.Name))
		}
	case metadata.TypeEnum:
		s, ok := v.(string)
		if !ok {
			return fail("type", fmt.Sprintf("%s must be a string", f.Name))
		}
		if !f.HasEnumValue(s) {
			return fail("enum", fmt.Sprintf("%s must be one of %v", f.Name, f.Enum))
		}
	case metadata.TypeDate:
		s, ok := v.(string)
		if !ok {
			return fail("type", fmt.Sprintf("%s must be a date string", f.Name))
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return fail("date", fmt.Sprintf("%s must be a YYYY-MM-DD date", f.Name))
		}
	case metadata.TypeDateTime:
		s, ok := v.(string)
		if !ok {
			return fail("type", fmt.Sprintf("%s must be a datetime string", f.Name))
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return fail("datetime", fmt.Sprintf("%s must be an RFC3339 datetime", f.Name))
		}
	case metadata.TypeUUID:
		s, ok := v.(string)
		if !ok {
			return fail("type", fmt.Sprintf("%s must be a uuid string", f.Name))
		}
		if _, err := uuid.Parse(s); err != nil {
			return fail("uuid", fmt.Sprintf("%s must be a valid uuid", f.Name))
		}
	case metadata.TypeRef:
		switch v.(type) {
		case string, float64, int, int64:
		default:
			return fail("type", fmt.Sprintf("%s must be an id", f.Name))
		}
	}
	return nil
}

// ruleCache holds compiled validation expressions keyed by source text.
var ruleCache sync.Map

// evaluateFieldRule runs a descriptor's expr rule. The rule is violated
// when the expression evaluates to true. The environment exposes the field
// value, the whole record, and the action.
func evaluateFieldRule(f *metadata.Field, value any, record map[string]any, isCreate bool) *ErrorDetail {
	prog, err := compileRule(f.Rule)
	if err != nil {
		return &ErrorDetail{Field: f.Name, Rule: "expression", Message: fmt.Sprintf("compile error: %v", err)}
	}

	action := "update"
	if isCreate {
		action = "create"
	}
	env := map[string]any{
		"value":  value,
		"record": record,
		"action": action,
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return &ErrorDetail{Field: f.Name, Rule: "expression", Message: fmt.Sprintf("rule evaluation error: %v", err)}
	}

	violated, ok := result.(bool)
	if !ok || !violated {
		return nil
	}

	msg := f.Message
	if msg == "" {
		msg = fmt.Sprintf("%s failed validation", f.Name)
	}
	return &ErrorDetail{Field: f.Name, Rule: "expression", Message: msg}
}

func compileRule(source string) (*vm.Program, error) {
	if cached, ok := ruleCache.Load(source); ok {
		return cached.(*vm.Program), nil
	}
	prog, err := expr.Compile(source, expr.AsBool())
	if err != nil {
		return nil, err
	}
	ruleCache.Store(source, prog)
	return prog, nil
}
