// Package validator checks loosely typed option bags against a schema.
package validator

import (
	"fmt"
	"reflect"
	"sort"
)

// Validator checks one option value. opts is the whole bag being validated.
type Validator func(value any, opt string, opts map[string]any) error

// Schema maps option names to their validators.
type Schema map[string]Validator

// Kind of schema violation.
const (
	CodeBadOptionValue = "ERR_BAD_OPTION_VALUE"
	CodeBadOption      = "ERR_BAD_OPTION"
)

// OptionError describes a schema violation.
type OptionError struct {
	Code   string
	Option string
	Reason string
}

func (e *OptionError) Error() string {
	if e.Code == CodeBadOption {
		return fmt.Sprintf("unknown option %s", e.Option)
	}
	return fmt.Sprintf("option %s %s", e.Option, e.Reason)
}

// AssertOptions validates every key of opts. Keys without a schema entry are
// rejected unless allowUnknown is set. Keys are checked in sorted order so
// the reported violation is deterministic.
func AssertOptions(opts map[string]any, schema Schema, allowUnknown bool) error {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, opt := range keys {
		validate, ok := schema[opt]
		if !ok {
			if !allowUnknown {
				return &OptionError{Code: CodeBadOption, Option: opt}
			}
			continue
		}
		value := opts[opt]
		if value == nil {
			continue
		}
		if err := validate(value, opt, opts); err != nil {
			return &OptionError{Code: CodeBadOptionValue, Option: opt, Reason: err.Error()}
		}
	}
	return nil
}

// Boolean accepts bool values.
func Boolean() Validator {
	return typeOf("boolean", reflect.Bool)
}

// String accepts string values.
func String() Validator {
	return typeOf("string", reflect.String)
}

// Function accepts any non-nil func value.
func Function() Validator {
	return typeOf("function", reflect.Func)
}

func typeOf(name string, kind reflect.Kind) Validator {
	return func(value any, _ string, _ map[string]any) error {
		if reflect.ValueOf(value).Kind() != kind {
			return fmt.Errorf("must be a %s, got %T", name, value)
		}
		return nil
	}
}
