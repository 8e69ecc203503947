package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// OptionKind identifies the scalar type carried by an OptionValue.
type OptionKind int

const (
	OptionString OptionKind = iota
	OptionBool
	OptionInt
	OptionFloat
)

// OptionValue is a tagged scalar forwarded verbatim to the recognition
// engine. The core never inspects the value; it only renders it back to
// text at the engine boundary.
type OptionValue struct {
	Kind  OptionKind
	Bool  bool
	Int   int64
	Float float64
	Str   string
}

// StringOption wraps a string value
func StringOption(v string) OptionValue {
	return OptionValue{Kind: OptionString, Str: v}
}

// BoolOption wraps a boolean value
func BoolOption(v bool) OptionValue {
	return OptionValue{Kind: OptionBool, Bool: v}
}

// IntOption wraps an integer value
func IntOption(v int64) OptionValue {
	return OptionValue{Kind: OptionInt, Int: v}
}

// FloatOption wraps a float value
func FloatOption(v float64) OptionValue {
	return OptionValue{Kind: OptionFloat, Float: v}
}

// String renders the value the way it is sent to the engine
func (v OptionValue) String() string {
	switch v.Kind {
	case OptionBool:
		return strconv.FormatBool(v.Bool)
	case OptionInt:
		return strconv.FormatInt(v.Int, 10)
	case OptionFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return v.Str
	}
}

// UnmarshalYAML keeps the scalar type the YAML document used
func (v *OptionValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("engine option must be a scalar, got %v", node.Kind)
	}

	switch node.Tag {
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*v = BoolOption(b)
	case "!!int":
		var i int64
		if err := node.Decode(&i); err != nil {
			return err
		}
		*v = IntOption(i)
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return err
		}
		*v = FloatOption(f)
	default:
		*v = StringOption(node.Value)
	}

	return nil
}

// CoerceOption converts a textual option value to bool/int/float when
// unambiguous, else leaves it as a string.
func CoerceOption(raw string) OptionValue {
	switch strings.ToLower(raw) {
	case "true":
		return BoolOption(true)
	case "false":
		return BoolOption(false)
	}

	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return IntOption(i)
	}

	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return FloatOption(f)
	}

	return StringOption(raw)
}

// ParseOptionPairs parses repeated KEY=VALUE flag values into an option map
func ParseOptionPairs(pairs []string) (map[string]OptionValue, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	options := make(map[string]OptionValue, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("invalid engine option %q, expected KEY=VALUE", pair)
		}

		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("engine option key cannot be empty in %q", pair)
		}

		options[key] = CoerceOption(strings.TrimSpace(value))
	}

	return options, nil
}
