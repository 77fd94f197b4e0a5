package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// List is a string list that decodes from either a YAML sequence or a
// comma-separated scalar, so "${ARDUINO_PORTS}" style values expand cleanly.
type List []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *List) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = SplitList(value.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		out := make(List, 0, len(items))
		for _, item := range items {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("line %d: expected a list or comma-separated string", value.Line)
	}
}

// SplitList splits a comma-separated string, dropping blank entries.
func SplitList(s string) List {
	var out List
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
