package config

import "gopkg.in/yaml.v3"

// ParseYAML decodes and validates a YAML sweep definition.
func ParseYAML(data []byte, source string) (*Sweep, error) {
	var raw rawSweep
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ValidationErrors{{
			File:    source,
			Field:   "yaml",
			Message: err.Error(),
		}}
	}
	return validateRaw(raw, source)
}
