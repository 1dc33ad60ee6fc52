package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

func parseYAML(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse yaml: %w", err)
	}
	return f, nil
}

// UnmarshalYAML accepts `reconnect: false` as well as a mapping.
func (r *Reconnect) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var on bool
		if err := value.Decode(&on); err != nil {
			return fmt.Errorf("%w: reconnect must be a boolean or a mapping", ErrInvalidValue)
		}
		*r = Reconnect{Enabled: boolPtr(on)}
		return nil
	}

	type plain Reconnect
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*r = Reconnect(p)
	return nil
}

func (h *Heartbeat) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var on bool
		if err := value.Decode(&on); err != nil {
			return fmt.Errorf("%w: heartbeat must be a boolean or a mapping", ErrInvalidValue)
		}
		*h = Heartbeat{Enabled: boolPtr(on)}
		return nil
	}

	type plain Heartbeat
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*h = Heartbeat(p)
	return nil
}
