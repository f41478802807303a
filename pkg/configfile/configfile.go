// Package configfile reads configuration values from YAML or JSON files.
package configfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// IsConfigFile reports whether name looks like a file this package reads.
func IsConfigFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

// Load reads a flat key/value mapping from path.
func Load(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configfile: read %s: %w", path, err)
	}
	values, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("configfile: %s: %w", path, err)
	}
	return values, nil
}

// Parse decodes a YAML (or JSON) document whose top level is a mapping. An
// empty document yields an empty map.
func Parse(data []byte) (map[string]any, error) {
	var values map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&values); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("parse: %w", err)
	}
	if values == nil {
		values = map[string]any{}
	}
	return values, nil
}

// LoadNamed reads a file whose top-level keys name configs and whose values
// are the mappings of those configs.
//
//	fast:
//	  a: 1
//	verbose:
//	  message: "hello there"
func LoadNamed(path string) (map[string]map[string]any, error) {
	raw, err := Load(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(raw))
	for name, value := range raw {
		switch typed := value.(type) {
		case map[string]any:
			out[name] = typed
		case nil:
			out[name] = map[string]any{}
		default:
			return nil, fmt.Errorf("configfile: %s: named config %q must be a mapping, got %T", path, name, value)
		}
	}
	return out, nil
}
