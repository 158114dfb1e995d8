package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/mnemo-ai/mnemo"
)

// ParseFile loads a Config from a file. The extension selects the format.
func ParseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".yml", ".yaml":
		return ParseYAML(data)
	default:
		return nil, mnemo.Errorf(mnemo.KindInvalidInput,
			"unsupported config file extension: %s", filepath.Ext(path))
	}
}

// ParseYAML loads a Config from YAML. Unknown keys are rejected.
func ParseYAML(data []byte) (*Config, error) {
	var config Config
	if err := yaml.UnmarshalWithOptions(data, &config, yaml.Strict()); err != nil {
		return nil, mnemo.WrapError(mnemo.KindInvalidInput, err)
	}
	return &config, nil
}

// ParseJSON loads a Config from JSON.
func ParseJSON(data []byte) (*Config, error) {
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, mnemo.WrapError(mnemo.KindInvalidInput, err)
	}
	return &config, nil
}
