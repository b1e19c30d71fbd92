package format

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/pipegraph/internal/compiler/codegen"
)

// ConfigFile is the default name of the layout file
const ConfigFile = ".pipegraph-format.yml"

// LoadConfig loads the export layout from the format: section of a file.
// A missing file yields the defaults.
func LoadConfig(path string) (*codegen.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return codegen.DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Format codegen.Config `yaml:"format"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}

	config := &wrapper.Format
	defaults := codegen.DefaultConfig()
	if config.IndentSize == 0 {
		config.IndentSize = defaults.IndentSize
	}
	if config.BlankLines == 0 {
		config.BlankLines = defaults.BlankLines
	}
	return config, nil
}

// SaveConfig writes the layout under a format: key
func SaveConfig(path string, config *codegen.Config) error {
	wrapper := struct {
		Format codegen.Config `yaml:"format"`
	}{
		Format: *config,
	}

	data, err := yaml.Marshal(wrapper)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
