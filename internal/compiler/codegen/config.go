package codegen

// Config controls the layout of exported source
type Config struct {
	// IndentSize is the number of spaces per block level
	IndentSize int `yaml:"indent_size" mapstructure:"indent_size"`
	// BlankLines separate top-level declarations
	BlankLines int `yaml:"blank_lines" mapstructure:"blank_lines"`
}

// DefaultConfig returns the default layout
func DefaultConfig() *Config {
	return &Config{
		IndentSize: 4,
		BlankLines: 2,
	}
}

// normalized fills zero values with defaults
func (c *Config) normalized() *Config {
	out := DefaultConfig()
	if c == nil {
		return out
	}
	if c.IndentSize > 0 {
		out.IndentSize = c.IndentSize
	}
	if c.BlankLines > 0 {
		out.BlankLines = c.BlankLines
	}
	return out
}
