package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// Config holds the CLI defaults. Values from the config file apply only
// where the matching flag was not set on the command line.
type Config struct {
	DataDir  string `yaml:"dataDir"`
	Backend  string `yaml:"backend"`
	Capacity int    `yaml:"capacity"`
}

// loadConfig reads the optional YAML config file. A missing file is not
// an error.
func loadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyFile(cmd *cobra.Command, file *Config) {
	if file == nil {
		return
	}
	if !cmd.Flags().Changed("data-dir") && file.DataDir != "" {
		c.DataDir = file.DataDir
	}
	if !cmd.Flags().Changed("backend") && file.Backend != "" {
		c.Backend = file.Backend
	}
	if !cmd.Flags().Changed("capacity") && file.Capacity > 0 {
		c.Capacity = file.Capacity
	}
}
