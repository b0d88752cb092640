package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CommandConfig describes one allow-listed command.
type CommandConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile is the layout of commands.yaml.
type ConfigFile struct {
	Commands []CommandConfig `yaml:"commands" json:"commands"`
	// GracePeriod is how long a cancelled command gets between SIGINT and SIGKILL.
	GracePeriod time.Duration `yaml:"grace_period" json:"grace_period"`
}

// ReadConfig reads a YAML or JSON command file. A missing file yields an empty config.
func ReadConfig(path string) (ConfigFile, error) {
	var cfg ConfigFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read commands config: %w", err)
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// ByName indexes the commands by name, skipping unnamed entries.
func (c ConfigFile) ByName() map[string]CommandConfig {
	commands := make(map[string]CommandConfig, len(c.Commands))
	for _, cmd := range c.Commands {
		if cmd.Name == "" {
			continue
		}
		commands[cmd.Name] = cmd
	}
	return commands
}

// LoadCommands reads a command file and indexes it by name.
func LoadCommands(path string) (map[string]CommandConfig, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return nil, err
	}
	return cfg.ByName(), nil
}
