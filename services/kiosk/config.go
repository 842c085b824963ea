package kiosk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultConfigPath is where the agent expects to find its JSON
// configuration file.
const DefaultConfigPath = "/etc/kioskd/agent.conf"

const defaultStateDir = "/var/lib/kioskd"

// AgentConfig is the kiosk agent configuration stored on disk.
type AgentConfig struct {
	NATSURL   string `json:"nats_url"`
	MachineID string `json:"machine_id"`
	StateDir  string `json:"state_dir"`
}

// LoadAgentConfig reads and validates the agent configuration file.
func LoadAgentConfig(path string) (AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AgentConfig{}, fmt.Errorf("read config: %w", err)
	}

	var cfg AgentConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return AgentConfig{}, fmt.Errorf("parse config: %w", err)
	}

	if strings.TrimSpace(cfg.NATSURL) == "" {
		return AgentConfig{}, fmt.Errorf("config missing nats_url field")
	}
	if strings.TrimSpace(cfg.MachineID) == "" {
		return AgentConfig{}, fmt.Errorf("config missing machine_id field")
	}
	if cfg.StateDir == "" {
		cfg.StateDir = defaultStateDir
	}

	return cfg, nil
}

// StatePath returns the session state file inside the state dir.
func (c AgentConfig) StatePath() string {
	return filepath.Join(c.StateDir, "session.json")
}
