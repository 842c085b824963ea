package bundler

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is the signed metadata shipped inside a configuration
// bundle.
type Manifest struct {
	Version          string          `yaml:"version"`
	CreatedAt        time.Time       `yaml:"created_at"`
	Signer           string          `yaml:"signer,omitempty"`
	SigningPublicKey string          `yaml:"signing_public_key,omitempty"`
	Signature        string          `yaml:"signature,omitempty"`
	Machines         []string        `yaml:"machines"`
	Entries          []ManifestEntry `yaml:"entries"`
}

// SigningBytes marshals the manifest without its signature for
// signing and verification.
func (m Manifest) SigningBytes() ([]byte, error) {
	clone := m
	clone.Signature = ""
	return yaml.Marshal(clone)
}

// ManifestEntry describes one machine-configuration file within the
// bundle.
type ManifestEntry struct {
	Path      string `yaml:"path"`
	MachineID string `yaml:"machine_id"`
	Size      int64  `yaml:"size"`
	SHA256    string `yaml:"sha256"`
}
