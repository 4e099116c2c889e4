// Package config parses the YAML file a peer process is started with: where
// its storage lives, which keypair it signs as, which address it gossips
// on, and which remote peers it dials on startup.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/localfirst/ldb/pkg/errors"
)

// Peer names a remote peer to dial on startup.
type Peer struct {
	Addr string `yaml:"addr"`
	// Id is the peer's hex-encoded PeerId, used to key its AEAD session
	// and to address Key/Unjoin requests before any gossip is received.
	Id string `yaml:"id"`
}

// Config is the top-level shape of a peer's config file.
type Config struct {
	// StoreDir is the badger data directory for this peer's documents.
	StoreDir string `yaml:"store_dir"`
	// KeyFile holds the peer's ed25519 seed, as written by `keygen`.
	KeyFile string `yaml:"key_file"`
	// ListenAddr is where this peer accepts incoming sync connections.
	ListenAddr string `yaml:"listen_addr"`
	// MetricsAddr, if set, serves Prometheus metrics for this process.
	MetricsAddr string `yaml:"metrics_addr"`
	// LogLevel is one of logrus's level names (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
	// Peers lists remote peers to dial and gossip with on startup.
	Peers []Peer `yaml:"peers"`
}

// Default returns a Config with every field set to its zero-config value,
// suitable for a single local peer with no remote sync.
func Default() Config {
	return Config{
		StoreDir:   "./data",
		ListenAddr: ":7420",
		LogLevel:   "info",
	}
}

// Load reads and parses a YAML config file at path, filling in defaults for
// any field the file leaves unset.
func Load(path string) (Config, error) {
	c := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.StorageIo, err, "reading config file %s", path)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, errors.Wrap(errors.InvalidPath, err, "parsing config file %s", path)
	}
	if c.StoreDir == "" {
		c.StoreDir = "./data"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":7420"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c, nil
}
