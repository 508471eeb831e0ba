// Package config loads the static, fixed-membership cluster directory
// every pbft/raft node needs at startup: its own identity, the full
// peer list, and which node starts as primary. There is no persistent
// state and no dynamic membership; a restart always re-reads this file
// and re-genesis.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Peer is one entry in the fixed replica directory.
type Peer struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"` // host:port, dialed via net/rpc
}

// Cluster is the full node directory shared by every replica's config
// file; each node additionally names its own ID and whether it is the
// initial primary.
type Cluster struct {
	Peers     []Peer `yaml:"peers"`
	PrimaryID string `yaml:"primary_id"`
}

// NodeConfig is what one process loads at startup.
type NodeConfig struct {
	NodeID  string `yaml:"node_id"`
	Listen  string `yaml:"listen"`
	Cluster `yaml:",inline"`

	Log struct {
		Level   string `yaml:"level"`
		Console bool   `yaml:"console"`
	} `yaml:"log"`

	MetricsAddr string `yaml:"metrics_addr"`
	StatusAddr  string `yaml:"status_addr"`
}

// Load parses a YAML node config file.
func Load(path string) (*NodeConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg NodeConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("config: %s: node_id is required", path)
	}
	if len(cfg.Peers) == 0 {
		return nil, fmt.Errorf("config: %s: peers must not be empty", path)
	}
	return &cfg, nil
}

// IsPrimary reports whether this config's node starts as primary.
func (c *NodeConfig) IsPrimary() bool {
	return c.NodeID == c.PrimaryID
}

// PeerAddress looks up a peer's dial address by node ID.
func (c *NodeConfig) PeerAddress(id string) (string, bool) {
	for _, p := range c.Peers {
		if p.ID == id {
			return p.Address, true
		}
	}
	return "", false
}
