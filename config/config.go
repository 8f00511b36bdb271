// Package config reads the cluster description shared by the replicas.
package config

import (
	"dsbuild/process"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ProcessName is the name of the raft process on every node.
	ProcessName   = "raft"
	DefaultNetRTT = 100 * time.Millisecond
)

var ErrBadConfig = errors.New("bad config")

// Config describes a cluster. Replica i talks to the others on
// InnerNet[i] and serves users on ListenNet[i]. JSON files are read too.
type Config struct {
	InnerNet  []string      `yaml:"inner_net" json:"inner_net"`
	ListenNet []string      `yaml:"listen_net" json:"listen_net"`
	NetRTT    time.Duration `yaml:"net_rtt" json:"net_rtt"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{NetRTT: DefaultNetRTT}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case len(c.InnerNet) == 0:
		return fmt.Errorf("%w: inner_net is empty", ErrBadConfig)
	case len(c.InnerNet) != len(c.ListenNet):
		return fmt.Errorf("%w: %d inner addresses, %d listen addresses",
			ErrBadConfig, len(c.InnerNet), len(c.ListenNet))
	case c.NetRTT <= 0:
		return fmt.Errorf("%w: net_rtt must be positive", ErrBadConfig)
	}
	if _, err := c.Replicas(); err != nil {
		return err
	}
	return nil
}

// Replicas returns the addresses of the raft processes in replica order.
func (c *Config) Replicas() ([]process.Address, error) {
	addrs := make([]process.Address, 0, len(c.InnerNet))
	for _, hp := range c.InnerNet {
		addr, err := process.ParseAddress(hp + "/" + ProcessName)
		if err != nil {
			return nil, fmt.Errorf("%w: inner_net: %v", ErrBadConfig, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (c *Config) Size() int {
	return len(c.InnerNet)
}
