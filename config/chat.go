package config

import (
	"dsbuild/process"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Process names of the chat.
const (
	ChatServerName = "chat_server"
	ChatClientName = "chat_client"
)

// ChatServer describes a chat server. Partner is the host:port of the
// other server, if there is one.
type ChatServer struct {
	Host     string `yaml:"host" json:"host"`
	Port     uint16 `yaml:"port" json:"port"`
	MountDir string `yaml:"mount_dir" json:"mount_dir"`
	Partner  string `yaml:"partner,omitempty" json:"partner,omitempty"`
}

// ChatClient describes a user and the servers it can talk to, the
// preferred one first.
type ChatClient struct {
	Login    string   `yaml:"login" json:"login"`
	Password string   `yaml:"password" json:"password"`
	Host     string   `yaml:"host" json:"host"`
	Port     uint16   `yaml:"port" json:"port"`
	Servers  []string `yaml:"servers" json:"servers"`
}

func LoadChatServer(path string) (*ChatServer, error) {
	cfg := &ChatServer{}
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	switch {
	case cfg.Host == "" || cfg.Port == 0:
		return nil, fmt.Errorf("%w: host and port are required", ErrBadConfig)
	case cfg.MountDir == "":
		return nil, fmt.Errorf("%w: mount_dir is required", ErrBadConfig)
	}
	if _, err := cfg.PartnerAddress(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PartnerAddress returns the address of the partner server process.
func (c *ChatServer) PartnerAddress() (*process.Address, error) {
	if c.Partner == "" {
		return nil, nil
	}
	addr, err := process.ParseAddress(c.Partner + "/" + ChatServerName)
	if err != nil {
		return nil, fmt.Errorf("%w: partner: %v", ErrBadConfig, err)
	}
	return &addr, nil
}

func LoadChatClient(path string) (*ChatClient, error) {
	cfg := &ChatClient{}
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	switch {
	case cfg.Login == "":
		return nil, fmt.Errorf("%w: login is required", ErrBadConfig)
	case cfg.Host == "" || cfg.Port == 0:
		return nil, fmt.Errorf("%w: host and port are required", ErrBadConfig)
	case len(cfg.Servers) == 0:
		return nil, fmt.Errorf("%w: servers is empty", ErrBadConfig)
	}
	if _, err := cfg.ServerAddresses(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ChatClient) ServerAddresses() ([]process.Address, error) {
	addrs := make([]process.Address, 0, len(c.Servers))
	for _, hp := range c.Servers {
		addr, err := process.ParseAddress(hp + "/" + ChatServerName)
		if err != nil {
			return nil, fmt.Errorf("%w: servers: %v", ErrBadConfig, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadConfig, err)
	}
	return nil
}
