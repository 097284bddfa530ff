// Package config provides the YAML-backed Configuration implementation
// used by the demo server and client, following
// _examples/sakateka-yanet2/coordinator/cfg.go's
// defaults-then-overlay loading shape.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	session "github.com/sangteak/tcpsess"
)

// SocketOptions mirrors IConfiguration's optional socket knobs
// (_examples/original_source/net_interface.h) as YAML-bindable pointer
// fields: absent in the file means "do not touch system default".
type SocketOptions struct {
	Reuse     *bool                 `yaml:"reuse"`
	MMS       *int32                `yaml:"mms"`
	Nagle     *bool                 `yaml:"nagle"`
	Keepalive *bool                 `yaml:"keepalive"`
	Linger    *session.LingerOption `yaml:"linger"`
}

// Config is the on-disk configuration shape: one connection target plus
// its socket options (src/main.cpp's trailing configuration.json sketch,
// promoted to a real loaded YAML schema).
type Config struct {
	Address struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"address"`
	SocketOption SocketOptions `yaml:"socket_option"`
}

// DefaultConfig mirrors GameServer's Configuration in src/main.cpp:
// loopback address, reuse+Nagle-disabled, no linger/keepalive override.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Address.Host = "127.0.0.1"
	cfg.Address.Port = 20195
	reuse, nagle := true, false
	cfg.SocketOption.Reuse = &reuse
	cfg.SocketOption.Nagle = &nagle
	return cfg
}

// LoadConfig reads a YAML file at path, overlaying it onto DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	return cfg, nil
}

// Provider adapts *Config to session.Configuration.
type Provider struct {
	cfg *Config
}

// NewProvider wraps cfg as a session.Configuration.
func NewProvider(cfg *Config) *Provider {
	return &Provider{cfg: cfg}
}

// GetAddress implements session.Configuration.
func (p *Provider) GetAddress() (host, port string) {
	return p.cfg.Address.Host, strconv.Itoa(p.cfg.Address.Port)
}

// Reuse implements session.Configuration.
func (p *Provider) Reuse() *bool { return p.cfg.SocketOption.Reuse }

// MMS implements session.Configuration.
func (p *Provider) MMS() *int32 { return p.cfg.SocketOption.MMS }

// Linger implements session.Configuration.
func (p *Provider) Linger() *session.LingerOption { return p.cfg.SocketOption.Linger }

// Nagle implements session.Configuration.
func (p *Provider) Nagle() *bool { return p.cfg.SocketOption.Nagle }

// Keepalive implements session.Configuration.
func (p *Provider) Keepalive() *bool { return p.cfg.SocketOption.Keepalive }
