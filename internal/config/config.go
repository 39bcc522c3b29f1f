// Package config loads the HCL configuration shared by every twentyone
// subcommand. A missing file is not an error; defaults apply.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/twentyone/internal/lobby"
	"github.com/lox/twentyone/internal/match"
	"github.com/lox/twentyone/internal/transport"
)

// Config is the complete file layout
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Peer   PeerSettings   `hcl:"peer,block"`
}

// ServerSettings configures the relay server
type ServerSettings struct {
	Address          string `hcl:"address,optional"`
	Port             int    `hcl:"port,optional"`
	MaxMembers       int    `hcl:"max_members,optional"`
	LogLevel         string `hcl:"log_level,optional"`
	StaticDir        string `hcl:"static_dir,optional"`
	KeepaliveSeconds int    `hcl:"keepalive_seconds,optional"`
}

// PeerSettings configures direct host/guest play
type PeerSettings struct {
	Listen                string `hcl:"listen,optional"`
	ConnectTimeoutSeconds int    `hcl:"connect_timeout_seconds,optional"`
	StartingLives         int    `hcl:"starting_lives,optional"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads filename, falling back to defaults if it does not exist
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(src, filename)
}

// Parse decodes HCL source. Blocks and attributes left out take defaults.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var raw struct {
		Server *ServerSettings `hcl:"server,block"`
		Peer   *PeerSettings   `hcl:"peer,block"`
	}
	diags = gohcl.DecodeBody(file.Body, nil, &raw)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	var c Config
	if raw.Server != nil {
		c.Server = *raw.Server
	}
	if raw.Peer != nil {
		c.Peer = *raw.Peer
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxMembers == 0 {
		c.Server.MaxMembers = lobby.DefaultMaxMembers
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.KeepaliveSeconds == 0 {
		c.Server.KeepaliveSeconds = int(transport.DefaultPongWait / time.Second)
	}

	if c.Peer.Listen == "" {
		c.Peer.Listen = ":7777"
	}
	if c.Peer.ConnectTimeoutSeconds == 0 {
		c.Peer.ConnectTimeoutSeconds = int(transport.DefaultConnectTimeout / time.Second)
	}
	if c.Peer.StartingLives == 0 {
		c.Peer.StartingLives = match.DefaultLives
	}
}

// Validate checks values that defaults cannot repair
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.MaxMembers < 1 || c.Server.MaxMembers > lobby.DefaultMaxMembers {
		return fmt.Errorf("max_members must be between 1 and %d, got %d", lobby.DefaultMaxMembers, c.Server.MaxMembers)
	}
	if _, err := log.ParseLevel(c.Server.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.Server.LogLevel)
	}
	if c.Server.KeepaliveSeconds < 1 {
		return fmt.Errorf("keepalive_seconds must be positive, got %d", c.Server.KeepaliveSeconds)
	}
	if c.Server.StaticDir != "" {
		info, err := os.Stat(c.Server.StaticDir)
		if err != nil {
			return fmt.Errorf("static_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("static_dir %s is not a directory", c.Server.StaticDir)
		}
	}

	if _, _, err := net.SplitHostPort(c.Peer.Listen); err != nil {
		return fmt.Errorf("invalid peer listen address %q: %w", c.Peer.Listen, err)
	}
	if c.Peer.ConnectTimeoutSeconds < 1 {
		return fmt.Errorf("connect_timeout_seconds must be positive, got %d", c.Peer.ConnectTimeoutSeconds)
	}
	if c.Peer.StartingLives < 1 {
		return fmt.Errorf("starting_lives must be positive, got %d", c.Peer.StartingLives)
	}
	return nil
}

// ServerAddress returns the relay listen address
func (c *Config) ServerAddress() string {
	return net.JoinHostPort(c.Server.Address, strconv.Itoa(c.Server.Port))
}

func (c *Config) Keepalive() time.Duration {
	return time.Duration(c.Server.KeepaliveSeconds) * time.Second
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Peer.ConnectTimeoutSeconds) * time.Second
}

// LogLevel returns the configured level, defaulting to info
func (c *Config) LogLevel() log.Level {
	level, err := log.ParseLevel(c.Server.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
