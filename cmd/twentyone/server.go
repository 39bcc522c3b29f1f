package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/lox/twentyone/internal/lobby"
	"github.com/lox/twentyone/internal/relay"
)

// ServerCmd runs the relay server. Flags and environment override the
// config file.
type ServerCmd struct {
	Host       string `env:"HOST" help:"Address to bind to"`
	Port       int    `env:"PORT" help:"Port to listen on"`
	MaxMembers int    `env:"MAX_MEMBERS" help:"Members allowed per lobby (1 or 2)"`
	StaticDir  string `type:"existingdir" help:"Serve static files from this directory"`
	LogLevel   string `short:"l" help:"Log level: debug, info, warn or error (overrides config)"`
}

func (c *ServerCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config, c.LogLevel)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Address = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.MaxMembers != 0 {
		cfg.Server.MaxMembers = c.MaxMembers
	}
	if c.StaticDir != "" {
		cfg.Server.StaticDir = c.StaticDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(os.Stderr, cfg.LogLevel())
	ctx, cancel := signalContext(logger)
	defer cancel()

	registry := lobby.NewRegistry(logger, lobby.WithMaxMembers(cfg.Server.MaxMembers))

	opts := []relay.ServerOption{relay.WithKeepalive(cfg.Keepalive())}
	if cfg.Server.StaticDir != "" {
		opts = append(opts, relay.WithStaticDir(cfg.Server.StaticDir))
	}
	server := relay.NewServer(cfg.ServerAddress(), registry, logger, opts...)

	logger.Info("Starting twentyone relay",
		"addr", cfg.ServerAddress(),
		"maxMembers", cfg.Server.MaxMembers,
		"keepalive", cfg.Keepalive().Round(time.Second),
		"static", cfg.Server.StaticDir)

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
