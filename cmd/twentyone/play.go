package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/twentyone/internal/blackjack"
	"github.com/lox/twentyone/internal/config"
	"github.com/lox/twentyone/internal/deck"
	"github.com/lox/twentyone/internal/peer"
	"github.com/lox/twentyone/internal/randutil"
	"github.com/lox/twentyone/internal/relay"
	"github.com/lox/twentyone/internal/replication"
	"github.com/lox/twentyone/internal/transport"
	"github.com/lox/twentyone/internal/tui"
)

// PlayFlags are shared by every interactive subcommand
type PlayFlags struct {
	Name     string `short:"n" env:"USER" help:"Display name"`
	LogFile  string `default:"twentyone.log" help:"Write logs to this file"`
	LogLevel string `short:"l" help:"Log level: debug, info, warn or error (overrides config)"`
	NoColor  bool   `help:"Disable colors"`
}

func (f PlayFlags) setup(cli *CLI) (*config.Config, *log.Logger, func(), error) {
	cfg, err := loadConfig(cli.Config, f.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, closeLog, err := fileLogger(f.LogFile, cfg.LogLevel())
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, closeLog, nil
}

// newShoe returns a seeded shoe when seed is set, otherwise a random one
func newShoe(seed *uint64) *deck.Shoe {
	if seed != nil {
		return deck.NewSeededShoe(*seed)
	}
	return deck.NewShoe(deck.DefaultDecks, randutil.Random())
}

// HostCmd hosts a lobby, either directly on a local port or through a
// relay server
type HostCmd struct {
	PlayFlags `embed:""`

	Listen string  `help:"Accept a guest directly on this address (overrides config)"`
	Relay  string  `help:"Host through the relay server at this URL instead, e.g. ws://localhost:8080/ws"`
	Lives  int     `help:"Starting lives per side (overrides config)"`
	Seed   *uint64 `help:"Deterministic shoe seed"`
}

func (c *HostCmd) Run(cli *CLI) error {
	cfg, logger, closeLog, err := c.setup(cli)
	if err != nil {
		return err
	}
	defer closeLog()

	if c.Listen != "" {
		cfg.Peer.Listen = c.Listen
	}
	if c.Lives != 0 {
		cfg.Peer.StartingLives = c.Lives
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	var t transport.Transport
	title := "twentyone host"
	if c.Relay != "" {
		client, err := relay.Dial(ctx, c.Relay, logger, relay.ClientOptions{
			ConnectTimeout: cfg.ConnectTimeout(),
			PongWait:       cfg.Keepalive(),
		})
		if err != nil {
			return fmt.Errorf("connect to relay: %w", err)
		}
		t = client
	} else {
		h, err := peer.Listen(cfg.Peer.Listen, logger, peer.HostOptions{PongWait: cfg.Keepalive()})
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		t = h
		title = "hosting on " + h.Addr().String()
		fmt.Fprintf(os.Stderr, "Waiting for a guest on %s\n", h.Addr())
	}
	defer t.Close()

	engine := replication.NewHost(t, newShoe(c.Seed), logger, replication.HostOptions{
		Mode:          blackjack.DealerManual,
		StartingLives: cfg.Peer.StartingLives,
	})

	return tui.Run(ctx, engine, logger, tui.Options{
		Title:   title,
		NoColor: c.NoColor,
		Setup: func(ctx context.Context) error {
			created, err := t.CreateLobby(ctx, c.Name)
			if err != nil {
				return fmt.Errorf("create lobby: %w", err)
			}
			logger.Info("Lobby created", "code", created.Code)
			return nil
		},
	})
}

// JoinCmd joins a lobby by code, through a relay or directly to a host
type JoinCmd struct {
	PlayFlags `embed:""`

	Code  string `arg:"" help:"Six digit lobby code"`
	Relay string `help:"Join through the relay server at this URL, e.g. ws://localhost:8080/ws"`
	Peer  string `help:"Join a directly hosted game at this address, e.g. 192.168.1.10:7777"`
}

func (c *JoinCmd) Validate() error {
	if (c.Relay == "") == (c.Peer == "") {
		return fmt.Errorf("exactly one of --relay or --peer is required")
	}
	return nil
}

func (c *JoinCmd) Run(cli *CLI) error {
	cfg, logger, closeLog, err := c.setup(cli)
	if err != nil {
		return err
	}
	defer closeLog()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	var t transport.Transport
	if c.Relay != "" {
		client, err := relay.Dial(ctx, c.Relay, logger, relay.ClientOptions{
			ConnectTimeout: cfg.ConnectTimeout(),
			PongWait:       cfg.Keepalive(),
		})
		if err != nil {
			return fmt.Errorf("connect to relay: %w", err)
		}
		t = client
	} else {
		t = peer.NewGuest(c.Peer, logger, peer.GuestOptions{
			ConnectTimeout: cfg.ConnectTimeout(),
			PongWait:       cfg.Keepalive(),
		})
	}
	defer t.Close()

	engine := replication.NewGuest(t, logger)
	code := strings.TrimSpace(c.Code)

	return tui.Run(ctx, engine, logger, tui.Options{
		Title:   "twentyone guest",
		NoColor: c.NoColor,
		Setup: func(ctx context.Context) error {
			if _, err := t.JoinLobby(ctx, code, c.Name); err != nil {
				return fmt.Errorf("join lobby %s: %w", code, err)
			}
			logger.Info("Joined lobby", "code", code)
			return nil
		},
	})
}

// SoloCmd plays against the automatic dealer without any network
type SoloCmd struct {
	PlayFlags `embed:""`

	Lives int     `help:"Starting lives per side (overrides config)"`
	Seed  *uint64 `help:"Deterministic shoe seed"`
}

func (c *SoloCmd) Run(cli *CLI) error {
	cfg, logger, closeLog, err := c.setup(cli)
	if err != nil {
		return err
	}
	defer closeLog()

	if c.Lives != 0 {
		cfg.Peer.StartingLives = c.Lives
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	t := transport.NewLoopback(quartz.NewReal(), logger)
	defer t.Close()

	engine := replication.NewHost(t, newShoe(c.Seed), logger, replication.HostOptions{
		Mode:          blackjack.DealerAuto,
		StartingLives: cfg.Peer.StartingLives,
		Solo:          true,
	})

	return tui.Run(ctx, engine, logger, tui.Options{
		Title:   "twentyone solo",
		NoColor: c.NoColor,
		Setup: func(ctx context.Context) error {
			_, err := t.CreateLobby(ctx, c.Name)
			return err
		},
	})
}
