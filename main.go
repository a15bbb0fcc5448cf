// chatbot-tui - A terminal client for the MergeStack chat service.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mergestack/chatbot-tui/internal/audio"
	"github.com/mergestack/chatbot-tui/internal/chats"
	"github.com/mergestack/chatbot-tui/internal/config"
	"github.com/mergestack/chatbot-tui/internal/crypto"
	"github.com/mergestack/chatbot-tui/internal/envelope"
	"github.com/mergestack/chatbot-tui/internal/logging"
	"github.com/mergestack/chatbot-tui/internal/orchestrator"
	"github.com/mergestack/chatbot-tui/internal/timeline"
	"github.com/mergestack/chatbot-tui/internal/transport"
	"github.com/mergestack/chatbot-tui/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("chatbot-tui %s (%s)\n", Version, GitCommit)
		return
	}

	if err := run(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "chatbot-tui: %v\n", err)
		os.Exit(1)
	}
}

func run(debug bool) error {
	// A .env next to the binary mirrors the service's env contract.
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	configDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	log := logging.New(configDir, debug)
	defer log.Sync()
	log.Info("starting", zap.String("version", Version), zap.String("server", cfg.Server.BaseURL))

	gateway, err := buildGateway(cfg)
	if err != nil {
		return err
	}
	decoder := envelope.NewDecoder(gateway)

	client := transport.NewClient(cfg.Server.BaseURL, gateway, decoder, cfg.Routes(), log).
		WithTimeout(time.Duration(cfg.Server.TimeoutSecs) * time.Second)
	if cfg.Server.RateLimit > 0 {
		client = client.WithRateLimit(cfg.Server.RateLimit, 1)
	}

	// Routing table edits take effect without a restart.
	if path, err := config.ConfigPath(); err == nil {
		if watcher, err := config.NewRouteWatcher(path, client.SetRoutes, log); err == nil {
			if err := watcher.Watch(); err == nil {
				defer watcher.Close()
			}
		}
	}

	store := chats.NewStore(client, log)
	tl := timeline.New()

	captureCmd := cfg.Audio.CaptureCommand
	if len(captureCmd) == 0 {
		captureCmd = audio.DefaultCaptureCommand()
	}
	engine := audio.NewEngine(&audio.CommandSource{Command: captureCmd, Format: audio.DefaultFormat()}, log)

	orc := orchestrator.New(client, engine, store, tl, cfg.UI.LastModel, log)

	program := tea.NewProgram(
		chat.New(orc, store, tl, cfg, log),
		tea.WithAltScreen(),
	)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui exited: %w", err)
	}
	return nil
}

func buildGateway(cfg *config.Config) (*crypto.Gateway, error) {
	if cfg.Encryption.KeyHex != "" {
		return crypto.NewGateway(cfg.Encryption.KeyHex, cfg.Encryption.IVHex)
	}
	return crypto.NewGatewayFromPassphrase(cfg.Encryption.Passphrase, cfg.Encryption.SaltHex, cfg.Encryption.IVHex)
}
