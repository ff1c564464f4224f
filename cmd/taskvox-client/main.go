package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gordonklaus/portaudio"

	"github.com/taskvox/taskvox-core/internal/client"
	"github.com/taskvox/taskvox-core/internal/config"
	"github.com/taskvox/taskvox-core/internal/player"
	"github.com/taskvox/taskvox-core/internal/recorder"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		serverURL   string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&serverURL, "server", "", "Relay websocket URL (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			logger.Error("failed to load config", slog.String("error", err.Error()))
			os.Exit(1)
		}
		cfg = loaded
	}
	if serverURL != "" {
		cfg.Client.ServerURL = serverURL
	}

	if err := portaudio.Initialize(); err != nil {
		logger.Error("failed to initialize audio", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer portaudio.Terminate()

	sink := player.NewPortAudioSink(logger)
	source := recorder.NewPortAudioSource(logger)
	c := client.New(cfg.Client, sink, source, os.Stdout, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx); err != nil {
		logger.Error("failed to connect", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer c.Close()

	fmt.Printf("taskvox %s — connected to %s\n", version, cfg.Client.ServerURL)
	fmt.Println("press Enter to start and stop talking, Ctrl+C to quit")

	// Turn control: every Enter press toggles the current turn.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			c.ToggleTurn()
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("session ended", slog.String("error", err.Error()))
		}
	}
}
