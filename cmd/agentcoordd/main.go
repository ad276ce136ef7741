// cmd/agentcoordd/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/agentcoord/internal/db"
	"github.com/agentcoord/internal/instance"
	natslib "github.com/agentcoord/internal/nats"
	"github.com/agentcoord/internal/orchestrator"
	"github.com/agentcoord/internal/server"
	"github.com/agentcoord/internal/types"
)

func main() {
	configPath := flag.String("config", "configs/agentcoord.yaml", "Configuration file")
	httpAddr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	cfg, err := types.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}

	// One daemon per data directory.
	lock, err := instance.Acquire(cfg.DataDir, cfg.HTTPAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to claim data dir: %v\n", err)
		os.Exit(1)
	}
	defer lock.Release()

	printBanner(cfg)

	conn, err := db.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Printf("  Database open at %s\n", cfg.DatabasePath)

	coord, err := orchestrator.New(cfg, conn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build coordinator: %v\n", err)
		os.Exit(1)
	}
	defer coord.Close()

	// NATS: embedded server when configured, then client and bridge.
	natsURL := cfg.NATS.URL
	var embedded *natslib.EmbeddedServer
	if cfg.NATS.Embedded {
		if cfg.NATS.Port > 0 && !instance.PortAvailable(cfg.NATS.Port) {
			fmt.Fprintf(os.Stderr, "NATS port %d is already in use\n", cfg.NATS.Port)
			os.Exit(1)
		}
		embedded, err = natslib.NewEmbeddedServer(natslib.EmbeddedServerConfig{
			Port:      cfg.NATS.Port,
			JetStream: cfg.NATS.JetStream,
			DataDir:   filepath.Join(cfg.DataDir, "jetstream"),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to configure NATS server: %v\n", err)
			os.Exit(1)
		}
		if err := embedded.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start NATS server: %v\n", err)
			os.Exit(1)
		}
		defer embedded.Shutdown()
		natsURL = embedded.URL()
		fmt.Printf("  Embedded NATS listening at %s\n", natsURL)
	}

	var bridge *natslib.Bridge
	if natsURL != "" {
		client, err := natslib.NewClient(natsURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to NATS: %v\n", err)
			os.Exit(1)
		}
		defer client.Close()

		if cfg.NATS.JetStream {
			streams, err := natslib.NewStreamManager(client.Conn())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to init JetStream: %v\n", err)
				os.Exit(1)
			}
			if err := streams.SetupStreams(); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to set up streams: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("  JetStream streams ready")
		}

		bridge = natslib.NewBridge(client, coord.EventBus)
		coord.AttachBridge(bridge)
	}

	if err := coord.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to restore state: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("  State restored")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coord.Start(ctx)
	if bridge != nil {
		if err := bridge.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start NATS bridge: %v\n", err)
			os.Exit(1)
		}
		defer bridge.Stop()
	}

	srv := server.NewServer(coord)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(cfg.HTTPAddr)
	}()
	fmt.Printf("  HTTP API listening at %s\n", cfg.HTTPAddr)
	fmt.Println()
	fmt.Println("  Press Ctrl+C to shutdown")
	fmt.Println()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		}
	case <-shutdown:
		fmt.Println()
		fmt.Println("Shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
	}
}

func printBanner(cfg *types.Config) {
	fmt.Println()
	fmt.Println("  agentcoordd - multi-agent coordination daemon")
	fmt.Printf("  data dir: %s\n", cfg.DataDir)
	fmt.Println()
}
