// voxprep relays live voice interviews between students and realtime
// AI providers, then scores finished transcripts in the background.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/voxprep/go-voxprep/pkg/app"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := parseFlags()

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	if err := a.Init(); err != nil {
		log.Fatalf("initialization failed: %v", err)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}

// parseFlags merges command line flags over environment configuration.
func parseFlags() app.Config {
	cfg := app.FromEnv()

	port := flag.String("port", "", "HTTP listen port (overrides PORT)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	if *port != "" {
		cfg.Port = *port
	}
	cfg.Debug = *debug

	return cfg
}
