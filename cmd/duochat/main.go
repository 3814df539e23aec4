package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"duochat/internal/server"
	"duochat/internal/voicestore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := server.LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store, err := voicestore.Open(cfg.VoiceDBPath, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing voice store")
		_ = store.Close()
	}()

	registry := server.NewRegistry(cfg.SharedSecret, cfg.MaxParticipants)
	hub := server.NewHub(registry, log)
	go hub.Run()

	gateway := server.NewGateway(hub, store, cfg, log)
	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(gateway))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")
		_ = server.ShutdownServer(httpServer, 10*time.Second, log)
		_ = hub.Shutdown(5 * time.Second)
	}()

	if err := server.StartServer(httpServer, log); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
