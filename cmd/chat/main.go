package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"mangwale-chat/config"
	"mangwale-chat/internal/model"
	"mangwale-chat/internal/realtime"
	"mangwale-chat/internal/storage/bbolt"
	"mangwale-chat/internal/storage/memory"
	"mangwale-chat/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	// Alt screen owns stdout, so logs go to a file.
	logFile, err := tea.LogToFile(config.GetEnv("MANGWALE_LOG_FILE", "mangwale-chat.log"), "chat")
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	store, closeStore, err := openState(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ open state %s: %v\n", cfg.StatePath, err)
		os.Exit(1)
	}
	defer closeStore()

	logger := log.Default()

	var transport realtime.Transport
	switch cfg.Transport {
	case config.TransportPoll:
		transport = realtime.NewPollingTransport(realtime.PollOptions{
			BaseURL:      cfg.APIBaseURL,
			PollInterval: cfg.PollInterval,
			Logger:       logger,
		})
	default:
		transport = realtime.NewSocketTransport(realtime.SocketOptions{
			URL:    cfg.SocketURL,
			Logger: logger,
		})
	}

	var auth *realtime.AuthContext
	if cfg.AuthToken != "" {
		auth = &realtime.AuthContext{
			UserID: cfg.UserID,
			Phone:  cfg.Phone,
			Name:   cfg.Name,
			Token:  cfg.AuthToken,
		}
	}

	client, err := realtime.New(realtime.Options{
		Transport: transport,
		Store:     store,
		Platform:  model.Platform(cfg.Platform),
		Auth:      auth,
		Logger:    logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := tea.NewProgram(tui.NewModel(client), tea.WithAltScreen(), tea.WithContext(ctx))
	// p.Send blocks until the loop reads it; Update itself raises events.
	client.OnEvent(func(evt realtime.Event) {
		go p.Send(tui.EventMsg(evt))
	})

	log.Printf("🚀 Starting chat client (transport=%s)", cfg.Transport)
	if err := client.Start(ctx); err != nil {
		log.Printf("⚠️ start: %v", err)
	}

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Printf("❌ tui: %v", err)
	}

	if err := client.Close(); err != nil {
		log.Printf("⚠️ close: %v", err)
	}
	log.Println("👋 Chat client stopped")
}

// openState opens the device-local store. ":memory:" keeps nothing across runs.
func openState(path string) (realtime.LocalStore, func() error, error) {
	if path == config.StateInMemory {
		return memory.New(), func() error { return nil }, nil
	}
	store, err := bbolt.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}
