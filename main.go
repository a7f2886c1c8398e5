package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"mangwale-chat/config"
	"mangwale-chat/database"
	"mangwale-chat/internal/handler"
	"mangwale-chat/internal/helper"
	"mangwale-chat/internal/model"
	"mangwale-chat/internal/service"
	"mangwale-chat/internal/ws"
)

func main() {
	cfg, err := config.LoadRelay()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.JWTSecret == "" {
		log.Println("JWT_SECRET is not set, every chat session stays a guest")
	}
	service.InitAuthConfig(cfg.JWTSecret, 24*time.Hour)

	// --devtoken <userId> <name> [phone]: cetak token untuk login lokal
	if len(os.Args) > 1 && os.Args[1] == "--devtoken" {
		printDevToken(os.Args[2:])
		return
	}

	database.InitAppDB(cfg.AppDatabaseURL)

	var store model.HistoryStore = model.NewMemoryHistoryStore()
	if database.AppDB != nil {
		if len(os.Args) > 1 && os.Args[1] == "--createschema" {
			helper.InitCustomSchema(database.AppDB, database.AppDriver)
		}
		store = model.NewSQLHistoryStore(database.AppDB, database.AppDriver)
	}

	// Inisialisasi WebSocket Hub
	hub := ws.NewHub()
	go hub.Run()

	var responder service.Responder = service.RuleResponder{}
	if cfg.GeminiAPIKey != "" {
		gemini, err := service.NewGeminiResponder(context.Background(), service.GeminiOptions{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		})
		if err != nil {
			log.Printf("⚠️ Gemini disabled: %v", err)
		} else {
			responder = gemini
			log.Printf("🤖 Gemini replies enabled (%s)", cfg.GeminiModel)
		}
	}

	chat := service.NewChatService(store, hub, service.ChatOptions{
		HistoryLimit: cfg.HistoryLimit,
		ReplyDelay:   cfg.ReplyDelay,
		Responder:    responder,
	})

	e := handler.NewServer(handler.ServerOptions{
		AllowOrigins:       cfg.CORSAllowOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		RateLimitWindow:    time.Duration(cfg.RateLimitWindow) * time.Minute,
	}, hub, chat)

	log.Printf("feature flags -> auth: %v, sql_history: %v, history_limit: %d, reply_delay: %s",
		cfg.JWTSecret != "", database.AppDB != nil, cfg.HistoryLimit, cfg.ReplyDelay)
	log.Printf("Relay starting on port %s", cfg.Port)

	// bind ke semua interface, bukan hanya 127.0.0.1
	log.Fatal(e.Start(":" + cfg.Port))
}

func printDevToken(args []string) {
	if len(args) < 2 {
		log.Fatal("usage: --devtoken <userId> <name> [phone]")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		log.Fatalf("invalid user id %q: %v", args[0], err)
	}
	phone := ""
	if len(args) > 2 {
		phone = args[2]
	}

	token, err := service.GenerateAccessToken(userID, args[1], phone)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Println(token)
}
