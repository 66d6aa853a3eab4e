package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/avolkov/quotabot/internal/anthropic"
	"github.com/avolkov/quotabot/internal/bot"
	"github.com/avolkov/quotabot/internal/envsetup"
	"github.com/avolkov/quotabot/internal/google"
	"github.com/avolkov/quotabot/internal/health"
	"github.com/avolkov/quotabot/internal/llm"
	"github.com/avolkov/quotabot/internal/logger"
	"github.com/avolkov/quotabot/internal/quota"
	"github.com/avolkov/quotabot/internal/store"
	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

func main() {
	if err := mainE(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func mainE() error {
	if envsetup.NeedsSetup() {
		completed, err := envsetup.Run()
		if err != nil {
			return fmt.Errorf("running setup wizard: %w", err)
		}
		if !completed {
			return errors.New("setup aborted")
		}
	}

	_ = godotenv.Load()

	fs := ff.NewFlagSet("quotabot")
	var (
		discordToken    = fs.StringLong("discord-token", "", "Discord bot token")
		guildID         = fs.StringLong("discord-guild-id", "", "Guild to register commands to (global when empty)")
		llmProvider     = fs.StringEnumLong("llm-provider", "LLM provider for completions", "anthropic", "google")
		llmModel        = fs.StringLong("llm-model", "", "LLM model name (provider default when empty)")
		anthropicAPIKey = fs.StringLong("anthropic-api-key", "", "Anthropic API key")
		googleAPIKey    = fs.StringLong("google-api-key", "", "Google API key")
		adminIDs        = fs.StringLong("admin-ids", "", "Comma-separated Discord user IDs with admin rights")
		dataDir         = fs.StringLong("data-dir", "./data", "Directory for persisted bot state")
		healthPort      = fs.Int64Long("health-port", 9090, "Port serving /health and /metrics")
	)

	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVars()); err != nil {
		fmt.Printf("%s\n", ffhelp.Flags(fs))
		return fmt.Errorf("parsing flags: %w", err)
	}

	if *discordToken == "" {
		return errors.New("discord-token is required")
	}

	admins, err := parseAdminIDs(*adminIDs)
	if err != nil {
		return fmt.Errorf("parsing admin-ids: %w", err)
	}

	log := logger.New()

	var llmClient llm.Client
	switch *llmProvider {
	case "anthropic":
		if *anthropicAPIKey == "" {
			return errors.New("anthropic-api-key is required when using anthropic provider")
		}
		llmClient = anthropic.NewClient(*anthropicAPIKey, anthropic.Model(*llmModel))
	case "google":
		if *googleAPIKey == "" {
			return errors.New("google-api-key is required when using google provider")
		}
		llmClient, err = google.NewClient(context.Background(), *googleAPIKey, google.Model(*llmModel))
		if err != nil {
			return fmt.Errorf("creating Google client: %w", err)
		}
	}

	st, err := store.New(*dataDir)
	if err != nil {
		return fmt.Errorf("opening data directory: %w", err)
	}

	quotaSvc := quota.NewService(log, st)

	dg, err := discordgo.New("Bot " + *discordToken)
	if err != nil {
		return fmt.Errorf("creating Discord session: %w", err)
	}

	ctx, cancel := context.WithCancelCause(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received signal, shutting down", "signal", sig)
		cancel(errors.New("signal received"))
	}()

	healthServer := health.New(int(*healthPort))
	go func() {
		log.InfoContext(ctx, "starting health server", "port", *healthPort)
		if err := healthServer.Start(); err != nil {
			log.ErrorContext(ctx, "health server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = healthServer.Shutdown(shutdownCtx)
	}()

	b := bot.New(log, bot.NewSession(dg), llmClient, quotaSvc, bot.Config{
		AdminIDs: admins,
		GuildID:  *guildID,
	})

	return b.Run(ctx)
}

func parseAdminIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
