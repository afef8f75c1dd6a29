package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	gochatrelay "github.com/ChatRelay/go-chat-relay"
	relayconfig "github.com/ChatRelay/go-chat-relay/config"
	"github.com/ChatRelay/go-chat-relay/env"
	"github.com/ChatRelay/go-chat-relay/models"
)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// Run GoChatRelay in standalone mode
func main() {
	if err := godotenv.Load(); err != nil {
		if os.Getenv(env.EnvGoEnvironment) != "production" {
			slog.Warn("no .env file found", "error", err)
		}
	}

	port := getEnv(env.EnvPort, "8080")

	fileConfig := loadConfigFromFile()
	applyConfigDefaults(&fileConfig)

	var options []relayconfig.ConfigOption
	if fileConfig.AppName != "" {
		options = append(options, relayconfig.WithAppName(fileConfig.AppName))
	}
	if fileConfig.BaseURL != "" {
		options = append(options, relayconfig.WithBaseURL(fileConfig.BaseURL))
	}
	if fileConfig.BasePath != "" {
		options = append(options, relayconfig.WithBasePath(fileConfig.BasePath))
	}
	if fileConfig.Logger.Level != "" {
		options = append(options, relayconfig.WithLogLevel(fileConfig.Logger.Level))
	}
	if fileConfig.Database.Provider != "" || fileConfig.Database.URL != "" {
		options = append(options, relayconfig.WithDatabase(fileConfig.Database))
	}
	if fileConfig.Presence.HeartbeatInterval > 0 {
		options = append(options, relayconfig.WithPresence(fileConfig.Presence))
	}
	if fileConfig.RateLimit.Provider != "" {
		options = append(options, relayconfig.WithRateLimit(fileConfig.RateLimit))
	}
	if fileConfig.EventBus.Provider != "" {
		options = append(options, relayconfig.WithEventBus(fileConfig.EventBus))
	}
	config := relayconfig.NewConfig(options...)

	// Standalone mode has no surrounding auth system; the bearer token is
	// taken as the user id. Embed the library and supply a real verifier
	// for anything beyond local development.
	relay, err := gochatrelay.New(config,
		gochatrelay.WithIdentityVerifier(models.IdentityVerifierFunc(
			func(ctx context.Context, token string) (models.Identity, error) {
				return models.Identity{UserID: token}, nil
			},
		)),
	)
	if err != nil {
		slog.Error("failed to initialise relay", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := relay.RunMigrations(ctx); err != nil {
		cancel()
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	cancel()

	server := &http.Server{
		Addr:    ":" + port,
		Handler: relay.Handler(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("starting GoChatRelay standalone server", "port", port, "base_path", config.BasePath)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if err := relay.Close(); err != nil {
			slog.Error("relay close error", "error", err)
		}
	}
}

// loadConfigFromFile loads the TOML config when one exists; otherwise an
// empty config falls through to env vars and defaults.
func loadConfigFromFile() models.Config {
	configPath := getEnv(env.EnvConfigPath, "config.toml")
	var config models.Config

	if _, err := os.Stat(configPath); err != nil {
		return config
	}
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		slog.Warn("failed to parse TOML config file, using environment variables and defaults",
			"path", configPath, "error", err)
	}
	return config
}

func applyConfigDefaults(config *models.Config) {
	if baseURL := os.Getenv(env.EnvBaseURL); baseURL != "" {
		config.BaseURL = baseURL
	}
}
