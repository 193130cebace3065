package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rolegate/rolegate/internal/config"
	"github.com/rolegate/rolegate/internal/infrastructure/discord"
	"github.com/rolegate/rolegate/internal/infrastructure/dynamo"
	sesinfra "github.com/rolegate/rolegate/internal/infrastructure/ses"
	ssminfra "github.com/rolegate/rolegate/internal/infrastructure/ssm"
	transporthttp "github.com/rolegate/rolegate/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	ctx := context.Background()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	// Platform secrets come from Parameter Store; without them the webhook
	// cannot authenticate anything, so failure here is fatal.
	secrets, err := ssminfra.NewStore(cfg)
	if err != nil {
		log.Fatalf("secrets store: %v", err)
	}
	botToken, err := secrets.Get(ctx, cfg.BotTokenParam)
	if err != nil {
		log.Fatalf("load bot token: %v", err)
	}
	pubKeyHex, err := secrets.Get(ctx, cfg.WebhookPubKeyParam)
	if err != nil {
		log.Fatalf("load webhook public key: %v", err)
	}
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		log.Fatalf("webhook public key is not a valid ed25519 key")
	}

	mailer, err := sesinfra.NewMailer(cfg)
	if err != nil {
		log.Fatalf("mailer: %v", err)
	}

	deps := &transporthttp.Deps{
		Sessions:         dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions),
		Records:          dynamo.NewRecordRepo(dynamoClient, cfg.DynamoTables.Records),
		Setups:           dynamo.NewSetupRepo(dynamoClient, cfg.DynamoTables.PendingSetups),
		Configs:          dynamo.NewGuildConfigRepo(dynamoClient, cfg.DynamoTables.GuildConfigs),
		Mailer:           mailer,
		Platform:         discord.NewClient(cfg.DiscordAPIBaseURL, botToken),
		WebhookPublicKey: ed25519.PublicKey(pubKey),
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
