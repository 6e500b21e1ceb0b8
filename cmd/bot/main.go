package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/skoret/market-bot/internal/config"
	"github.com/skoret/market-bot/internal/logger"
	"github.com/skoret/market-bot/internal/orders"
	"github.com/skoret/market-bot/internal/pricing"
	"github.com/skoret/market-bot/internal/rates"
	"github.com/skoret/market-bot/internal/storage"
	"github.com/skoret/market-bot/internal/sweep"
	"github.com/skoret/market-bot/internal/telegram"
	"github.com/skoret/market-bot/internal/topups"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("failed to load config: %s", err.Error())
	}
	if cfg.BotToken == "" {
		log.Fatal("TELEGRAM_APITOKEN environment variable is required")
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		log.Fatalf("failed to initialize logger: %s", err.Error())
	}
	defer logger.Log.Sync()

	repo, err := storage.NewRepository(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to create repository: %s", err.Error())
	}
	defer repo.Close()

	ctx := context.Background()
	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("failed to run migrations: %s", err.Error())
	}

	pricingService := pricing.NewService(repo)
	orderService := orders.NewService(repo, pricingService)
	topupService := topups.NewService(repo)
	ratesClient := rates.NewClient(cfg.PriceAPIBase, cfg.FXAPIBase)

	tg, err := telegram.NewBot(cfg.BotToken, cfg.AdminUsernames, repo, orderService, topupService, pricingService, ratesClient)
	if err != nil {
		log.Fatalf("failed to create telegram bot: %s", err.Error())
	}

	sweepService := sweep.NewService(repo, tg)
	go sweepService.Start(ctx)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := tg.Run(ctx); err != nil {
			log.Fatalf("failed to run telegram bot: %s", err.Error())
		}
	}()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		log.Printf("graceful shutdown with signal %v", sig)
		sweepService.Stop()
		cancel()
		<-done
	}()
	<-done
}
