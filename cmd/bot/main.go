package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pdfsummarybot/pdfsummarybot/internal/config"
	"github.com/pdfsummarybot/pdfsummarybot/internal/entitlement"
	"github.com/pdfsummarybot/pdfsummarybot/internal/health"
	"github.com/pdfsummarybot/pdfsummarybot/internal/openai"
	"github.com/pdfsummarybot/pdfsummarybot/internal/payment"
	"github.com/pdfsummarybot/pdfsummarybot/internal/pdf"
	"github.com/pdfsummarybot/pdfsummarybot/internal/service"
	"github.com/pdfsummarybot/pdfsummarybot/internal/telegram"
	"github.com/pdfsummarybot/pdfsummarybot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	qr, err := payment.GenerateQR(cfg.UPIID, cfg.PayeeName, cfg.PremiumPriceINR, os.TempDir())
	if err != nil {
		log.Fatalf("payment qr: %v", err)
	}

	ledger := entitlement.NewLedger()
	summarizer := openai.NewClient(cfg, logr)
	extractor := pdf.NewExtractor(logr)
	renderer := pdf.NewRenderer(os.TempDir())
	summaries := service.NewSummaryService(logr, ledger, extractor, summarizer, renderer)

	bot := telegram.NewBot(cfg, botAPI, logr, ledger, summaries, qr)

	healthServer := health.NewServer(cfg.HealthListenAddr, logr)
	go func() {
		if err := healthServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("health server stopped", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
