package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pdfsummarybot/pdfsummarybot/internal/config"
	"github.com/pdfsummarybot/pdfsummarybot/internal/entitlement"
	"github.com/pdfsummarybot/pdfsummarybot/internal/payment"
	"github.com/pdfsummarybot/pdfsummarybot/internal/service"
)

type handlerFunc func(ctx context.Context, msg *tgbotapi.Message)

type Bot struct {
	cfg        config.Config
	api        *tgbotapi.BotAPI
	log        *slog.Logger
	ledger     *entitlement.Ledger
	summaries  *service.SummaryService
	qr         *payment.QR
	httpClient *http.Client
	routes     map[command]handlerFunc
}

func NewBot(cfg config.Config, api *tgbotapi.BotAPI, log *slog.Logger, ledger *entitlement.Ledger, summaries *service.SummaryService, qr *payment.QR) *Bot {
	b := &Bot{
		cfg:        cfg,
		api:        api,
		log:        log,
		ledger:     ledger,
		summaries:  summaries,
		qr:         qr,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	b.routes = map[command]handlerFunc{
		cmdStart:      b.handleStart,
		cmdVerify:     b.handleVerify,
		cmdStats:      b.handleStats,
		cmdBuyPremium: b.handleBuyPremium,
		cmdHelp:       b.handleHelp,
		cmdContact:    b.handleContact,
		cmdDocument:   b.handleDocument,
	}
	return b
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	cmd := resolve(msg)
	if cmd == cmdUnknown {
		if strings.TrimSpace(msg.Text) != "" {
			b.sendText(msg.Chat.ID, "📄 Send me a PDF file, or pick an option from the menu.")
		}
		return
	}
	if cmd.adminOnly() && !b.isAdmin(msg) {
		return
	}
	b.routes[cmd](ctx, msg)
}

func (b *Bot) isAdmin(msg *tgbotapi.Message) bool {
	return msg.From != nil && msg.From.ID == b.cfg.AdminID
}

func (b *Bot) handleStart(_ context.Context, msg *tgbotapi.Message) {
	firstName := ""
	if msg.From != nil {
		firstName = msg.From.FirstName
	}
	text := fmt.Sprintf(
		"👋 Hello %s!\n\n"+
			"📄 Send me a PDF and I'll summarize it using ChatGPT.\n"+
			"🆓 First summary is free.\n"+
			"💰 To unlock unlimited summaries:\n\n"+
			"1. Pay ₹%d to UPI ID: %s\n"+
			"2. Or scan the QR code below\n"+
			"3. Send your payment screenshot and ID %d to %s",
		firstName, b.cfg.PremiumPriceINR, b.cfg.UPIID, b.userID(msg), b.adminContact(),
	)

	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ReplyMarkup = mainMenu()
	if _, err := b.api.Send(reply); err != nil {
		b.log.Error("send welcome", "err", err)
	}

	photo := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FilePath(b.qr.Path))
	photo.Caption = fmt.Sprintf("📸 Scan this UPI QR to pay ₹%d", b.cfg.PremiumPriceINR)
	if _, err := b.api.Send(photo); err != nil {
		b.log.Error("send payment qr", "err", err)
	}
}

func mainMenu() tgbotapi.ReplyKeyboardMarkup {
	menu := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuBuyPremium),
			tgbotapi.NewKeyboardButton(menuHelp),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuContact),
		),
	)
	menu.ResizeKeyboard = true
	return menu
}

func (b *Bot) handleVerify(_ context.Context, msg *tgbotapi.Message) {
	target, err := parseVerifyTarget(msg.CommandArguments())
	if err != nil {
		b.sendText(msg.Chat.ID, "❌ Invalid. Use: /verify <user_id>")
		return
	}

	b.ledger.GrantPremium(target, time.Now())
	b.log.Info("premium granted", "user_id", target)

	b.sendText(target, "✅ You're now a Premium User for 30 days! Send a PDF to continue.")
	b.sendText(msg.Chat.ID, "✅ User verified.")
}

func (b *Bot) handleStats(_ context.Context, msg *tgbotapi.Message) {
	entries := b.ledger.Snapshot(time.Now())

	paid := 0
	for _, e := range entries {
		if e.Paid {
			paid++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Bot Usage Stats:\n\n👤 Total Users: %d\n💰 Paid Users: %d\n📄 Usage:\n", len(entries), paid)
	for _, e := range entries {
		status := "❌"
		if e.Paid {
			status = "✅"
		}
		fmt.Fprintf(&sb, " - %d: %d file(s) | Paid: %s\n", e.UserID, e.FreeUses, status)
	}
	b.sendText(msg.Chat.ID, sb.String())
}

func (b *Bot) handleBuyPremium(_ context.Context, msg *tgbotapi.Message) {
	b.sendText(msg.Chat.ID, fmt.Sprintf(
		"💳 To unlock premium access, pay ₹%d to:\n\nUPI ID: %s\nThen send your payment screenshot and ID %d to %s",
		b.cfg.PremiumPriceINR, b.cfg.UPIID, b.userID(msg), b.adminContact(),
	))
}

func (b *Bot) handleHelp(_ context.Context, msg *tgbotapi.Message) {
	b.sendText(msg.Chat.ID, fmt.Sprintf(
		"📚 How to use this bot:\n\n1. Send any PDF file\n2. Get a ChatGPT-powered summary\n3. First summary is free\n4. For unlimited use, pay ₹%d and get verified",
		b.cfg.PremiumPriceINR,
	))
}

func (b *Bot) handleContact(_ context.Context, msg *tgbotapi.Message) {
	b.sendText(msg.Chat.ID, fmt.Sprintf("📩 Contact: %s (Telegram)", b.adminContact()))
}

func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	doc := msg.Document
	if !isPDF(doc) {
		b.sendText(msg.Chat.ID, "❌ That doesn't look like a PDF. Please send a PDF file.")
		return
	}

	userID := b.userID(msg)
	now := time.Now()

	// Fast advisory rejection so nothing external runs for an exhausted user;
	// the flow re-checks under the per-user lock.
	if !b.ledger.IsEntitled(userID, now) {
		b.sendPaymentPrompt(msg.Chat.ID, userID)
		return
	}

	data, err := b.downloadFile(ctx, doc.FileID)
	if err != nil {
		b.log.Error("download document", "err", err)
		b.sendText(msg.Chat.ID, "⚠️ Couldn't download your file, please try again.")
		return
	}

	inputPath, err := writeTempPDF(data)
	if err != nil {
		b.log.Error("write temp document", "err", err)
		b.sendText(msg.Chat.ID, "⚠️ Couldn't store your file, please try again.")
		return
	}
	defer func() {
		if err := os.Remove(inputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			b.log.Error("remove input artifact", "err", err, "path", inputPath)
		}
	}()

	b.sendText(msg.Chat.ID, "🧠 Summarizing...")

	err = b.summaries.Process(ctx, userID, inputPath, now, func(summaryPath string) error {
		summaryDoc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FilePath(summaryPath))
		summaryDoc.Caption = "✅ Summary PDF"
		if _, sendErr := b.api.Send(summaryDoc); sendErr != nil {
			return fmt.Errorf("send summary: %w", sendErr)
		}
		original := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FilePath(inputPath))
		original.Caption = "📄 Original File"
		if _, sendErr := b.api.Send(original); sendErr != nil {
			return fmt.Errorf("send original: %w", sendErr)
		}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, service.ErrPaymentRequired):
		b.sendPaymentPrompt(msg.Chat.ID, userID)
	case errors.Is(err, service.ErrNotEnoughText):
		b.sendText(msg.Chat.ID, "❌ Couldn't extract enough text.")
	default:
		b.log.Error("summary flow failed", "err", err, "user_id", userID)
		b.sendText(msg.Chat.ID, fmt.Sprintf("⚠️ Error: %v", err))
	}
}

func (b *Bot) sendPaymentPrompt(chatID, userID int64) {
	b.sendText(chatID, fmt.Sprintf(
		"🔒 You've used your 1 free summary.\nPay ₹%d to %s and send your payment screenshot with ID %d to %s to continue.",
		b.cfg.PremiumPriceINR, b.cfg.UPIID, userID, b.adminContact(),
	))
}

func isPDF(doc *tgbotapi.Document) bool {
	if doc == nil {
		return false
	}
	if strings.EqualFold(doc.MimeType, "application/pdf") {
		return true
	}
	return strings.EqualFold(filepath.Ext(doc.FileName), ".pdf")
}

func writeTempPDF(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "upload-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), nil
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("file path empty")
	}
	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", b.api.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("telegram file status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file body: %w", err)
	}
	return body, nil
}

func (b *Bot) userID(msg *tgbotapi.Message) int64 {
	if msg.From != nil {
		return msg.From.ID
	}
	return msg.Chat.ID
}

func (b *Bot) adminContact() string {
	if b.cfg.AdminContact != "" {
		return b.cfg.AdminContact
	}
	return "the admin"
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}
