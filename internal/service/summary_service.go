package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
	"unicode"

	"github.com/pdfsummarybot/pdfsummarybot/internal/entitlement"
)

var (
	// ErrPaymentRequired means the user spent the free summary and holds no
	// active premium grant.
	ErrPaymentRequired = errors.New("free summary already used, payment required")
	// ErrNotEnoughText means extraction produced too little text to summarize.
	ErrNotEnoughText = errors.New("not enough text extracted")
)

const (
	// minExtractedRunes is the floor below which extraction counts as failed.
	minExtractedRunes = 100
	// maxSummaryInput caps how much extracted text reaches the model.
	maxSummaryInput = 6000
)

// TextExtractor yields the plain text of a PDF on local storage.
type TextExtractor interface {
	Text(path string) (string, error)
}

// Summarizer produces a summary for extracted document text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Renderer turns summary text into a PDF artifact and returns its path.
type Renderer interface {
	RenderSummary(text string) (string, error)
}

// SummaryService runs the admission flow for uploaded documents: entitlement
// check, extraction, summarization, rendering, delivery, then consumption of
// the free use when the request ran on the free tier.
type SummaryService struct {
	log        *slog.Logger
	ledger     *entitlement.Ledger
	extractor  TextExtractor
	summarizer Summarizer
	renderer   Renderer
	locks      *userLocks
}

func NewSummaryService(log *slog.Logger, ledger *entitlement.Ledger, extractor TextExtractor, summarizer Summarizer, renderer Renderer) *SummaryService {
	return &SummaryService{
		log:        log,
		ledger:     ledger,
		extractor:  extractor,
		summarizer: summarizer,
		renderer:   renderer,
		locks:      newUserLocks(),
	}
}

// Process executes one admission flow for the document at inputPath. The
// deliver callback sends the rendered summary to the requester; the summary
// artifact is removed on every exit path once deliver returns, and the caller
// keeps ownership of the input artifact. A free use is recorded only when
// every step, delivery included, succeeded for a non-premium user.
func (s *SummaryService) Process(ctx context.Context, userID int64, inputPath string, now time.Time, deliver func(summaryPath string) error) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	premium := s.ledger.HasPremium(userID, now)
	if !s.ledger.IsEntitled(userID, now) {
		return ErrPaymentRequired
	}

	text, err := s.extractor.Text(inputPath)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}
	if countNonWhitespace(text) < minExtractedRunes {
		return ErrNotEnoughText
	}
	text = truncateRunes(text, maxSummaryInput)

	summary, err := s.summarizer.Summarize(ctx, text)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	summaryPath, err := s.renderer.RenderSummary(summary)
	if err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	defer func() {
		if err := os.Remove(summaryPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Error("remove summary artifact", "err", err, "path", summaryPath)
		}
	}()

	if err := deliver(summaryPath); err != nil {
		return fmt.Errorf("deliver summary: %w", err)
	}

	if !premium {
		s.ledger.RecordFreeUse(userID)
	}

	s.log.Info("summary delivered", "user_id", userID, "premium", premium)
	return nil
}

func countNonWhitespace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
