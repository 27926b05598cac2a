package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pdfsummarybot/pdfsummarybot/internal/entitlement"
)

var testNow = time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Text(string) (string, error) { return f.text, f.err }

type fakeSummarizer struct {
	out     string
	err     error
	calls   int
	gotText string
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string) (string, error) {
	f.calls++
	f.gotText = text
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

// fakeRenderer writes a real file so artifact cleanup is observable.
type fakeRenderer struct {
	dir   string
	err   error
	paths []string
}

func (f *fakeRenderer) RenderSummary(string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(f.dir, "summary_"+uuid.NewString()+".pdf")
	if err := os.WriteFile(path, []byte("%PDF-fake"), 0o644); err != nil {
		return "", err
	}
	f.paths = append(f.paths, path)
	return path, nil
}

type env struct {
	ledger     *entitlement.Ledger
	extractor  *fakeExtractor
	summarizer *fakeSummarizer
	renderer   *fakeRenderer
	svc        *SummaryService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		ledger:     entitlement.NewLedger(),
		extractor:  &fakeExtractor{text: strings.Repeat("lorem ipsum ", 50)},
		summarizer: &fakeSummarizer{out: "- a summary"},
		renderer:   &fakeRenderer{dir: t.TempDir()},
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	e.svc = NewSummaryService(log, e.ledger, e.extractor, e.summarizer, e.renderer)
	return e
}

func freeUses(t *testing.T, l *entitlement.Ledger, userID int64) int {
	t.Helper()
	for _, entry := range l.Snapshot(testNow) {
		if entry.UserID == userID {
			return entry.FreeUses
		}
	}
	return 0
}

func discardDelivery(string) error { return nil }

func TestProcess_FreeUser_ChargedOnceThenRejected(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	delivered := ""
	err := e.svc.Process(context.Background(), 1, "input.pdf", testNow, func(p string) error {
		delivered = p
		if _, statErr := os.Stat(p); statErr != nil {
			t.Errorf("summary artifact missing at delivery time: %v", statErr)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("first flow: %v", err)
	}
	if delivered == "" {
		t.Fatal("deliver was not invoked")
	}
	if got := freeUses(t, e.ledger, 1); got != 1 {
		t.Errorf("free uses = %d, want 1", got)
	}
	if _, err := os.Stat(delivered); !errors.Is(err, os.ErrNotExist) {
		t.Error("summary artifact not cleaned up after delivery")
	}

	// Second submission at the same clock is rejected before any work.
	before := e.summarizer.calls
	err = e.svc.Process(context.Background(), 1, "input.pdf", testNow, discardDelivery)
	if !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("second flow err = %v, want ErrPaymentRequired", err)
	}
	if e.summarizer.calls != before {
		t.Error("rejected request must not reach the summarizer")
	}
	if got := freeUses(t, e.ledger, 1); got != 1 {
		t.Errorf("free uses after rejection = %d, want 1", got)
	}
}

func TestProcess_ShortText_NoCharge(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.extractor.text = "only forty characters of extracted text."

	err := e.svc.Process(context.Background(), 2, "input.pdf", testNow, discardDelivery)
	if !errors.Is(err, ErrNotEnoughText) {
		t.Fatalf("err = %v, want ErrNotEnoughText", err)
	}
	if e.summarizer.calls != 0 {
		t.Error("summarizer must not run on insufficient text")
	}
	if got := freeUses(t, e.ledger, 2); got != 0 {
		t.Errorf("free uses = %d, want 0", got)
	}
}

func TestProcess_WhitespaceDoesNotCount(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	// 99 letters padded with plenty of whitespace: still below the floor.
	e.extractor.text = strings.Repeat("a ", 99) + strings.Repeat(" \n\t", 200)

	err := e.svc.Process(context.Background(), 2, "input.pdf", testNow, discardDelivery)
	if !errors.Is(err, ErrNotEnoughText) {
		t.Fatalf("err = %v, want ErrNotEnoughText", err)
	}
}

func TestProcess_TruncatesSummaryInput(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.extractor.text = strings.Repeat("x", 10000)

	if err := e.svc.Process(context.Background(), 3, "input.pdf", testNow, discardDelivery); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := len(e.summarizer.gotText); got != 6000 {
		t.Errorf("summarizer input length = %d, want 6000", got)
	}
}

func TestProcess_SummarizerFailure_NoCharge(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.summarizer.err = errors.New("quota exceeded")

	err := e.svc.Process(context.Background(), 4, "input.pdf", testNow, discardDelivery)
	if err == nil || errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("err = %v, want wrapped summarizer error", err)
	}
	if got := freeUses(t, e.ledger, 4); got != 0 {
		t.Errorf("free uses = %d, want 0 after failure", got)
	}

	// The failure is local to the request: the user can retry and succeed.
	e.summarizer.err = nil
	if err := e.svc.Process(context.Background(), 4, "input.pdf", testNow, discardDelivery); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := freeUses(t, e.ledger, 4); got != 1 {
		t.Errorf("free uses after retry = %d, want 1", got)
	}
}

func TestProcess_DeliveryFailure_NoChargeAndCleanup(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	err := e.svc.Process(context.Background(), 5, "input.pdf", testNow, func(string) error {
		return errors.New("send failed")
	})
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if got := freeUses(t, e.ledger, 5); got != 0 {
		t.Errorf("free uses = %d, want 0 after failed delivery", got)
	}
	if len(e.renderer.paths) != 1 {
		t.Fatalf("renderer paths = %d, want 1", len(e.renderer.paths))
	}
	if _, statErr := os.Stat(e.renderer.paths[0]); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("summary artifact not cleaned up after failed delivery")
	}
}

func TestProcess_RendererFailure_NoCharge(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.renderer.err = errors.New("disk full")

	if err := e.svc.Process(context.Background(), 6, "input.pdf", testNow, discardDelivery); err == nil {
		t.Fatal("expected renderer error")
	}
	if got := freeUses(t, e.ledger, 6); got != 0 {
		t.Errorf("free uses = %d, want 0", got)
	}
}

func TestProcess_PremiumUser_NeverCharged(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.ledger.GrantPremium(7, testNow)

	for i := 0; i < 3; i++ {
		if err := e.svc.Process(context.Background(), 7, "input.pdf", testNow.Add(time.Hour), discardDelivery); err != nil {
			t.Fatalf("premium flow %d: %v", i, err)
		}
	}
	if got := freeUses(t, e.ledger, 7); got != 0 {
		t.Errorf("free uses = %d, want 0 for premium user", got)
	}
}

func TestProcess_VerifiedAfterExhaustion_Admitted(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	if err := e.svc.Process(context.Background(), 555, "input.pdf", testNow, discardDelivery); err != nil {
		t.Fatalf("first flow: %v", err)
	}
	if err := e.svc.Process(context.Background(), 555, "input.pdf", testNow, discardDelivery); !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("second flow err = %v, want ErrPaymentRequired", err)
	}

	e.ledger.GrantPremium(555, testNow)
	if err := e.svc.Process(context.Background(), 555, "input.pdf", testNow.Add(time.Minute), discardDelivery); err != nil {
		t.Fatalf("post-verification flow: %v", err)
	}
	if got := freeUses(t, e.ledger, 555); got != 1 {
		t.Errorf("free uses = %d, want 1 (premium runs are not counted)", got)
	}
}

func TestProcess_ConcurrentUploads_SingleFreeUse(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	const workers = 4
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- e.svc.Process(context.Background(), 8, "input.pdf", testNow, discardDelivery)
		}()
	}
	wg.Wait()
	close(results)

	admitted, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, ErrPaymentRequired):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if admitted != 1 || rejected != workers-1 {
		t.Errorf("admitted = %d, rejected = %d; want exactly one admission", admitted, rejected)
	}
	if got := freeUses(t, e.ledger, 8); got != 1 {
		t.Errorf("free uses = %d, want 1", got)
	}
}
