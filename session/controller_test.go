package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"leadqualdev/logger"
)

// fakeBackend is a deterministic stand-in for the model service.
type fakeBackend struct {
	opening     string
	reply       string
	replyErr    error
	replyUsage  Usage
	classify    *IntentResult
	classifyErr error
	classUsage  Usage

	replyCalls    int
	classifyCalls int
}

func (f *fakeBackend) Reply(_ context.Context, history []Message) (string, Usage, error) {
	f.replyCalls++
	if f.replyErr != nil {
		return "", Usage{}, f.replyErr
	}
	if len(history) == 0 {
		return f.opening, Usage{}, nil
	}
	return f.reply, f.replyUsage, nil
}

func (f *fakeBackend) Classify(_ context.Context, _ []Message) (*IntentResult, Usage, error) {
	f.classifyCalls++
	if f.classifyErr != nil {
		return nil, Usage{}, f.classifyErr
	}
	return f.classify, f.classUsage, nil
}

func defaultFake() *fakeBackend {
	return &fakeBackend{
		opening: "Hi! Thanks for reaching out about our boxing fitness gym.",
		reply:   "Great! Tell me more about your goals.",
		classify: &IntentResult{
			Category:   IntentWeightLoss,
			Confidence: 0.9,
			Reasoning:  "prospect talked about losing weight",
		},
	}
}

func newTestController(t *testing.T, backend Backend, maxExchanges int) *Controller {
	t.Helper()
	return NewController(NewControllerProps{
		Backend:  backend,
		Detector: RuleDetector{MaxExchanges: maxExchanges},
		Logger:   logger.Connect(logger.LoggerConnectProps{Production: false}),
	})
}

func TestStartAppendsOpeningMessage(t *testing.T) {
	ctrl := newTestController(t, defaultFake(), 10)

	sess, err := ctrl.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if sess.Status != StatusActive {
		t.Errorf("Expected status active, got %s", sess.Status)
	}
	if len(sess.Messages) != 1 || sess.Messages[0].Role != RoleBot {
		t.Fatalf("Expected one bot message, got %+v", sess.Messages)
	}
	if sess.ExchangeCount != 0 {
		t.Errorf("Expected exchange_count 0, got %d", sess.ExchangeCount)
	}

	if _, err := ctrl.Start(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState on second Start, got %v", err)
	}
}

func TestSubmitRequiresStartedSession(t *testing.T) {
	ctrl := newTestController(t, defaultFake(), 10)

	if _, err := ctrl.Submit(context.Background(), "hello"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState before Start, got %v", err)
	}
}

func TestExchangeCountMatchesSubmits(t *testing.T) {
	ctrl := newTestController(t, defaultFake(), 10)
	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	texts := []string{
		"I want to lose weight",
		"I exercise twice a week",
		"how long is each class?",
	}
	for i, text := range texts {
		res, err := ctrl.Submit(context.Background(), text)
		if err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
		if res.ExchangeCount != i+1 {
			t.Errorf("Expected exchange_count %d, got %d", i+1, res.ExchangeCount)
		}
		if res.Status != StatusActive {
			t.Errorf("Expected status active after %q, got %s", text, res.Status)
		}
	}

	snap, err := ctrl.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	prospectMessages := 0
	for _, msg := range snap.Messages {
		if msg.Role == RoleProspect {
			prospectMessages++
		}
	}
	if prospectMessages != snap.ExchangeCount {
		t.Errorf("exchange_count %d does not match %d prospect messages", snap.ExchangeCount, prospectMessages)
	}
}

func TestLimitTakesPrecedenceOverAgreement(t *testing.T) {
	ctrl := newTestController(t, defaultFake(), 2)
	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	res, err := ctrl.Submit(context.Background(), "I want to lose weight")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Status != StatusActive || res.ExchangeCount != 1 {
		t.Fatalf("Expected active/1, got %s/%d", res.Status, res.ExchangeCount)
	}

	// Agreement language on the limit-hitting exchange must still yield
	// limit_reached.
	res, err = ctrl.Submit(context.Background(), "sure, let's book")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Status != StatusLimitReached {
		t.Errorf("Expected limit_reached, got %s", res.Status)
	}
	if res.ExchangeCount != 2 {
		t.Errorf("Expected exchange_count 2, got %d", res.ExchangeCount)
	}
	if res.Intent == nil {
		t.Error("Expected intent result on termination")
	}

	if _, err := ctrl.Submit(context.Background(), "hello?"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState after termination, got %v", err)
	}
}

func TestDeclineTerminatesEarly(t *testing.T) {
	ctrl := newTestController(t, defaultFake(), 10)
	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for _, text := range []string{"I want to get in shape", "how intense are the classes?"} {
		if _, err := ctrl.Submit(context.Background(), text); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	res, err := ctrl.Submit(context.Background(), "not interested, too expensive")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Status != StatusDeclined {
		t.Errorf("Expected declined, got %s", res.Status)
	}
	if res.ExchangeCount != 3 {
		t.Errorf("Expected exchange_count 3, got %d", res.ExchangeCount)
	}

	if _, err := ctrl.Submit(context.Background(), "wait, actually"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState after decline, got %v", err)
	}
}

func TestAgreementTerminates(t *testing.T) {
	ctrl := newTestController(t, defaultFake(), 10)
	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	res, err := ctrl.Submit(context.Background(), "sounds good, sign me up")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Status != StatusAgreed {
		t.Errorf("Expected agreed, got %s", res.Status)
	}
}

func TestIntentPresentExactlyWhenTerminal(t *testing.T) {
	ctrl := newTestController(t, defaultFake(), 10)
	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	res, err := ctrl.Submit(context.Background(), "I want to lose weight")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Intent != nil {
		t.Error("Expected no intent result while active")
	}

	res, err = ctrl.Submit(context.Background(), "no thanks, not for me")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Intent == nil {
		t.Fatal("Expected intent result once terminal")
	}
	if res.Intent.Category != IntentWeightLoss {
		t.Errorf("Expected weight_loss, got %s", res.Intent.Category)
	}
}

func TestClassificationFailureFallsBackToUnknown(t *testing.T) {
	backend := defaultFake()
	backend.classifyErr = fmt.Errorf("rate limited")

	ctrl := newTestController(t, backend, 10)
	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	res, err := ctrl.Submit(context.Background(), "not interested")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Status != StatusDeclined {
		t.Fatalf("Expected declined, got %s", res.Status)
	}
	if res.Intent == nil {
		t.Fatal("Expected fallback intent result")
	}
	if res.Intent.Category != IntentUnknown {
		t.Errorf("Expected unknown category, got %s", res.Intent.Category)
	}
	if res.Intent.Confidence != 0.0 {
		t.Errorf("Expected zero confidence, got %f", res.Intent.Confidence)
	}
	if !strings.Contains(res.Intent.Reasoning, "rate limited") {
		t.Errorf("Expected failure description in reasoning, got %q", res.Intent.Reasoning)
	}

	// The transcript must still be exportable without a judgment.
	if _, err := ctrl.Export(); err != nil {
		t.Errorf("Export failed after classification fallback: %v", err)
	}
}

func TestBackendFailureLeavesStateUntouched(t *testing.T) {
	backend := defaultFake()
	ctrl := newTestController(t, backend, 10)
	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	backend.replyErr = fmt.Errorf("connection refused")
	if _, err := ctrl.Submit(context.Background(), "I want to lose weight"); err == nil {
		t.Fatal("Expected error from failed backend call")
	}

	snap, err := ctrl.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.ExchangeCount != 0 {
		t.Errorf("Expected exchange_count unchanged at 0, got %d", snap.ExchangeCount)
	}
	if len(snap.Messages) != 1 {
		t.Errorf("Expected only the opening message, got %d messages", len(snap.Messages))
	}

	// The same call retried after recovery succeeds.
	backend.replyErr = nil
	res, err := ctrl.Submit(context.Background(), "I want to lose weight")
	if err != nil {
		t.Fatalf("Retried Submit failed: %v", err)
	}
	if res.ExchangeCount != 1 {
		t.Errorf("Expected exchange_count 1 after retry, got %d", res.ExchangeCount)
	}
}

func TestExportRequiresTermination(t *testing.T) {
	ctrl := newTestController(t, defaultFake(), 10)

	if _, err := ctrl.Export(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState before Start, got %v", err)
	}

	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := ctrl.Export(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState while active, got %v", err)
	}

	if _, err := ctrl.Submit(context.Background(), "not interested"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	record, err := ctrl.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !record.Status.Terminal() {
		t.Errorf("Expected terminal status, got %s", record.Status)
	}
	if record.Intent == nil {
		t.Error("Expected intent result in exported record")
	}
}

func TestUsageAccumulates(t *testing.T) {
	backend := defaultFake()
	backend.replyUsage = Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120}
	backend.classUsage = Usage{PromptTokens: 50, CompletionTokens: 30, TotalTokens: 80}

	ctrl := newTestController(t, backend, 10)
	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := ctrl.Submit(context.Background(), "I want to lose weight"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := ctrl.Submit(context.Background(), "not interested"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	record, err := ctrl.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	// Two replies plus one classification.
	want := Usage{PromptTokens: 250, CompletionTokens: 70, TotalTokens: 320}
	if record.Usage != want {
		t.Errorf("Expected usage %+v, got %+v", want, record.Usage)
	}
}

func TestRequestAccountingPerSubmit(t *testing.T) {
	backend := defaultFake()
	ctrl := newTestController(t, backend, 10)
	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	startReplies := backend.replyCalls

	if _, err := ctrl.Submit(context.Background(), "I want to lose weight"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got := backend.replyCalls - startReplies; got != 1 {
		t.Errorf("Non-terminating submit issued %d reply calls, want 1", got)
	}
	if backend.classifyCalls != 0 {
		t.Errorf("Non-terminating submit issued %d classify calls, want 0", backend.classifyCalls)
	}

	if _, err := ctrl.Submit(context.Background(), "not interested"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got := backend.replyCalls - startReplies; got != 2 {
		t.Errorf("Expected 2 reply calls total, got %d", got)
	}
	if backend.classifyCalls != 1 {
		t.Errorf("Terminating submit issued %d classify calls, want 1", backend.classifyCalls)
	}
}

func TestExportReturnsIndependentCopy(t *testing.T) {
	ctrl := newTestController(t, defaultFake(), 10)
	if _, err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := ctrl.Submit(context.Background(), "not interested"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	first, err := ctrl.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	first.Messages[0].Text = "tampered"
	first.Intent.Category = IntentSocialCommunity

	second, err := ctrl.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if second.Messages[0].Text == "tampered" {
		t.Error("Exported record shares message storage with the session")
	}
	if second.Intent.Category == IntentSocialCommunity {
		t.Error("Exported record shares intent storage with the session")
	}
}

func TestControllerClock(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctrl := NewController(NewControllerProps{
		Backend:  defaultFake(),
		Detector: RuleDetector{MaxExchanges: 10},
		Logger:   logger.Connect(logger.LoggerConnectProps{Production: false}),
		Now:      func() time.Time { return fixed },
	})

	sess, err := ctrl.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !sess.CreatedAt.Equal(fixed) {
		t.Errorf("Expected created_at %v, got %v", fixed, sess.CreatedAt)
	}
	if sess.ID != "human_test_20250601_120000" {
		t.Errorf("Unexpected conversation id %q", sess.ID)
	}
}
