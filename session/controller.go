package session

import (
	"context"
	"fmt"
	"leadqualdev/logger"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Controller owns one Session and drives it from creation to a terminal,
// exportable record. One caller issues one call at a time; the controller
// holds no internal concurrency.
type Controller struct {
	backend  Backend
	detector Detector
	logger   *logger.LogMiddleware
	now      func() time.Time
	idPrefix string

	sess *Session
}

type NewControllerProps struct {
	Backend  Backend
	Detector Detector
	Logger   *logger.LogMiddleware

	// IDPrefix namespaces conversation ids ("human_test" for the browser
	// harness, "conv" for simulation batches).
	IDPrefix string

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func NewController(args NewControllerProps) *Controller {
	now := args.Now
	if now == nil {
		now = time.Now
	}
	prefix := args.IDPrefix
	if prefix == "" {
		prefix = "human_test"
	}
	return &Controller{
		backend:  args.Backend,
		detector: args.Detector,
		logger:   args.Logger,
		now:      now,
		idPrefix: prefix,
	}
}

// SubmitResult is what the caller observes after one prospect turn. Intent
// is non-nil only when this turn terminated the conversation.
type SubmitResult struct {
	Reply         Message
	Status        Status
	ExchangeCount int
	Intent        *IntentResult
}

// Start creates the session and obtains the opening bot message. A backend
// failure leaves the controller unstarted so the call can be retried.
func (c *Controller) Start(ctx context.Context) (*Session, error) {
	if c.sess != nil {
		return nil, fmt.Errorf("%w: session already started", ErrInvalidState)
	}

	opening, usage, err := c.backend.Reply(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}

	now := c.now()
	c.sess = &Session{
		ID:        fmt.Sprintf("%s_%s", c.idPrefix, now.Format("20060102_150405")),
		Status:    StatusActive,
		CreatedAt: now,
	}
	c.sess.Messages = append(c.sess.Messages, Message{Role: RoleBot, Text: opening, Timestamp: now})
	c.sess.Usage.Add(usage)

	c.logger.Logger(ctx).Info("[Session] Conversation started", zap.String("conversation_id", c.sess.ID))

	return c.sess.Clone(), nil
}

// Submit processes one prospect message: bot reply, termination check and,
// on a terminal verdict, the synchronous intent classification. State is
// only mutated after the reply call succeeds, so a failed Submit can be
// retried with the same text.
func (c *Controller) Submit(ctx context.Context, text string) (*SubmitResult, error) {
	if c.sess == nil || c.sess.Status.Terminal() {
		return nil, fmt.Errorf("%w: submit requires an active session", ErrInvalidState)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("session: empty prospect message")
	}

	prospectMsg := Message{Role: RoleProspect, Text: text, Timestamp: c.now()}

	history := make([]Message, 0, len(c.sess.Messages)+1)
	history = append(history, c.sess.Messages...)
	history = append(history, prospectMsg)

	reply, usage, err := c.backend.Reply(ctx, history)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}

	botMsg := Message{Role: RoleBot, Text: reply, Timestamp: c.now()}
	c.sess.Messages = append(c.sess.Messages, prospectMsg, botMsg)
	c.sess.ExchangeCount++
	c.sess.Usage.Add(usage)

	verdict, err := c.detector.Detect(ctx, c.sess.Messages, c.sess.ExchangeCount)
	if err != nil {
		// A broken detector must not strand the session; keep going and let
		// the exchange limit end it.
		c.logger.Logger(ctx).Warn("[Session] Termination detection failed, continuing conversation",
			zap.Error(err),
			zap.Int("exchange_count", c.sess.ExchangeCount),
		)
		verdict = VerdictNonTerminal
	}

	if verdict != VerdictNonTerminal {
		c.finalize(ctx, verdict)
	}

	return &SubmitResult{
		Reply:         botMsg,
		Status:        c.sess.Status,
		ExchangeCount: c.sess.ExchangeCount,
		Intent:        c.sess.Intent,
	}, nil
}

// finalize transitions to the terminal status and obtains the intent
// judgment. Classification failure degrades to an unknown result; the
// transcript must remain exportable either way.
func (c *Controller) finalize(ctx context.Context, verdict Verdict) {
	c.sess.Status = statusForVerdict(verdict)

	intent, usage, err := c.backend.Classify(ctx, c.sess.Messages)
	if err != nil {
		c.logger.Logger(ctx).Error("[Session] Intent classification failed, falling back to unknown",
			zap.Error(err),
			zap.String("conversation_id", c.sess.ID),
		)
		intent = &IntentResult{
			Category:   IntentUnknown,
			Confidence: 0.0,
			Reasoning:  fmt.Sprintf("classification failed: %v", err),
		}
	} else {
		c.sess.Usage.Add(usage)
	}
	c.sess.Intent = intent

	c.logger.Logger(ctx).Info("[Session] Conversation ended",
		zap.String("conversation_id", c.sess.ID),
		zap.String("status", string(c.sess.Status)),
		zap.String("detected_intent", string(intent.Category)),
		zap.Int("exchange_count", c.sess.ExchangeCount),
	)
}

// Export returns the frozen session record. Only valid once terminal.
func (c *Controller) Export() (*Session, error) {
	if c.sess == nil || !c.sess.Status.Terminal() {
		return nil, fmt.Errorf("%w: export requires a terminated session", ErrInvalidState)
	}
	return c.sess.Clone(), nil
}

// Snapshot returns a copy of the current record in any state, for UI
// rendering while the conversation is still running.
func (c *Controller) Snapshot() (*Session, error) {
	if c.sess == nil {
		return nil, fmt.Errorf("%w: session not started", ErrInvalidState)
	}
	return c.sess.Clone(), nil
}
