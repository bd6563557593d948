// Package session implements the conversation session controller for the
// lead-qualification harness: it drives one chat from the opening message to
// a terminal outcome, enforces the exchange limit, and freezes the record
// for export.
package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Role identifies the author of a message. The bot side serializes as
// "sales" to stay compatible with previously collected transcript logs.
type Role string

const (
	RoleProspect Role = "prospect"
	RoleBot      Role = "sales"
)

// Message is one chat turn. Immutable once appended.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is the lifecycle state of a session. Anything other than
// StatusActive is terminal and freezes the record.
type Status string

const (
	StatusActive       Status = "active"
	StatusAgreed       Status = "agreed"
	StatusDeclined     Status = "declined"
	StatusLimitReached Status = "limit_reached"
)

// Terminal reports whether the status freezes the session.
func (s Status) Terminal() bool {
	return s != StatusActive
}

// Intent is the detected primary fitness goal of a prospect.
type Intent string

const (
	IntentWeightLoss      Intent = "weight_loss"
	IntentStressRelief    Intent = "stress_relief_mental_health"
	IntentBoxingTechnique Intent = "learn_boxing_technique"
	IntentGeneralFitness  Intent = "general_fitness"
	IntentSocialCommunity Intent = "social_community"
	IntentJustFreeClass   Intent = "just_wants_free_class"

	// IntentUnknown is the classification-failure fallback.
	IntentUnknown Intent = "unknown"
)

// Intents lists every classifiable intent, excluding the unknown fallback.
func Intents() []Intent {
	return []Intent{
		IntentWeightLoss,
		IntentStressRelief,
		IntentBoxingTechnique,
		IntentGeneralFitness,
		IntentSocialCommunity,
		IntentJustFreeClass,
	}
}

// ParseIntent maps a model-supplied label to an Intent. Models occasionally
// return several labels separated by commas; the first one wins.
func ParseIntent(raw string) (Intent, bool) {
	label := strings.TrimSpace(raw)
	if i := strings.Index(label, ","); i >= 0 {
		label = strings.TrimSpace(label[:i])
	}
	for _, intent := range Intents() {
		if label == string(intent) {
			return intent, true
		}
	}
	return IntentUnknown, false
}

// IntentResult is the structured judgment produced once per session at
// finalization. Never mutated afterward.
type IntentResult struct {
	Category             Intent  `json:"detected_intent"`
	Confidence           float64 `json:"confidence_level"`
	Reasoning            string  `json:"reasoning"`
	RecommendedVisitTime string  `json:"best_time_to_visit,omitempty"`
}

// Usage tracks token consumption across backend calls.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another call's reported usage.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Session is the full record of one conversation. Mutated only by its
// Controller; frozen once Status leaves StatusActive.
//
// Invariants: ExchangeCount equals the number of prospect messages and never
// decreases; Intent is non-nil exactly when the status is terminal.
type Session struct {
	ID            string        `json:"conversation_id"`
	Messages      []Message     `json:"messages"`
	ExchangeCount int           `json:"exchange_count"`
	Status        Status        `json:"status"`
	Intent        *IntentResult `json:"intent_detection,omitempty"`
	Usage         Usage         `json:"token_usage"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Clone returns an independent copy safe to hand to exporters and renderers.
func (s *Session) Clone() *Session {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	if s.Intent != nil {
		intent := *s.Intent
		out.Intent = &intent
	}
	return &out
}

// ErrInvalidState marks an operation invoked in a state that forbids it:
// submitting after termination, exporting while active, starting twice.
// Always an integration bug, never worth an automatic retry.
var ErrInvalidState = errors.New("session: operation not valid in current state")

// Backend is the capability interface over the language-model service. The
// controller only ever issues these two kinds of opaque synchronous calls.
type Backend interface {
	// Reply returns the bot's next message for the given history. An empty
	// history requests the opening message.
	Reply(ctx context.Context, history []Message) (string, Usage, error)

	// Classify returns the structured intent judgment for a finished
	// conversation.
	Classify(ctx context.Context, history []Message) (*IntentResult, Usage, error)
}

// Verdict is the termination detector's three-state outcome plus the
// limit-reached override.
type Verdict string

const (
	VerdictNonTerminal  Verdict = "non_terminal"
	VerdictAgreed       Verdict = "agreed"
	VerdictDeclined     Verdict = "declined"
	VerdictLimitReached Verdict = "limit_reached"
)

// Detector decides whether the latest exchange ended the conversation.
// Implementations must check the exchange limit before any content
// inspection so a session can never exceed the configured cap.
type Detector interface {
	Detect(ctx context.Context, messages []Message, exchangeCount int) (Verdict, error)
}

func statusForVerdict(v Verdict) Status {
	switch v {
	case VerdictAgreed:
		return StatusAgreed
	case VerdictDeclined:
		return StatusDeclined
	case VerdictLimitReached:
		return StatusLimitReached
	default:
		return StatusActive
	}
}
