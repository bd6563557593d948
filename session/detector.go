package session

import (
	"context"
	"fmt"
	"strings"
)

// RuleDetector decides termination from phrase matching alone, with no
// backend call. It is the default detector: a non-terminating Submit then
// costs exactly one model request.
//
// The phrase tables mirror the assessment guidance given to the model-backed
// detector: talking logistics (when, where, what to bring) counts as
// agreement; only explicit rejection counts as decline.
type RuleDetector struct {
	MaxExchanges int
}

var agreementPhrases = []string{
	"sounds good",
	"sounds great",
	"sounds perfect",
	"i'd like to",
	"i would like to",
	"let's do it",
	"lets do it",
	"i'm in",
	"im in",
	"sign me up",
	"let's book",
	"lets book",
	"book me",
	"book the class",
	"book a class",
	"that works",
	"works for me",
	"work for me",
	"works best",
	"let's try",
	"lets try",
	"see you there",
	"count me in",
	"let me check my calendar",
	"what time",
	"what times",
	"what days",
	"when do classes",
	"when's the next class",
	"whens the next class",
	"when is the next class",
	"where's it located",
	"where is it located",
	"what should i bring",
	"should i bring",
	"should i wear",
	"do i need to arrive",
}

var declinePhrases = []string{
	"not interested",
	"no thanks",
	"no thank you",
	"i'll pass",
	"ill pass",
	"not for me",
	"stop messaging",
	"stop texting",
	"leave me alone",
	"don't contact me",
	"dont contact me",
	"changed my mind",
}

// Availability talk is agreement when paired with a time-of-day or weekday
// reference ("mornings work for me", "I'm free Tuesday", "I can do 6pm").
var availabilityCues = []string{
	"i can do",
	"i'm free",
	"im free",
	"i'm available",
	"im available",
	"i prefer",
	"i'd prefer",
	"would work",
	"works",
	"work best",
	"is best for me",
}

var timeWords = []string{
	"morning", "mornings", "evening", "evenings", "weekend", "weekends",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"tonight", "tomorrow", "am", "pm",
}

func (d RuleDetector) Detect(_ context.Context, messages []Message, exchangeCount int) (Verdict, error) {
	if exchangeCount >= d.MaxExchanges {
		return VerdictLimitReached, nil
	}

	latest := latestProspectText(messages)
	if latest == "" {
		return VerdictNonTerminal, nil
	}
	text := strings.ToLower(latest)

	// "not sure" is hesitation, not the explicit "sure" agreement.
	affirmable := strings.ReplaceAll(text, "not sure", "")
	if containsAny(text, agreementPhrases) || hasWord(affirmable, "yes") || hasWord(affirmable, "sure") {
		return VerdictAgreed, nil
	}
	if containsAny(text, availabilityCues) && containsAnyWord(text, timeWords) {
		return VerdictAgreed, nil
	}
	if containsAny(text, declinePhrases) {
		return VerdictDeclined, nil
	}

	return VerdictNonTerminal, nil
}

func latestProspectText(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleProspect {
			return messages[i].Text
		}
	}
	return ""
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// hasWord matches on word boundaries so "yes" does not fire inside "eyes"
// and "no" does not fire inside "know".
func hasWord(text, word string) bool {
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
	}) {
		if field == word {
			return true
		}
	}
	return false
}

func containsAnyWord(text string, words []string) bool {
	for _, w := range words {
		if hasWord(text, w) {
			return true
		}
	}
	return false
}

// Assessor is the backend call behind ModelDetector: a lightweight
// classification request over the recent history.
type Assessor interface {
	Assess(ctx context.Context, messages []Message) (Verdict, error)
}

// ModelDetector delegates content-based detection to the backend model while
// keeping the limit check local, preserving the precedence guarantee even
// when the model call fails or disagrees.
type ModelDetector struct {
	MaxExchanges int
	Assessor     Assessor
}

func (d ModelDetector) Detect(ctx context.Context, messages []Message, exchangeCount int) (Verdict, error) {
	if exchangeCount >= d.MaxExchanges {
		return VerdictLimitReached, nil
	}

	verdict, err := d.Assessor.Assess(ctx, messages)
	if err != nil {
		return VerdictNonTerminal, fmt.Errorf("conversation assessment failed: %w", err)
	}
	if verdict == VerdictLimitReached {
		// The assessor only judges content; the limit is ours to enforce.
		return VerdictNonTerminal, nil
	}
	return verdict, nil
}
