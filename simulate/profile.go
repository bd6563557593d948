// Package simulate runs batches of synthetic conversations against the
// sales bot: a generated prospect personality is played by a second LLM and
// each conversation is driven through the session controller to a terminal
// outcome.
package simulate

import (
	"fmt"
	"leadqualdev/session"
	"math/rand"
	"strings"
)

// BigFiveTraits scores a personality on a 1-10 scale per trait.
type BigFiveTraits struct {
	Openness          int `json:"openness"`
	Conscientiousness int `json:"conscientiousness"`
	Extraversion      int `json:"extraversion"`
	Agreeableness     int `json:"agreeableness"`
	Neuroticism       int `json:"neuroticism"`
}

// ObjectionType is a concern the prospect may carry into the conversation.
type ObjectionType string

const (
	ObjectionPrice           ObjectionType = "price"
	ObjectionTimeCommitment  ObjectionType = "time_commitment"
	ObjectionInjuryConcerns  ObjectionType = "injury_concerns"
	ObjectionIntimidation    ObjectionType = "intimidation_factor"
	ObjectionLocationParking ObjectionType = "location_parking"
	ObjectionJustLooking     ObjectionType = "just_looking"
)

var objectionTypes = []ObjectionType{
	ObjectionPrice,
	ObjectionTimeCommitment,
	ObjectionInjuryConcerns,
	ObjectionIntimidation,
	ObjectionLocationParking,
	ObjectionJustLooking,
}

// ReadinessLevel is how close the lead is to acting.
type ReadinessLevel string

const (
	ReadinessHot  ReadinessLevel = "hot"
	ReadinessWarm ReadinessLevel = "warm"
	ReadinessCold ReadinessLevel = "cold"
)

var readinessLevels = []ReadinessLevel{ReadinessHot, ReadinessWarm, ReadinessCold}

var ageRanges = []string{"18-25", "25-35", "35-45", "45-55", "55+"}

var fitnessBackgrounds = []string{"beginner", "intermediate", "advanced", "couch_to_5k", "former_athlete"}

// ProspectProfile is the full synthetic persona for one conversation.
// ObjectionType empty means no major objection.
type ProspectProfile struct {
	BigFive           BigFiveTraits  `json:"big_five"`
	TrueIntent        session.Intent `json:"true_intent"`
	ObjectionType     ObjectionType  `json:"objection_type,omitempty"`
	ReadinessLevel    ReadinessLevel `json:"readiness_level"`
	AgeRange          string         `json:"age_range"`
	FitnessBackground string         `json:"fitness_background"`
}

// GenerateProfile draws a random prospect persona.
func GenerateProfile(r *rand.Rand) ProspectProfile {
	intents := session.Intents()

	// One extra slot means "no objection" with the same odds as each type.
	objection := ObjectionType("")
	if pick := r.Intn(len(objectionTypes) + 1); pick > 0 {
		objection = objectionTypes[pick-1]
	}

	return ProspectProfile{
		BigFive: BigFiveTraits{
			Openness:          1 + r.Intn(10),
			Conscientiousness: 1 + r.Intn(10),
			Extraversion:      1 + r.Intn(10),
			Agreeableness:     1 + r.Intn(10),
			Neuroticism:       1 + r.Intn(10),
		},
		TrueIntent:        intents[r.Intn(len(intents))],
		ObjectionType:     objection,
		ReadinessLevel:    readinessLevels[r.Intn(len(readinessLevels))],
		AgeRange:          ageRanges[r.Intn(len(ageRanges))],
		FitnessBackground: fitnessBackgrounds[r.Intn(len(fitnessBackgrounds))],
	}
}

type traitBand struct {
	low, medium, high string
}

var traitDescriptions = map[string]traitBand{
	"openness": {
		low:    "Prefer routines, skeptical of trends",
		medium: "Open to reasonable new things",
		high:   "Eager to try new approaches",
	},
	"conscientiousness": {
		low:    "Spontaneous, go with flow",
		medium: "Somewhat organized when motivated",
		high:   "Disciplined, goal-oriented",
	},
	"extraversion": {
		low:    "Introverted, prefer small groups",
		medium: "Moderately social",
		high:   "Outgoing, love group activities",
	},
	"agreeableness": {
		low:    "Skeptical, challenge claims",
		medium: "Polite but questioning",
		high:   "Friendly, trusting, cooperative",
	},
	"neuroticism": {
		low:    "Calm, don't worry much",
		medium: "Some anxiety, manageable",
		high:   "Anxious, worry about risks",
	},
}

func describeTrait(name string, score int) (string, string) {
	band := traitDescriptions[name]
	switch {
	case score <= 3:
		return "LOW", band.low
	case score <= 7:
		return "MEDIUM", band.medium
	default:
		return "HIGH", band.high
	}
}

var behavioralCues = map[session.Intent]string{
	session.IntentWeightLoss:      "Mention concerns about weight, clothes fitting, or wanting to 'slim down' or 'drop pounds'. Reference how you used to look or upcoming events.",
	session.IntentStressRelief:    "Talk about feeling stressed, overwhelmed, or needing an outlet. Mention work pressure, anxiety, or needing to 'blow off steam'.",
	session.IntentBoxingTechnique: "Ask about proper form, technique training, or learning fundamentals. Show interest in the technical/skill aspects of boxing.",
	session.IntentGeneralFitness:  "Focus on overall health, staying active, or 'getting in shape'. Keep goals broad rather than specific.",
	session.IntentSocialCommunity: "Ask about class sizes, group dynamics, or making friends. Show interest in the PEOPLE and community more than just the workout.",
	session.IntentJustFreeClass:   "Be vague about commitment. Deflect when asked about long-term goals. Say 'just curious' or 'wanted to try it once'. Show hesitation about ongoing membership.",
}

var intentDescriptions = map[session.Intent]string{
	session.IntentWeightLoss:      "You want to lose weight and get in better shape",
	session.IntentStressRelief:    "You're looking for stress relief and mental health benefits through exercise",
	session.IntentBoxingTechnique: "You want to learn proper boxing technique and skills",
	session.IntentGeneralFitness:  "You want to improve your overall fitness level",
	session.IntentSocialCommunity: "You're looking for a social community and group fitness experience",
	session.IntentJustFreeClass:   "You just want the free class and have no real intention of joining",
}

var objectionDescriptions = map[ObjectionType]string{
	ObjectionPrice:           "You're concerned about the cost",
	ObjectionTimeCommitment:  "You're worried about having enough time",
	ObjectionInjuryConcerns:  "You're concerned about getting injured",
	ObjectionIntimidation:    "You feel intimidated by boxing or group fitness",
	ObjectionLocationParking: "You have concerns about the location or parking",
	ObjectionJustLooking:     "You're just browsing and not ready to commit",
}

var readinessDescriptions = map[ReadinessLevel]string{
	ReadinessHot:  "You're very interested and ready to take action soon",
	ReadinessWarm: "You're interested but want to learn more before deciding",
	ReadinessCold: "You're just exploring options and not in a hurry",
}

// ProspectPrompt converts a profile into the system prompt that makes the
// prospect model embody the persona without stating it outright.
func ProspectPrompt(profile ProspectProfile) string {
	var b strings.Builder

	b.WriteString("You are a potential gym member who filled out a web form to learn more about a boxing fitness gym.\n\n")

	b.WriteString("PERSONALITY PROFILE (Big Five Traits):\n")
	traits := []struct {
		name  string
		score int
	}{
		{"openness", profile.BigFive.Openness},
		{"conscientiousness", profile.BigFive.Conscientiousness},
		{"extraversion", profile.BigFive.Extraversion},
		{"agreeableness", profile.BigFive.Agreeableness},
		{"neuroticism", profile.BigFive.Neuroticism},
	}
	for _, t := range traits {
		level, desc := describeTrait(t.name, t.score)
		fmt.Fprintf(&b, "- %s: %d/10 (%s) - %s\n", strings.ToUpper(t.name[:1])+t.name[1:], t.score, level, desc)
	}

	fmt.Fprintf(&b, "\nYOUR TRUE INTENT: %s\n", intentDescriptions[profile.TrueIntent])
	fmt.Fprintf(&b, "\nHOW TO REVEAL YOUR INTENT NATURALLY:\n%s\n", behavioralCues[profile.TrueIntent])
	fmt.Fprintf(&b, "\nYOUR READINESS: %s\n", readinessDescriptions[profile.ReadinessLevel])

	fmt.Fprintf(&b, "\nDEMOGRAPHICS:\n- Age range: %s\n- Fitness background: %s\n", profile.AgeRange, profile.FitnessBackground)

	if profile.ObjectionType != "" {
		fmt.Fprintf(&b, "\nYOUR CONCERN: %s\n", objectionDescriptions[profile.ObjectionType])
	} else {
		b.WriteString("\nYou have no major objections.\n")
	}

	b.WriteString(`
INSTRUCTIONS:
- You're texting/chatting - keep responses to 1-2 sentences maximum
- Respond naturally based on your personality traits
- Let your intent emerge through conversation using the behavioral cues above - don't explicitly say your intent
- Be realistic - show interest or skepticism based on your traits
- If you have concerns, let them surface naturally
- DO NOT mention your personality scores or state your intent directly`)

	return b.String()
}
