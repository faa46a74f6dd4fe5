// Package analyzer scores free text for affective signal and recommends a
// follow-up tool. It is a deterministic rule table over surface features:
// emoji, punctuation, repetition, capitalisation and length.
package analyzer

import (
	"math"
	"strings"
	"unicode"
)

// Profile is the assessment on four axes, each in [-1, 1].
type Profile struct {
	Valence    float64 `json:"valence"`
	Arousal    float64 `json:"arousal"`
	Engagement float64 `json:"engagement"`
	Regulation float64 `json:"regulation"`
}

// Nuance describes how the text is written rather than what it feels.
type Nuance struct {
	MixedStates        bool     `json:"mixed_states"`
	Intensity          float64  `json:"intensity"`
	CommunicationStyle string   `json:"communication_style"`
	ConfidenceFactors  []string `json:"confidence_factors"`
}

// PatternFinding is one structural pattern found in the text.
type PatternFinding struct {
	Type       string  `json:"type"`
	Psychology string  `json:"psychology"`
	Multiplier float64 `json:"confidence_multiplier"`
}

// Context carries the raw findings behind an assessment.
type Context struct {
	WordCount          int              `json:"message_length"`
	SentenceCount      int              `json:"sentence_count"`
	AvgWordLength      float64          `json:"avg_word_length"`
	PunctuationDensity float64          `json:"punctuation_density"`
	Patterns           []PatternFinding `json:"psychological_patterns"`
	Emoji              EmojiAnalysis    `json:"emoji_analysis"`
	Repetitions        []Repetition     `json:"repetition_analysis"`
}

// Assessment is the result of Classify.
type Assessment struct {
	PrimaryState  string             `json:"primary_state"`
	Confidence    float64            `json:"confidence"`
	Tool          string             `json:"tool"`
	ToolReasoning string             `json:"tool_reasoning"`
	Profile       Profile            `json:"psychological_profile"`
	Insights      []string           `json:"psychological_insights"`
	Nuance        Nuance             `json:"emotional_nuance"`
	Emotions      map[string]float64 `json:"emotion_percentages"`
	Context       Context            `json:"context_analysis"`
}

// Classify scores text. It never fails; empty text reads as a shutdown.
func Classify(text string) Assessment {
	s := scoreText(text)
	emotions := emotionPercentages(text)

	// The emotion table can only raise the structural scores.
	s.positive = math.Max(s.positive, emotions["joy"]/10)
	for _, e := range []string{"sadness", "anger", "fear"} {
		s.negative = math.Max(s.negative, emotions[e]/10)
	}
	for _, e := range []string{"anger", "fear"} {
		s.arousal = math.Max(s.arousal, emotions[e]/10)
	}

	state, confidence := primaryState(s)
	profile := Profile{
		Valence:    clamp((s.positive-s.negative)/10, -1, 1),
		Arousal:    clamp(s.arousal/10, -1, 1),
		Engagement: clamp(s.engagement/10, -1, 1),
		Regulation: clamp(s.regulation, -1, 1),
	}

	emoji := decodeEmojis(text)
	reps := letterRepetitions(text)
	patterns := detectPatterns(text, emoji, reps)
	ctx := textContext(text)
	for _, p := range patterns {
		ctx.Patterns = append(ctx.Patterns, PatternFinding{Type: p, Psychology: patternPsychology[p], Multiplier: patternMultiplier[p]})
	}
	ctx.Emoji = emoji
	ctx.Repetitions = reps

	r := routes[state]
	return Assessment{
		PrimaryState:  state,
		Confidence:    clamp(confidence, 0, 1),
		Tool:          r.tool,
		ToolReasoning: r.reasoning,
		Profile:       profile,
		Insights:      insights(s, profile, ctx.WordCount),
		Nuance:        nuance(s, ctx.WordCount, patterns),
		Emotions:      emotions,
		Context:       ctx,
	}
}

// primaryState applies the rules in priority order: strong valence first,
// then intensity, engagement and finally the neutral fallbacks.
func primaryState(s scores) (string, float64) {
	switch {
	case s.positive > 2.0 && s.arousal > 1.0:
		return StateHighPositiveArousal, math.Min(0.95, 0.5+s.positive*0.1)
	case s.positive > 2.0:
		return StatePositiveValence, math.Min(0.9, 0.4+s.positive*0.1)
	case s.negative > 2.0 && s.arousal > 1.0:
		return StateHighNegativeArousal, math.Min(0.95, 0.5+s.negative*0.1)
	case s.negative > 2.0:
		return StateNegativeValence, math.Min(0.9, 0.4+s.negative*0.1)
	case s.arousal > 1.5:
		return StateHighIntensity, math.Min(0.9, 0.3+s.arousal*0.08)
	case s.engagement > 2.0:
		return StateHighEngagement, math.Min(0.85, 0.4+s.engagement*0.05)
	case s.engagement < -0.3:
		if s.positive < 0.5 && s.arousal < 0.5 {
			return StateLowEngagementShutdown, math.Min(0.8, 0.6+math.Abs(s.engagement)*0.2)
		}
		return StateBriefCommunication, math.Min(0.7, 0.4+math.Abs(s.engagement)*0.15)
	case s.regulation > 0.7:
		return StateNeutralRegulation, s.regulation
	case mixed(s):
		return StateMixedValence, math.Min(0.75, 0.3+(s.positive+s.negative)*0.05)
	}
	return StateNeutralRegulation, math.Max(0.5, s.regulation)
}

func mixed(s scores) bool {
	return math.Abs(s.positive-s.negative) < 1.0 && (s.positive > 1.0 || s.negative > 1.0)
}

func nuance(s scores, words int, patterns []string) Nuance {
	n := Nuance{
		MixedStates:       mixed(s),
		Intensity:         math.Min(1.0, s.arousal/5.0),
		ConfidenceFactors: []string{},
	}
	switch {
	case words <= 3:
		n.CommunicationStyle = "brief_direct"
		n.ConfidenceFactors = append(n.ConfidenceFactors, "brevity_suggests_efficiency_or_restraint")
	case words >= 30:
		n.CommunicationStyle = "elaborate_expressive"
		n.ConfidenceFactors = append(n.ConfidenceFactors, "length_suggests_high_engagement")
	default:
		n.CommunicationStyle = "moderate_conversational"
	}
	for _, p := range patterns {
		if strings.Contains(p, "repetition") {
			n.ConfidenceFactors = append(n.ConfidenceFactors, "repetition_indicates_emphasis")
		}
	}
	return n
}

func insights(s scores, p Profile, words int) []string {
	out := []string{}

	switch {
	case words <= 3:
		switch {
		case s.positive > 1.0:
			out = append(out, "Brief but positive message - efficient communication style")
		case s.arousal > 1.0:
			out = append(out, "Brief but intense message - focused emotional expression")
		default:
			out = append(out, "Very brief message - possible emotional shutdown, time constraints, or preference for minimal communication")
		}
	case words <= 10:
		out = append(out, "Short message - efficiency focus or mild emotional restraint")
	case words >= 50:
		out = append(out, "Long message - high engagement or need for detailed expression")
	}

	switch {
	case p.Valence > 0.5:
		out = append(out, "Strong positive valence detected")
	case p.Valence < -0.5:
		out = append(out, "Strong negative valence detected")
	case math.Abs(p.Valence) < 0.2:
		out = append(out, "Neutral valence - balanced emotional state")
	}

	switch {
	case p.Arousal > 0.7:
		out = append(out, "High arousal state - intense emotional or cognitive activity")
	case p.Arousal < 0.2:
		out = append(out, "Low arousal state - calm or potentially disengaged")
	}

	switch {
	case p.Engagement > 0.6:
		out = append(out, "High engagement - active cognitive and emotional investment")
	case p.Engagement < -0.2:
		out = append(out, "Low engagement - possible emotional disconnection or time pressure")
	}

	if p.Valence != 0 && math.Abs(p.Valence) < 0.3 && s.positive > 1.0 && s.negative > 1.0 {
		out = append(out, "Mixed emotional signals detected - possible internal conflict or complex emotional state")
	}
	return out
}

func textContext(text string) Context {
	words := strings.Fields(text)
	c := Context{WordCount: len(words), Patterns: []PatternFinding{}}

	for _, sentence := range strings.Split(text, ".") {
		if strings.TrimSpace(sentence) != "" {
			c.SentenceCount++
		}
	}

	if len(words) > 0 {
		var letters int
		for _, w := range words {
			letters += len([]rune(strings.TrimFunc(w, unicode.IsPunct)))
		}
		c.AvgWordLength = float64(letters) / float64(len(words))
	}

	if n := len([]rune(text)); n > 0 {
		var punct int
		for _, r := range text {
			if r < unicode.MaxASCII && (unicode.IsPunct(r) || unicode.IsSymbol(r)) {
				punct++
			}
		}
		c.PunctuationDensity = float64(punct) / float64(n)
	}
	return c
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
