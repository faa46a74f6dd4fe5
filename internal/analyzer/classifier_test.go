package analyzer

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestClassify_States(t *testing.T) {
	cases := []struct {
		text  string
		state string
		tool  string
	}{
		{"I'm sooooo happy!!! 😊😊", StateHighPositiveArousal, ToolMusic},
		{"I feel terrible... sigh... 😢", StateHighNegativeArousal, ToolMeditation},
		{"How do I configure a reverse proxy for a Go service behind nginx with TLS termination, and what are the tradeoffs of doing it that way?", StateHighEngagement, ToolWebSearch},
		{"ok", StateLowEngagementShutdown, ToolMeditation},
		{"The meeting is at noon tomorrow in the main office building.", StateNeutralRegulation, ToolWebSearch},
		{"WHY IS THIS BROKEN AGAIN", StateHighIntensity, ToolMeditation},
		{"yay but ugh", StatePositiveValence, ToolMusic},
		{"I am so angry and frustrated with this, are you kidding me??", StateHighNegativeArousal, ToolMeditation},
	}
	for _, c := range cases {
		a := Classify(c.text)
		if a.PrimaryState != c.state {
			t.Errorf("%q: state %s, want %s", c.text, a.PrimaryState, c.state)
		}
		if a.Tool != c.tool {
			t.Errorf("%q: tool %s, want %s", c.text, a.Tool, c.tool)
		}
		if a.ToolReasoning == "" {
			t.Errorf("%q: missing tool reasoning", c.text)
		}
		if a.Confidence < 0 || a.Confidence > 1 {
			t.Errorf("%q: confidence %v out of range", c.text, a.Confidence)
		}
	}
}

func TestClassify_Confidence(t *testing.T) {
	if a := Classify("I'm sooooo happy!!! 😊😊"); !near(a.Confidence, 0.95) {
		t.Errorf("expected capped confidence 0.95, got %v", a.Confidence)
	}
	if a := Classify("ok"); !near(a.Confidence, 0.7) {
		t.Errorf("expected shutdown confidence 0.7, got %v", a.Confidence)
	}
	if a := Classify("The meeting is at noon tomorrow in the main office building."); !near(a.Confidence, 0.9) {
		t.Errorf("expected regulation score as confidence, got %v", a.Confidence)
	}
}

func TestClassify_ProfileClamped(t *testing.T) {
	a := Classify(strings.Repeat("😊", 20))
	if a.Profile.Valence != 1 {
		t.Errorf("expected valence clamped to 1, got %v", a.Profile.Valence)
	}
	for name, v := range map[string]float64{
		"valence":    a.Profile.Valence,
		"arousal":    a.Profile.Arousal,
		"engagement": a.Profile.Engagement,
		"regulation": a.Profile.Regulation,
	} {
		if v < -1 || v > 1 {
			t.Errorf("%s %v out of [-1, 1]", name, v)
		}
	}

	neg := Classify("😭😭😭😭😭😭")
	if neg.Profile.Valence != -1 {
		t.Errorf("expected valence clamped to -1, got %v", neg.Profile.Valence)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	text := "Is this really working?? I can't wait to find out!!!"
	a, b := Classify(text), Classify(text)
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Errorf("classification is not deterministic:\n%s\n%s", ja, jb)
	}
}

func TestClassify_EmotionFallback(t *testing.T) {
	a := Classify("ok")
	if a.Emotions["neutral"] != 60 || a.Emotions["uncertain"] != 40 {
		t.Errorf("expected neutral/uncertain fallback, got %v", a.Emotions)
	}

	b := Classify("The meeting is at noon tomorrow in the main office building.")
	if b.Emotions["neutral"] != 100 {
		t.Errorf("a full stop alone should read as neutral, got %v", b.Emotions)
	}
}

func TestClassify_EmotionPercentagesSumTo100(t *testing.T) {
	a := Classify("I love this but I hate that")
	var sum float64
	for _, v := range a.Emotions {
		sum += v
	}
	if !near(sum, 100) {
		t.Errorf("percentages sum to %v", sum)
	}
	if a.Emotions["love"] <= a.Emotions["anger"] {
		t.Errorf("expected love to dominate, got %v", a.Emotions)
	}
}

func TestClassify_Nuance(t *testing.T) {
	a := Classify("yay but ugh")
	if !a.Nuance.MixedStates {
		t.Errorf("equal positive and negative signal should be mixed")
	}
	if a.Nuance.CommunicationStyle != "brief_direct" {
		t.Errorf("unexpected style %q", a.Nuance.CommunicationStyle)
	}

	long := Classify(strings.Repeat("word ", 35))
	if long.Nuance.CommunicationStyle != "elaborate_expressive" {
		t.Errorf("unexpected style %q", long.Nuance.CommunicationStyle)
	}

	rep := Classify("no no I said nooooo")
	found := false
	for _, f := range rep.Nuance.ConfidenceFactors {
		if f == "repetition_indicates_emphasis" {
			found = true
		}
	}
	if !found {
		t.Errorf("repetition should add a confidence factor, got %v", rep.Nuance.ConfidenceFactors)
	}
}

func TestClassify_Insights(t *testing.T) {
	a := Classify("ok")
	if len(a.Insights) == 0 || !strings.HasPrefix(a.Insights[0], "Very brief message") {
		t.Errorf("unexpected insights %v", a.Insights)
	}

	b := Classify("yay!")
	if len(b.Insights) == 0 || !strings.HasPrefix(b.Insights[0], "Brief but positive") {
		t.Errorf("unexpected insights %v", b.Insights)
	}
}

func TestClassify_Context(t *testing.T) {
	a := Classify("ok")
	types := map[string]bool{}
	for _, p := range a.Context.Patterns {
		types[p.Type] = true
		if p.Psychology == "" || p.Multiplier == 0 {
			t.Errorf("pattern %s missing description", p.Type)
		}
	}
	if !types[PatternVeryShort] || !types[PatternNoPunctuation] {
		t.Errorf("expected short and unpunctuated patterns, got %v", types)
	}

	// Exclamations count as a positive signal and suppress the length patterns.
	b := Classify("ok!")
	for _, p := range b.Context.Patterns {
		if p.Type == PatternVeryShort {
			t.Errorf("positive signal should suppress %s", p.Type)
		}
	}

	c := Classify("one. two. three")
	if c.Context.SentenceCount != 3 || c.Context.WordCount != 3 {
		t.Errorf("unexpected counts %+v", c.Context)
	}
}

func TestClassify_JSONLayout(t *testing.T) {
	raw, err := json.Marshal(Classify("hello there"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for _, key := range []string{`"primary_state"`, `"confidence"`, `"tool"`, `"psychological_profile"`, `"psychological_insights"`, `"emotion_percentages"`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("missing %s in %s", key, raw)
		}
	}
}

func TestDecodeEmojis(t *testing.T) {
	a := decodeEmojis("😂😂 and 😢")
	if len(a.Found) != 2 {
		t.Fatalf("expected two distinct emoji, got %+v", a.Found)
	}
	if !near(a.Found[0].Boost, 2.4) || a.Found[0].Count != 2 {
		t.Errorf("repeated emoji should amplify the boost, got %+v", a.Found[0])
	}
	if a.DominantEmotion != "joy" || !a.StrongPositive {
		t.Errorf("unexpected summary %+v", a)
	}
}

func TestHasTerm(t *testing.T) {
	cases := []struct {
		text, term string
		want       bool
	}{
		{"hello there", "hell", false},
		{"what the hell", "hell", true},
		{"i can't wait", "can't wait", true},
		{"also", "so", false},
		{"so good", "so", true},
		{"wait...", "...", true},
		{"fine.", ".", true},
		{"grrr", "grr", false},
	}
	for _, c := range cases {
		if got := hasTerm(c.text, c.term); got != c.want {
			t.Errorf("hasTerm(%q, %q) = %v, want %v", c.text, c.term, got, c.want)
		}
	}
}

func TestRuns(t *testing.T) {
	got := runs("sooooo GOOOod!!!", 3, func(r rune) bool { return r != '\n' })
	if len(got) != 3 {
		t.Fatalf("expected three runs, got %+v", got)
	}
	if got[0].text != "ooooo" || got[0].length != 5 {
		t.Errorf("unexpected first run %+v", got[0])
	}
	if got[1].length != 4 {
		t.Errorf("runs should compare case-insensitively, got %+v", got[1])
	}
}

func TestRepeatedWords(t *testing.T) {
	if got := repeatedWords("no no no"); len(got) != 1 || got[0] != "no no" {
		t.Errorf("pairs should not overlap, got %v", got)
	}
	if got := repeatedWords("Very very good"); len(got) != 1 {
		t.Errorf("comparison should ignore case, got %v", got)
	}
	if got := repeatedWords("the theory"); len(got) != 0 {
		t.Errorf("prefix is not a repetition, got %v", got)
	}
	if got := repeatedWords("stop, stop"); len(got) != 0 {
		t.Errorf("punctuation breaks a repetition, got %v", got)
	}
}
