package analyzer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	capsWordRe     = regexp.MustCompile(`\b[A-Z]{2,}\b`)
	mixedCaseRe    = regexp.MustCompile(`[a-z]+[A-Z]+`)
	multiBangRe    = regexp.MustCompile(`!{2,}`)
	multiQuestRe   = regexp.MustCompile(`\?{2,}`)
	ellipsisRe     = regexp.MustCompile(`\.{3,}`)
	questionRunRe  = regexp.MustCompile(`\?+`)
	noTerminalPunc = regexp.MustCompile(`[^.!?]$`)
)

// scores are the raw feature sums a state is chosen from.
type scores struct {
	positive   float64
	negative   float64
	arousal    float64
	engagement float64
	regulation float64
}

func (s scores) total() float64 {
	e := s.engagement
	if e < 0 {
		e = -e
	}
	return s.positive + s.negative + s.arousal + e
}

func scoreText(text string) scores {
	lower := strings.ToLower(text)
	var s scores

	for _, e := range positiveEmojis {
		s.positive += 2.0 * float64(strings.Count(text, e))
	}
	for _, x := range positiveExpressions {
		if hasTerm(lower, x) {
			s.positive += 1.5
		}
	}
	switch {
	case strings.Contains(text, "!!!"):
		s.positive += 1.2
	case strings.Contains(text, "!!"):
		s.positive += 0.8
	case strings.HasSuffix(text, "!"):
		s.positive += 0.5
	}

	for _, e := range negativeEmojis {
		s.negative += 2.0 * float64(strings.Count(text, e))
	}
	for _, x := range negativeExpressions {
		if hasTerm(lower, x) {
			s.negative += 1.5
		}
	}
	if strings.Contains(text, "...") {
		s.negative += 0.8
	}
	if strings.HasSuffix(text, "...") {
		s.negative += 0.5
	}

	for _, r := range runs(text, 3, func(r rune) bool { return r != '\n' }) {
		s.arousal += 1.0 + float64(r.length)*0.1
	}
	for _, m := range repeatedWords(text) {
		s.arousal += 1.0 + float64(utf8.RuneCountInString(m))*0.1
	}
	s.arousal += float64(len(capsWordRe.FindAllString(text, -1))) * 1.5
	if multiBangRe.MatchString(text) {
		s.arousal += 1.2
	}
	if multiQuestRe.MatchString(text) {
		s.arousal += 1.0
	}
	if ellipsisRe.MatchString(text) {
		s.arousal += 0.8
	}

	s.engagement = float64(len(questionRunRe.FindAllString(text, -1))) * 0.8
	switch words := len(strings.Fields(text)); {
	case words > 20:
		s.engagement += 2.0
	case words > 10:
		s.engagement += 1.0
	case words <= 3:
		s.engagement -= 0.5
	}

	s.regulation = max(0, 1.0-s.total()*0.1)
	return s
}

// emotionPercentages scores each emotion rule and normalises to 100. Text
// that trips no rule is reported as neutral/uncertain.
func emotionPercentages(text string) map[string]float64 {
	lower := strings.ToLower(text)
	raw := make(map[string]float64, len(emotionRules))
	var total float64

	for _, rule := range emotionRules {
		var score float64
		for _, k := range rule.keywords {
			if hasTerm(lower, k) {
				score += 2
			}
		}
		for _, e := range rule.emojis {
			if strings.Contains(text, e) {
				score += 3
			}
		}
		for _, k := range rule.intensifiers {
			if hasTerm(lower, k) {
				score += 1
			}
		}
		for _, p := range rule.phrases {
			if hasTerm(lower, p) {
				score += 2
			}
		}

		switch rule.name {
		case "joy":
			if strings.Contains(text, "!!!") || len(runs(lower, 4, isASCIILower)) > 0 {
				score += 3
			}
		case "anger":
			if strings.Contains(text, "!!!") || strings.Contains(text, "??") {
				score += 2
			}
		}

		raw[rule.name] = score
		total += score
	}

	out := make(map[string]float64)
	if total == 0 {
		out["neutral"] = 60
		out["uncertain"] = 40
		return out
	}
	for name, score := range raw {
		if score > 0 {
			out[name] = score / total * 100
		}
	}
	return out
}

// EmojiFinding is one decoded emoji and how strongly it signals its emotion.
type EmojiFinding struct {
	Emoji       string  `json:"emoji"`
	Emotion     string  `json:"emotion"`
	Count       int     `json:"count"`
	Boost       float64 `json:"confidence_boost"`
	Description string  `json:"description"`
}

// EmojiAnalysis summarises the decoded emoji.
type EmojiAnalysis struct {
	Found           []EmojiFinding `json:"emojis_found"`
	DominantEmotion string         `json:"dominant_emoji_emotion,omitempty"`
	DominantBoost   float64        `json:"dominant_boost"`
	StrongPositive  bool           `json:"has_strong_positive_signals"`
}

func decodeEmojis(text string) EmojiAnalysis {
	a := EmojiAnalysis{Found: []EmojiFinding{}}
	for _, d := range emojiDecoder {
		n := strings.Count(text, d.emoji)
		if n == 0 {
			continue
		}
		boost := d.boost * (1 + 0.2*float64(n-1))
		a.Found = append(a.Found, EmojiFinding{Emoji: d.emoji, Emotion: d.emotion, Count: n, Boost: boost, Description: d.description})
		if boost > a.DominantBoost {
			a.DominantBoost = boost
			a.DominantEmotion = d.emotion
		}
		if d.emotion == "joy" || d.emotion == "love" {
			a.StrongPositive = true
		}
	}
	return a
}

// Repetition is one run of a repeated letter, e.g. "sooooo".
type Repetition struct {
	Pattern string `json:"pattern"`
	Letter  string `json:"letter"`
	Count   int    `json:"repetition_count"`
}

func letterRepetitions(text string) []Repetition {
	out := []Repetition{}
	for _, r := range runs(text, 3, isWord) {
		out = append(out, Repetition{Pattern: r.text, Letter: string(r.char), Count: r.length})
	}
	return out
}

// detectPatterns lists the structural patterns in text. Short-message
// patterns are only reported when nothing positive offsets them.
func detectPatterns(text string, emoji EmojiAnalysis, reps []Repetition) []string {
	positive := emoji.StrongPositive || len(reps) > 0 || strings.Contains(text, "!")

	var found []string
	if !positive {
		switch words := len(strings.Fields(text)); {
		case words <= 10:
			found = append(found, PatternVeryShort)
		case words <= 25:
			found = append(found, PatternShort)
		}
	}

	if multiBangRe.MatchString(text) {
		found = append(found, PatternMultipleExclamation)
	}
	if multiQuestRe.MatchString(text) {
		found = append(found, PatternMultipleQuestion)
	}
	if ellipsisRe.MatchString(text) {
		found = append(found, PatternEllipsis)
	}
	if !positive && noTerminalPunc.MatchString(text) {
		found = append(found, PatternNoPunctuation)
	}
	if capsWordRe.MatchString(text) {
		found = append(found, PatternAllCaps)
	}
	if mixedCaseRe.MatchString(text) {
		found = append(found, PatternMixedCase)
	}
	if len(repeatedWords(text)) > 0 {
		found = append(found, PatternWordRepetition)
	}
	if len(runs(text, 3, func(r rune) bool { return r != '\n' })) > 0 {
		found = append(found, PatternLetterRepetition)
	}
	return found
}

type run struct {
	char   rune
	length int
	text   string
}

// runs finds maximal runs of at least atLeast case-insensitively equal runes
// that satisfy keep.
func runs(s string, atLeast int, keep func(rune) bool) []run {
	var out []run
	rs := []rune(s)
	for i := 0; i < len(rs); {
		j := i + 1
		for j < len(rs) && unicode.ToLower(rs[j]) == unicode.ToLower(rs[i]) {
			j++
		}
		if j-i >= atLeast && keep(rs[i]) {
			out = append(out, run{char: rs[i], length: j - i, text: string(rs[i:j])})
		}
		i = j
	}
	return out
}

// repeatedWords returns each "word word" pair, compared case-insensitively,
// where only whitespace separates the two. Pairs do not overlap.
func repeatedWords(s string) []string {
	type token struct {
		word       string
		start, end int
	}
	var tokens []token
	rs := []rune(s)
	for i := 0; i < len(rs); {
		if !isWord(rs[i]) {
			i++
			continue
		}
		j := i
		for j < len(rs) && isWord(rs[j]) {
			j++
		}
		tokens = append(tokens, token{word: string(rs[i:j]), start: i, end: j})
		i = j
	}

	var out []string
	for i := 0; i+1 < len(tokens); i++ {
		a, b := tokens[i], tokens[i+1]
		gap := string(rs[a.end:b.start])
		if gap == "" || strings.TrimSpace(gap) != "" || !strings.EqualFold(a.word, b.word) {
			continue
		}
		out = append(out, string(rs[a.start:b.end]))
		i++
	}
	return out
}

// hasTerm reports whether lower contains term. A term that starts or ends
// with a word character only matches on a word boundary at that end, so
// "hell" does not match "hello".
func hasTerm(lower, term string) bool {
	if term == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(term)
	last, _ := utf8.DecodeLastRuneInString(term)

	for from := 0; from <= len(lower); {
		i := strings.Index(lower[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)

		ok := true
		if isWord(first) && start > 0 {
			if r, _ := utf8.DecodeLastRuneInString(lower[:start]); isWord(r) {
				ok = false
			}
		}
		if ok && isWord(last) && end < len(lower) {
			if r, _ := utf8.DecodeRuneInString(lower[end:]); isWord(r) {
				ok = false
			}
		}
		if ok {
			return true
		}
		_, size := utf8.DecodeRuneInString(lower[start:])
		from = start + size
	}
	return false
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isASCIILower(r rune) bool {
	return r >= 'a' && r <= 'z'
}
