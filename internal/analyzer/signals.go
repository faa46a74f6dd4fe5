package analyzer

// Signal tables. They are data, not logic: tune them here.

var (
	positiveEmojis = []string{"😂", "🤣", "😊", "😁", "😄", "😃", "😀", "🙂", "❤️", "😍", "🥰", "😘"}
	negativeEmojis = []string{"😢", "😭", "😔", "😞", "😡", "😤", "🤬"}

	positiveExpressions = []string{"yay", "woohoo", "hurray", "hooray", "can't wait", "looking forward", "bring it on"}
	negativeExpressions = []string{"sigh", "ugh", "argh", "grr", "damn", "hell"}
)

type emojiSignal struct {
	emoji       string
	emotion     string
	boost       float64
	description string
}

// emojiDecoder maps single emoji to the emotion they most often carry.
var emojiDecoder = []emojiSignal{
	{"😂", "joy", 2.0, "laughing tears"},
	{"🤣", "joy", 2.0, "rolling laughter"},
	{"😊", "joy", 1.5, "smiling eyes"},
	{"😁", "joy", 1.5, "beaming face"},
	{"😄", "joy", 1.5, "grinning face"},
	{"😃", "joy", 1.3, "big smile"},
	{"😀", "joy", 1.2, "grinning"},
	{"🙂", "joy", 1.1, "slight smile"},

	{"😢", "sadness", 2.0, "crying"},
	{"😭", "sadness", 2.0, "loud crying"},
	{"😔", "sadness", 1.5, "pensive"},
	{"😞", "sadness", 1.5, "disappointed"},

	{"😡", "anger", 2.0, "pouting angry"},
	{"😤", "anger", 1.8, "huffing angry"},
	{"🤬", "anger", 2.0, "cursing"},

	{"😲", "surprise", 1.5, "astonished"},
	{"😮", "surprise", 1.3, "open mouth"},
	{"😯", "surprise", 1.2, "hushed"},

	{"❤️", "love", 2.0, "red heart"},
	{"😍", "love", 1.8, "heart eyes"},
	{"🥰", "love", 1.6, "smiling hearts"},
	{"😘", "love", 1.4, "blowing kiss"},
}

// emotionRule scores one emotion: 2 per keyword, 3 per emoji, 1 per
// intensifier and 2 per phrase.
type emotionRule struct {
	name         string
	keywords     []string
	emojis       []string
	intensifiers []string
	phrases      []string
}

var emotionRules = []emotionRule{
	{
		name:         "joy",
		keywords:     []string{"happy", "joy", "excited", "thrilled", "delighted", "cheerful", "glad", "pleased", "elated", "ecstatic", "wonderful", "amazing", "awesome", "fantastic", "brilliant", "perfect", "love", "adore", "cherish"},
		emojis:       []string{"😂", "🤣", "😊", "😁", "😄", "😃", "😀", "🙂", "😍", "🥰", "😘", "❤️", "💕", "💖", "💗", "🎉", "🎊", "✨", "🔥"},
		intensifiers: []string{"so", "very", "really", "extremely", "incredibly", "absolutely", "totally", "completely"},
		phrases:      []string{"!", "yay", "woohoo", "hurray", "hooray"},
	},
	{
		name:         "sadness",
		keywords:     []string{"sad", "depressed", "down", "blue", "melancholy", "sorrowful", "grief", "heartbroken", "devastated", "disappointed", "regret", "lonely", "empty", "hopeless", "despair", "cry", "tears", "miss", "lost"},
		emojis:       []string{"😢", "😭", "😔", "😞", "💔", "😟", "😥", "😰", "😿", "🙁", "🙍"},
		intensifiers: []string{"very", "really", "extremely", "deeply", "terribly", "awfully"},
		phrases:      []string{"...", "sigh", "ugh", "oh no", "too bad"},
	},
	{
		name:         "anger",
		keywords:     []string{"angry", "mad", "furious", "rage", "irritated", "annoyed", "frustrated", "pissed", "livid", "outraged", "incensed", "exasperated", "enraged", "hate", "despise", "loathe"},
		emojis:       []string{"😡", "😤", "🤬", "😠", "👿", "😾", "🙎"},
		intensifiers: []string{"so", "very", "really", "extremely", "absolutely", "completely", "totally"},
		phrases:      []string{"grr", "argh", "damn", "hell", "what the", "are you kidding me"},
	},
	{
		name:         "fear",
		keywords:     []string{"scared", "afraid", "terrified", "frightened", "worried", "anxious", "nervous", "panic", "dread", "fearful", "concerned", "apprehensive", "uneasy", "disturbed", "alarmed"},
		emojis:       []string{"😨", "😰", "😱", "😟", "😥", "😧", "😦", "😯", "😲"},
		intensifiers: []string{"so", "very", "really", "extremely", "absolutely", "completely"},
		phrases:      []string{"oh no", "what if", "i hope not", "i'm worried"},
	},
	{
		name:         "love",
		keywords:     []string{"love", "adore", "cherish", "devoted", "affection", "romantic", "sweet", "cute", "precious", "treasure", "beloved", "darling", "honey", "sweetheart"},
		emojis:       []string{"❤️", "💕", "💖", "💗", "💘", "💝", "💞", "💟", "❣️", "😍", "🥰", "😘", "💋"},
		intensifiers: []string{"so", "very", "really", "truly", "deeply", "absolutely"},
		phrases:      []string{"i love", "i adore", "my love", "my heart"},
	},
	{
		name:     "surprise",
		keywords: []string{"surprised", "amazed", "astonished", "shocked", "stunned", "bewildered", "confused", "puzzled", "perplexed", "startled", "unexpected", "sudden", "wow"},
		emojis:   []string{"😮", "😲", "😯", "😱", "🤯", "😳", "🙀", "😵"},
		phrases:  []string{"what", "oh my", "wow", "unbelievable", "incredible", "no way", "really", "are you serious"},
	},
	{
		name:     "neutral",
		keywords: []string{"fine", "okay", "alright", "normal", "regular", "standard", "usual", "typical", "ordinary", "common", "basic", "simple", "clear"},
		emojis:   []string{"😐", "😑", "🤔", "🙄", "😶"},
		phrases:  []string{".", "meh", "whatever", "i guess"},
	},
}

// Pattern names reported in the context analysis.
const (
	PatternVeryShort           = "very_short_message"
	PatternShort               = "short_message"
	PatternMultipleExclamation = "multiple_exclamation"
	PatternMultipleQuestion    = "multiple_question"
	PatternEllipsis            = "ellipsis"
	PatternNoPunctuation       = "no_punctuation"
	PatternAllCaps             = "all_caps_words"
	PatternMixedCase           = "mixed_case"
	PatternWordRepetition      = "word_repetition"
	PatternLetterRepetition    = "letter_repetition"
)

var patternPsychology = map[string]string{
	PatternVeryShort:           "Possible low energy, time pressure, or emotional shutdown",
	PatternShort:               "Efficiency focus, mild emotional restraint, or contextual communication",
	PatternMultipleExclamation: "High arousal, excitement, or emotional intensity",
	PatternMultipleQuestion:    "Confusion, urgency, or emotional overwhelm",
	PatternEllipsis:            "Uncertainty, sadness, hesitation, or thoughtfulness",
	PatternNoPunctuation:       "Casual communication, incomplete thoughts, or emotional flatness",
	PatternAllCaps:             "Emphasis, shouting, strong emotional emphasis",
	PatternMixedCase:           "Casual, playful, or attention-seeking",
	PatternWordRepetition:      "Emphasis, emotional intensity, or cognitive fixation",
	PatternLetterRepetition:    "Emotional emphasis, excitement, or childlike expression",
}

var patternMultiplier = map[string]float64{
	PatternVeryShort:           0.8,
	PatternShort:               0.9,
	PatternMultipleExclamation: 1.3,
	PatternMultipleQuestion:    1.2,
	PatternEllipsis:            1.1,
	PatternNoPunctuation:       0.95,
	PatternAllCaps:             1.4,
	PatternMixedCase:           1.1,
	PatternWordRepetition:      1.2,
	PatternLetterRepetition:    1.3,
}

// Psychological states.
const (
	StateHighPositiveArousal   = "high_positive_arousal"
	StatePositiveValence       = "positive_valence"
	StateHighNegativeArousal   = "high_negative_arousal"
	StateNegativeValence       = "negative_valence"
	StateHighIntensity         = "high_intensity_state"
	StateHighEngagement        = "high_engagement"
	StateLowEngagementShutdown = "low_engagement_shutdown"
	StateBriefCommunication    = "brief_communication"
	StateMixedValence          = "mixed_valence"
	StateNeutralRegulation     = "neutral_regulation"
)

// Recommended tools.
const (
	ToolMusic      = "music"
	ToolMeditation = "meditation"
	ToolWebSearch  = "web_search"
	ToolJournal    = "journal"
)

type route struct {
	tool      string
	reasoning string
}

var routes = map[string]route{
	StateHighPositiveArousal:   {ToolMusic, "High positive energy suggests music for mood enhancement"},
	StatePositiveValence:       {ToolMusic, "Positive state suggests mood-appropriate content"},
	StateHighNegativeArousal:   {ToolMeditation, "High negative arousal suggests calming activities"},
	StateNegativeValence:       {ToolMeditation, "Negative state suggests supportive content"},
	StateHighIntensity:         {ToolMeditation, "High intensity suggests need for regulation"},
	StateHighEngagement:        {ToolWebSearch, "High engagement suggests information-seeking behavior"},
	StateLowEngagementShutdown: {ToolMeditation, "Low engagement suggests need for gentle support"},
	StateBriefCommunication:    {ToolWebSearch, "Brief communication suggests direct information need"},
	StateMixedValence:          {ToolJournal, "Mixed states suggest reflective activities"},
	StateNeutralRegulation:     {ToolWebSearch, "Neutral state allows for general information seeking"},
}
