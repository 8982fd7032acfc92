package sentiment

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zhouzirui/convosense/backend/internal/model/chat"
)

// Decision is the keyword classifier's verdict.
type Decision struct {
	Sentiment  chat.Sentiment
	Confidence float64
	Score      int
}

var keywordBuckets = map[chat.Sentiment][]string{
	chat.Positive: {
		"good", "great", "awesome", "amazing", "love", "thanks", "thank you", "happy", "glad", "nice",
		"wonderful", "excellent", "congrats", "yay", "lol", "haha",
		"gracias", "bueno", "genial", "merci", "super", "danke", "gut", "obrigado", "ótimo",
		"ありがとう", "嬉しい", "谢谢", "开心", "太好了", "спасибо", "отлично", "شكرا", "धन्यवाद",
	},
	chat.Negative: {
		"bad", "sad", "angry", "hate", "terrible", "awful", "upset", "sorry", "annoyed", "worst",
		"disappointed", "hurt", "furious", "cry",
		"malo", "triste", "mauvais", "schlecht", "ruim",
		"悲しい", "最悪", "难过", "生气", "плохо", "грустно", "سيء", "बुरा",
	},
}

// negators flip a match that directly follows them ("not good").
var negators = []string{"not ", "no ", "never ", "don't ", "isn't ", "wasn't "}

// Analyze classifies text by keyword hits. Text with no hits is neutral.
func Analyze(text string) Decision {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Decision{Sentiment: chat.Unknown}
	}

	scores := make(map[chat.Sentiment]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			idx := findKeyword(normalized, word)
			if idx < 0 {
				continue
			}
			if negated(normalized[:idx]) {
				scores[opposite(label)] += 3
				continue
			}
			scores[label] += 3
		}
	}

	if strings.Contains(text, "!") && scores[chat.Positive] > 0 {
		scores[chat.Positive]++
	}

	pos, neg := scores[chat.Positive], scores[chat.Negative]
	switch {
	case pos == 0 && neg == 0:
		return Decision{Sentiment: chat.Neutral, Confidence: 0.3}
	case pos == neg:
		return Decision{Sentiment: chat.Neutral, Confidence: 0.4, Score: pos}
	case pos > neg:
		return Decision{Sentiment: chat.Positive, Confidence: confidence(pos - neg), Score: pos - neg}
	default:
		return Decision{Sentiment: chat.Negative, Confidence: confidence(neg - pos), Score: neg - pos}
	}
}

// findKeyword returns the index of the first match of word in text, or -1.
// Latin-script keywords must sit on word boundaries ("bad" does not match
// "badminton"); other scripts match as substrings.
func findKeyword(text, word string) int {
	if !isLatin(word) {
		return strings.Index(text, word)
	}
	for offset := 0; offset < len(text); {
		idx := strings.Index(text[offset:], word)
		if idx < 0 {
			return -1
		}
		start, end := offset+idx, offset+idx+len(word)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return start
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return -1
}

func isLatin(word string) bool {
	for _, r := range word {
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return false
		}
	}
	return true
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func negated(prefix string) bool {
	for _, n := range negators {
		if strings.HasSuffix(prefix, n) {
			return true
		}
	}
	return false
}

func opposite(label chat.Sentiment) chat.Sentiment {
	if label == chat.Positive {
		return chat.Negative
	}
	return chat.Positive
}

func confidence(margin int) float64 {
	c := 0.5 + float64(margin)/20
	if c > 0.9 {
		return 0.9
	}
	return c
}
