package chat

import "strings"

// Sentiment is the coarse emotional class of a message.
type Sentiment string

const (
	Positive Sentiment = "positive"
	Negative Sentiment = "negative"
	Neutral  Sentiment = "neutral"
	Unknown  Sentiment = "unknown"
)

// ParseSentiment maps free-form classifier output onto the enum.
func ParseSentiment(raw string) Sentiment {
	switch Sentiment(strings.ToLower(strings.TrimSpace(raw))) {
	case Positive:
		return Positive
	case Negative:
		return Negative
	case Neutral:
		return Neutral
	default:
		return Unknown
	}
}
