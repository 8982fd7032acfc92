package sentiment

import (
	"testing"

	"github.com/zhouzirui/convosense/backend/internal/model/chat"
)

func TestAnalyzeGreetingIsPositive(t *testing.T) {
	decision := Analyze("Good morning!")
	if decision.Sentiment != chat.Positive {
		t.Fatalf("expected positive, got %s", decision.Sentiment)
	}
	if decision.Confidence <= 0 || decision.Confidence > 1 {
		t.Fatalf("confidence out of range: %f", decision.Confidence)
	}
}

func TestAnalyzeNegation(t *testing.T) {
	decision := Analyze("this is not good")
	if decision.Sentiment != chat.Negative {
		t.Fatalf("expected negative, got %s", decision.Sentiment)
	}
}

func TestAnalyzeNeutralWithoutKeywords(t *testing.T) {
	decision := Analyze("hi")
	if decision.Sentiment != chat.Neutral {
		t.Fatalf("expected neutral, got %s", decision.Sentiment)
	}
}

func TestAnalyzeEmptyIsUnknown(t *testing.T) {
	if got := Analyze("   ").Sentiment; got != chat.Unknown {
		t.Fatalf("expected unknown, got %s", got)
	}
}

func TestAnalyzeNonEnglish(t *testing.T) {
	if got := Analyze("谢谢你，太好了").Sentiment; got != chat.Positive {
		t.Fatalf("expected positive, got %s", got)
	}
	if got := Analyze("estoy muy triste").Sentiment; got != chat.Negative {
		t.Fatalf("expected negative, got %s", got)
	}
}

func TestAnalyzeMatchesWholeWordsOnly(t *testing.T) {
	for _, text := range []string{
		"we encrypt the backups",
		"badminton at six",
		"clean the gutter",
		"supergroup meeting",
	} {
		if got := Analyze(text).Sentiment; got != chat.Neutral {
			t.Fatalf("%q: expected neutral, got %s", text, got)
		}
	}

	if got := Analyze("that was bad, really").Sentiment; got != chat.Negative {
		t.Fatalf("expected negative, got %s", got)
	}
	if got := Analyze("Sehr gut!").Sentiment; got != chat.Positive {
		t.Fatalf("expected positive, got %s", got)
	}
}
