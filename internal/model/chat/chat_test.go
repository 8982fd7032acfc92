package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationIDIsSymmetric(t *testing.T) {
	assert.Equal(t, ConversationID("bob", "alice"), ConversationID("alice", "bob"))
	assert.Equal(t, "alice_bob", ConversationID("bob", "alice"))
}

func TestParseSentiment(t *testing.T) {
	cases := map[string]Sentiment{
		"Positive":  Positive,
		" negative": Negative,
		"NEUTRAL\n": Neutral,
		"mixed":     Unknown,
		"":          Unknown,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseSentiment(raw), "raw=%q", raw)
	}
}

func TestMessageValidate(t *testing.T) {
	valid := Message{ID: "m1", ConversationID: "a_b", Sender: Sender{ID: "a"}, OriginalText: "hi"}
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.OriginalText = ""
	assert.True(t, errors.Is(missing.Validate(), ErrInvalidMessage))
}

func TestCloneCopiesTranslations(t *testing.T) {
	msg := Message{Translations: map[string]TranslationDetail{"es-ES": {TranslatedText: "hola"}}}
	cp := msg.Clone()
	cp.Translations["fr-FR"] = TranslationDetail{TranslatedText: "salut"}
	assert.Len(t, msg.Translations, 1)

	empty := Message{}.Clone()
	assert.NotNil(t, empty.Translations)
}
