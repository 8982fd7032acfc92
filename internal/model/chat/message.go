package chat

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrDuplicateID    = errors.New("message id already exists")
)

// Sender identifies who wrote a message.
type Sender struct {
	ID   string `json:"id" bson:"id"`
	Name string `json:"name" bson:"name"`
}

// Message is an entry of a conversation log. Persisted messages are never modified.
type Message struct {
	ID             string                       `json:"id" bson:"_id"`
	ConversationID string                       `json:"conversationId" bson:"conversationId"`
	Sender         Sender                       `json:"sender" bson:"sender"`
	SenderLanguage string                       `json:"senderLanguage" bson:"senderLanguage"`
	OriginalText   string                       `json:"originalText" bson:"originalText"`
	Timestamp      time.Time                    `json:"timestamp" bson:"timestamp"`
	Sentiment      Sentiment                    `json:"sentiment" bson:"sentiment"`
	Translations   map[string]TranslationDetail `json:"translations" bson:"translations"`
}

// Validate checks the fields every store requires before append.
func (m Message) Validate() error {
	switch {
	case m.ID == "":
		return errors.Join(ErrInvalidMessage, errors.New("id is required"))
	case m.ConversationID == "":
		return errors.Join(ErrInvalidMessage, errors.New("conversation id is required"))
	case m.Sender.ID == "":
		return errors.Join(ErrInvalidMessage, errors.New("sender id is required"))
	case m.OriginalText == "":
		return errors.Join(ErrInvalidMessage, errors.New("text is required"))
	}
	return nil
}

// Clone returns a copy that shares no map with m.
func (m Message) Clone() Message {
	out := m
	out.Translations = make(map[string]TranslationDetail, len(m.Translations))
	for k, v := range m.Translations {
		out.Translations[k] = v
	}
	return out
}

// Store is the append-only message log, one ordered list per conversation.
type Store interface {
	// Append stamps msg with the server time and persists it.
	Append(ctx context.Context, msg Message) (Message, error)
	// List returns the conversation in ascending timestamp order.
	List(ctx context.Context, conversationID string) ([]Message, error)
}
