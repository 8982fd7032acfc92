package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/convosense/backend/internal/metrics"
	"github.com/zhouzirui/convosense/backend/internal/model/chat"
	"github.com/zhouzirui/convosense/backend/internal/model/language"
	"github.com/zhouzirui/convosense/backend/internal/model/user"
	"github.com/zhouzirui/convosense/backend/internal/service/ai"
	"github.com/zhouzirui/convosense/backend/pkg/logger"
)

var (
	ErrEmptyText        = errors.New("message text is empty")
	ErrLanguageUnset    = errors.New("sender or recipient language is not set")
	ErrInvalidRecipient = errors.New("recipient must be another user")
	ErrSentimentFailed  = errors.New("sentiment analysis failed")
	ErrPreviewPending   = errors.New("a preview is already pending")
	ErrSendInProgress   = errors.New("a send is already in progress for this conversation")
	ErrPreviewStale     = errors.New("preview is out of date, participant language changed")
)

// Preview conflict policies.
const (
	PolicyReplace = "replace"
	PolicyReject  = "reject"
)

// Send modes used in metrics.
const (
	modeDirect  = "direct"
	modePreview = "preview"
)

// Analyzer is the AI capability the orchestrator consumes.
type Analyzer interface {
	ClassifySentiment(ctx context.Context, text string) (ai.SentimentResult, error)
	Translate(ctx context.Context, req ai.TranslateRequest) (chat.TranslationDetail, error)
}

// Publisher is notified after every successful append.
type Publisher interface {
	Publish(ctx context.Context, conversationID string) error
}

// Draft is a fully analyzed message that has not been persisted.
type Draft struct {
	Message             chat.Message `json:"message"`
	SentimentConfidence float64      `json:"sentimentConfidence"`
	Warnings            []string     `json:"warnings"`
}

// Preview is the draft a sender is reviewing before confirming.
type Preview struct {
	Draft
	RecipientID       string    `json:"recipientId"`
	RecipientLanguage string    `json:"recipientLanguage"`
	CreatedAt         time.Time `json:"createdAt"`
}

// PreviewResult reports whether an earlier preview was discarded.
type PreviewResult struct {
	Preview  *Preview `json:"preview"`
	Replaced bool     `json:"replaced"`
}

// SendResult is the persisted message plus non-fatal warnings.
type SendResult struct {
	Message  chat.Message `json:"message"`
	Warnings []string     `json:"warnings"`
}

// Config controls orchestrator behavior.
type Config struct {
	PreviewPolicy string
}

// Orchestrator turns raw text into analyzed messages and drives the
// preview/confirm flow. Each (sender, conversation) pair owns at most one
// preview slot and at most one in-flight build.
type Orchestrator struct {
	analyzer  Analyzer
	store     chat.Store
	publisher Publisher
	languages *language.Registry
	policy    string
	metrics   *metrics.Metrics
	log       *logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	previews map[slotKey]*Preview
	inflight map[slotKey]struct{}
}

type slotKey struct {
	senderID       string
	conversationID string
}

// NewOrchestrator wires the send flow. publisher, m and log may be nil.
func NewOrchestrator(analyzer Analyzer, store chat.Store, publisher Publisher, cfg Config, m *metrics.Metrics, log *logger.Logger) *Orchestrator {
	policy := cfg.PreviewPolicy
	if policy != PolicyReject {
		policy = PolicyReplace
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Orchestrator{
		analyzer:  analyzer,
		store:     store,
		publisher: publisher,
		languages: language.Default,
		policy:    policy,
		metrics:   m,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		previews:  make(map[slotKey]*Preview),
		inflight:  make(map[slotKey]struct{}),
	}
}

// BuildMessagePayload validates text, classifies sentiment and translates
// when the participants use different languages. Translation failures are
// reported in Draft.Warnings; sentiment failures abort.
func (o *Orchestrator) BuildMessagePayload(ctx context.Context, text string, sender, recipient user.User) (*Draft, error) {
	if err := checkParticipants(sender, recipient); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if !sender.HasLanguage() || !recipient.HasLanguage() {
		return nil, ErrLanguageUnset
	}

	log := o.log.WithUserID(sender.ID)

	verdict, err := o.analyzer.ClassifySentiment(ctx, text)
	if err != nil {
		log.LogError(err, "sentiment analysis failed")
		return nil, fmt.Errorf("%w: %w", ErrSentimentFailed, err)
	}

	msg := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: chat.ConversationID(sender.ID, recipient.ID),
		Sender:         chat.Sender{ID: sender.ID, Name: sender.Name},
		SenderLanguage: sender.Language,
		OriginalText:   text,
		Sentiment:      verdict.Sentiment,
		Translations:   map[string]chat.TranslationDetail{},
	}
	draft := &Draft{Message: msg, SentimentConfidence: verdict.Confidence, Warnings: []string{}}

	if recipient.Language == sender.Language {
		return draft, nil
	}

	target := o.languages.Label(recipient.Language)
	detail, err := o.analyzer.Translate(ctx, ai.TranslateRequest{
		Text:           text,
		SourceLanguage: o.languages.Label(sender.Language),
		TargetLanguage: target,
	})
	if err != nil {
		log.Warn("translation failed, sending untranslated", "target", recipient.Language, "error", err.Error())
		o.metrics.TranslationFallback(recipient.Language)
		draft.Warnings = append(draft.Warnings, fmt.Sprintf("translation to %s unavailable: %v", target, err))
		return draft, nil
	}

	draft.Message.Translations[recipient.Language] = detail
	return draft, nil
}

// GeneratePreview builds a draft and parks it in the sender's preview slot.
func (o *Orchestrator) GeneratePreview(ctx context.Context, text string, sender, recipient user.User) (*PreviewResult, error) {
	if err := checkParticipants(sender, recipient); err != nil {
		return nil, err
	}
	key := slotKey{senderID: sender.ID, conversationID: chat.ConversationID(sender.ID, recipient.ID)}

	if o.policy == PolicyReject {
		if _, pending := o.PendingPreview(key.senderID, key.conversationID); pending {
			o.metrics.Preview("rejected")
			return nil, ErrPreviewPending
		}
	}

	if err := o.begin(key); err != nil {
		return nil, err
	}
	defer o.end(key)

	draft, err := o.BuildMessagePayload(ctx, text, sender, recipient)
	if err != nil {
		return nil, err
	}

	preview := &Preview{
		Draft:             *draft,
		RecipientID:       recipient.ID,
		RecipientLanguage: recipient.Language,
		CreatedAt:         o.now(),
	}

	o.mu.Lock()
	_, replaced := o.previews[key]
	if replaced && o.policy == PolicyReject {
		o.mu.Unlock()
		o.metrics.Preview("rejected")
		return nil, ErrPreviewPending
	}
	o.previews[key] = preview
	o.mu.Unlock()

	if replaced {
		o.metrics.Preview("replaced")
	} else {
		o.metrics.Preview("created")
	}
	return &PreviewResult{Preview: clonePreview(preview), Replaced: replaced}, nil
}

// PendingPreview returns a copy of the sender's pending preview.
func (o *Orchestrator) PendingPreview(senderID, conversationID string) (*Preview, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.previews[slotKey{senderID: senderID, conversationID: conversationID}]
	if !ok {
		return nil, false
	}
	return clonePreview(p), true
}

// ConfirmSend persists the pending preview. It returns nil, nil when
// nothing is pending. The preview leaves its slot before the append, so a
// concurrent CancelPreview finds nothing to cancel; on append failure it is
// put back. A preview built for languages the participants no longer use
// is discarded with ErrPreviewStale.
func (o *Orchestrator) ConfirmSend(ctx context.Context, sender, recipient user.User) (*chat.Message, error) {
	if err := checkParticipants(sender, recipient); err != nil {
		return nil, err
	}
	key := slotKey{senderID: sender.ID, conversationID: chat.ConversationID(sender.ID, recipient.ID)}

	if err := o.begin(key); err != nil {
		return nil, err
	}
	defer o.end(key)

	o.mu.Lock()
	preview, ok := o.previews[key]
	delete(o.previews, key)
	o.mu.Unlock()
	if !ok {
		return nil, nil
	}

	if preview.RecipientLanguage != recipient.Language || preview.Message.SenderLanguage != sender.Language {
		o.metrics.Preview("stale")
		o.log.Info("discarding stale preview", "conversation", key.conversationID,
			"preview_language", preview.RecipientLanguage, "recipient_language", recipient.Language)
		return nil, ErrPreviewStale
	}

	stored, err := o.persist(ctx, preview.Message, modePreview)
	if err != nil {
		o.mu.Lock()
		if _, taken := o.previews[key]; !taken {
			o.previews[key] = preview
		}
		o.mu.Unlock()
		return nil, err
	}
	o.metrics.Preview("confirmed")

	return &stored, nil
}

// CancelPreview clears the slot and reports whether a preview existed.
func (o *Orchestrator) CancelPreview(senderID, conversationID string) bool {
	key := slotKey{senderID: senderID, conversationID: conversationID}

	o.mu.Lock()
	_, ok := o.previews[key]
	delete(o.previews, key)
	o.mu.Unlock()

	if ok {
		o.metrics.Preview("cancelled")
	}
	return ok
}

// SendMessage builds and persists a message without a preview step.
func (o *Orchestrator) SendMessage(ctx context.Context, text string, sender, recipient user.User) (*SendResult, error) {
	if err := checkParticipants(sender, recipient); err != nil {
		return nil, err
	}
	key := slotKey{senderID: sender.ID, conversationID: chat.ConversationID(sender.ID, recipient.ID)}

	if err := o.begin(key); err != nil {
		return nil, err
	}
	defer o.end(key)

	draft, err := o.BuildMessagePayload(ctx, text, sender, recipient)
	if err != nil {
		return nil, err
	}

	stored, err := o.persist(ctx, draft.Message, modeDirect)
	if err != nil {
		return nil, err
	}
	return &SendResult{Message: stored, Warnings: draft.Warnings}, nil
}

// IsSending reports whether a build or append is running for the pair.
func (o *Orchestrator) IsSending(senderID, conversationID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy := o.inflight[slotKey{senderID: senderID, conversationID: conversationID}]
	return busy
}

func (o *Orchestrator) persist(ctx context.Context, msg chat.Message, mode string) (chat.Message, error) {
	stored, err := o.store.Append(ctx, msg)
	o.metrics.MessageAppended(mode, err)
	if err != nil {
		o.log.LogError(err, "append message failed", "conversation", msg.ConversationID, "mode", mode)
		return chat.Message{}, fmt.Errorf("append message: %w", err)
	}

	if o.publisher != nil {
		if err := o.publisher.Publish(ctx, stored.ConversationID); err != nil {
			o.log.Warn("feed publish failed", "conversation", stored.ConversationID, "error", err.Error())
		}
	}

	o.log.Info("message appended", "conversation", stored.ConversationID, "message_id", stored.ID, "mode", mode,
		"sentiment", string(stored.Sentiment), "translations", len(stored.Translations))
	return stored, nil
}

func (o *Orchestrator) begin(key slotKey) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[key]; busy {
		return ErrSendInProgress
	}
	o.inflight[key] = struct{}{}
	return nil
}

func (o *Orchestrator) end(key slotKey) {
	o.mu.Lock()
	delete(o.inflight, key)
	o.mu.Unlock()
}

func checkParticipants(sender, recipient user.User) error {
	if sender.ID == "" || recipient.ID == "" || sender.ID == recipient.ID {
		return ErrInvalidRecipient
	}
	return nil
}

func clonePreview(p *Preview) *Preview {
	out := *p
	out.Message = p.Message.Clone()
	out.Warnings = append([]string{}, p.Warnings...)
	return &out
}
