package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/convosense/backend/internal/model/chat"
	"github.com/zhouzirui/convosense/backend/internal/model/user"
	"github.com/zhouzirui/convosense/backend/internal/service/ai"
	"github.com/zhouzirui/convosense/backend/internal/storage/memory"
)

type fakeAnalyzer struct {
	mu             sync.Mutex
	sentimentCalls int
	translateCalls []ai.TranslateRequest
	sentimentErr   error
	translateErr   error
	gate           chan struct{}
}

func (f *fakeAnalyzer) ClassifySentiment(_ context.Context, _ string) (ai.SentimentResult, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentimentCalls++
	if f.sentimentErr != nil {
		return ai.SentimentResult{}, f.sentimentErr
	}
	return ai.SentimentResult{Sentiment: chat.Positive, Confidence: 0.9}, nil
}

func (f *fakeAnalyzer) Translate(_ context.Context, req ai.TranslateRequest) (chat.TranslationDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.translateCalls = append(f.translateCalls, req)
	if f.translateErr != nil {
		return chat.TranslationDetail{}, f.translateErr
	}
	return chat.TranslationDetail{
		TranslatedText: "¡Buenos días!",
		Source:         chat.TranslationSource,
		Formality:      "neutral",
	}, nil
}

type failingStore struct{ err error }

func (s failingStore) Append(context.Context, chat.Message) (chat.Message, error) {
	return chat.Message{}, s.err
}

func (s failingStore) List(context.Context, string) ([]chat.Message, error) {
	return []chat.Message{}, nil
}

// gatedStore blocks Append until gate is closed.
type gatedStore struct {
	*memory.MessageStore
	gate chan struct{}
}

func (s gatedStore) Append(ctx context.Context, msg chat.Message) (chat.Message, error) {
	<-s.gate
	return s.MessageStore.Append(ctx, msg)
}

type countingPublisher struct {
	mu  sync.Mutex
	ids []string
}

func (p *countingPublisher) Publish(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return nil
}

var (
	alice = user.User{ID: "alice", Name: "Alice", Language: "en-US"}
	bob   = user.User{ID: "bob", Name: "Bob", Language: "es-ES"}
	carol = user.User{ID: "carol", Name: "Carol", Language: "en-US"}
)

func newOrchestrator(analyzer Analyzer, store chat.Store, policy string) (*Orchestrator, *countingPublisher) {
	pub := &countingPublisher{}
	return NewOrchestrator(analyzer, store, pub, Config{PreviewPolicy: policy}, nil, nil), pub
}

func TestBuildMessagePayloadRejectsEmptyAndUnsetLanguage(t *testing.T) {
	fa := &fakeAnalyzer{}
	o, _ := newOrchestrator(fa, memory.NewMessageStore(), "")
	ctx := context.Background()

	for _, text := range []string{"", "   ", "\n\t"} {
		draft, err := o.BuildMessagePayload(ctx, text, alice, bob)
		assert.Nil(t, draft)
		assert.ErrorIs(t, err, ErrEmptyText)
	}

	noLang := user.User{ID: "dave", Name: "Dave"}
	draft, err := o.BuildMessagePayload(ctx, "hello", alice, noLang)
	assert.Nil(t, draft)
	assert.ErrorIs(t, err, ErrLanguageUnset)

	draft, err = o.BuildMessagePayload(ctx, "hello", noLang, alice)
	assert.Nil(t, draft)
	assert.ErrorIs(t, err, ErrLanguageUnset)

	assert.Zero(t, fa.sentimentCalls)
	assert.Empty(t, fa.translateCalls)
}

func TestBuildMessagePayloadSameLanguageSkipsTranslation(t *testing.T) {
	fa := &fakeAnalyzer{}
	o, _ := newOrchestrator(fa, memory.NewMessageStore(), "")

	draft, err := o.BuildMessagePayload(context.Background(), "hi", alice, carol)
	require.NoError(t, err)
	assert.Empty(t, draft.Message.Translations)
	assert.NotNil(t, draft.Message.Translations)
	assert.Equal(t, chat.Positive, draft.Message.Sentiment)
	assert.Equal(t, 1, fa.sentimentCalls)
	assert.Empty(t, fa.translateCalls)
	assert.Equal(t, "alice_carol", draft.Message.ConversationID)
}

func TestBuildMessagePayloadTranslatesForRecipient(t *testing.T) {
	fa := &fakeAnalyzer{}
	o, _ := newOrchestrator(fa, memory.NewMessageStore(), "")

	draft, err := o.BuildMessagePayload(context.Background(), "Good morning!", alice, bob)
	require.NoError(t, err)

	require.Len(t, draft.Message.Translations, 1)
	detail, ok := draft.Message.Translations["es-ES"]
	require.True(t, ok)
	assert.Equal(t, "¡Buenos días!", detail.TranslatedText)

	require.Len(t, fa.translateCalls, 1)
	assert.Equal(t, "English", fa.translateCalls[0].SourceLanguage)
	assert.Equal(t, "Spanish", fa.translateCalls[0].TargetLanguage)

	assert.NotEmpty(t, draft.Message.ID)
	assert.Equal(t, "alice_bob", draft.Message.ConversationID)
	assert.Equal(t, chat.Sender{ID: "alice", Name: "Alice"}, draft.Message.Sender)
	assert.Equal(t, "en-US", draft.Message.SenderLanguage)
	assert.Empty(t, draft.Warnings)
}

func TestTranslationFailureStillProducesMessage(t *testing.T) {
	fa := &fakeAnalyzer{translateErr: errors.New("quota exceeded")}
	store := memory.NewMessageStore()
	o, _ := newOrchestrator(fa, store, "")

	res, err := o.SendMessage(context.Background(), "Good morning!", alice, bob)
	require.NoError(t, err)
	assert.Empty(t, res.Message.Translations)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Spanish")

	msgs, err := store.List(context.Background(), "alice_bob")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSentimentFailureProducesNoMessage(t *testing.T) {
	fa := &fakeAnalyzer{sentimentErr: errors.New("model offline")}
	store := memory.NewMessageStore()
	o, pub := newOrchestrator(fa, store, "")
	ctx := context.Background()

	_, err := o.SendMessage(ctx, "hello", alice, bob)
	assert.ErrorIs(t, err, ErrSentimentFailed)

	_, err = o.GeneratePreview(ctx, "hello", alice, bob)
	assert.ErrorIs(t, err, ErrSentimentFailed)

	msgs, _ := store.List(ctx, "alice_bob")
	assert.Empty(t, msgs)
	assert.Empty(t, fa.translateCalls)
	assert.Empty(t, pub.ids)
	_, pending := o.PendingPreview("alice", "alice_bob")
	assert.False(t, pending)
}

func TestSendMessagePersistsAndPublishes(t *testing.T) {
	store := memory.NewMessageStore()
	o, pub := newOrchestrator(&fakeAnalyzer{}, store, "")

	res, err := o.SendMessage(context.Background(), "hi", alice, carol)
	require.NoError(t, err)
	assert.False(t, res.Message.Timestamp.IsZero())
	assert.Equal(t, []string{"alice_carol"}, pub.ids)
	assert.False(t, o.IsSending("alice", "alice_carol"))
}

func TestPreviewConfirmFlow(t *testing.T) {
	store := memory.NewMessageStore()
	o, pub := newOrchestrator(&fakeAnalyzer{}, store, "")
	ctx := context.Background()

	res, err := o.GeneratePreview(ctx, "Good morning!", alice, bob)
	require.NoError(t, err)
	assert.False(t, res.Replaced)

	msgs, _ := store.List(ctx, "alice_bob")
	assert.Empty(t, msgs, "preview must not touch the store")

	pending, ok := o.PendingPreview("alice", "alice_bob")
	require.True(t, ok)
	assert.Equal(t, res.Preview.Message.ID, pending.Message.ID)

	stored, err := o.ConfirmSend(ctx, alice, bob)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, res.Preview.Message.ID, stored.ID)
	assert.False(t, stored.Timestamp.IsZero())

	_, ok = o.PendingPreview("alice", "alice_bob")
	assert.False(t, ok)
	assert.Equal(t, []string{"alice_bob"}, pub.ids)

	again, err := o.ConfirmSend(ctx, alice, bob)
	assert.NoError(t, err)
	assert.Nil(t, again)
}

func TestCancelThenConfirmIsNoop(t *testing.T) {
	store := memory.NewMessageStore()
	o, _ := newOrchestrator(&fakeAnalyzer{}, store, "")
	ctx := context.Background()

	_, err := o.GeneratePreview(ctx, "hello", alice, bob)
	require.NoError(t, err)

	assert.True(t, o.CancelPreview("alice", "alice_bob"))
	assert.False(t, o.CancelPreview("alice", "alice_bob"))

	stored, err := o.ConfirmSend(ctx, alice, bob)
	assert.NoError(t, err)
	assert.Nil(t, stored)

	msgs, _ := store.List(ctx, "alice_bob")
	assert.Empty(t, msgs)
}

func TestSecondPreviewReplacesFirst(t *testing.T) {
	store := memory.NewMessageStore()
	o, _ := newOrchestrator(&fakeAnalyzer{}, store, PolicyReplace)
	ctx := context.Background()

	first, err := o.GeneratePreview(ctx, "first", alice, bob)
	require.NoError(t, err)
	second, err := o.GeneratePreview(ctx, "second", alice, bob)
	require.NoError(t, err)
	assert.True(t, second.Replaced)

	stored, err := o.ConfirmSend(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, second.Preview.Message.ID, stored.ID)
	assert.NotEqual(t, first.Preview.Message.ID, stored.ID)

	msgs, _ := store.List(ctx, "alice_bob")
	require.Len(t, msgs, 1)
	assert.Equal(t, "second", msgs[0].OriginalText)
}

func TestRejectPolicyKeepsFirstPreview(t *testing.T) {
	fa := &fakeAnalyzer{}
	o, _ := newOrchestrator(fa, memory.NewMessageStore(), PolicyReject)
	ctx := context.Background()

	_, err := o.GeneratePreview(ctx, "first", alice, bob)
	require.NoError(t, err)
	calls := fa.sentimentCalls

	_, err = o.GeneratePreview(ctx, "second", alice, bob)
	assert.ErrorIs(t, err, ErrPreviewPending)
	assert.Equal(t, calls, fa.sentimentCalls)

	pending, ok := o.PendingPreview("alice", "alice_bob")
	require.True(t, ok)
	assert.Equal(t, "first", pending.Message.OriginalText)
}

func TestPreviewSlotsArePerSender(t *testing.T) {
	o, _ := newOrchestrator(&fakeAnalyzer{}, memory.NewMessageStore(), PolicyReject)
	ctx := context.Background()

	bobEN := user.User{ID: "bob", Name: "Bob", Language: "en-US"}
	_, err := o.GeneratePreview(ctx, "from alice", alice, bobEN)
	require.NoError(t, err)
	_, err = o.GeneratePreview(ctx, "from bob", bobEN, alice)
	require.NoError(t, err)
}

func TestAppendFailureKeepsPreviewPending(t *testing.T) {
	o, pub := newOrchestrator(&fakeAnalyzer{}, failingStore{err: errors.New("disk full")}, "")
	ctx := context.Background()

	_, err := o.GeneratePreview(ctx, "hello", alice, bob)
	require.NoError(t, err)

	stored, err := o.ConfirmSend(ctx, alice, bob)
	require.Error(t, err)
	assert.Nil(t, stored)

	_, ok := o.PendingPreview("alice", "alice_bob")
	assert.True(t, ok)
	assert.Empty(t, pub.ids)
}

func TestConcurrentSendIsRejected(t *testing.T) {
	fa := &fakeAnalyzer{gate: make(chan struct{})}
	o, _ := newOrchestrator(fa, memory.NewMessageStore(), "")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := o.SendMessage(ctx, "first", alice, bob)
		done <- err
	}()

	require.Eventually(t, func() bool { return o.IsSending("alice", "alice_bob") }, time.Second, 5*time.Millisecond)

	_, err := o.SendMessage(ctx, "second", alice, bob)
	assert.ErrorIs(t, err, ErrSendInProgress)
	_, err = o.GeneratePreview(ctx, "third", alice, bob)
	assert.ErrorIs(t, err, ErrSendInProgress)

	close(fa.gate)
	require.NoError(t, <-done)
	assert.False(t, o.IsSending("alice", "alice_bob"))
}

func TestCannotMessageSelf(t *testing.T) {
	o, _ := newOrchestrator(&fakeAnalyzer{}, memory.NewMessageStore(), "")

	_, err := o.SendMessage(context.Background(), "hi", alice, alice)
	assert.ErrorIs(t, err, ErrInvalidRecipient)
}

func TestCancelDuringConfirmDoesNotReportCancelled(t *testing.T) {
	store := gatedStore{MessageStore: memory.NewMessageStore(), gate: make(chan struct{})}
	o, _ := newOrchestrator(&fakeAnalyzer{}, store, "")
	ctx := context.Background()

	_, err := o.GeneratePreview(ctx, "hello", alice, bob)
	require.NoError(t, err)

	type confirmed struct {
		msg *chat.Message
		err error
	}
	done := make(chan confirmed, 1)
	go func() {
		msg, err := o.ConfirmSend(ctx, alice, bob)
		done <- confirmed{msg, err}
	}()

	require.Eventually(t, func() bool {
		_, pending := o.PendingPreview("alice", "alice_bob")
		return o.IsSending("alice", "alice_bob") && !pending
	}, time.Second, 5*time.Millisecond)

	assert.False(t, o.CancelPreview("alice", "alice_bob"), "a preview being committed is not cancellable")

	close(store.gate)
	res := <-done
	require.NoError(t, res.err)
	require.NotNil(t, res.msg)

	msgs, _ := store.List(ctx, "alice_bob")
	assert.Len(t, msgs, 1)
	_, pending := o.PendingPreview("alice", "alice_bob")
	assert.False(t, pending)
}

func TestConfirmRejectsPreviewAfterRecipientLanguageChange(t *testing.T) {
	store := memory.NewMessageStore()
	o, pub := newOrchestrator(&fakeAnalyzer{}, store, "")
	ctx := context.Background()

	res, err := o.GeneratePreview(ctx, "Good morning!", alice, bob)
	require.NoError(t, err)
	assert.Equal(t, "es-ES", res.Preview.RecipientLanguage)

	bobFR := bob
	bobFR.Language = "fr-FR"
	stored, err := o.ConfirmSend(ctx, alice, bobFR)
	assert.ErrorIs(t, err, ErrPreviewStale)
	assert.Nil(t, stored)

	msgs, _ := store.List(ctx, "alice_bob")
	assert.Empty(t, msgs)
	assert.Empty(t, pub.ids)
	_, pending := o.PendingPreview("alice", "alice_bob")
	assert.False(t, pending, "stale preview is discarded")
}

func TestConfirmRejectsPreviewAfterSenderLanguageChange(t *testing.T) {
	o, _ := newOrchestrator(&fakeAnalyzer{}, memory.NewMessageStore(), "")
	ctx := context.Background()

	_, err := o.GeneratePreview(ctx, "hello", alice, bob)
	require.NoError(t, err)

	aliceJA := alice
	aliceJA.Language = "ja-JP"
	_, err = o.ConfirmSend(ctx, aliceJA, bob)
	assert.ErrorIs(t, err, ErrPreviewStale)
}
