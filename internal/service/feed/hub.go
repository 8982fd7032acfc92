package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/zhouzirui/convosense/backend/internal/metrics"
	"github.com/zhouzirui/convosense/backend/internal/model/chat"
	"github.com/zhouzirui/convosense/backend/pkg/logger"
)

var ErrClosed = errors.New("feed hub closed")

// Lister loads a conversation snapshot.
type Lister interface {
	List(ctx context.Context, conversationID string) ([]chat.Message, error)
}

// Notifier forwards "conversation changed" signals between instances.
// The relay must eventually call Broadcast on every hub, this one included.
type Notifier interface {
	Notify(ctx context.Context, conversationID string) error
}

type subscriber struct {
	conversationID string
	ch             chan []chat.Message
	done           chan struct{}
	lastSeq        uint64
}

// Hub fans conversation snapshots out to live subscribers.
type Hub struct {
	store    Lister
	notifier Notifier
	metrics  *metrics.Metrics
	log      *logger.Logger

	mu     sync.Mutex
	seq    uint64
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

// NewHub creates a hub reading snapshots from store.
func NewHub(store Lister, m *metrics.Metrics, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Discard()
	}
	return &Hub{
		store:   store,
		metrics: m,
		log:     log,
		subs:    make(map[string]map[*subscriber]struct{}),
	}
}

// SetNotifier routes Publish through a cross-instance relay.
func (h *Hub) SetNotifier(n Notifier) {
	h.mu.Lock()
	h.notifier = n
	h.mu.Unlock()
}

// Subscribe streams snapshots of conversationID, starting with the current one.
// The channel holds at most the latest snapshot and closes when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, conversationID string) (<-chan []chat.Message, error) {
	sub := &subscriber{conversationID: conversationID, ch: make(chan []chat.Message, 1), done: make(chan struct{})}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	set, ok := h.subs[conversationID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[conversationID] = set
	}
	set[sub] = struct{}{}
	h.seq++
	seq := h.seq
	h.mu.Unlock()
	h.metrics.SubscriberAdded()

	go func() {
		select {
		case <-ctx.Done():
			h.unsubscribe(sub)
		case <-sub.done:
		}
	}()

	snapshot, err := h.store.List(ctx, conversationID)
	if err != nil {
		h.unsubscribe(sub)
		return nil, err
	}

	h.mu.Lock()
	h.deliver(sub, seq, snapshot)
	h.mu.Unlock()

	return sub.ch, nil
}

// Publish announces a change to conversationID.
func (h *Hub) Publish(ctx context.Context, conversationID string) error {
	h.mu.Lock()
	n := h.notifier
	h.mu.Unlock()

	if n != nil {
		err := n.Notify(ctx, conversationID)
		if err == nil {
			return nil
		}
		h.log.Warn("feed relay notify failed, broadcasting locally", "conversation", conversationID, "error", err.Error())
	}
	return h.Broadcast(ctx, conversationID)
}

// Broadcast reloads the snapshot and delivers it to local subscribers.
func (h *Hub) Broadcast(ctx context.Context, conversationID string) error {
	h.mu.Lock()
	if len(h.subs[conversationID]) == 0 {
		h.mu.Unlock()
		return nil
	}
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	snapshot, err := h.store.List(ctx, conversationID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[conversationID] {
		h.deliver(sub, seq, snapshot)
	}
	return nil
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, set := range h.subs {
		for sub := range set {
			close(sub.ch)
			close(sub.done)
			h.metrics.SubscriberRemoved()
		}
	}
	h.subs = make(map[string]map[*subscriber]struct{})
}

// Subscribers reports the live subscriber count for a conversation.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[conversationID])
}

// deliver must be called with h.mu held. Snapshots older than the last
// delivered one are dropped; a pending unread snapshot is replaced.
func (h *Hub) deliver(sub *subscriber, seq uint64, snapshot []chat.Message) {
	if _, live := h.subs[sub.conversationID][sub]; !live {
		return
	}
	if seq <= sub.lastSeq {
		return
	}
	sub.lastSeq = seq

	copied := make([]chat.Message, len(snapshot))
	for i, m := range snapshot {
		copied[i] = m.Clone()
	}

	select {
	case <-sub.ch:
	default:
	}
	sub.ch <- copied
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[sub.conversationID]
	if !ok {
		return
	}
	if _, live := set[sub]; !live {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.conversationID)
	}
	close(sub.ch)
	close(sub.done)
	h.metrics.SubscriberRemoved()
}
