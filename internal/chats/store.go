// Package chats maintains the client's local projection of backend
// conversations: the chat list, per-chat message history, and the resolution
// of the chat voice messages are sent to.
//
// The projection is rebuilt from the backend after every authentication and
// dropped when the session closes; nothing in it is persisted locally.
package chats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/transport"
)

// ErrNoTargetChat is returned when no target chat can be resolved: none is
// configured and the backend reported no chats.
var ErrNoTargetChat = errors.New("chats: no target chat available")

// Store is the in-memory chat projection. It is safe for concurrent use.
type Store struct {
	// target is the configured chat ID; empty means "first chat by recency".
	target string

	mu     sync.RWMutex
	chats  []transport.Chat
	byChat map[string][]transport.Message
	seen   map[string]struct{}
}

// NewStore creates an empty store. targetChatID may be empty, in which case
// the first preloaded chat becomes the send target.
func NewStore(targetChatID string) *Store {
	return &Store{
		target: targetChatID,
		byChat: make(map[string][]transport.Message),
		seen:   make(map[string]struct{}),
	}
}

// Preload replaces the projection with fresh backend state: the chat list and
// the recent history of the target chat.
func (s *Store) Preload(ctx context.Context, client transport.Client, chatLimit, historyLimit int) error {
	list, err := client.ListChats(ctx, chatLimit)
	if err != nil {
		return fmt.Errorf("chats: list chats: %w", err)
	}

	s.mu.Lock()
	s.chats = list
	s.byChat = make(map[string][]transport.Message)
	s.seen = make(map[string]struct{})
	s.mu.Unlock()

	target, err := s.TargetChat()
	if err != nil {
		// An empty account has no history to preload.
		observe.Logger(ctx).Warn("chats: preload found no target chat")
		return nil
	}

	history, err := client.GetChatHistory(ctx, target, historyLimit)
	if err != nil {
		return fmt.Errorf("chats: history of %s: %w", target, err)
	}
	for _, m := range history {
		s.Add(m)
	}
	observe.Logger(ctx).Info("chats: preloaded",
		"chats", len(list), "target", target, "messages", len(history))
	return nil
}

// Add inserts a message into its chat's history. Duplicate deliveries of the
// same message ID are dropped; it reports whether the message was new.
func (s *Store) Add(m transport.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[m.ID]; dup {
		return false
	}
	s.seen[m.ID] = struct{}{}

	msgs := append(s.byChat[m.ChatID], m)
	// Deliveries may arrive out of order.
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].SentAt.Before(msgs[j].SentAt)
	})
	s.byChat[m.ChatID] = msgs
	return true
}

// Chats returns the chat list in backend (recency) order.
func (s *Store) Chats() []transport.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]transport.Chat, len(s.chats))
	copy(out, s.chats)
	return out
}

// Messages returns the chat's history in send-time order.
func (s *Store) Messages(chatID string) []transport.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.byChat[chatID]
	out := make([]transport.Message, len(msgs))
	copy(out, msgs)
	return out
}

// TargetChat resolves the chat voice messages are sent to: the configured ID
// when set, otherwise the first chat of the projection.
func (s *Store) TargetChat() (string, error) {
	if s.target != "" {
		return s.target, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.chats) == 0 {
		return "", ErrNoTargetChat
	}
	return s.chats[0].ID, nil
}

// Reset drops the whole projection. Called when the backend closes the
// session.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = nil
	s.byChat = make(map[string][]transport.Message)
	s.seen = make(map[string]struct{})
}
