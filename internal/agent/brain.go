package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rahul/medcrew/internal/governance"
)

// Brain defines the conversational interface gateways talk to.
type Brain interface {
	Think(ctx context.Context, chatID string, input string) (string, error)
}

// HistoryStore keeps chat transcripts on behalf of a gateway.
type HistoryStore interface {
	AddMessage(chatID string, role string, content string) error
	GetHistory(chatID string, limit int) ([]Message, error)
	ClearHistory(chatID string) error
}

// ChatBrain is the stateful caller of a Conversation: it owns the transcript
// of every chat in a HistoryStore and re-supplies it on each message.
// Messages of one chat are handled one at a time, in arrival order.
type ChatBrain struct {
	Conversation *Conversation
	History      HistoryStore
	Policy       governance.PolicyEngine
	HistoryLimit int
	log          *slog.Logger
	locks        chatLocks
}

func NewChatBrain(conv *Conversation, history HistoryStore, policy governance.PolicyEngine, log *slog.Logger) *ChatBrain {
	if log == nil {
		log = slog.Default()
	}
	return &ChatBrain{
		Conversation: conv,
		History:      history,
		Policy:       policy,
		HistoryLimit: 50,
		log:          log,
	}
}

func (b *ChatBrain) Think(ctx context.Context, chatID string, input string) (string, error) {
	if b.Policy != nil {
		req := governance.Request{Source: governance.SourceChat, ChatID: chatID, Text: input}
		if err := governance.Check(ctx, b.Policy, req); err != nil {
			return "", err
		}
	}

	unlock, err := b.locks.lock(ctx, chatID)
	if err != nil {
		return "", err
	}
	defer unlock()

	// 1. Load the transcript so far
	transcript, err := b.History.GetHistory(chatID, b.HistoryLimit)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	// 2. Ask the conversational stage for the next entry
	user := Message{Role: RoleUser, Content: input}
	reply, err := b.Conversation.Reply(ctx, append(transcript, user))
	if err != nil {
		return "", err
	}

	// 3. Persist the exchange only once it succeeded
	if err := b.History.AddMessage(chatID, string(user.Role), user.Content); err != nil {
		b.log.Warn("failed to store user message", "chat", chatID, "error", err)
	}
	if err := b.History.AddMessage(chatID, string(reply.Role), reply.Content); err != nil {
		b.log.Warn("failed to store assistant message", "chat", chatID, "error", err)
	}

	return reply.Content, nil
}

// Reset forgets the transcript of a chat.
func (b *ChatBrain) Reset(chatID string) error {
	unlock, err := b.locks.lock(context.Background(), chatID)
	if err != nil {
		return err
	}
	defer unlock()
	return b.History.ClearHistory(chatID)
}

type chatLock struct {
	sem  chan struct{}
	refs int
}

// chatLocks hands out one lock per chat id and drops it once nobody holds or
// waits for it.
type chatLocks struct {
	mu    sync.Mutex
	locks map[string]*chatLock
}

func (l *chatLocks) lock(ctx context.Context, chatID string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*chatLock)
	}
	cl, ok := l.locks[chatID]
	if !ok {
		cl = &chatLock{sem: make(chan struct{}, 1)}
		l.locks[chatID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	release := func() {
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, chatID)
		}
		l.mu.Unlock()
	}

	select {
	case cl.sem <- struct{}{}:
		return func() {
			<-cl.sem
			release()
		}, nil
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
}
