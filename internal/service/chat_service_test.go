package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/model"
	appErr "github.com/ragline/ragline/internal/pkg/errors"
	"github.com/ragline/ragline/internal/repo"
)

type fakeUserDirectory struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func (f *fakeUserDirectory) GetByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[username]; ok {
		return user, nil
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeUserDirectory) Create(_ context.Context, username string, now int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; ok {
		return nil, appErr.ErrConflict
	}
	user := &model.User{ID: int64(len(f.users) + 1), Username: username, CreatedAt: now}
	f.users[username] = user
	return user, nil
}

type fakeConversationStore struct {
	mu            sync.Mutex
	nextID        int64
	conversations map[int64]*model.Conversation
	titleUpdates  int
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{nextID: 1, conversations: map[int64]*model.Conversation{}}
}

func (f *fakeConversationStore) GetByIDTx(_ context.Context, _ repo.DBTX, id int64) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.conversations[id]; ok {
		cp := *conv
		return &cp, nil
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeConversationStore) LatestByUserTx(_ context.Context, _ repo.DBTX, userID int64) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.Conversation
	for _, conv := range f.conversations {
		if conv.UserID != userID {
			continue
		}
		if latest == nil || conv.StartedAt > latest.StartedAt ||
			(conv.StartedAt == latest.StartedAt && conv.ID > latest.ID) {
			latest = conv
		}
	}
	if latest == nil {
		return nil, appErr.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeConversationStore) CreateTx(_ context.Context, _ repo.DBTX, userID int64, title string, startedAt int64) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv := &model.Conversation{ID: f.nextID, UserID: userID, Title: title, StartedAt: startedAt}
	f.nextID++
	f.conversations[conv.ID] = conv
	cp := *conv
	return &cp, nil
}

func (f *fakeConversationStore) UpdateTitleIfPlaceholder(_ context.Context, id int64, title string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return false, appErr.ErrNotFound
	}
	if !isPlaceholderTitle(conv.Title) {
		return false, nil
	}
	conv.Title = title
	f.titleUpdates++
	return true, nil
}

func (f *fakeConversationStore) ListByUser(_ context.Context, userID int64) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []model.Conversation
	for _, conv := range f.conversations {
		if conv.UserID == userID {
			items = append(items, *conv)
		}
	}
	return items, nil
}

func (f *fakeConversationStore) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conversations[id]; !ok {
		return appErr.ErrNotFound
	}
	delete(f.conversations, id)
	return nil
}

type fakeMessageStore struct {
	mu       sync.Mutex
	nextID   int64
	messages []model.Message
	failAI   bool
}

func (f *fakeMessageStore) Insert(_ context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAI && m.Kind == model.MessageKindAI {
		return errors.New("insert failed")
	}
	f.nextID++
	m.ID = f.nextID
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeMessageStore) InsertTx(ctx context.Context, _ repo.DBTX, m *model.Message) error {
	return f.Insert(ctx, m)
}

func (f *fakeMessageStore) ListByConversation(_ context.Context, conversationID int64) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []model.Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID {
			items = append(items, m)
		}
	}
	return items, nil
}

type captureBroadcaster struct {
	mu     sync.Mutex
	events []model.ChatEvent
}

func (c *captureBroadcaster) Broadcast(ev *model.ChatEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, *ev)
}

func (c *captureBroadcaster) byKind(kind model.EventKind) []model.ChatEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.ChatEvent
	for _, ev := range c.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type fakeGenerator struct {
	reply func(ctx context.Context, userMessage string) (Result, error)
	title func(seed string) string
}

func (f *fakeGenerator) GenerateReply(ctx context.Context, userMessage, _, _ string) (Result, error) {
	if f.reply == nil {
		return Result{Text: "reply to: " + userMessage}, nil
	}
	return f.reply(ctx, userMessage)
}

func (f *fakeGenerator) GenerateTitle(_ context.Context, seed string) string {
	if f.title == nil {
		return "Generated Title"
	}
	return f.title(seed)
}

func passthroughTx(ctx context.Context, fn func(q repo.DBTX) error) error {
	return fn(nil)
}

type chatFixture struct {
	svc           *ChatService
	users         *fakeUserDirectory
	conversations *fakeConversationStore
	messages      *fakeMessageStore
	broadcaster   *captureBroadcaster
	generator     *fakeGenerator
}

func newChatFixture() *chatFixture {
	f := &chatFixture{
		users: &fakeUserDirectory{users: map[string]*model.User{
			"alice": {ID: 1, Username: "alice"},
		}},
		conversations: newFakeConversationStore(),
		messages:      &fakeMessageStore{},
		broadcaster:   &captureBroadcaster{},
		generator:     &fakeGenerator{},
	}
	f.svc = NewChatService(f.users, f.conversations, f.messages, f.generator, f.broadcaster, passthroughTx, "AI Assistant")
	f.svc.runAsync = func(fn func()) { fn() }
	return f
}

func TestProcessChatHappyPath(t *testing.T) {
	f := newChatFixture()

	err := f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
		Kind:    model.EventKindChat,
		Sender:  "alice",
		Content: "what is raft",
	})
	require.NoError(t, err)

	// One conversation, created with the placeholder then retitled.
	require.Len(t, f.conversations.conversations, 1)
	conv := f.conversations.conversations[1]
	require.Equal(t, "Generated Title", conv.Title)

	msgs, err := f.messages.ListByConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, model.MessageKindUser, msgs[0].Kind)
	require.Equal(t, model.MessageStatusSent, msgs[0].Status)
	require.NotNil(t, msgs[0].SenderID)
	require.Equal(t, model.MessageKindAI, msgs[1].Kind)
	require.Equal(t, model.MessageStatusReceived, msgs[1].Status)
	require.Nil(t, msgs[1].SenderID)
	require.Equal(t, "reply to: what is raft", msgs[1].Content)

	typing := f.broadcaster.byKind(model.EventKindTyping)
	require.Len(t, typing, 1)
	require.Equal(t, "Thinking...", typing[0].Content)
	require.Equal(t, "AI Assistant", typing[0].Sender)

	updates := f.broadcaster.byKind(model.EventKindConversationUpdate)
	require.Len(t, updates, 1)
	require.Equal(t, "SYSTEM", updates[0].Sender)
	require.Equal(t, "Title Updated", updates[0].Content)

	replies := f.broadcaster.byKind(model.EventKindChat)
	require.Len(t, replies, 1)
	require.Equal(t, model.MessageStatusReceived, replies[0].Status)
}

func TestProcessChatEmptyContentRejected(t *testing.T) {
	f := newChatFixture()

	err := f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
		Kind:    model.EventKindChat,
		Sender:  "alice",
		Content: "   ",
	})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	require.Empty(t, f.messages.messages)
}

func TestProcessChatUnknownSenderRejected(t *testing.T) {
	f := newChatFixture()

	err := f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
		Kind:    model.EventKindChat,
		Sender:  "mallory",
		Content: "hi",
	})
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.Empty(t, f.conversations.conversations)
}

func TestProcessChatUnknownConversationRejected(t *testing.T) {
	f := newChatFixture()

	err := f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
		Kind:           model.EventKindChat,
		Sender:         "alice",
		Content:        "hi",
		ConversationID: 99,
	})
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.Empty(t, f.messages.messages)
}

func TestProcessChatReusesLatestConversation(t *testing.T) {
	f := newChatFixture()

	require.NoError(t, f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
		Kind: model.EventKindChat, Sender: "alice", Content: "first",
	}))
	require.NoError(t, f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
		Kind: model.EventKindChat, Sender: "alice", Content: "second",
	}))

	require.Len(t, f.conversations.conversations, 1)
	// The second message must not race the title a second time.
	require.Equal(t, 1, f.conversations.titleUpdates)
	require.Len(t, f.broadcaster.byKind(model.EventKindConversationUpdate), 1)
}

func TestProcessChatTitleUpdatedAtMostOnce(t *testing.T) {
	f := newChatFixture()
	// Reply generation finishes before the title call comes back, so by the
	// time the title path runs the conversation already has its final title.
	f.generator.title = func(seed string) string { return "Late Title" }

	require.NoError(t, f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
		Kind: model.EventKindChat, Sender: "alice", Content: "first",
	}))
	updated, err := f.conversations.UpdateTitleIfPlaceholder(context.Background(), 1, "Another Title")
	require.NoError(t, err)
	require.False(t, updated)
	require.Equal(t, "Late Title", f.conversations.conversations[1].Title)
}

func TestProcessChatPlaceholderTitleResultSkipsUpdate(t *testing.T) {
	f := newChatFixture()
	f.generator.title = func(string) string { return model.PlaceholderTitle }

	require.NoError(t, f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
		Kind: model.EventKindChat, Sender: "alice", Content: "hi",
	}))

	require.Equal(t, model.PlaceholderTitle, f.conversations.conversations[1].Title)
	require.Empty(t, f.broadcaster.byKind(model.EventKindConversationUpdate))
}

func TestProcessChatDegradedReplyStillPersisted(t *testing.T) {
	f := newChatFixture()
	f.generator.reply = func(_ context.Context, _ string) (Result, error) {
		return Result{Text: "Error from AI provider: rate limited", Degraded: true}, nil
	}

	require.NoError(t, f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
		Kind: model.EventKindChat, Sender: "alice", Content: "hi",
	}))

	msgs, _ := f.messages.ListByConversation(context.Background(), 1)
	require.Len(t, msgs, 2)
	require.Equal(t, "Error from AI provider: rate limited", msgs[1].Content)
	require.Empty(t, f.broadcaster.byKind(model.EventKindError))
}

func TestProcessChatHardFailureBroadcastsErrorOnly(t *testing.T) {
	f := newChatFixture()
	f.generator.reply = func(_ context.Context, _ string) (Result, error) {
		return Result{}, errors.New("connection refused")
	}

	require.NoError(t, f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
		Kind: model.EventKindChat, Sender: "alice", Content: "hi",
	}))

	msgs, _ := f.messages.ListByConversation(context.Background(), 1)
	require.Len(t, msgs, 1)
	require.Equal(t, model.MessageKindUser, msgs[0].Kind)

	errs := f.broadcaster.byKind(model.EventKindError)
	require.Len(t, errs, 1)
	require.Equal(t, "Sorry, I encountered an error.", errs[0].Content)
}

func TestProcessChatConcurrentEventsShareOneConversation(t *testing.T) {
	f := newChatFixture()
	// Real dispatch: continuations run on their own goroutines.
	f.svc.runAsync = func(fn func()) { go fn() }

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
				Kind: model.EventKindChat, Sender: "alice", Content: "hello",
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, f.conversations.conversations, 1)
}

func TestProcessEventJoinRebroadcast(t *testing.T) {
	f := newChatFixture()

	err := f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
		Kind:   model.EventKindJoin,
		Sender: "alice",
	})
	require.NoError(t, err)
	require.Len(t, f.broadcaster.byKind(model.EventKindJoin), 1)
}

func TestProcessEventJoinRegistersNewUser(t *testing.T) {
	f := newChatFixture()

	err := f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
		Kind:   model.EventKindJoin,
		Sender: "bob",
	})
	require.NoError(t, err)

	user, err := f.users.GetByUsername(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, "bob", user.Username)

	// bob can chat right away.
	require.NoError(t, f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
		Kind: model.EventKindChat, Sender: "bob", Content: "hello",
	}))
}

func TestProcessEventJoinBlankSenderRejected(t *testing.T) {
	f := newChatFixture()

	err := f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
		Kind:   model.EventKindJoin,
		Sender: "  ",
	})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestProcessEventOutboundKindsRejected(t *testing.T) {
	f := newChatFixture()

	for _, kind := range []model.EventKind{
		model.EventKindTyping, model.EventKindConversationUpdate, model.EventKindError, "BOGUS",
	} {
		err := f.svc.ProcessEvent(context.Background(), &model.ChatEvent{Kind: kind, Sender: "alice"})
		require.ErrorIs(t, err, appErr.ErrInvalid, string(kind))
	}
}

func TestDeleteConversation(t *testing.T) {
	f := newChatFixture()

	require.NoError(t, f.svc.ProcessEvent(context.Background(), &model.ChatEvent{
		Kind: model.EventKindChat, Sender: "alice", Content: "hi",
	}))
	require.NoError(t, f.svc.DeleteConversation(context.Background(), 1))
	require.ErrorIs(t, f.svc.DeleteConversation(context.Background(), 1), appErr.ErrNotFound)
}

func TestListConversationsUnknownUser(t *testing.T) {
	f := newChatFixture()

	_, err := f.svc.ListConversations(context.Background(), "mallory")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}
