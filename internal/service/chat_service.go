package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/model"
	appErr "github.com/ragline/ragline/internal/pkg/errors"
	"github.com/ragline/ragline/internal/repo"
)

const errorReplyText = "Sorry, I encountered an error."

type UserDirectory interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Create(ctx context.Context, username string, now int64) (*model.User, error)
}

type ConversationStore interface {
	GetByIDTx(ctx context.Context, q repo.DBTX, id int64) (*model.Conversation, error)
	LatestByUserTx(ctx context.Context, q repo.DBTX, userID int64) (*model.Conversation, error)
	CreateTx(ctx context.Context, q repo.DBTX, userID int64, title string, startedAt int64) (*model.Conversation, error)
	UpdateTitleIfPlaceholder(ctx context.Context, id int64, title string) (bool, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Conversation, error)
	Delete(ctx context.Context, id int64) error
}

type MessageStore interface {
	Insert(ctx context.Context, m *model.Message) error
	InsertTx(ctx context.Context, q repo.DBTX, m *model.Message) error
	ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error)
}

// Broadcaster publishes an event to every subscriber of the shared topic.
type Broadcaster interface {
	Broadcast(ev *model.ChatEvent)
}

// ReplyGenerator is the generation gateway seen by the orchestrator.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, userMessage, attachmentURL, attachmentType string) (Result, error)
	GenerateTitle(ctx context.Context, seed string) string
}

// TxRunner executes fn inside one transactional unit.
type TxRunner func(ctx context.Context, fn func(q repo.DBTX) error) error

// ChatService is the conversation orchestrator. ProcessEvent persists the
// user message, notifies typing, and dispatches title generation and reply
// generation asynchronously; the caller returns as soon as typing is out.
type ChatService struct {
	users         UserDirectory
	conversations ConversationStore
	messages      MessageStore
	generator     ReplyGenerator
	broadcaster   Broadcaster
	tx            TxRunner
	assistantName string

	// runAsync dispatches the fire-and-forget continuations; tests swap it
	// for an inline runner.
	runAsync func(fn func())
	now      func() int64

	senderLocks sync.Map
}

func NewChatService(
	users UserDirectory,
	conversations ConversationStore,
	messages MessageStore,
	generator ReplyGenerator,
	broadcaster Broadcaster,
	tx TxRunner,
	assistantName string,
) *ChatService {
	if assistantName == "" {
		assistantName = "AI Assistant"
	}
	return &ChatService{
		users:         users,
		conversations: conversations,
		messages:      messages,
		generator:     generator,
		broadcaster:   broadcaster,
		tx:            tx,
		assistantName: assistantName,
		runAsync:      func(fn func()) { go fn() },
		now:           func() int64 { return time.Now().UnixMilli() },
	}
}

// ProcessEvent handles one inbound chat event. Unknown senders and unknown
// explicit conversation ids fail the request synchronously; everything after
// the typing notification settles asynchronously.
func (s *ChatService) ProcessEvent(ctx context.Context, ev *model.ChatEvent) error {
	switch ev.Kind {
	case model.EventKindChat:
		return s.processChat(ctx, ev)
	case model.EventKindJoin:
		if err := s.ensureUser(ctx, ev.Sender); err != nil {
			return err
		}
		s.broadcaster.Broadcast(ev)
		return nil
	case model.EventKindLeave:
		s.broadcaster.Broadcast(ev)
		return nil
	case model.EventKindTyping, model.EventKindConversationUpdate, model.EventKindError:
		// Outbound-only kinds; clients do not get to forge them.
		return appErr.ErrInvalid
	default:
		return appErr.ErrInvalid
	}
}

func (s *ChatService) processChat(ctx context.Context, ev *model.ChatEvent) error {
	logger := logutil.GetLogger(ctx).With(zap.String("sender", ev.Sender))
	if strings.TrimSpace(ev.Content) == "" {
		return appErr.ErrInvalid
	}
	sender, err := s.users.GetByUsername(ctx, ev.Sender)
	if err != nil {
		return err
	}

	// Resolve-or-create and the user-message insert form one transactional
	// unit, serialized per sender so concurrent no-id events cannot spawn
	// duplicate conversations.
	lock := s.senderLock(sender.ID)
	lock.Lock()
	var conv *model.Conversation
	err = s.tx(ctx, func(q repo.DBTX) error {
		var txErr error
		conv, txErr = s.resolveConversation(ctx, q, sender.ID, ev.ConversationID)
		if txErr != nil {
			return txErr
		}
		userMsg := &model.Message{
			ConversationID: conv.ID,
			SenderID:       &sender.ID,
			Content:        ev.Content,
			Kind:           model.MessageKindUser,
			Status:         model.MessageStatusSent,
			AttachmentURL:  ev.AttachmentURL,
			AttachmentType: ev.AttachmentType,
			CreatedAt:      s.now(),
		}
		return s.messages.InsertTx(ctx, q, userMsg)
	})
	lock.Unlock()
	if err != nil {
		return err
	}

	if isPlaceholderTitle(conv.Title) {
		convID, seed := conv.ID, ev.Content
		s.runAsync(func() { s.updateTitle(convID, seed) })
	}

	s.broadcaster.Broadcast(&model.ChatEvent{
		Sender:         s.assistantName,
		Kind:           model.EventKindTyping,
		ConversationID: conv.ID,
		Content:        "Thinking...",
	})

	convID := conv.ID
	content, attURL, attType := ev.Content, ev.AttachmentURL, ev.AttachmentType
	s.runAsync(func() { s.generateAndDeliver(convID, content, attURL, attType) })

	logger.Debug("chat event dispatched", zap.Int64("conversation_id", conv.ID))
	return nil
}

// ensureUser registers first-time joiners. A concurrent join of the same
// name may lose the insert race; the conflict means the user exists, which
// is all we need.
func (s *ChatService) ensureUser(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return appErr.ErrInvalid
	}
	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !appErr.IsNotFound(err) {
		return err
	}
	if _, err := s.users.Create(ctx, username, s.now()); err != nil && !errors.Is(err, appErr.ErrConflict) {
		return err
	}
	return nil
}

func (s *ChatService) resolveConversation(ctx context.Context, q repo.DBTX, userID, explicitID int64) (*model.Conversation, error) {
	if explicitID != 0 {
		return s.conversations.GetByIDTx(ctx, q, explicitID)
	}
	conv, err := s.conversations.LatestByUserTx(ctx, q, userID)
	if err == nil {
		return conv, nil
	}
	if !appErr.IsNotFound(err) {
		return nil, err
	}
	return s.conversations.CreateTx(ctx, q, userID, model.PlaceholderTitle, s.now())
}

// updateTitle runs detached from the request. It races freely with the
// reply path; the compare-and-swap in the store keeps last-write-wins out
// and guarantees at most one CONVERSATION_UPDATE per conversation.
func (s *ChatService) updateTitle(conversationID int64, seed string) {
	ctx := context.Background()
	logger := logutil.GetLogger(ctx).With(zap.Int64("conversation_id", conversationID))

	title := s.generator.GenerateTitle(ctx, seed)
	if isPlaceholderTitle(title) {
		return
	}
	updated, err := s.conversations.UpdateTitleIfPlaceholder(ctx, conversationID, title)
	if err != nil {
		logger.Error("title update failed", zap.Error(err))
		return
	}
	if !updated {
		return
	}
	s.broadcaster.Broadcast(&model.ChatEvent{
		Sender:         "SYSTEM",
		Kind:           model.EventKindConversationUpdate,
		ConversationID: conversationID,
		Content:        "Title Updated",
	})
	logger.Info("conversation title updated", zap.String("title", title))
}

// generateAndDeliver runs detached from the request. A degraded (soft
// failure) result is still persisted and broadcast as a CHAT event; only a
// hard failure of the generation call produces an ERROR event, with nothing
// persisted.
func (s *ChatService) generateAndDeliver(conversationID int64, content, attachmentURL, attachmentType string) {
	ctx := context.Background()
	logger := logutil.GetLogger(ctx).With(zap.Int64("conversation_id", conversationID))

	result, err := s.generator.GenerateReply(ctx, content, attachmentURL, attachmentType)
	if err != nil {
		logger.Error("generation failed", zap.Error(err))
		s.broadcastError(conversationID)
		return
	}

	aiMsg := &model.Message{
		ConversationID: conversationID,
		Content:        result.Text,
		Kind:           model.MessageKindAI,
		Status:         model.MessageStatusReceived,
		CreatedAt:      s.now(),
	}
	if err := s.messages.Insert(ctx, aiMsg); err != nil {
		logger.Error("persist ai message failed", zap.Error(err))
		s.broadcastError(conversationID)
		return
	}

	s.broadcaster.Broadcast(&model.ChatEvent{
		Content:        result.Text,
		Sender:         s.assistantName,
		Kind:           model.EventKindChat,
		ConversationID: conversationID,
		Status:         model.MessageStatusReceived,
	})
	if result.Degraded {
		logger.Warn("delivered degraded reply")
	}
}

func (s *ChatService) broadcastError(conversationID int64) {
	s.broadcaster.Broadcast(&model.ChatEvent{
		Sender:         s.assistantName,
		Kind:           model.EventKindError,
		ConversationID: conversationID,
		Content:        errorReplyText,
	})
}

func (s *ChatService) ListConversations(ctx context.Context, username string) ([]model.Conversation, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.conversations.ListByUser(ctx, user.ID)
}

func (s *ChatService) ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error) {
	return s.messages.ListByConversation(ctx, conversationID)
}

func (s *ChatService) DeleteConversation(ctx context.Context, conversationID int64) error {
	return s.conversations.Delete(ctx, conversationID)
}

func (s *ChatService) senderLock(userID int64) *sync.Mutex {
	lock, _ := s.senderLocks.LoadOrStore(userID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func isPlaceholderTitle(title string) bool {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return true
	}
	return strings.EqualFold(trimmed, model.PlaceholderTitle)
}
