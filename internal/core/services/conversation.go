package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"chaty/internal/core/contracts"
	"chaty/internal/core/domain"
	"chaty/pkg/logging"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	maxContentLength = 4000
	pushPreviewRunes = 120
)

// ClampLimit applies the page size default and bounds.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageLimit
	case limit > maxPageLimit:
		return maxPageLimit
	default:
		return limit
	}
}

type ConversationRepos struct {
	Conversations domain.ConversationRepository
	Messages      domain.MessageRepository
	Reads         domain.ReadReceiptRepository
	PushTokens    domain.PushTokenRepository
}

// ConversationService relays conversation traffic: room membership,
// message fan-out, read receipts and the cached read views.
type ConversationService struct {
	log       *slog.Logger
	registry  contracts.Registry
	members   *Membership
	users     *UserService
	cache     *CacheReader
	repos     ConversationRepos
	txManager contracts.TxManager
	notifier  contracts.Notifier
	tasks     contracts.TaskRunner
	now       func() time.Time
}

func NewConversationService(
	log *slog.Logger,
	registry contracts.Registry,
	members *Membership,
	users *UserService,
	cache *CacheReader,
	repos ConversationRepos,
	txManager contracts.TxManager,
	notifier contracts.Notifier,
	tasks contracts.TaskRunner,
) *ConversationService {
	return &ConversationService{
		log:       log,
		registry:  registry,
		members:   members,
		users:     users,
		cache:     cache,
		repos:     repos,
		txManager: txManager,
		notifier:  notifier,
		tasks:     tasks,
		now:       time.Now,
	}
}

// Join adds the connection to the conversation room, sends the caller the
// peer's stored presence and tells the rest of the room the caller is online.
func (c *ConversationService) Join(ctx context.Context, s *Session, raw json.RawMessage) error {
	ref, err := domain.ParseConversationRef(raw)
	if err != nil {
		return err
	}
	p, err := c.members.Authorize(ctx, ref.ConversationID, s.UserID())
	if err != nil {
		return err
	}
	room := domain.ConversationRoom(ref.ConversationID)
	if !c.registry.Join(s.ID(), room) {
		return nil
	}
	if !s.addConversation(ref.ConversationID) {
		c.registry.Leave(s.ID(), room)
		return nil
	}

	peerID := p.Peer(s.UserID())
	peer, err := c.users.Presence(ctx, peerID)
	if err != nil {
		c.log.WarnContext(ctx, "conversation - join - peer presence failed", logging.User(peerID), logging.Err(err))
		peer = domain.UserPresence{UserID: peerID}
	}
	c.registry.Emit(ctx, s.ID(), domain.EventPresence, domain.PresencePayload{
		ConversationID: ref.ConversationID,
		UserID:         peerID,
		IsOnline:       peer.IsOnline,
		LastSeenAt:     peer.LastSeenAt,
	})
	c.registry.BroadcastExcept(ctx, room, s.ID(), domain.EventPresence, domain.PresencePayload{
		ConversationID: ref.ConversationID,
		UserID:         s.UserID(),
		IsOnline:       true,
	})
	return nil
}

// Leave never fails: an unknown or malformed reference is ignored.
func (c *ConversationService) Leave(_ context.Context, s *Session, raw json.RawMessage) error {
	ref, err := domain.ParseConversationRef(raw)
	if err != nil {
		return nil
	}
	c.registry.Leave(s.ID(), domain.ConversationRoom(ref.ConversationID))
	s.removeConversation(ref.ConversationID)
	return nil
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", domain.NewValidationError("Content is required.")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return "", domain.NewValidationError("Content is too long.")
	}
	return content, nil
}

// SendMessage stores a message, invalidates the affected views and notifies
// both participants. Nothing is broadcast when the write fails.
func (c *ConversationService) SendMessage(ctx context.Context, senderID, convID, content string) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "ConversationService.SendMessage", trace.WithAttributes(
		attribute.String("user_id", senderID),
		attribute.String("conv_id", convID),
	))
	defer span.End()

	if !domain.ValidID(convID) {
		return nil, domain.NewValidationError(domain.MsgInvalidPayload)
	}
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}
	p, err := c.members.Authorize(ctx, convID, senderID)
	if err != nil {
		return nil, err
	}
	msg, err := c.repos.Messages.Create(ctx, domain.NewMessage{
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create message failed")
		c.log.ErrorContext(ctx, "conversation - send message - create failed", logging.Conversation(convID), logging.User(senderID), logging.Err(err))
		return nil, fmt.Errorf("create message: %w", err)
	}
	receiverID := p.Peer(senderID)
	c.invalidate(ctx, convID, senderID, receiverID)

	payload := domain.MessagePayload{ConversationID: convID, Message: *msg}
	c.registry.Broadcast(ctx, domain.UserRoom(senderID), domain.EventMessageSent, payload)
	c.registry.Broadcast(ctx, domain.UserRoom(receiverID), domain.EventMessageNew, payload)

	c.tasks.Go(ctx, "push_message", func(ctx context.Context) error {
		return c.push(ctx, receiverID, msg)
	})
	c.log.InfoContext(ctx, "conversation - send message - success", logging.Conversation(convID), logging.Message(msg.ID))
	return msg, nil
}

func (c *ConversationService) push(ctx context.Context, receiverID string, msg *domain.Message) error {
	tokens, err := c.repos.PushTokens.FindActiveTokens(ctx, receiverID)
	if err != nil {
		return fmt.Errorf("find push tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	return c.notifier.SendPushNotification(ctx, tokens, domain.PushNotification{
		Title: "New message",
		Body:  preview(msg.Content),
		Data: map[string]string{
			"type":            domain.EventMessageNew,
			"conversation_id": msg.ConversationID,
			"message_id":      msg.ID,
			"sender_id":       msg.SenderID,
		},
	})
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= pushPreviewRunes {
		return s
	}
	r := []rune(s)
	return string(r[:pushPreviewRunes]) + "…"
}

// MarkRead records receipts for every unread peer message up to and
// including lastReadMessageID. It returns the ids newly marked; the peer is
// only notified when there are any.
func (c *ConversationService) MarkRead(ctx context.Context, userID, convID, lastReadMessageID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "ConversationService.MarkRead", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("conv_id", convID),
	))
	defer span.End()

	if !domain.ValidID(convID) || !domain.ValidID(lastReadMessageID) {
		return nil, domain.NewValidationError(domain.MsgInvalidPayload)
	}
	p, err := c.members.Authorize(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	readAt := c.now()
	var ids []string
	err = c.txManager.WithTx(ctx, func(txCtx context.Context) error {
		upto, err := c.repos.Messages.FindCreatedAt(txCtx, convID, lastReadMessageID)
		if err != nil {
			return err
		}
		ids, err = c.repos.Messages.FindUnreadIDs(txCtx, convID, userID, upto)
		if err != nil {
			return err
		}
		return c.repos.Reads.CreateMany(txCtx, ids, userID, readAt)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark read failed")
		c.log.ErrorContext(ctx, "conversation - mark read - transaction failed", logging.Conversation(convID), logging.User(userID), logging.Err(err))
		return nil, err
	}
	if len(ids) == 0 {
		return []string{}, nil
	}
	peerID := p.Peer(userID)
	c.invalidate(ctx, convID, userID, peerID)
	c.registry.Broadcast(ctx, domain.UserRoom(peerID), domain.EventMessageRead, domain.MessageReadPayload{
		ConversationID: convID,
		ReaderID:       userID,
		MessageIDs:     ids,
		ReadAt:         readAt,
	})
	span.SetAttributes(attribute.Int("read_count", len(ids)))
	return ids, nil
}

func (c *ConversationService) invalidate(ctx context.Context, convID string, userIDs ...string) {
	c.cache.Invalidate(ctx, append(conversationScope(convID), userListScope(userIDs...)...)...)
}

func (c *ConversationService) ListConversations(
	ctx context.Context,
	userID string,
	limit int,
	search, cursor string,
) (domain.Page[domain.ConversationSummary], error) {
	limit = ClampLimit(limit)
	search = strings.TrimSpace(search)
	key := conversationListKey(userID, limit, search, cursor)
	return ReadThrough(ctx, c.cache, key, 0, func(ctx context.Context) (domain.Page[domain.ConversationSummary], error) {
		return c.repos.Conversations.FindByUser(ctx, userID, limit, search, cursor)
	})
}

func (c *ConversationService) GetConversation(ctx context.Context, userID, convID string) (*domain.Conversation, error) {
	if !domain.ValidID(convID) {
		return nil, domain.NewValidationError(domain.MsgInvalidPayload)
	}
	if _, err := c.members.Authorize(ctx, convID, userID); err != nil {
		return nil, err
	}
	return ReadThrough(ctx, c.cache, conversationDetailsKey(convID, userID), 0, func(ctx context.Context) (*domain.Conversation, error) {
		return c.repos.Conversations.FindByID(ctx, convID)
	})
}

func (c *ConversationService) ListMessages(ctx context.Context, userID, convID string, limit int, cursor string) (domain.Page[domain.Message], error) {
	if !domain.ValidID(convID) {
		return domain.Page[domain.Message]{}, domain.NewValidationError(domain.MsgInvalidPayload)
	}
	if _, err := c.members.Authorize(ctx, convID, userID); err != nil {
		return domain.Page[domain.Message]{}, err
	}
	limit = ClampLimit(limit)
	key := conversationMessagesKey(convID, userID, limit, cursor)
	return ReadThrough(ctx, c.cache, key, 0, func(ctx context.Context) (domain.Page[domain.Message], error) {
		return c.repos.Messages.FindPage(ctx, convID, limit, cursor)
	})
}
