// Package service provides the business logic of the interaction engine.
package service

import (
	"context"
	"log/slog"
	"strings"

	"alumnet/internal/config"
	"alumnet/internal/featureflags"
	"alumnet/internal/middleware"
	"alumnet/internal/models"
	"alumnet/internal/notifications"
	"alumnet/internal/observability"
	"alumnet/internal/repository"
)

const maxMessagePageSize = 100

// ChatService implements the messaging engine: 1:1 conversations, threaded
// messages and the denormalized last-message pointer. Blocks are re-checked
// on every send, not just at conversation creation, so a block placed after
// a chat exists suppresses further messages immediately.
type ChatService struct {
	chatRepo   repository.ChatRepository
	relRepo    repository.RelationshipRepository
	userRepo   repository.UserRepository
	classifier Classifier
	flags      *featureflags.Manager
	emitter    EventPublisher
	cfg        *config.Config
	locks      *keyedLocks
}

// NewChatService returns a new ChatService.
func NewChatService(
	chatRepo repository.ChatRepository,
	relRepo repository.RelationshipRepository,
	userRepo repository.UserRepository,
	classifier Classifier,
	flags *featureflags.Manager,
	emitter EventPublisher,
	cfg *config.Config,
) *ChatService {
	if emitter == nil {
		emitter = noopPublisher{}
	}
	return &ChatService{
		chatRepo:   chatRepo,
		relRepo:    relRepo,
		userRepo:   userRepo,
		classifier: classifier,
		flags:      flags,
		emitter:    emitter,
		cfg:        cfg,
		locks:      newKeyedLocks(64),
	}
}

// GetOrCreateChat returns the conversation between the caller and otherID,
// creating it on first contact. Blocked pairs cannot open conversations.
func (s *ChatService) GetOrCreateChat(ctx context.Context, userID, otherID uint) (*models.Chat, error) {
	if userID == otherID {
		return nil, models.NewValidationError("cannot open a chat with yourself")
	}
	if _, err := s.userRepo.GetByID(ctx, otherID); err != nil {
		return nil, err
	}

	blocked, err := blockedEither(ctx, s.relRepo, userID, otherID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, models.NewBlockedError()
	}

	return s.chatRepo.GetOrCreateChat(ctx, userID, otherID)
}

// ListChats returns the caller's conversations, most recently active first.
func (s *ChatService) ListChats(ctx context.Context, userID uint) ([]models.Chat, error) {
	return s.chatRepo.ListChatsForUser(ctx, userID)
}

// SendMessage validates and stores a message, then advances the chat's
// last-message pointer. The per-chat stripe lock serializes the
// append-and-advance sequence so the pointer is never lost to a racing send.
func (s *ChatService) SendMessage(ctx context.Context, chatID, senderID uint, body string, replyToMessageID *uint) (*models.Message, error) {
	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(senderID) {
		observability.MessagesTotal.WithLabelValues("forbidden").Inc()
		return nil, models.NewForbiddenError("you are not a participant of this conversation")
	}

	blocked, err := blockedEither(ctx, s.relRepo, chat.User1ID, chat.User2ID)
	if err != nil {
		return nil, err
	}
	if blocked {
		observability.MessagesTotal.WithLabelValues("blocked").Inc()
		return nil, models.NewBlockedError()
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, models.NewValidationError("message body cannot be empty")
	}

	if replyToMessageID != nil {
		parent, err := s.chatRepo.GetMessage(ctx, *replyToMessageID)
		if err != nil {
			return nil, err
		}
		if parent.ChatID != chatID {
			return nil, models.NewValidationError("reply must reference a message in the same conversation")
		}
	}

	if s.flags.Enabled("moderation", senderID) && s.classifier != nil {
		flagged, err := s.classifier.Classify(ctx, body)
		if err != nil {
			// Classifier failure is fail-open: the send proceeds unflagged.
			middleware.Logger.Warn("moderation classifier failed, letting message through",
				slog.Uint64("chat_id", uint64(chatID)),
				slog.String("error", err.Error()),
			)
		} else if flagged {
			observability.MessagesTotal.WithLabelValues("flagged").Inc()
			return nil, models.NewValidationError("message was flagged by moderation")
		}
	}

	msg := &models.Message{
		ChatID:           chatID,
		SenderID:         senderID,
		Body:             body,
		ReplyToMessageID: replyToMessageID,
	}

	unlock := s.locks.Lock(chatLockKey(chatID))
	if err := s.chatRepo.CreateMessage(ctx, msg); err != nil {
		unlock()
		observability.MessagesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if err := s.chatRepo.AdvanceLastMessage(ctx, chatID, msg); err != nil {
		unlock()
		observability.MessagesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	unlock()

	observability.MessagesTotal.WithLabelValues("sent").Inc()
	s.emitter.Publish(chat.OtherParticipant(senderID), notifications.EventNewMessage, map[string]interface{}{
		"chat_id":    chatID,
		"message_id": msg.ID,
		"sender_id":  senderID,
	})
	return msg, nil
}

// DeleteMessage removes a message the caller sent. Replies referencing it
// keep their content with the reference cleared, and the chat pointer is
// recomputed when it pointed at the deleted message.
func (s *ChatService) DeleteMessage(ctx context.Context, messageID, requesterID uint) error {
	msg, err := s.chatRepo.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requesterID {
		return models.NewForbiddenError("only the sender can delete a message")
	}

	chat, err := s.chatRepo.GetChat(ctx, msg.ChatID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(chatLockKey(msg.ChatID))
	err = s.chatRepo.DeleteMessage(ctx, msg)
	unlock()
	if err != nil {
		return err
	}

	observability.MessagesTotal.WithLabelValues("deleted").Inc()
	s.emitter.Publish(chat.OtherParticipant(requesterID), notifications.EventMessageDeleted, map[string]interface{}{
		"chat_id":    msg.ChatID,
		"message_id": messageID,
	})
	return nil
}

// ListMessages pages through a conversation's messages in descending
// (sentAt, id) order. The before cursor is exclusive; a zero cursor starts
// from the newest message.
func (s *ChatService) ListMessages(ctx context.Context, chatID, requesterID uint, beforeMessageID *uint, limit int) ([]models.Message, error) {
	chat, err := s.chatRepo.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(requesterID) {
		return nil, models.NewForbiddenError("you are not a participant of this conversation")
	}

	if limit <= 0 {
		limit = s.cfg.MessagePageSize
		if limit <= 0 {
			limit = 50
		}
	}
	if limit > maxMessagePageSize {
		limit = maxMessagePageSize
	}

	var before *models.Message
	if beforeMessageID != nil {
		cursor, err := s.chatRepo.GetMessage(ctx, *beforeMessageID)
		if err != nil {
			return nil, err
		}
		if cursor.ChatID != chatID {
			return nil, models.NewValidationError("cursor message does not belong to this conversation")
		}
		before = cursor
	}

	return s.chatRepo.ListMessagesBefore(ctx, chatID, before, limit)
}
