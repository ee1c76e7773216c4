package repository

import (
	"context"
	"errors"
	"time"

	"alumnet/internal/models"
	"alumnet/internal/observability"

	"gorm.io/gorm"
)

// ChatRepository persists 1:1 chats and their messages. The denormalized
// last-message pointer on chats is maintained here: AdvanceLastMessage only
// moves the pointer forward in (sent_at, id) order, and DeleteMessage
// recomputes it when the pointed-at message is removed.
type ChatRepository interface {
	GetOrCreateChat(ctx context.Context, userID1, userID2 uint) (*models.Chat, error)
	FindChatBetween(ctx context.Context, userID1, userID2 uint) (*models.Chat, error)
	GetChat(ctx context.Context, chatID uint) (*models.Chat, error)
	ListChatsForUser(ctx context.Context, userID uint) ([]models.Chat, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, messageID uint) (*models.Message, error)
	ListMessagesBefore(ctx context.Context, chatID uint, before *models.Message, limit int) ([]models.Message, error)
	AdvanceLastMessage(ctx context.Context, chatID uint, msg *models.Message) error
	DeleteMessage(ctx context.Context, msg *models.Message) error
}

type chatRepository struct {
	db      *gorm.DB
	logger  *observability.RepoLogger
	metrics *observability.DatabaseMetrics
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{
		db:      db,
		logger:  observability.NewRepoLogger("chats"),
		metrics: observability.NewDatabaseMetrics(),
	}
}

// GetOrCreateChat returns the chat for the unordered pair, creating it if
// necessary. A concurrent create by the peer resolves through the unique
// pair index: the loser of the race re-reads the winner's row.
func (r *chatRepository) GetOrCreateChat(ctx context.Context, userID1, userID2 uint) (*models.Chat, error) {
	defer r.metrics.TrackQuery("get_or_create", "chats")()

	existing, err := r.FindChatBetween(ctx, userID1, userID2)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	chat := &models.Chat{User1ID: userID1, User2ID: userID2}
	if err := r.db.WithContext(ctx).Create(chat).Error; err != nil {
		if errors.Is(err, models.ErrSelfEdge) {
			return nil, models.NewValidationError("cannot open a chat with yourself")
		}
		if isUniqueViolation(err) {
			return r.FindChatBetween(ctx, userID1, userID2)
		}
		r.logger.LogError(ctx, err, "create")
		return nil, models.NewInternalError(err)
	}
	r.logger.LogCreate(ctx, map[string]interface{}{"chat_id": chat.ID})
	return chat, nil
}

func (r *chatRepository) FindChatBetween(ctx context.Context, userID1, userID2 uint) (*models.Chat, error) {
	if userID1 > userID2 {
		userID1, userID2 = userID2, userID1
	}
	var chat models.Chat
	if err := r.db.WithContext(ctx).
		Where("user1_id = ? AND user2_id = ?", userID1, userID2).
		First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &chat, nil
}

func (r *chatRepository) GetChat(ctx context.Context, chatID uint) (*models.Chat, error) {
	var chat models.Chat
	if err := r.db.WithContext(ctx).First(&chat, chatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Chat", chatID)
		}
		return nil, models.NewInternalError(err)
	}
	return &chat, nil
}

func (r *chatRepository) ListChatsForUser(ctx context.Context, userID uint) ([]models.Chat, error) {
	defer r.metrics.TrackQuery("list", "chats")()

	var chats []models.Chat
	if err := r.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Preload("User1").
		Preload("User2").
		Preload("LastMessage").
		Order("last_message_at DESC NULLS LAST").
		Find(&chats).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return chats, nil
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	defer r.metrics.TrackQuery("create", "messages")()

	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		r.logger.LogError(ctx, err, "create_message")
		return models.NewInternalError(err)
	}
	return nil
}

func (r *chatRepository) GetMessage(ctx context.Context, messageID uint) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Message", messageID)
		}
		return nil, models.NewInternalError(err)
	}
	return &msg, nil
}

// ListMessagesBefore returns messages in descending (sent_at, id) order. The
// before cursor is exclusive; a nil cursor starts from the newest message.
func (r *chatRepository) ListMessagesBefore(ctx context.Context, chatID uint, before *models.Message, limit int) ([]models.Message, error) {
	defer r.metrics.TrackQuery("list", "messages")()

	q := r.db.WithContext(ctx).Where("chat_id = ?", chatID)
	if before != nil {
		q = q.Where("sent_at < ? OR (sent_at = ? AND id < ?)", before.SentAt, before.SentAt, before.ID)
	}
	var msgs []models.Message
	if err := q.
		Preload("Sender").
		Order("sent_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return msgs, nil
}

// AdvanceLastMessage moves the chat's last-message pointer to msg unless a
// newer message already holds it. Last-writer-wins in (sent_at, id) order,
// so interleaved sends converge on the newest message no matter the order
// the updates land in.
func (r *chatRepository) AdvanceLastMessage(ctx context.Context, chatID uint, msg *models.Message) error {
	defer r.metrics.TrackQuery("update", "chats")()

	err := r.db.WithContext(ctx).Exec(
		`UPDATE chats SET last_message_id = ?, last_message_at = ?, updated_at = ?
		 WHERE id = ? AND (
			last_message_at IS NULL
			OR last_message_at < ?
			OR (last_message_at = ? AND last_message_id < ?)
		 )`,
		msg.ID, msg.SentAt, time.Now().UTC(),
		chatID,
		msg.SentAt, msg.SentAt, msg.ID,
	).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// DeleteMessage removes a message, clears reply references to it, and
// recomputes the chat pointer when the deleted message held it. All in one
// transaction so the pointer is never left dangling.
func (r *chatRepository) DeleteMessage(ctx context.Context, msg *models.Message) error {
	defer r.metrics.TrackQuery("delete", "messages")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Replies keep their own content; the reference is cleared, not cascaded.
		if err := tx.Model(&models.Message{}).
			Where("reply_to_message_id = ?", msg.ID).
			Update("reply_to_message_id", nil).Error; err != nil {
			return err
		}

		if err := tx.Delete(&models.Message{}, msg.ID).Error; err != nil {
			return err
		}

		var chat models.Chat
		if err := tx.First(&chat, msg.ChatID).Error; err != nil {
			return err
		}
		if chat.LastMessageID == nil || *chat.LastMessageID != msg.ID {
			return nil
		}

		var latest models.Message
		err := tx.Where("chat_id = ?", msg.ChatID).
			Order("sent_at DESC, id DESC").
			First(&latest).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Model(&chat).Updates(map[string]interface{}{
				"last_message_id": nil,
				"last_message_at": nil,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&chat).Updates(map[string]interface{}{
			"last_message_id": latest.ID,
			"last_message_at": latest.SentAt,
		}).Error
	})
	if err != nil {
		r.logger.LogError(ctx, err, "delete_message")
		return models.NewInternalError(err)
	}
	r.logger.LogDelete(ctx, map[string]interface{}{"message_id": msg.ID, "chat_id": msg.ChatID})
	return nil
}
