package models

import (
	"time"

	"gorm.io/gorm"
)

// Chat is a 1:1 conversation between two users. Participants are stored in
// normalized order (User1ID < User2ID) so the unique index covers the
// unordered pair.
//
// LastMessageID / LastMessageAt denormalize the newest message so chat lists
// render without a per-chat subquery. The pointer always references the most
// recent stored message or is null; it is never left dangling.
type Chat struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	User1ID       uint       `gorm:"not null;uniqueIndex:idx_chats_pair" json:"user1_id"`
	User2ID       uint       `gorm:"not null;uniqueIndex:idx_chats_pair" json:"user2_id"`
	LastMessageID *uint      `json:"last_message_id,omitempty"`
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	User1       User     `gorm:"foreignKey:User1ID" json:"user1,omitempty"`
	User2       User     `gorm:"foreignKey:User2ID" json:"user2,omitempty"`
	LastMessage *Message `gorm:"foreignKey:LastMessageID" json:"last_message,omitempty"`
}

// TableName specifies the table name for GORM
func (Chat) TableName() string {
	return "chats"
}

// BeforeCreate normalizes participant order.
func (c *Chat) BeforeCreate(_ *gorm.DB) error {
	if c.User1ID == c.User2ID {
		return ErrSelfEdge
	}
	if c.User1ID > c.User2ID {
		c.User1ID, c.User2ID = c.User2ID, c.User1ID
	}
	return nil
}

// HasParticipant reports whether userID is one of the two chat members.
func (c *Chat) HasParticipant(userID uint) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// OtherParticipant returns the peer of userID in the chat.
func (c *Chat) OtherParticipant(userID uint) uint {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// Message is a single chat message. Ordering within a chat is (SentAt, ID);
// the ID tie-break keeps the order total when timestamps collide.
type Message struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ChatID           uint      `gorm:"not null;index:idx_messages_chat_sent" json:"chat_id"`
	SenderID         uint      `gorm:"not null;index" json:"sender_id"`
	Body             string    `gorm:"type:text;not null" json:"body"`
	ReplyToMessageID *uint     `gorm:"index" json:"reply_to_message_id,omitempty"`
	SentAt           time.Time `gorm:"not null;index:idx_messages_chat_sent" json:"sent_at"`

	Sender  User     `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	ReplyTo *Message `gorm:"foreignKey:ReplyToMessageID" json:"reply_to,omitempty"`
}

// TableName specifies the table name for GORM
func (Message) TableName() string {
	return "messages"
}

// BeforeCreate stamps SentAt when the caller did not.
func (m *Message) BeforeCreate(_ *gorm.DB) error {
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	return nil
}

// After returns true when m sorts after other in the per-chat order.
func (m *Message) After(other *Message) bool {
	if other == nil {
		return true
	}
	if !m.SentAt.Equal(other.SentAt) {
		return m.SentAt.After(other.SentAt)
	}
	return m.ID > other.ID
}
