package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// FriendshipStatus represents the status of a friendship edge.
type FriendshipStatus string

const (
	// FriendshipStatusPending indicates a pending friendship request.
	FriendshipStatusPending FriendshipStatus = "pending"
	// FriendshipStatusAccepted indicates an accepted friendship.
	FriendshipStatusAccepted FriendshipStatus = "accepted"
)

// ErrSelfEdge is returned when a user tries to create an edge to themselves.
var ErrSelfEdge = errors.New("sender and receiver must differ")

// Friendship is a directed request edge between two users. Direction is kept
// to distinguish sent vs received pending requests; uniqueness is enforced on
// the unordered pair so A->B and B->A can never coexist.
type Friendship struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	SenderID          uint             `gorm:"not null;index" json:"sender_id"`
	ReceiverID        uint             `gorm:"not null;index" json:"receiver_id"`
	PairKey           string           `gorm:"not null;uniqueIndex:idx_friendships_pair" json:"-"`
	Status            FriendshipStatus `gorm:"type:varchar(20);default:'pending';index:idx_friendships_status" json:"status"`
	HiddenForReceiver bool             `gorm:"default:false" json:"hidden_for_receiver"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`

	// Relationships
	Sender   User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Receiver User `gorm:"foreignKey:ReceiverID" json:"receiver,omitempty"`
}

// TableName specifies the table name for GORM
func (Friendship) TableName() string {
	return "friendships"
}

// BeforeCreate normalizes the pair key so the unique index covers both
// directions of the edge.
func (f *Friendship) BeforeCreate(_ *gorm.DB) error {
	if f.SenderID == f.ReceiverID {
		return ErrSelfEdge
	}
	f.PairKey = PairKey(f.SenderID, f.ReceiverID)
	return nil
}

// PairKey returns the canonical "min:max" key for an unordered user pair.
func PairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
