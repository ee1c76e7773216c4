package models

import (
	"time"

	"gorm.io/gorm"
)

// UserBlock is a directed block edge. A block in either direction suppresses
// friendship mutation and messaging between the pair.
type UserBlock struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BlockerID uint      `gorm:"not null;uniqueIndex:idx_user_blocks_pair" json:"blocker_id"`
	BlockedID uint      `gorm:"not null;uniqueIndex:idx_user_blocks_pair" json:"blocked_id"`
	Reason    string    `gorm:"type:varchar(255)" json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Blocker User `gorm:"foreignKey:BlockerID" json:"blocker,omitempty"`
	Blocked User `gorm:"foreignKey:BlockedID" json:"blocked,omitempty"`
}

// TableName specifies the table name for GORM
func (UserBlock) TableName() string {
	return "user_blocks"
}

// BeforeCreate rejects self-blocks.
func (b *UserBlock) BeforeCreate(_ *gorm.DB) error {
	if b.BlockerID == b.BlockedID {
		return ErrSelfEdge
	}
	return nil
}
