// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"math/rand"
	"time"

	"alumnet/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

var facultyCodes = []string{"ENG", "LAW", "MED", "SCI", "BUS", "ART", "EDU"}

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by seed presets and tests.
type Factory struct {
	db   *gorm.DB
	opts Options
	rng  *rand.Rand
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seedVal := opts.RandSeed
	if seedVal == 0 {
		seedVal = time.Now().UnixNano()
	}
	gofakeit.Seed(seedVal)
	//nolint:gosec // Weak random number generator is fine for seeding
	return &Factory{db: db, opts: opts, rng: rand.New(rand.NewSource(seedVal))}
}

// pastTime returns a timestamp spread over the last opts.MaxDays days so
// seeded activity does not all land on "now".
func (f *Factory) pastTime() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	daysBack := f.rng.Intn(maxDays)
	hoursBack := f.rng.Intn(24)
	minsBack := f.rng.Intn(60)
	return time.Now().Add(-time.Duration(daysBack)*24*time.Hour -
		time.Duration(hoursBack)*time.Hour -
		time.Duration(minsBack)*time.Minute)
}

// CreateUser constructs and persists a sample `models.User`.
// Optional override functions may modify the generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	user := &models.User{
		DisplayName: gofakeit.Name(),
		AvatarURL:   fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
		FacultyCode: facultyCodes[f.rng.Intn(len(facultyCodes))],
		CohortYear:  1995 + f.rng.Intn(30),
	}

	for _, override := range overrides {
		override(user)
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateFriendship persists a friendship edge between two users.
func (f *Factory) CreateFriendship(sender, receiver *models.User, status models.FriendshipStatus, overrides ...func(*models.Friendship)) (*models.Friendship, error) {
	friendship := &models.Friendship{
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Status:     status,
		CreatedAt:  f.pastTime(),
	}

	for _, override := range overrides {
		override(friendship)
	}

	if err := f.db.Create(friendship).Error; err != nil {
		return nil, err
	}
	return friendship, nil
}

// CreateBlock persists a block from `blocker` on `blocked`.
func (f *Factory) CreateBlock(blocker, blocked *models.User) (*models.UserBlock, error) {
	block := &models.UserBlock{
		BlockerID: blocker.ID,
		BlockedID: blocked.ID,
		Reason:    gofakeit.HackerPhrase(),
	}
	if err := f.db.Create(block).Error; err != nil {
		return nil, err
	}
	return block, nil
}

// CreateChat persists a 1:1 chat between two users.
func (f *Factory) CreateChat(a, b *models.User) (*models.Chat, error) {
	chat := &models.Chat{
		User1ID:   a.ID,
		User2ID:   b.ID,
		CreatedAt: f.pastTime(),
	}
	if err := f.db.Create(chat).Error; err != nil {
		return nil, err
	}
	return chat, nil
}

// CreateMessage persists a message in the chat and advances the chat's
// denormalized last-message pointer when the new message is the newest.
func (f *Factory) CreateMessage(chat *models.Chat, sender *models.User, overrides ...func(*models.Message)) (*models.Message, error) {
	message := &models.Message{
		ChatID:   chat.ID,
		SenderID: sender.ID,
		Body:     gofakeit.Sentence(10),
		SentAt:   f.pastTime(),
	}

	for _, override := range overrides {
		override(message)
	}

	if err := f.db.Create(message).Error; err != nil {
		return nil, err
	}

	// On a SentAt tie the higher id wins, matching the (sent_at, id) order.
	if chat.LastMessageAt == nil || !message.SentAt.Before(*chat.LastMessageAt) {
		chat.LastMessageID = &message.ID
		chat.LastMessageAt = &message.SentAt
		updates := map[string]interface{}{
			"last_message_id": message.ID,
			"last_message_at": message.SentAt,
		}
		if err := f.db.Model(&models.Chat{}).Where("id = ?", chat.ID).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return message, nil
}
