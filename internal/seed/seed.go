package seed

import (
	"fmt"
	"log"

	"alumnet/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers        int
	FriendsPerUser  int
	ChatsPerUser    int
	MessagesPerChat int
	NumBlocks       int
	MaxDays         int
	RandSeed        int64
	ShouldClean     bool
}

// Seed populates the database with a demo social mesh: users, friendship
// edges in every state, a few blocks, and chats with message history.
func Seed(db *gorm.DB, opts Options) error {
	log.Printf("Seeding %d users (friends/user=%d, chats/user=%d, msgs/chat=%d)...",
		opts.NumUsers, opts.FriendsPerUser, opts.ChatsPerUser, opts.MessagesPerChat)

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			log.Println("Warning: could not clear all existing data, continuing anyway...")
		}
	}

	f := NewFactory(db, opts)

	users, err := createUsers(f, opts.NumUsers)
	if err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}
	log.Printf("created %d users", len(users))

	friendPairs, err := createFriendshipMesh(f, users, opts.FriendsPerUser)
	if err != nil {
		return fmt.Errorf("failed to create friendships: %w", err)
	}
	log.Printf("created %d friendship edges", len(friendPairs))

	if err := createBlocks(f, users, friendPairs, opts.NumBlocks); err != nil {
		return fmt.Errorf("failed to create blocks: %w", err)
	}

	chats, err := createChats(f, users, friendPairs, opts.ChatsPerUser, opts.MessagesPerChat)
	if err != nil {
		return fmt.Errorf("failed to create chats: %w", err)
	}
	log.Printf("created %d chats", chats)

	log.Println("Database seeding completed")
	return nil
}

func clearData(db *gorm.DB) error {
	log.Println("Clearing existing data...")
	sql := `TRUNCATE TABLE messages, chats, user_blocks, friendships, users RESTART IDENTITY CASCADE;`
	return db.Exec(sql).Error
}

func createUsers(f *Factory, count int) ([]*models.User, error) {
	users := make([]*models.User, 0, count)
	for i := 0; i < count; i++ {
		user, err := f.CreateUser()
		if err != nil {
			return nil, err
		}
		users = append(users, user)

		if i > 0 && i%100 == 0 {
			log.Printf("created %d users...", i)
		}
	}
	return users, nil
}

type pair struct{ a, b int }

// createFriendshipMesh links each user with up to n partners. Roughly 70%
// of edges are accepted, the rest stay pending and a tenth of those are
// hidden by the receiver.
func createFriendshipMesh(f *Factory, users []*models.User, n int) ([]pair, error) {
	if n <= 0 || len(users) < 2 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var accepted []pair
	for i := range users {
		for j := 0; j < n; j++ {
			k := f.rng.Intn(len(users))
			if k == i {
				continue
			}
			key := models.PairKey(users[i].ID, users[k].ID)
			if seen[key] {
				continue
			}
			seen[key] = true

			status := models.FriendshipStatusAccepted
			if f.rng.Float32() > 0.7 {
				status = models.FriendshipStatusPending
			}

			_, err := f.CreateFriendship(users[i], users[k], status, func(fr *models.Friendship) {
				if status == models.FriendshipStatusPending && f.rng.Float32() < 0.1 {
					fr.HiddenForReceiver = true
				}
			})
			if err != nil {
				return nil, err
			}
			if status == models.FriendshipStatusAccepted {
				accepted = append(accepted, pair{a: i, b: k})
			}
		}
	}
	return accepted, nil
}

// createBlocks blocks unrelated pairs so seeded data exercises the
// suppression paths without severing the accepted mesh.
func createBlocks(f *Factory, users []*models.User, friends []pair, count int) error {
	friendSet := make(map[string]bool, len(friends))
	for _, p := range friends {
		friendSet[models.PairKey(users[p.a].ID, users[p.b].ID)] = true
	}

	created := 0
	for attempts := 0; created < count && attempts < count*10; attempts++ {
		i, k := f.rng.Intn(len(users)), f.rng.Intn(len(users))
		if i == k || friendSet[models.PairKey(users[i].ID, users[k].ID)] {
			continue
		}
		if _, err := f.CreateBlock(users[i], users[k]); err != nil {
			// Unique pair index; duplicates just retry.
			continue
		}
		created++
	}
	return nil
}

func createChats(f *Factory, users []*models.User, friends []pair, chatsPerUser, messagesPerChat int) (int, error) {
	if chatsPerUser <= 0 || len(friends) == 0 {
		return 0, nil
	}

	limit := chatsPerUser * len(users) / 2
	if limit > len(friends) {
		limit = len(friends)
	}

	created := 0
	for _, p := range friends[:limit] {
		chat, err := f.CreateChat(users[p.a], users[p.b])
		if err != nil {
			continue
		}
		created++

		var prev *models.Message
		for m := 0; m < messagesPerChat; m++ {
			sender := users[p.a]
			if f.rng.Intn(2) == 1 {
				sender = users[p.b]
			}
			msg, err := f.CreateMessage(chat, sender, func(msg *models.Message) {
				// A fifth of messages reply to the previous one.
				if prev != nil && f.rng.Float32() < 0.2 {
					msg.ReplyToMessageID = &prev.ID
				}
			})
			if err != nil {
				return created, err
			}
			prev = msg
		}
	}
	return created, nil
}
