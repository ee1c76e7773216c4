// Command seed populates the database with demo social data.
package main

import (
	"flag"
	"log"

	"alumnet/internal/bootstrap"
	"alumnet/internal/config"
	"alumnet/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	friendsPerUser := flag.Int("friends", 4, "Friendship edges per user")
	chatsPerUser := flag.Int("chats", 2, "Chats per user")
	messagesPerChat := flag.Int("messages", 20, "Messages per chat")
	numBlocks := flag.Int("blocks", 3, "Blocked pairs to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("Database Seeder")
	log.Printf("Target: %d users, %d friends/user, %d chats/user, %d msgs/chat, clean=%v",
		*numUsers, *friendsPerUser, *chatsPerUser, *messagesPerChat, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, _, err := bootstrap.InitRuntime(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	if err := seed.Seed(db, seed.Options{
		NumUsers:        *numUsers,
		FriendsPerUser:  *friendsPerUser,
		ChatsPerUser:    *chatsPerUser,
		MessagesPerChat: *messagesPerChat,
		NumBlocks:       *numBlocks,
		ShouldClean:     *shouldClean,
	}); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("All done. The database is populated with demo data.")
}
