package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix        = "user:%d"
	SuggestionsKeyPrefix = "suggestions:%d"
	BlockedPairPrefix    = "blocked:%s"
)

const (
	UserTTL        = 5 * time.Minute
	SuggestionsTTL = 5 * time.Minute
	BlockedPairTTL = 30 * time.Second
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func SuggestionsKey(userID uint) string {
	return fmt.Sprintf(SuggestionsKeyPrefix, userID)
}

func BlockedPairKey(pairKey string) string {
	return fmt.Sprintf(BlockedPairPrefix, pairKey)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

// InvalidateSuggestions drops the cached suggestion list for both sides of a
// relationship change.
func InvalidateSuggestions(ctx context.Context, userIDs ...uint) {
	for _, id := range userIDs {
		Invalidate(ctx, SuggestionsKey(id))
	}
}

// InvalidateBlockedPair drops the cached block check for a pair key.
func InvalidateBlockedPair(ctx context.Context, pairKey string) {
	Invalidate(ctx, BlockedPairKey(pairKey))
}
