package service

import (
	"context"

	"alumnet/internal/cache"
	"alumnet/internal/models"
	"alumnet/internal/observability"
	"alumnet/internal/repository"
)

// blockedEither reports whether any block edge exists between the pair, in
// either direction. The short-TTL cached answer is used when available; any
// cache failure falls through to the store so Redis being down never breaks
// a block check.
func blockedEither(ctx context.Context, repo repository.RelationshipRepository, a, b uint) (bool, error) {
	key := cache.BlockedPairKey(models.PairKey(a, b))

	var blocked bool
	if found, err := cache.GetJSON(ctx, key, &blocked); err == nil && found {
		return blocked, nil
	}

	blocked, err := repo.IsBlocked(ctx, a, b)
	if err != nil {
		return false, err
	}
	_ = cache.SetJSON(ctx, key, blocked, cache.BlockedPairTTL)
	return blocked, nil
}

// BlockService manages block edges. Placing a block severs any friendship
// between the pair in the same transaction and suppresses all further
// interaction symmetrically until the block is lifted.
type BlockService struct {
	relRepo repository.RelationshipRepository
	locks   *keyedLocks
}

// NewBlockService returns a new BlockService.
func NewBlockService(relRepo repository.RelationshipRepository) *BlockService {
	return &BlockService{
		relRepo: relRepo,
		locks:   newKeyedLocks(64),
	}
}

// Block inserts a directed block edge and atomically removes any friendship
// edge between the pair. The blocked user is not notified.
func (s *BlockService) Block(ctx context.Context, blockerID, blockedID uint, reason string) (*models.UserBlock, error) {
	if blockerID == blockedID {
		return nil, models.NewValidationError("cannot block yourself")
	}

	unlock := s.locks.Lock(models.PairKey(blockerID, blockedID))
	defer unlock()

	block, err := s.relRepo.BlockAndSever(ctx, blockerID, blockedID, reason)
	if err != nil {
		return nil, err
	}

	observability.FriendRequestsTotal.WithLabelValues("block").Inc()
	cache.InvalidateBlockedPair(ctx, models.PairKey(blockerID, blockedID))
	cache.InvalidateSuggestions(ctx, blockerID, blockedID)
	return block, nil
}

// Unblock removes the caller's block edge toward blockedID. A block placed
// by the other side is untouched.
func (s *BlockService) Unblock(ctx context.Context, blockerID, blockedID uint) error {
	unlock := s.locks.Lock(models.PairKey(blockerID, blockedID))
	defer unlock()

	if err := s.relRepo.DeleteBlock(ctx, blockerID, blockedID); err != nil {
		return err
	}

	observability.FriendRequestsTotal.WithLabelValues("unblock").Inc()
	cache.InvalidateBlockedPair(ctx, models.PairKey(blockerID, blockedID))
	cache.InvalidateSuggestions(ctx, blockerID, blockedID)
	return nil
}

// Blocked lists the users the caller has blocked.
func (s *BlockService) Blocked(ctx context.Context, blockerID uint) ([]models.UserBlock, error) {
	return s.relRepo.ListBlocks(ctx, blockerID)
}
