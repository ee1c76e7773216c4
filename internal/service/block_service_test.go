package service

import (
	"context"
	"testing"

	"alumnet/internal/models"
)

func TestBlockServiceBlockSelf(t *testing.T) {
	svc := NewBlockService(noopRelRepo())
	_, err := svc.Block(context.Background(), 4, 4, "")
	assertAppErrCode(t, err, "VALIDATION_ERROR")
}

func TestBlockServiceBlockSeversFriendship(t *testing.T) {
	repo := noopRelRepo()
	var severed bool
	repo.blockAndSeverFn = func(_ context.Context, blockerID, blockedID uint, reason string) (*models.UserBlock, error) {
		severed = true
		return &models.UserBlock{BlockerID: blockerID, BlockedID: blockedID, Reason: reason}, nil
	}

	svc := NewBlockService(repo)
	block, err := svc.Block(context.Background(), 1, 2, "harassment")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !severed {
		t.Fatal("expected block to go through the severing transaction")
	}
	if block.BlockerID != 1 || block.BlockedID != 2 || block.Reason != "harassment" {
		t.Fatalf("unexpected block %+v", block)
	}
}

func TestBlockServiceBlockAlreadyBlocked(t *testing.T) {
	repo := noopRelRepo()
	repo.blockAndSeverFn = func(context.Context, uint, uint, string) (*models.UserBlock, error) {
		return nil, models.NewConflictError("user is already blocked")
	}

	svc := NewBlockService(repo)
	_, err := svc.Block(context.Background(), 1, 2, "")
	assertAppErrCode(t, err, "CONFLICT")
}

func TestBlockServiceUnblockNotBlocked(t *testing.T) {
	repo := noopRelRepo()
	repo.deleteBlockFn = func(_ context.Context, _, blockedID uint) error {
		return models.NewNotFoundError("Block", blockedID)
	}

	svc := NewBlockService(repo)
	err := svc.Unblock(context.Background(), 1, 2)
	assertAppErrCode(t, err, "NOT_FOUND")
}
