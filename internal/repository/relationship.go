package repository

import (
	"context"
	"errors"

	"alumnet/internal/models"
	"alumnet/internal/observability"

	"gorm.io/gorm"
)

// RelationshipRepository persists friendship and block edges. Uniqueness of a
// friendship edge is enforced per unordered pair by the pair_key index, so
// two racing requests for the same pair resolve to a single edge regardless
// of direction.
type RelationshipRepository interface {
	CreatePending(ctx context.Context, edge *models.Friendship) error
	GetEdgeByID(ctx context.Context, id uint) (*models.Friendship, error)
	FindEdge(ctx context.Context, userID1, userID2 uint) (*models.Friendship, error)
	SetStatus(ctx context.Context, edgeID uint, status models.FriendshipStatus) error
	SetHidden(ctx context.Context, edgeID uint, hidden bool) error
	DeleteEdge(ctx context.Context, edgeID uint) error
	DeleteEdgeBetween(ctx context.Context, userID1, userID2 uint) error
	ListPendingForReceiver(ctx context.Context, userID uint) ([]models.Friendship, error)
	ListSentBySender(ctx context.Context, userID uint) ([]models.Friendship, error)
	ListFriends(ctx context.Context, userID uint) ([]models.User, error)
	ListRelatedIDs(ctx context.Context, userID uint) ([]uint, error)

	IsBlocked(ctx context.Context, userID1, userID2 uint) (bool, error)
	CreateBlock(ctx context.Context, block *models.UserBlock) error
	DeleteBlock(ctx context.Context, blockerID, blockedID uint) error
	ListBlocks(ctx context.Context, blockerID uint) ([]models.UserBlock, error)
	BlockAndSever(ctx context.Context, blockerID, blockedID uint, reason string) (*models.UserBlock, error)
}

type relationshipRepository struct {
	db      *gorm.DB
	logger  *observability.RepoLogger
	metrics *observability.DatabaseMetrics
}

// NewRelationshipRepository creates a new relationship repository
func NewRelationshipRepository(db *gorm.DB) RelationshipRepository {
	return &relationshipRepository{
		db:      db,
		logger:  observability.NewRepoLogger("friendships"),
		metrics: observability.NewDatabaseMetrics(),
	}
}

func (r *relationshipRepository) CreatePending(ctx context.Context, edge *models.Friendship) error {
	defer r.metrics.TrackQuery("create", "friendships")()

	edge.Status = models.FriendshipStatusPending
	if err := r.db.WithContext(ctx).Create(edge).Error; err != nil {
		if errors.Is(err, models.ErrSelfEdge) {
			return models.NewValidationError("cannot send a friend request to yourself")
		}
		if isUniqueViolation(err) {
			return models.NewConflictError("a relationship between these users already exists")
		}
		r.logger.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.logger.LogCreate(ctx, map[string]interface{}{"sender_id": edge.SenderID, "receiver_id": edge.ReceiverID})
	return nil
}

func (r *relationshipRepository) GetEdgeByID(ctx context.Context, id uint) (*models.Friendship, error) {
	var edge models.Friendship
	if err := r.db.WithContext(ctx).First(&edge, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Friendship", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &edge, nil
}

// FindEdge returns the edge between two users in either direction, or nil
// when none exists.
func (r *relationshipRepository) FindEdge(ctx context.Context, userID1, userID2 uint) (*models.Friendship, error) {
	defer r.metrics.TrackQuery("get", "friendships")()

	var edge models.Friendship
	if err := r.db.WithContext(ctx).
		Where("pair_key = ?", models.PairKey(userID1, userID2)).
		First(&edge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &edge, nil
}

func (r *relationshipRepository) SetStatus(ctx context.Context, edgeID uint, status models.FriendshipStatus) error {
	if err := r.db.WithContext(ctx).
		Model(&models.Friendship{}).
		Where("id = ?", edgeID).
		Update("status", status).Error; err != nil {
		return models.NewInternalError(err)
	}
	r.logger.LogUpdate(ctx, map[string]interface{}{"edge_id": edgeID, "status": status})
	return nil
}

func (r *relationshipRepository) SetHidden(ctx context.Context, edgeID uint, hidden bool) error {
	if err := r.db.WithContext(ctx).
		Model(&models.Friendship{}).
		Where("id = ?", edgeID).
		Update("hidden_for_receiver", hidden).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *relationshipRepository) DeleteEdge(ctx context.Context, edgeID uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Friendship{}, edgeID).Error; err != nil {
		return models.NewInternalError(err)
	}
	r.logger.LogDelete(ctx, map[string]interface{}{"edge_id": edgeID})
	return nil
}

func (r *relationshipRepository) DeleteEdgeBetween(ctx context.Context, userID1, userID2 uint) error {
	if err := r.db.WithContext(ctx).
		Where("pair_key = ?", models.PairKey(userID1, userID2)).
		Delete(&models.Friendship{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ListPendingForReceiver returns pending requests addressed to the user,
// excluding ones the user has hidden from their inbox.
func (r *relationshipRepository) ListPendingForReceiver(ctx context.Context, userID uint) ([]models.Friendship, error) {
	defer r.metrics.TrackQuery("list", "friendships")()

	var edges []models.Friendship
	if err := r.db.WithContext(ctx).
		Where("receiver_id = ? AND status = ? AND hidden_for_receiver = ?",
			userID, models.FriendshipStatusPending, false).
		Preload("Sender").
		Order("created_at DESC").
		Find(&edges).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return edges, nil
}

func (r *relationshipRepository) ListSentBySender(ctx context.Context, userID uint) ([]models.Friendship, error) {
	defer r.metrics.TrackQuery("list", "friendships")()

	var edges []models.Friendship
	if err := r.db.WithContext(ctx).
		Where("sender_id = ? AND status = ?", userID, models.FriendshipStatusPending).
		Preload("Receiver").
		Order("created_at DESC").
		Find(&edges).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return edges, nil
}

func (r *relationshipRepository) ListFriends(ctx context.Context, userID uint) ([]models.User, error) {
	defer r.metrics.TrackQuery("list", "friendships")()

	var users []models.User
	if err := r.db.WithContext(ctx).
		Table("users").
		Joins("JOIN friendships f ON (users.id = f.sender_id OR users.id = f.receiver_id)").
		Where("f.status = ? AND (f.sender_id = ? OR f.receiver_id = ?) AND users.id != ?",
			models.FriendshipStatusAccepted, userID, userID, userID).
		Order("users.id ASC").
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

// ListRelatedIDs returns every user connected to userID by any friendship
// edge or block edge in either direction. Used to exclude candidates from
// suggestions.
func (r *relationshipRepository) ListRelatedIDs(ctx context.Context, userID uint) ([]uint, error) {
	related := make(map[uint]struct{})

	var edges []models.Friendship
	if err := r.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Find(&edges).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, e := range edges {
		if e.SenderID != userID {
			related[e.SenderID] = struct{}{}
		}
		if e.ReceiverID != userID {
			related[e.ReceiverID] = struct{}{}
		}
	}

	var blocks []models.UserBlock
	if err := r.db.WithContext(ctx).
		Where("blocker_id = ? OR blocked_id = ?", userID, userID).
		Find(&blocks).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, b := range blocks {
		if b.BlockerID != userID {
			related[b.BlockerID] = struct{}{}
		}
		if b.BlockedID != userID {
			related[b.BlockedID] = struct{}{}
		}
	}

	out := make([]uint, 0, len(related))
	for id := range related {
		out = append(out, id)
	}
	return out, nil
}

// IsBlocked reports whether a block exists between the two users in either
// direction.
func (r *relationshipRepository) IsBlocked(ctx context.Context, userID1, userID2 uint) (bool, error) {
	defer r.metrics.TrackQuery("get", "user_blocks")()

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.UserBlock{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)",
			userID1, userID2, userID2, userID1).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *relationshipRepository) CreateBlock(ctx context.Context, block *models.UserBlock) error {
	defer r.metrics.TrackQuery("create", "user_blocks")()

	if err := r.db.WithContext(ctx).Create(block).Error; err != nil {
		if errors.Is(err, models.ErrSelfEdge) {
			return models.NewValidationError("cannot block yourself")
		}
		if isUniqueViolation(err) {
			return models.NewConflictError("user is already blocked")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *relationshipRepository) DeleteBlock(ctx context.Context, blockerID, blockedID uint) error {
	res := r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&models.UserBlock{})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Block", blockedID)
	}
	return nil
}

func (r *relationshipRepository) ListBlocks(ctx context.Context, blockerID uint) ([]models.UserBlock, error) {
	var blocks []models.UserBlock
	if err := r.db.WithContext(ctx).
		Where("blocker_id = ?", blockerID).
		Preload("Blocked").
		Order("created_at DESC").
		Find(&blocks).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return blocks, nil
}

// BlockAndSever inserts the block edge and removes any friendship edge
// between the pair in a single transaction. There is no intermediate state
// where both a block and a friendship exist.
func (r *relationshipRepository) BlockAndSever(ctx context.Context, blockerID, blockedID uint, reason string) (*models.UserBlock, error) {
	defer r.metrics.TrackQuery("create", "user_blocks")()

	block := &models.UserBlock{BlockerID: blockerID, BlockedID: blockedID, Reason: reason}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(block).Error; err != nil {
			return err
		}
		return tx.
			Where("pair_key = ?", models.PairKey(blockerID, blockedID)).
			Delete(&models.Friendship{}).Error
	})
	if err != nil {
		if errors.Is(err, models.ErrSelfEdge) {
			return nil, models.NewValidationError("cannot block yourself")
		}
		if isUniqueViolation(err) {
			return nil, models.NewConflictError("user is already blocked")
		}
		r.logger.LogError(ctx, err, "block_and_sever")
		return nil, models.NewInternalError(err)
	}
	r.logger.LogCreate(ctx, map[string]interface{}{"blocker_id": blockerID, "blocked_id": blockedID})
	return block, nil
}
