package service

import (
	"context"
	"sort"
	"time"

	"alumnet/internal/cache"
	"alumnet/internal/config"
	"alumnet/internal/featureflags"
	"alumnet/internal/models"
	"alumnet/internal/notifications"
	"alumnet/internal/observability"
	"alumnet/internal/repository"
)

// FriendService implements the friendship state machine: request lifecycle,
// inbox visibility and friend suggestions. Every mutation takes the pair
// stripe lock and re-checks blocks, so a block racing a request cannot leave
// both standing.
type FriendService struct {
	relRepo  repository.RelationshipRepository
	userRepo repository.UserRepository
	emitter  EventPublisher
	flags    *featureflags.Manager
	cfg      *config.Config
	locks    *keyedLocks
}

// NewFriendService returns a new FriendService.
func NewFriendService(
	relRepo repository.RelationshipRepository,
	userRepo repository.UserRepository,
	emitter EventPublisher,
	flags *featureflags.Manager,
	cfg *config.Config,
) *FriendService {
	if emitter == nil {
		emitter = noopPublisher{}
	}
	return &FriendService{
		relRepo:  relRepo,
		userRepo: userRepo,
		emitter:  emitter,
		flags:    flags,
		cfg:      cfg,
		locks:    newKeyedLocks(64),
	}
}

// SendRequest creates a pending friendship edge from sender to receiver.
func (s *FriendService) SendRequest(ctx context.Context, senderID, receiverID uint) (*models.Friendship, error) {
	if senderID == receiverID {
		return nil, models.NewValidationError("cannot send a friend request to yourself")
	}
	if _, err := s.userRepo.GetByID(ctx, receiverID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(models.PairKey(senderID, receiverID))
	defer unlock()

	blocked, err := blockedEither(ctx, s.relRepo, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, models.NewBlockedError()
	}

	existing, err := s.relRepo.FindEdge(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == models.FriendshipStatusAccepted {
			return nil, models.NewConflictError("you are already friends")
		}
		if existing.SenderID == senderID {
			return nil, models.NewConflictError("friend request already sent")
		}
		return nil, models.NewConflictError("this user already sent you a friend request")
	}

	edge := &models.Friendship{SenderID: senderID, ReceiverID: receiverID}
	if err := s.relRepo.CreatePending(ctx, edge); err != nil {
		return nil, err
	}

	observability.FriendRequestsTotal.WithLabelValues("send").Inc()
	cache.InvalidateSuggestions(ctx, senderID, receiverID)
	s.emitter.Publish(receiverID, notifications.EventFriendRequest, map[string]interface{}{
		"request_id":   edge.ID,
		"from_user_id": senderID,
	})
	return edge, nil
}

// CancelRequest deletes a pending request previously sent by senderID.
func (s *FriendService) CancelRequest(ctx context.Context, senderID, receiverID uint) error {
	unlock := s.locks.Lock(models.PairKey(senderID, receiverID))
	defer unlock()

	edge, err := s.relRepo.FindEdge(ctx, senderID, receiverID)
	if err != nil {
		return err
	}
	if edge == nil || edge.Status != models.FriendshipStatusPending || edge.SenderID != senderID {
		return models.NewNotFoundError("Friend request", receiverID)
	}

	if err := s.relRepo.DeleteEdge(ctx, edge.ID); err != nil {
		return err
	}

	observability.FriendRequestsTotal.WithLabelValues("cancel").Inc()
	cache.InvalidateSuggestions(ctx, senderID, receiverID)
	s.emitter.Publish(receiverID, notifications.EventFriendCancel, map[string]interface{}{
		"from_user_id": senderID,
	})
	return nil
}

// ConfirmRequest accepts a pending request addressed to receiverID.
func (s *FriendService) ConfirmRequest(ctx context.Context, receiverID, senderID uint) (*models.Friendship, error) {
	unlock := s.locks.Lock(models.PairKey(senderID, receiverID))
	defer unlock()

	edge, err := s.relRepo.FindEdge(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if edge == nil || edge.Status != models.FriendshipStatusPending || edge.ReceiverID != receiverID {
		return nil, models.NewNotFoundError("Friend request", senderID)
	}

	if err := s.relRepo.SetStatus(ctx, edge.ID, models.FriendshipStatusAccepted); err != nil {
		return nil, err
	}
	edge.Status = models.FriendshipStatusAccepted
	edge.UpdatedAt = time.Now().UTC()

	observability.FriendRequestsTotal.WithLabelValues("confirm").Inc()
	cache.InvalidateSuggestions(ctx, senderID, receiverID)
	s.emitter.Publish(senderID, notifications.EventFriendAccept, map[string]interface{}{
		"request_id": edge.ID,
		"by_user_id": receiverID,
	})
	return edge, nil
}

// HideRequest removes a pending request from the receiver's inbox without
// deleting it. The sender still sees it as sent and cannot re-request;
// calling this twice is the same as calling it once.
func (s *FriendService) HideRequest(ctx context.Context, receiverID, senderID uint) error {
	edge, err := s.relRepo.FindEdge(ctx, senderID, receiverID)
	if err != nil {
		return err
	}
	if edge == nil || edge.Status != models.FriendshipStatusPending || edge.ReceiverID != receiverID {
		return models.NewNotFoundError("Friend request", senderID)
	}

	if err := s.relRepo.SetHidden(ctx, edge.ID, true); err != nil {
		return err
	}
	observability.FriendRequestsTotal.WithLabelValues("hide").Inc()
	return nil
}

// DeleteFriend removes an accepted friendship. Either party may unfriend.
func (s *FriendService) DeleteFriend(ctx context.Context, userID, otherID uint) error {
	unlock := s.locks.Lock(models.PairKey(userID, otherID))
	defer unlock()

	edge, err := s.relRepo.FindEdge(ctx, userID, otherID)
	if err != nil {
		return err
	}
	if edge == nil || edge.Status != models.FriendshipStatusAccepted {
		return models.NewNotFoundError("Friendship", otherID)
	}

	if err := s.relRepo.DeleteEdge(ctx, edge.ID); err != nil {
		return err
	}

	observability.FriendRequestsTotal.WithLabelValues("unfriend").Inc()
	cache.InvalidateSuggestions(ctx, userID, otherID)
	s.emitter.Publish(otherID, notifications.EventFriendRemoved, map[string]interface{}{
		"by_user_id": userID,
	})
	return nil
}

// PendingRequests returns the receiver's visible inbox of pending requests.
func (s *FriendService) PendingRequests(ctx context.Context, userID uint) ([]models.Friendship, error) {
	return s.relRepo.ListPendingForReceiver(ctx, userID)
}

// SentRequests returns requests the user has sent that are still pending.
func (s *FriendService) SentRequests(ctx context.Context, userID uint) ([]models.Friendship, error) {
	return s.relRepo.ListSentBySender(ctx, userID)
}

// Friends returns the user's accepted friends.
func (s *FriendService) Friends(ctx context.Context, userID uint) ([]models.User, error) {
	return s.relRepo.ListFriends(ctx, userID)
}

// RelationState describes the edge between two users from one side's view.
type RelationState struct {
	State     string             `json:"state"`
	RequestID uint               `json:"request_id,omitempty"`
	Edge      *models.Friendship `json:"edge,omitempty"`
}

// Status reports the relationship between userID and otherID.
func (s *FriendService) Status(ctx context.Context, userID, otherID uint) (*RelationState, error) {
	if _, err := s.userRepo.GetByID(ctx, otherID); err != nil {
		return nil, err
	}

	blocked, err := blockedEither(ctx, s.relRepo, userID, otherID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return &RelationState{State: "blocked"}, nil
	}

	edge, err := s.relRepo.FindEdge(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}
	if edge == nil {
		return &RelationState{State: "none"}, nil
	}

	switch edge.Status {
	case models.FriendshipStatusAccepted:
		return &RelationState{State: "friends", Edge: edge}, nil
	default:
		state := "pending_received"
		if edge.SenderID == userID {
			state = "pending_sent"
		}
		return &RelationState{State: state, RequestID: edge.ID, Edge: edge}, nil
	}
}

// Suggestions returns friend candidates for the user: everyone not already
// connected or blocked, ranked by shared faculty (+2) and shared cohort (+1),
// ties broken by ascending user id.
func (s *FriendService) Suggestions(ctx context.Context, userID uint) ([]models.User, error) {
	if s.flags.Enabled("suggestion_cache", userID) {
		var suggestions []models.User
		key := cache.SuggestionsKey(userID)
		if found, err := cache.GetJSON(ctx, key, &suggestions); err == nil && found {
			return suggestions, nil
		}
		suggestions, err := s.computeSuggestions(ctx, userID)
		if err != nil {
			return nil, err
		}
		_ = cache.SetJSON(ctx, key, suggestions, s.suggestionTTL())
		return suggestions, nil
	}
	return s.computeSuggestions(ctx, userID)
}

func (s *FriendService) computeSuggestions(ctx context.Context, userID uint) ([]models.User, error) {
	me, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	related, err := s.relRepo.ListRelatedIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	exclude := append(related, userID)

	limit := s.cfg.SuggestionCount
	if limit <= 0 {
		limit = 20
	}
	// Over-fetch so ranking has something to choose from.
	pool := limit * 10
	if pool < 100 {
		pool = 100
	}
	candidates, err := s.userRepo.ListCandidates(ctx, exclude, pool)
	if err != nil {
		return nil, err
	}

	score := func(u *models.User) int {
		n := 0
		if me.FacultyCode != "" && u.FacultyCode == me.FacultyCode {
			n += 2
		}
		if me.CohortYear != 0 && u.CohortYear == me.CohortYear {
			n++
		}
		return n
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := score(&candidates[i]), score(&candidates[j])
		if si != sj {
			return si > sj
		}
		return candidates[i].ID < candidates[j].ID
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *FriendService) suggestionTTL() time.Duration {
	if s.cfg.SuggestionCacheS > 0 {
		return time.Duration(s.cfg.SuggestionCacheS) * time.Second
	}
	return cache.SuggestionsTTL
}
