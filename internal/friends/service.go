package friends

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ChatRelay/go-chat-relay/internal/repositories"
	"github.com/ChatRelay/go-chat-relay/models"
)

// ResolveAction is what a recipient does with a pending request.
type ResolveAction string

const (
	ActionAccept ResolveAction = "accept"
	ActionReject ResolveAction = "reject"
)

// Service owns the friend-request lifecycle and mutual-friendship
// creation. Requests move pending -> accepted|rejected and never leave a
// terminal state.
type Service struct {
	requests    repositories.FriendRequestRepository
	friendships repositories.FriendshipRepository
	users       repositories.UserDirectory
	logger      models.Logger
}

func NewService(
	requests repositories.FriendRequestRepository,
	friendships repositories.FriendshipRepository,
	users repositories.UserDirectory,
	logger models.Logger,
) *Service {
	return &Service{
		requests:    requests,
		friendships: friendships,
		users:       users,
		logger:      logger,
	}
}

// CreateRequest validates and inserts a pending request from -> to.
// Validation failures return without mutating any state.
func (s *Service) CreateRequest(ctx context.Context, from, to string) (*models.FriendRequest, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: missing user id", models.ErrInvalidInput)
	}
	if from == to {
		return nil, fmt.Errorf("%w: cannot send a friend request to yourself", models.ErrInvalidInput)
	}

	exists, err := s.users.Exists(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving target: %v", models.ErrInternal, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, to)
	}

	// A friendship can outlive or precede any visible request record, so
	// this check is independent of request state.
	areFriends, err := s.friendships.Exists(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: checking friendship: %v", models.ErrInternal, err)
	}
	if areFriends {
		return nil, models.ErrAlreadyFriends
	}

	// The pending check is directionless: either direction blocks.
	pending, err := s.requests.PendingBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: checking pending requests: %v", models.ErrInternal, err)
	}
	if pending != nil {
		return nil, models.ErrAlreadyPending
	}

	request := &models.FriendRequest{
		ID:       uuid.NewString(),
		FromUser: from,
		ToUser:   to,
		Status:   models.FriendRequestPending,
	}
	created, err := s.requests.Create(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", models.ErrInternal, err)
	}
	return created, nil
}

// ResolveRequest transitions a pending request addressed to actingUser.
// The id must resolve to a request that is addressed to actingUser and
// still pending; anything else is NotFound, so the sender or a third
// party cannot resolve it and a resolved request cannot be resolved twice.
func (s *Service) ResolveRequest(ctx context.Context, requestID string, action ResolveAction, actingUser string) (*models.FriendRequest, *models.Friendship, error) {
	if action != ActionAccept && action != ActionReject {
		return nil, nil, fmt.Errorf("%w: unknown action %q", models.ErrInvalidInput, action)
	}

	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: loading request: %v", models.ErrInternal, err)
	}
	if request == nil || request.ToUser != actingUser || request.Status != models.FriendRequestPending {
		return nil, nil, fmt.Errorf("%w: friend request %s", models.ErrNotFound, requestID)
	}

	if action == ActionReject {
		updated, err := s.requests.UpdateStatus(ctx, requestID, models.FriendRequestRejected)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: rejecting request: %v", models.ErrInternal, err)
		}
		return updated, nil, nil
	}

	updated, err := s.requests.UpdateStatus(ctx, requestID, models.FriendRequestAccepted)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: accepting request: %v", models.ErrInternal, err)
	}

	userA, userB := models.CanonicalPair(request.FromUser, request.ToUser)
	friendship, err := s.friendships.Create(ctx, &models.Friendship{UserA: userA, UserB: userB})
	if err != nil {
		// The accepted transition is authoritative and is not rolled back;
		// an accepted request with a missing friendship is recoverable,
		// a two-phase commit here is not worth it.
		s.logger.Error("friendship creation failed after accept",
			"error", err,
			"request_id", requestID,
			"user_a", userA,
			"user_b", userB,
		)
		return updated, nil, nil
	}

	return updated, friendship, nil
}

// ListPending returns the pending requests addressed to userID.
func (s *Service) ListPending(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	requests, err := s.requests.ListPendingFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing requests: %v", models.ErrInternal, err)
	}
	return requests, nil
}

// ListFriendships returns the canonical pairs userID belongs to.
func (s *Service) ListFriendships(ctx context.Context, userID string) ([]models.Friendship, error) {
	friendships, err := s.friendships.ListFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing friendships: %v", models.ErrInternal, err)
	}
	return friendships, nil
}
