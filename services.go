package gochatrelay

import (
	"github.com/uptrace/bun"

	"github.com/ChatRelay/go-chat-relay/internal/repositories"
	"github.com/ChatRelay/go-chat-relay/internal/store"
)

// repoSet groups one store provider's repositories. Both providers emit
// identical change events on the stream, so everything above this layer
// is provider-agnostic.
type repoSet struct {
	presence    repositories.PresenceRepository
	requests    repositories.FriendRequestRepository
	friendships repositories.FriendshipRepository
	users       repositories.UserDirectory
}

func bunRepos(db bun.IDB, stream *store.Stream) repoSet {
	return repoSet{
		presence:    repositories.NewBunPresenceRepository(db, stream),
		requests:    repositories.NewBunFriendRequestRepository(db, stream),
		friendships: repositories.NewBunFriendshipRepository(db, stream),
		users:       repositories.NewBunUserDirectory(db),
	}
}

func memoryRepos(stream *store.Stream) repoSet {
	return repoSet{
		presence:    repositories.NewMemoryPresenceRepository(stream),
		requests:    repositories.NewMemoryFriendRequestRepository(stream),
		friendships: repositories.NewMemoryFriendshipRepository(stream),
		users:       repositories.NewMemoryUserDirectory(),
	}
}
