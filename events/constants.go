package events

type BusProvider string

const (
	ProviderGoChannel BusProvider = "gochannel"
	ProviderRedis     BusProvider = "redis"
)

func (p BusProvider) String() string {
	return string(p)
}

func (p BusProvider) Valid() bool {
	switch p {
	case ProviderGoChannel, ProviderRedis:
		return true
	}
	return false
}

// Topic families carried over the change stream and broadcast bus.
// A topic addresses one logical entity: a channel's messages, one user's
// presence row, or the friend requests addressed to one user.
const (
	TopicPresence       = "presence"
	TopicFriendRequests = "friend_requests"
	TopicFriendships    = "friendships"
	TopicMessages       = "messages"
)
