package gochatrelay

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/ChatRelay/go-chat-relay/internal/bootstrap"
	internalevents "github.com/ChatRelay/go-chat-relay/internal/events"
	"github.com/ChatRelay/go-chat-relay/internal/fanout"
	"github.com/ChatRelay/go-chat-relay/internal/friends"
	"github.com/ChatRelay/go-chat-relay/internal/handlers"
	"github.com/ChatRelay/go-chat-relay/internal/presence"
	"github.com/ChatRelay/go-chat-relay/internal/ratelimit"
	"github.com/ChatRelay/go-chat-relay/internal/repositories"
	"github.com/ChatRelay/go-chat-relay/internal/store"
	"github.com/ChatRelay/go-chat-relay/internal/util"
	"github.com/ChatRelay/go-chat-relay/models"
)

// ---------------------------------
// INITIALISATION
// ---------------------------------

// Relay is the presence and realtime fanout core. Embedding applications
// construct one, mount Handler() into their router, and open fanout
// channels for the topics they care about.
type Relay struct {
	Config *models.Config

	logger models.Logger
	db     *bun.DB
	pubsub models.PubSub
	stream *store.Stream
	origin string

	repos           repoSet
	presenceService *presence.Service
	friendsService  *friends.Service
	users           repositories.UserDirectory
	verifier        models.IdentityVerifier

	limiterProvider ratelimit.Provider
	limiters        handlers.Limiters

	handler http.Handler
}

// Option customises a Relay beyond what Config carries.
type Option func(*Relay)

// WithIdentityVerifier plugs in the surrounding auth system. Required for
// any deployment that is not a test or a local sandbox.
func WithIdentityVerifier(verifier models.IdentityVerifier) Option {
	return func(r *Relay) { r.verifier = verifier }
}

// WithUserDirectory overrides where friend-request targets are resolved.
func WithUserDirectory(users repositories.UserDirectory) Option {
	return func(r *Relay) { r.users = users }
}

// New wires the whole core from config: event bus, change stream, store
// repositories, rate limiters, services and the HTTP route table.
func New(config *models.Config, opts ...Option) (*Relay, error) {
	util.InitValidator()

	relay := &Relay{
		Config: config,
		origin: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(relay)
	}
	if relay.verifier == nil {
		return nil, fmt.Errorf("an identity verifier is required; use WithIdentityVerifier")
	}

	relay.logger = bootstrap.InitLogger(bootstrap.LoggerOptions{Level: config.Logger.Level})

	pubsub, err := internalevents.InitProvider(&config.EventBus, nil)
	if err != nil {
		return nil, fmt.Errorf("init event bus: %w", err)
	}
	relay.pubsub = pubsub
	relay.stream = store.NewStream(pubsub, relay.logger, config.EventBus.Prefix)

	if err := relay.initRepositories(); err != nil {
		return nil, err
	}
	if err := relay.initRateLimiters(); err != nil {
		return nil, err
	}

	relay.presenceService = presence.NewService(relay.repos.presence, config.Presence, relay.logger)
	relay.friendsService = friends.NewService(
		relay.repos.requests,
		relay.repos.friendships,
		relay.users,
		relay.logger,
	)

	relay.handler = relay.buildRouter()
	return relay, nil
}

func (r *Relay) initRepositories() error {
	if r.Config.Database.Provider == "memory" {
		r.repos = memoryRepos(r.stream)
		if r.users == nil {
			r.users = r.repos.users
		}
		return nil
	}

	db, err := bootstrap.InitDB(r.Config.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	r.db = db
	r.repos = bunRepos(db, r.stream)
	if r.users == nil {
		r.users = r.repos.users
	}
	return nil
}

func (r *Relay) initRateLimiters() error {
	var provider ratelimit.Provider
	switch r.Config.RateLimit.Provider {
	case "redis":
		if r.Config.RateLimit.Redis == nil {
			return fmt.Errorf("redis rate limiting requires rate_limit.redis config")
		}
		redisProvider, err := ratelimit.NewRedisProvider(*r.Config.RateLimit.Redis)
		if err != nil {
			return fmt.Errorf("init redis rate limiter: %w", err)
		}
		provider = redisProvider
	case "memory", "":
		if r.Config.RateLimit.Memory != nil {
			provider = ratelimit.NewMemoryProviderWithConfig(*r.Config.RateLimit.Memory)
		} else {
			provider = ratelimit.NewMemoryProvider()
		}
	default:
		return fmt.Errorf("unsupported rate limit provider: %s", r.Config.RateLimit.Provider)
	}

	r.limiterProvider = provider
	r.limiters = handlers.Limiters{
		Presence:       ratelimit.NewLimiter(r.Config.RateLimit.Presence, provider, r.logger),
		FriendRequests: ratelimit.NewLimiter(r.Config.RateLimit.FriendRequests, provider, r.logger),
	}
	return nil
}

// ---------------------------------
// MIGRATIONS
// ---------------------------------

// RunMigrations creates the subsystem's tables. No-op for the in-memory
// store provider.
func (r *Relay) RunMigrations(ctx context.Context) error {
	if r.db == nil {
		return nil
	}

	tables := []any{
		(*models.User)(nil),
		(*models.PresenceRecord)(nil),
		(*models.FriendRequest)(nil),
		(*models.Friendship)(nil),
	}
	for _, table := range tables {
		if _, err := r.db.NewCreateTable().Model(table).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", table, err)
		}
	}
	return nil
}

// ---------------------------------
// ACCESSORS
// ---------------------------------

// Handler returns the mounted HTTP surface, rooted at Config.BasePath.
func (r *Relay) Handler() http.Handler {
	return r.handler
}

// Origin identifies this instance on change events. Writes that pass
// through Handler() are stamped with it automatically.
func (r *Relay) Origin() string {
	return r.origin
}

// Stream exposes the change stream for embedders that publish or consume
// change events directly.
func (r *Relay) Stream() *store.Stream {
	return r.stream
}

// PresenceService exposes the presence write/read API for non-HTTP
// transports (websocket gateways, bots).
func (r *Relay) PresenceService() *presence.Service {
	return r.presenceService
}

// FriendsService exposes the friend graph API.
func (r *Relay) FriendsService() *friends.Service {
	return r.friendsService
}

// NewTracker builds a per-connection presence session for
// connection-oriented gateways.
func (r *Relay) NewTracker(userID string) *presence.Tracker {
	return presence.NewTracker(r.presenceService, userID, r.Config.Presence, r.logger)
}

// WatchPresence follows one user's presence transitions.
func (r *Relay) WatchPresence(ctx context.Context, userID string, handler presence.WatchHandler) (*store.Subscription, error) {
	watcher := presence.NewWatcher(r.stream, r.logger)
	return watcher.Watch(ctx, userID, handler)
}

// OpenFanout opens a fanout channel for one topic, wired to this
// instance's stream, broadcast bus and origin.
func (r *Relay) OpenFanout(ctx context.Context, topic string) (*fanout.Channel, error) {
	return fanout.Open(ctx, fanout.Options{
		Topic:  topic,
		Stream: r.stream,
		Bus:    r.pubsub,
		Origin: r.origin,
		Logger: r.logger,
	})
}

// Close releases the event bus, rate limit backend, presence timers and
// the database handle.
func (r *Relay) Close() error {
	r.presenceService.Close()

	var firstErr error
	if err := r.limiterProvider.Close(); err != nil {
		firstErr = err
	}
	if err := r.pubsub.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
