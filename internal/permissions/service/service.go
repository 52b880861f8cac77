package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentverse/gatekeeper/internal/metrics"
	"github.com/agentverse/gatekeeper/internal/permissions/domain"
	"github.com/agentverse/gatekeeper/internal/platform/cache"
)

// DefaultTTLSeconds bounds how long a cached decision is trusted.
const DefaultTTLSeconds = 60

// Store is the identity-store slice the engine queries on a cache miss.
type Store interface {
	GroupIDsForAgent(ctx context.Context, agentID uuid.UUID) ([]uuid.UUID, error)
	MembershipRoles(ctx context.Context, subjectID string, groupIDs []uuid.UUID, adminOnly bool) ([]string, error)
}

// Service is the authorization engine plus the cache-consistency protocol
// around it. It is stateless beyond its store and cache handles.
type Service struct {
	store        Store
	cache        cache.Cache
	ttlSeconds   int
	storeTimeout time.Duration
	log          zerolog.Logger
}

func New(store Store, c cache.Cache, ttlSeconds int) *Service {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}
	if c == nil {
		c = cache.NewNop()
	}
	return &Service{store: store, cache: c, ttlSeconds: ttlSeconds, log: zerolog.Nop()}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(log zerolog.Logger) {
	s.log = log
}

// SetStoreTimeout bounds how long a cache-miss computation may hold the
// store. Zero disables the bound.
func (s *Service) SetStoreTimeout(d time.Duration) {
	s.storeTimeout = d
}

// Check decides whether a subject may perform action on agent.
//
// Superadmins bypass both cache and store unconditionally. Everything else is
// answered from cache when possible; misses are computed from the store and
// written back with the TTL, negative results included, so denied lookups do
// not hammer the store either.
func (s *Service) Check(ctx context.Context, subjectID string, agentID uuid.UUID, action domain.Action, isSuperadmin bool) (domain.Decision, error) {
	if isSuperadmin {
		role := domain.RoleSuperadmin
		metrics.PermissionCheck(true, "superadmin")
		return domain.Decision{Allowed: true, Role: &role}, nil
	}

	key := domain.PermKey(subjectID, agentID, action)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var d domain.Decision
		if err := json.Unmarshal([]byte(raw), &d); err == nil {
			metrics.PermissionCheck(d.Allowed, "cache")
			return d, nil
		}
		// Unparseable entry: fall through to the store and overwrite it.
		s.log.Warn().Str("key", key).Msg("dropping malformed cache entry")
	}

	d, err := s.compute(ctx, subjectID, agentID, action)
	if err != nil {
		return domain.Decision{}, err
	}

	if raw, err := json.Marshal(d); err == nil {
		s.cache.Set(ctx, key, string(raw), s.ttlSeconds)
	}
	metrics.PermissionCheck(d.Allowed, "store")
	return d, nil
}

func (s *Service) compute(ctx context.Context, subjectID string, agentID uuid.UUID, action domain.Action) (domain.Decision, error) {
	if s.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
	}

	groupIDs, err := s.store.GroupIDsForAgent(ctx, agentID)
	if err != nil {
		return domain.Decision{}, err
	}
	if len(groupIDs) == 0 {
		return domain.Decision{Allowed: false}, nil
	}

	// Only admins may create.
	adminOnly := action == domain.ActionCreate
	roles, err := s.store.MembershipRoles(ctx, subjectID, groupIDs, adminOnly)
	if err != nil {
		return domain.Decision{}, err
	}
	if len(roles) == 0 {
		return domain.Decision{Allowed: false}, nil
	}

	highest := "user"
	for _, r := range roles {
		if r == "admin" {
			highest = "admin"
			break
		}
	}
	return domain.Decision{Allowed: true, Role: &highest}, nil
}

// CachedUserAgents returns the cached accessible-agent list for a subject, or
// false when absent.
func (s *Service) CachedUserAgents(ctx context.Context, subjectID string) (json.RawMessage, bool) {
	raw, ok := s.cache.Get(ctx, domain.UserAgentsKey(subjectID))
	if !ok {
		return nil, false
	}
	return json.RawMessage(raw), true
}

// SetCachedUserAgents caches a subject's accessible-agent list.
func (s *Service) SetCachedUserAgents(ctx context.Context, subjectID string, agents any) {
	raw, err := json.Marshal(agents)
	if err != nil {
		s.log.Warn().Err(err).Str("subject_id", subjectID).Msg("failed to marshal user agents for cache")
		return
	}
	s.cache.Set(ctx, domain.UserAgentsKey(subjectID), string(raw), s.ttlSeconds)
}

// InvalidateUser drops every cached decision and the cached agent list for a
// subject. Called after any membership mutation commits.
func (s *Service) InvalidateUser(ctx context.Context, subjectID string) {
	s.cache.DeletePattern(ctx, domain.UserPermPattern(subjectID))
	s.cache.Delete(ctx, domain.UserAgentsKey(subjectID))
	metrics.CacheInvalidation("user")
	s.log.Info().Str("subject_id", subjectID).Msg("invalidated permission cache for user")
}

// InvalidateAgent drops every cached decision for an agent and all cached
// agent lists: any user's visibility may have changed through the agent's
// group assignments. Called after any assignment mutation commits.
func (s *Service) InvalidateAgent(ctx context.Context, agentID uuid.UUID) {
	s.cache.DeletePattern(ctx, domain.AgentPermPattern(agentID))
	s.cache.DeletePattern(ctx, domain.UserAgentsPattern)
	metrics.CacheInvalidation("agent")
	s.log.Info().Str("agent_id", agentID.String()).Msg("invalidated permission cache for agent")
}
