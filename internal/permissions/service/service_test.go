package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/agentverse/gatekeeper/internal/permissions/domain"
	"github.com/agentverse/gatekeeper/internal/platform/cache"
)

type fakeStore struct {
	agentGroups map[uuid.UUID][]uuid.UUID
	// roles keyed by subject, then group
	roles map[string]map[uuid.UUID]string

	groupCalls  int
	roleCalls   int
	hadDeadline bool
}

func (f *fakeStore) GroupIDsForAgent(ctx context.Context, agentID uuid.UUID) ([]uuid.UUID, error) {
	f.groupCalls++
	_, f.hadDeadline = ctx.Deadline()
	return f.agentGroups[agentID], nil
}

func (f *fakeStore) MembershipRoles(ctx context.Context, subjectID string, groupIDs []uuid.UUID, adminOnly bool) ([]string, error) {
	f.roleCalls++
	var out []string
	for _, gid := range groupIDs {
		role, ok := f.roles[subjectID][gid]
		if !ok {
			continue
		}
		if adminOnly && role != "admin" {
			continue
		}
		out = append(out, role)
	}
	return out, nil
}

func newTestService(t *testing.T, store *fakeStore) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	c := cache.NewRedis(rc, 0, zerolog.Nop())
	return New(store, c, 60), mr
}

func TestCheck_SuperadminBypassesStoreAndCache(t *testing.T) {
	store := &fakeStore{}
	svc, mr := newTestService(t, store)

	d, err := svc.Check(context.Background(), "root", uuid.New(), domain.ActionAccess, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allowed decision")
	}
	if d.Role == nil || *d.Role != domain.RoleSuperadmin {
		t.Fatalf("expected superadmin role, got %v", d.Role)
	}
	if store.groupCalls != 0 || store.roleCalls != 0 {
		t.Fatalf("superadmin check must not touch the store")
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("superadmin check must not write to cache, found keys %v", mr.Keys())
	}
}

func TestCheck_AdminOutranksUser(t *testing.T) {
	agentID := uuid.New()
	g1, g2 := uuid.New(), uuid.New()
	store := &fakeStore{
		agentGroups: map[uuid.UUID][]uuid.UUID{agentID: {g1, g2}},
		roles: map[string]map[uuid.UUID]string{
			"alice": {g1: "user", g2: "admin"},
		},
	}
	svc, _ := newTestService(t, store)

	d, err := svc.Check(context.Background(), "alice", agentID, domain.ActionAccess, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.Role == nil || *d.Role != "admin" {
		t.Fatalf("expected admin decision, got %+v", d)
	}
}

func TestCheck_CreateRequiresAdmin(t *testing.T) {
	agentID := uuid.New()
	g1 := uuid.New()
	store := &fakeStore{
		agentGroups: map[uuid.UUID][]uuid.UUID{agentID: {g1}},
		roles: map[string]map[uuid.UUID]string{
			"bob": {g1: "user"},
		},
	}
	svc, _ := newTestService(t, store)

	d, err := svc.Check(context.Background(), "bob", agentID, domain.ActionCreate, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatalf("plain member must not be allowed to create")
	}
	if d.Role != nil {
		t.Fatalf("denied decision must carry no role, got %q", *d.Role)
	}
}

func TestCheck_SecondCallServedFromCache(t *testing.T) {
	agentID := uuid.New()
	g1 := uuid.New()
	store := &fakeStore{
		agentGroups: map[uuid.UUID][]uuid.UUID{agentID: {g1}},
		roles: map[string]map[uuid.UUID]string{
			"alice": {g1: "user"},
		},
	}
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	first, err := svc.Check(ctx, "alice", agentID, domain.ActionAccess, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Check(ctx, "alice", agentID, domain.ActionAccess, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.groupCalls != 1 {
		t.Fatalf("expected one store lookup, got %d", store.groupCalls)
	}
	if first.Allowed != second.Allowed {
		t.Fatalf("cached decision diverged: %+v vs %+v", first, second)
	}
}

func TestCheck_DenialsAreCachedToo(t *testing.T) {
	agentID := uuid.New()
	store := &fakeStore{
		agentGroups: map[uuid.UUID][]uuid.UUID{},
	}
	svc, mr := newTestService(t, store)
	ctx := context.Background()

	d, err := svc.Check(ctx, "nobody", agentID, domain.ActionAccess, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected denial for unassigned agent")
	}
	if !mr.Exists(domain.PermKey("nobody", agentID, domain.ActionAccess)) {
		t.Fatalf("denial was not written to cache")
	}

	if _, err := svc.Check(ctx, "nobody", agentID, domain.ActionAccess, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.groupCalls != 1 {
		t.Fatalf("cached denial should have short-circuited the store, got %d lookups", store.groupCalls)
	}
}

func TestCheck_MalformedCacheEntryRecomputed(t *testing.T) {
	agentID := uuid.New()
	g1 := uuid.New()
	store := &fakeStore{
		agentGroups: map[uuid.UUID][]uuid.UUID{agentID: {g1}},
		roles: map[string]map[uuid.UUID]string{
			"alice": {g1: "admin"},
		},
	}
	svc, mr := newTestService(t, store)
	ctx := context.Background()

	key := domain.PermKey("alice", agentID, domain.ActionAccess)
	if err := mr.Set(key, "{not json"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	d, err := svc.Check(ctx, "alice", agentID, domain.ActionAccess, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allowed decision after recompute")
	}
	if store.groupCalls != 1 {
		t.Fatalf("malformed entry must fall through to the store")
	}
}

func TestInvalidateUser_DropsOnlyThatUser(t *testing.T) {
	agentID := uuid.New()
	g1 := uuid.New()
	store := &fakeStore{
		agentGroups: map[uuid.UUID][]uuid.UUID{agentID: {g1}},
		roles: map[string]map[uuid.UUID]string{
			"alice": {g1: "user"},
			"bob":   {g1: "user"},
		},
	}
	svc, mr := newTestService(t, store)
	ctx := context.Background()

	if _, err := svc.Check(ctx, "alice", agentID, domain.ActionAccess, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Check(ctx, "bob", agentID, domain.ActionAccess, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.SetCachedUserAgents(ctx, "alice", []string{"a"})

	svc.InvalidateUser(ctx, "alice")

	if mr.Exists(domain.PermKey("alice", agentID, domain.ActionAccess)) {
		t.Fatalf("alice's decision should be gone")
	}
	if mr.Exists(domain.UserAgentsKey("alice")) {
		t.Fatalf("alice's agent list should be gone")
	}
	if !mr.Exists(domain.PermKey("bob", agentID, domain.ActionAccess)) {
		t.Fatalf("bob's decision must survive alice's invalidation")
	}
}

func TestInvalidateAgent_DropsDecisionsAndAllAgentLists(t *testing.T) {
	target := uuid.New()
	other := uuid.New()
	g1 := uuid.New()
	store := &fakeStore{
		agentGroups: map[uuid.UUID][]uuid.UUID{target: {g1}, other: {g1}},
		roles: map[string]map[uuid.UUID]string{
			"alice": {g1: "user"},
		},
	}
	svc, mr := newTestService(t, store)
	ctx := context.Background()

	if _, err := svc.Check(ctx, "alice", target, domain.ActionAccess, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Check(ctx, "alice", other, domain.ActionAccess, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.SetCachedUserAgents(ctx, "alice", []string{"a"})
	svc.SetCachedUserAgents(ctx, "bob", []string{"b"})

	svc.InvalidateAgent(ctx, target)

	if mr.Exists(domain.PermKey("alice", target, domain.ActionAccess)) {
		t.Fatalf("decision for the mutated agent should be gone")
	}
	if !mr.Exists(domain.PermKey("alice", other, domain.ActionAccess)) {
		t.Fatalf("decision for an unrelated agent must survive")
	}
	if mr.Exists(domain.UserAgentsKey("alice")) || mr.Exists(domain.UserAgentsKey("bob")) {
		t.Fatalf("every cached agent list must be dropped on agent invalidation")
	}
}

func TestCachedUserAgents_RoundTrip(t *testing.T) {
	svc, _ := newTestService(t, &fakeStore{})
	ctx := context.Background()

	if _, ok := svc.CachedUserAgents(ctx, "alice"); ok {
		t.Fatalf("expected miss on empty cache")
	}

	svc.SetCachedUserAgents(ctx, "alice", []map[string]string{{"name": "crawler"}})

	raw, ok := svc.CachedUserAgents(ctx, "alice")
	if !ok {
		t.Fatalf("expected hit after set")
	}
	if string(raw) != `[{"name":"crawler"}]` {
		t.Fatalf("unexpected cached payload: %s", raw)
	}
}

func TestCheck_CacheDisabledStillAnswers(t *testing.T) {
	agentID := uuid.New()
	g1 := uuid.New()
	store := &fakeStore{
		agentGroups: map[uuid.UUID][]uuid.UUID{agentID: {g1}},
		roles: map[string]map[uuid.UUID]string{
			"alice": {g1: "user"},
		},
	}
	svc := New(store, cache.NewNop(), 60)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := svc.Check(ctx, "alice", agentID, domain.ActionAccess, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("expected allowed decision")
		}
	}
	if store.groupCalls != 2 {
		t.Fatalf("nop cache must hit the store every time, got %d lookups", store.groupCalls)
	}
}

func TestCheck_StoreTimeoutBoundsComputation(t *testing.T) {
	agentID := uuid.New()
	g1 := uuid.New()
	store := &fakeStore{
		agentGroups: map[uuid.UUID][]uuid.UUID{agentID: {g1}},
		roles: map[string]map[uuid.UUID]string{
			"alice": {g1: "user"},
		},
	}
	svc := New(store, cache.NewNop(), 60)
	ctx := context.Background()

	if _, err := svc.Check(ctx, "alice", agentID, domain.ActionAccess, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.hadDeadline {
		t.Fatalf("store context must be unbounded when no timeout is set")
	}

	svc.SetStoreTimeout(5 * time.Second)
	if _, err := svc.Check(ctx, "alice", agentID, domain.ActionAccess, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.hadDeadline {
		t.Fatalf("store context must carry a deadline when a timeout is set")
	}
}
