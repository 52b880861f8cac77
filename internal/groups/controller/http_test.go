package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authdomain "github.com/agentverse/gatekeeper/internal/auth/domain"
	mw "github.com/agentverse/gatekeeper/internal/auth/middleware"
	"github.com/agentverse/gatekeeper/internal/groups/domain"
	"github.com/agentverse/gatekeeper/internal/platform/validation"
)

type stubGroupService struct {
	groups map[uuid.UUID]domain.Group
}

func (s *stubGroupService) Create(ctx context.Context, name string, description *string) (domain.Group, error) {
	g := domain.Group{ID: uuid.New(), Name: name, Description: description}
	s.groups[g.ID] = g
	return g, nil
}

func (s *stubGroupService) Get(ctx context.Context, id uuid.UUID) (domain.Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return domain.Group{}, domain.ErrGroupNotFound
	}
	return g, nil
}

func (s *stubGroupService) ListForUser(ctx context.Context, subjectID string, isSuperadmin bool) ([]domain.Group, error) {
	var out []domain.Group
	for _, g := range s.groups {
		out = append(out, g)
	}
	return out, nil
}

func (s *stubGroupService) Update(ctx context.Context, id uuid.UUID, name, description *string) (domain.Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return domain.Group{}, domain.ErrGroupNotFound
	}
	if name != nil {
		g.Name = *name
	}
	s.groups[id] = g
	return g, nil
}

func (s *stubGroupService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := s.groups[id]; !ok {
		return domain.ErrGroupNotFound
	}
	delete(s.groups, id)
	return nil
}

func (s *stubGroupService) AdminGroups(ctx context.Context, subjectID string) ([]domain.Group, error) {
	return nil, nil
}

func (s *stubGroupService) IsGroupAdmin(ctx context.Context, subjectID string, groupID uuid.UUID) (bool, error) {
	return false, nil
}

// stubMembers records the order of mutations relative to invalidations.
type stubMembers struct {
	err    error
	events *[]string
}

func (s *stubMembers) AddMember(ctx context.Context, groupID uuid.UUID, subjectID string, role domain.Role) (domain.Member, error) {
	if s.err != nil {
		return domain.Member{}, s.err
	}
	*s.events = append(*s.events, "mutate")
	return domain.Member{SubjectID: subjectID, Role: role}, nil
}

func (s *stubMembers) RemoveMember(ctx context.Context, groupID uuid.UUID, subjectID string) error {
	if s.err != nil {
		return s.err
	}
	*s.events = append(*s.events, "mutate")
	return nil
}

func (s *stubMembers) UpdateMemberRole(ctx context.Context, groupID uuid.UUID, subjectID string, role domain.Role) (domain.Membership, error) {
	if s.err != nil {
		return domain.Membership{}, s.err
	}
	*s.events = append(*s.events, "mutate")
	return domain.Membership{SubjectID: subjectID, Role: role}, nil
}

func (s *stubMembers) ListMembers(ctx context.Context, groupID uuid.UUID) ([]domain.Member, error) {
	return []domain.Member{}, nil
}

type stubInvalidator struct {
	subjects []string
	events   *[]string
}

func (s *stubInvalidator) InvalidateUser(ctx context.Context, subjectID string) {
	s.subjects = append(s.subjects, subjectID)
	*s.events = append(*s.events, "invalidate")
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

type fixture struct {
	e       *echo.Echo
	svc     *stubGroupService
	members *stubMembers
	inval   *stubInvalidator
	events  []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		svc: &stubGroupService{groups: make(map[uuid.UUID]domain.Group)},
	}
	f.members = &stubMembers{events: &f.events}
	f.inval = &stubInvalidator{events: &f.events}

	f.e = echo.New()
	f.e.Validator = validation.New()

	// Inject an identity ahead of the routes; guards are pass-through so the
	// tests exercise handler behavior, not guard behavior.
	api := f.e.Group("", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			mw.SetIdentity(c, authdomain.Identity{SubjectID: "tester"})
			return next(c)
		}
	})
	New(f.svc, f.members, f.inval, passThrough, passThrough).Register(api)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/groups", `{"name":"ops"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"ops"`)
	// The description is optional end to end: it stays nil, not "".
	assert.Contains(t, rec.Body.String(), `"description":null`)
	for _, g := range f.svc.groups {
		assert.Nil(t, g.Description)
	}

	rec = f.do(http.MethodPost, "/groups", `{"name":"dev","description":"tooling"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"description":"tooling"`)

	rec = f.do(http.MethodPost, "/groups", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetGroup_NotFoundAndMalformed(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/groups/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/groups/not-a-uuid", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAddMember_InvalidatesAfterCommit(t *testing.T) {
	f := newFixture(t)
	gid := uuid.New()
	f.svc.groups[gid] = domain.Group{ID: gid, Name: "ops"}

	rec := f.do(http.MethodPost, "/groups/"+gid.String()+"/members", `{"subject_id":"alice","role":"user"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, []string{"mutate", "invalidate"}, f.events)
	assert.Equal(t, []string{"alice"}, f.inval.subjects)
}

func TestAddMember_RejectsUnknownRole(t *testing.T) {
	f := newFixture(t)
	gid := uuid.New()
	f.svc.groups[gid] = domain.Group{ID: gid, Name: "ops"}

	rec := f.do(http.MethodPost, "/groups/"+gid.String()+"/members", `{"subject_id":"alice","role":"owner"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.inval.subjects, "validation failure must not invalidate")
}

func TestRemoveMember_LastAdminMapsTo400(t *testing.T) {
	f := newFixture(t)
	gid := uuid.New()
	f.members.err = domain.ErrLastAdmin

	rec := f.do(http.MethodDelete, "/groups/"+gid.String()+"/members/alice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.inval.subjects, "failed mutation must not invalidate")
}

func TestRemoveMember_HappyPathInvalidates(t *testing.T) {
	f := newFixture(t)
	gid := uuid.New()

	rec := f.do(http.MethodDelete, "/groups/"+gid.String()+"/members/alice", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"mutate", "invalidate"}, f.events)
	assert.Equal(t, []string{"alice"}, f.inval.subjects)
}

func TestUpdateMemberRole_DuplicateMapsTo409(t *testing.T) {
	f := newFixture(t)
	gid := uuid.New()
	f.members.err = domain.ErrDuplicateMembership

	rec := f.do(http.MethodPut, "/groups/"+gid.String()+"/members/alice", `{"role":"admin"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateMemberRole_Invalidates(t *testing.T) {
	f := newFixture(t)
	gid := uuid.New()

	rec := f.do(http.MethodPut, "/groups/"+gid.String()+"/members/alice", `{"role":"admin"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"mutate", "invalidate"}, f.events)
}
