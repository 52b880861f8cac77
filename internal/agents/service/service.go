package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentverse/gatekeeper/internal/agents/domain"
	groupsdomain "github.com/agentverse/gatekeeper/internal/groups/domain"
	usersdomain "github.com/agentverse/gatekeeper/internal/users/domain"
)

// GroupDirectory is the slice of the groups repository the agent service needs.
type GroupDirectory interface {
	GetGroup(ctx context.Context, id uuid.UUID) (groupsdomain.Group, error)
	ListGroupsByIDs(ctx context.Context, ids []uuid.UUID) ([]groupsdomain.Group, error)
	ListGroupsForSubject(ctx context.Context, subjectID string) ([]groupsdomain.Group, error)
}

// UserLookup resolves local user records.
type UserLookup interface {
	GetBySubjectID(ctx context.Context, subjectID string) (usersdomain.User, error)
}

// Service implements domain.Service.
type Service struct {
	repo   domain.Repository
	groups GroupDirectory
	users  UserLookup
	log    zerolog.Logger
}

func New(repo domain.Repository, groups GroupDirectory, users UserLookup) *Service {
	return &Service{repo: repo, groups: groups, users: users, log: zerolog.Nop()}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(log zerolog.Logger) {
	s.log = log
}

// Register creates the agent and its initial group assignment. The two writes
// are linked: when the assignment insert fails, the fresh agent row is deleted
// so no orphaned agent survives a partial registration.
func (s *Service) Register(ctx context.Context, externalID, name string, groupID uuid.UUID, createdBy string) (domain.Agent, error) {
	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return domain.Agent{}, err
	}

	agent, err := s.repo.CreateAgent(ctx, uuid.New(), externalID, name, createdBy)
	if err != nil {
		return domain.Agent{}, err
	}

	if _, err := s.repo.AddAssignment(ctx, groupID, agent.ID, createdBy); err != nil {
		if delErr := s.repo.DeleteAgent(ctx, agent.ID); delErr != nil {
			s.log.Error().Err(delErr).
				Str("agent_id", agent.ID.String()).
				Msg("compensating agent delete failed")
		}
		return domain.Agent{}, err
	}

	s.log.Info().
		Str("agent_id", agent.ID.String()).
		Str("external_id", externalID).
		Str("group_id", groupID.String()).
		Msg("agent registered")
	return agent, nil
}

func (s *Service) AssignToGroup(ctx context.Context, groupID, agentID uuid.UUID, addedBy string) (domain.Assignment, error) {
	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return domain.Assignment{}, err
	}
	if _, err := s.repo.GetAgent(ctx, agentID); err != nil {
		return domain.Assignment{}, err
	}
	ga, err := s.repo.AddAssignment(ctx, groupID, agentID, addedBy)
	if err != nil {
		return domain.Assignment{}, err
	}
	s.log.Info().
		Str("agent_id", agentID.String()).
		Str("group_id", groupID.String()).
		Msg("agent assigned to group")
	return ga, nil
}

func (s *Service) RemoveFromGroup(ctx context.Context, groupID, agentID uuid.UUID) error {
	if err := s.repo.RemoveAssignment(ctx, groupID, agentID); err != nil {
		return err
	}
	s.log.Info().
		Str("agent_id", agentID.String()).
		Str("group_id", groupID.String()).
		Msg("agent removed from group")
	return nil
}

func (s *Service) ListInGroup(ctx context.Context, groupID uuid.UUID) ([]domain.Agent, error) {
	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.repo.ListAgentsInGroup(ctx, groupID)
}

func (s *Service) UserAgents(ctx context.Context, subjectID string, isSuperadmin bool) ([]domain.UserAgent, error) {
	var (
		assignments []domain.Assignment
		err         error
	)
	if isSuperadmin {
		assignments, err = s.repo.ListAllAssignments(ctx)
	} else {
		if _, uerr := s.users.GetBySubjectID(ctx, subjectID); uerr != nil {
			return nil, uerr
		}
		var memberGroups []groupsdomain.Group
		memberGroups, err = s.groups.ListGroupsForSubject(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		if len(memberGroups) == 0 {
			return []domain.UserAgent{}, nil
		}
		ids := make([]uuid.UUID, len(memberGroups))
		for i, g := range memberGroups {
			ids[i] = g.ID
		}
		assignments, err = s.repo.ListAssignmentsByGroups(ctx, ids)
	}
	if err != nil {
		return nil, err
	}
	return s.assemble(ctx, assignments)
}

// assemble turns assignment rows into deduplicated agents carrying the union
// of groups that grant access.
func (s *Service) assemble(ctx context.Context, assignments []domain.Assignment) ([]domain.UserAgent, error) {
	if len(assignments) == 0 {
		return []domain.UserAgent{}, nil
	}

	agentIDs := make([]uuid.UUID, 0, len(assignments))
	groupIDs := make([]uuid.UUID, 0, len(assignments))
	seenAgent := map[uuid.UUID]struct{}{}
	seenGroup := map[uuid.UUID]struct{}{}
	for _, ga := range assignments {
		if _, ok := seenAgent[ga.AgentID]; !ok {
			seenAgent[ga.AgentID] = struct{}{}
			agentIDs = append(agentIDs, ga.AgentID)
		}
		if _, ok := seenGroup[ga.GroupID]; !ok {
			seenGroup[ga.GroupID] = struct{}{}
			groupIDs = append(groupIDs, ga.GroupID)
		}
	}

	agents, err := s.repo.ListAgentsByIDs(ctx, agentIDs)
	if err != nil {
		return nil, err
	}
	groups, err := s.groups.ListGroupsByIDs(ctx, groupIDs)
	if err != nil {
		return nil, err
	}

	agentMap := make(map[uuid.UUID]domain.Agent, len(agents))
	for _, a := range agents {
		agentMap[a.ID] = a
	}
	groupMap := make(map[uuid.UUID]groupsdomain.Group, len(groups))
	for _, g := range groups {
		groupMap[g.ID] = g
	}

	out := make([]domain.UserAgent, 0, len(agentMap))
	index := map[uuid.UUID]int{}
	for _, ga := range assignments {
		a, okA := agentMap[ga.AgentID]
		g, okG := groupMap[ga.GroupID]
		if !okA || !okG {
			continue
		}
		i, ok := index[a.ID]
		if !ok {
			out = append(out, domain.UserAgent{
				ID:         a.ID,
				ExternalID: a.ExternalID,
				Name:       a.Name,
				CreatedBy:  a.CreatedBy,
				CreatedAt:  a.CreatedAt,
			})
			i = len(out) - 1
			index[a.ID] = i
		}
		ref := domain.GroupRef{GroupID: g.ID, GroupName: g.Name}
		dup := false
		for _, existing := range out[i].Groups {
			if existing.GroupID == ref.GroupID {
				dup = true
				break
			}
		}
		if !dup {
			out[i].Groups = append(out[i].Groups, ref)
		}
	}
	return out, nil
}

// ReplaceGroups validates every target group before any mutation; a single
// unknown id leaves the assignment set untouched.
func (s *Service) ReplaceGroups(ctx context.Context, agentID uuid.UUID, groupIDs []uuid.UUID, updatedBy string) (domain.UserAgent, error) {
	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil {
		return domain.UserAgent{}, err
	}

	unique := make([]uuid.UUID, 0, len(groupIDs))
	seen := map[uuid.UUID]struct{}{}
	for _, id := range groupIDs {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			unique = append(unique, id)
		}
	}

	found, err := s.groups.ListGroupsByIDs(ctx, unique)
	if err != nil {
		return domain.UserAgent{}, err
	}
	if len(found) != len(unique) {
		return domain.UserAgent{}, groupsdomain.ErrGroupNotFound
	}

	if err := s.repo.ReplaceAgentGroups(ctx, agentID, unique, updatedBy); err != nil {
		return domain.UserAgent{}, err
	}

	groupMap := make(map[uuid.UUID]groupsdomain.Group, len(found))
	for _, g := range found {
		groupMap[g.ID] = g
	}
	refs := make([]domain.GroupRef, 0, len(unique))
	for _, id := range unique {
		refs = append(refs, domain.GroupRef{GroupID: id, GroupName: groupMap[id].Name})
	}

	s.log.Info().
		Str("agent_id", agentID.String()).
		Int("groups", len(unique)).
		Str("updated_by", updatedBy).
		Msg("agent group assignments replaced")

	return domain.UserAgent{
		ID:         agent.ID,
		ExternalID: agent.ExternalID,
		Name:       agent.Name,
		CreatedBy:  agent.CreatedBy,
		CreatedAt:  agent.CreatedAt,
		Groups:     refs,
	}, nil
}
