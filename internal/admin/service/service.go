package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	agentsdomain "github.com/agentverse/gatekeeper/internal/agents/domain"
	groupsdomain "github.com/agentverse/gatekeeper/internal/groups/domain"
)

// GroupCounter is the slice of the groups repository the admin service needs.
type GroupCounter interface {
	ListGroupsWithCounts(ctx context.Context) ([]groupsdomain.GroupWithCount, error)
}

// Service bundles the superadmin-only administrative operations. It reuses
// the agent service for assignment assembly so the two views cannot drift.
type Service struct {
	agents agentsdomain.Service
	groups GroupCounter
	log    zerolog.Logger
}

func New(agents agentsdomain.Service, groups GroupCounter) *Service {
	return &Service{agents: agents, groups: groups, log: zerolog.Nop()}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(log zerolog.Logger) {
	s.log = log
}

// ListAllAgents returns every agent with its full set of group assignments.
func (s *Service) ListAllAgents(ctx context.Context) ([]agentsdomain.UserAgent, error) {
	return s.agents.UserAgents(ctx, "", true)
}

// ListGroupsWithCounts returns every group annotated with its member count.
func (s *Service) ListGroupsWithCounts(ctx context.Context) ([]groupsdomain.GroupWithCount, error) {
	return s.groups.ListGroupsWithCounts(ctx)
}

// BulkUpdateAgentGroups replaces the agent's assignment set.
func (s *Service) BulkUpdateAgentGroups(ctx context.Context, agentID uuid.UUID, groupIDs []uuid.UUID, updatedBy string) (agentsdomain.UserAgent, error) {
	out, err := s.agents.ReplaceGroups(ctx, agentID, groupIDs, updatedBy)
	if err != nil {
		return agentsdomain.UserAgent{}, err
	}
	s.log.Info().
		Str("agent_id", agentID.String()).
		Int("groups", len(out.Groups)).
		Str("updated_by", updatedBy).
		Msg("bulk-updated agent group assignments")
	return out, nil
}
