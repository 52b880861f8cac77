package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Agent is a registered agent owned by one or more groups.
type Agent struct {
	ID         uuid.UUID
	ExternalID string
	Name       string
	CreatedBy  string
	CreatedAt  time.Time
}

// Assignment relates an agent to a group. Unique per (group, agent) pair;
// an agent may belong to multiple groups simultaneously.
type Assignment struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	AgentID   uuid.UUID
	AddedBy   string
	CreatedAt time.Time
}

// GroupRef is the group summary attached to an accessible agent.
type GroupRef struct {
	GroupID   uuid.UUID `json:"group_id"`
	GroupName string    `json:"group_name"`
}

// UserAgent is an agent with the union of groups granting access to it.
type UserAgent struct {
	ID         uuid.UUID  `json:"id"`
	ExternalID string     `json:"external_id"`
	Name       string     `json:"name"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	Groups     []GroupRef `json:"groups"`
}

var (
	ErrAgentNotFound       = errors.New("agent not found")
	ErrDuplicateAgent      = errors.New("an agent with this external id already exists")
	ErrAssignmentNotFound  = errors.New("assignment not found")
	ErrDuplicateAssignment = errors.New("agent is already assigned to this group")
)

// Repository abstracts persistence for agents and group assignments.
type Repository interface {
	CreateAgent(ctx context.Context, id uuid.UUID, externalID, name, createdBy string) (Agent, error)
	// DeleteAgent removes an agent row; used as the compensating action when
	// registration fails after the agent insert.
	DeleteAgent(ctx context.Context, id uuid.UUID) error
	GetAgent(ctx context.Context, id uuid.UUID) (Agent, error)
	ListAgentsByIDs(ctx context.Context, ids []uuid.UUID) ([]Agent, error)
	ListAgentsInGroup(ctx context.Context, groupID uuid.UUID) ([]Agent, error)

	AddAssignment(ctx context.Context, groupID, agentID uuid.UUID, addedBy string) (Assignment, error)
	RemoveAssignment(ctx context.Context, groupID, agentID uuid.UUID) error
	ListAssignmentsByGroups(ctx context.Context, groupIDs []uuid.UUID) ([]Assignment, error)
	ListAllAssignments(ctx context.Context) ([]Assignment, error)
	// ReplaceAgentGroups swaps the agent's full assignment set in one unit of
	// work: either every old row is gone and every new row present, or nothing
	// changed.
	ReplaceAgentGroups(ctx context.Context, agentID uuid.UUID, groupIDs []uuid.UUID, addedBy string) error
}

// Service encapsulates agent registration, assignment and visibility.
type Service interface {
	Register(ctx context.Context, externalID, name string, groupID uuid.UUID, createdBy string) (Agent, error)
	AssignToGroup(ctx context.Context, groupID, agentID uuid.UUID, addedBy string) (Assignment, error)
	RemoveFromGroup(ctx context.Context, groupID, agentID uuid.UUID) error
	ListInGroup(ctx context.Context, groupID uuid.UUID) ([]Agent, error)
	// UserAgents returns the agents accessible to a subject, deduplicated,
	// each carrying the union of groups that grant access. Superadmins see
	// every assignment.
	UserAgents(ctx context.Context, subjectID string, isSuperadmin bool) ([]UserAgent, error)
	// ReplaceGroups validates the whole target set before mutating anything,
	// then atomically replaces the agent's assignments.
	ReplaceGroups(ctx context.Context, agentID uuid.UUID, groupIDs []uuid.UUID, updatedBy string) (UserAgent, error)
}
