package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Action is the operation being checked against an agent.
type Action string

const (
	ActionAccess Action = "access"
	ActionCreate Action = "create"
)

// Valid reports whether the action is one of the closed set.
func (a Action) Valid() bool {
	return a == ActionAccess || a == ActionCreate
}

// Decision is the result of a permission check. Role is nil when access is
// denied, else the highest role granting it ("admin", "user" or "superadmin").
type Decision struct {
	Allowed bool    `json:"allowed"`
	Role    *string `json:"role"`
}

// RoleSuperadmin is the role reported for superadmin-bypassed decisions.
const RoleSuperadmin = "superadmin"

// Cache key formats are part of the external contract with ops tooling and
// must not change.

// PermKey is the cache key for a single (user, agent, action) decision.
func PermKey(subjectID string, agentID uuid.UUID, action Action) string {
	return fmt.Sprintf("perm:%s:%s:%s", subjectID, agentID, action)
}

// UserPermPattern globs every decision cached for a user.
func UserPermPattern(subjectID string) string {
	return fmt.Sprintf("perm:%s:*", subjectID)
}

// AgentPermPattern globs every decision cached for an agent, any user.
func AgentPermPattern(agentID uuid.UUID) string {
	return fmt.Sprintf("perm:*:%s:*", agentID)
}

// UserAgentsKey is the cache key for a user's accessible-agent list.
func UserAgentsKey(subjectID string) string {
	return fmt.Sprintf("user_agents:%s", subjectID)
}

// UserAgentsPattern globs every cached accessible-agent list.
const UserAgentsPattern = "user_agents:*"
