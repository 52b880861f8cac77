package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role is the membership role of a user within a group.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether the role is one of the closed set.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Group owns zero or more memberships and zero or more agent assignments.
type Group struct {
	ID          uuid.UUID
	Name        string
	Description *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Membership relates a user to a group with a role. Unique per
// (group, subject) pair.
type Membership struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	SubjectID string
	Role      Role
	CreatedAt time.Time
}

// Member is a membership joined with user display data.
type Member struct {
	SubjectID   string
	DisplayName string
	Email       string
	Role        Role
	CreatedAt   time.Time
}

// GroupWithCount is a group annotated with its member count.
type GroupWithCount struct {
	Group
	MemberCount int64
}

var (
	ErrGroupNotFound       = errors.New("group not found")
	ErrMembershipNotFound  = errors.New("membership not found")
	ErrDuplicateMembership = errors.New("user is already a member of this group")
	// ErrLastAdmin signals that removing or demoting this membership would
	// leave the group without any admin.
	ErrLastAdmin = errors.New("cannot remove or demote the last admin of a group")
)

// Repository abstracts persistence for groups and memberships.
type Repository interface {
	CreateGroup(ctx context.Context, id uuid.UUID, name string, description *string) (Group, error)
	GetGroup(ctx context.Context, id uuid.UUID) (Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	ListGroupsByIDs(ctx context.Context, ids []uuid.UUID) ([]Group, error)
	ListGroupsForSubject(ctx context.Context, subjectID string) ([]Group, error)
	ListAdminGroups(ctx context.Context, subjectID string) ([]Group, error)
	ListGroupsWithCounts(ctx context.Context) ([]GroupWithCount, error)
	UpdateGroup(ctx context.Context, id uuid.UUID, name, description *string) (Group, error)
	DeleteGroup(ctx context.Context, id uuid.UUID) error

	AddMembership(ctx context.Context, groupID uuid.UUID, subjectID string, role Role) (Membership, error)
	GetMembership(ctx context.Context, groupID uuid.UUID, subjectID string) (Membership, error)
	// RemoveMembership deletes a membership. The delete re-verifies the
	// last-admin guard inside the statement and returns ErrLastAdmin when it
	// trips, closing the concurrent-removal window.
	RemoveMembership(ctx context.Context, groupID uuid.UUID, subjectID string) error
	// UpdateMembershipRole changes a membership's role with the same in-statement
	// guard on admin demotion.
	UpdateMembershipRole(ctx context.Context, groupID uuid.UUID, subjectID string, role Role) (Membership, error)
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]Member, error)
	CountAdmins(ctx context.Context, groupID uuid.UUID) (int64, error)
	HasAdminMembership(ctx context.Context, subjectID string, groupID uuid.UUID) (bool, error)
}

// Service encapsulates group CRUD and visibility rules.
type Service interface {
	Create(ctx context.Context, name string, description *string) (Group, error)
	Get(ctx context.Context, id uuid.UUID) (Group, error)
	// ListForUser returns all groups for superadmins, else the subject's groups.
	ListForUser(ctx context.Context, subjectID string, isSuperadmin bool) ([]Group, error)
	Update(ctx context.Context, id uuid.UUID, name, description *string) (Group, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AdminGroups(ctx context.Context, subjectID string) ([]Group, error)
	IsGroupAdmin(ctx context.Context, subjectID string, groupID uuid.UUID) (bool, error)
}

// MembershipService enforces the membership state machine, including
// last-admin protection.
type MembershipService interface {
	AddMember(ctx context.Context, groupID uuid.UUID, subjectID string, role Role) (Member, error)
	RemoveMember(ctx context.Context, groupID uuid.UUID, subjectID string) error
	UpdateMemberRole(ctx context.Context, groupID uuid.UUID, subjectID string, role Role) (Membership, error)
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]Member, error)
}
