package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentverse/gatekeeper/internal/groups/domain"
	usersdomain "github.com/agentverse/gatekeeper/internal/users/domain"
)

// UserLookup resolves local user records for membership validation.
type UserLookup interface {
	GetBySubjectID(ctx context.Context, subjectID string) (usersdomain.User, error)
}

// MembershipService implements domain.MembershipService.
type MembershipService struct {
	repo  domain.Repository
	users UserLookup
	log   zerolog.Logger
}

func NewMembership(repo domain.Repository, users UserLookup) *MembershipService {
	return &MembershipService{repo: repo, users: users, log: zerolog.Nop()}
}

// SetLogger sets the logger for the service.
func (s *MembershipService) SetLogger(log zerolog.Logger) {
	s.log = log
}

func (s *MembershipService) AddMember(ctx context.Context, groupID uuid.UUID, subjectID string, role domain.Role) (domain.Member, error) {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return domain.Member{}, err
	}
	u, err := s.users.GetBySubjectID(ctx, subjectID)
	if err != nil {
		return domain.Member{}, err
	}

	m, err := s.repo.AddMembership(ctx, groupID, subjectID, role)
	if err != nil {
		return domain.Member{}, err
	}
	s.log.Info().
		Str("group_id", groupID.String()).
		Str("subject_id", subjectID).
		Str("role", string(role)).
		Msg("member added")
	return domain.Member{
		SubjectID:   m.SubjectID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Role:        m.Role,
		CreatedAt:   m.CreatedAt,
	}, nil
}

func (s *MembershipService) RemoveMember(ctx context.Context, groupID uuid.UUID, subjectID string) error {
	// Precondition check for a friendly error; the repository re-verifies the
	// admin count at delete time, which is the authoritative guard.
	m, err := s.repo.GetMembership(ctx, groupID, subjectID)
	if err != nil {
		return err
	}
	if m.Role == domain.RoleAdmin {
		admins, err := s.repo.CountAdmins(ctx, groupID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			s.log.Warn().
				Str("group_id", groupID.String()).
				Str("subject_id", subjectID).
				Msg("blocked removal of last admin")
			return domain.ErrLastAdmin
		}
	}

	if err := s.repo.RemoveMembership(ctx, groupID, subjectID); err != nil {
		if errors.Is(err, domain.ErrLastAdmin) {
			s.log.Warn().
				Str("group_id", groupID.String()).
				Str("subject_id", subjectID).
				Msg("blocked removal of last admin")
		}
		return err
	}
	s.log.Info().
		Str("group_id", groupID.String()).
		Str("subject_id", subjectID).
		Msg("member removed")
	return nil
}

func (s *MembershipService) UpdateMemberRole(ctx context.Context, groupID uuid.UUID, subjectID string, role domain.Role) (domain.Membership, error) {
	m, err := s.repo.GetMembership(ctx, groupID, subjectID)
	if err != nil {
		return domain.Membership{}, err
	}
	if m.Role == domain.RoleAdmin && role == domain.RoleUser {
		admins, err := s.repo.CountAdmins(ctx, groupID)
		if err != nil {
			return domain.Membership{}, err
		}
		if admins <= 1 {
			s.log.Warn().
				Str("group_id", groupID.String()).
				Str("subject_id", subjectID).
				Msg("blocked demotion of last admin")
			return domain.Membership{}, domain.ErrLastAdmin
		}
	}

	updated, err := s.repo.UpdateMembershipRole(ctx, groupID, subjectID, role)
	if err != nil {
		return domain.Membership{}, err
	}
	s.log.Info().
		Str("group_id", groupID.String()).
		Str("subject_id", subjectID).
		Str("role", string(role)).
		Msg("member role updated")
	return updated, nil
}

func (s *MembershipService) ListMembers(ctx context.Context, groupID uuid.UUID) ([]domain.Member, error) {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, groupID)
}
