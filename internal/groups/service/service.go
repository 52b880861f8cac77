package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentverse/gatekeeper/internal/groups/domain"
)

// Service implements domain.Service.
type Service struct {
	repo domain.Repository
	log  zerolog.Logger
}

func New(repo domain.Repository) *Service {
	return &Service{repo: repo, log: zerolog.Nop()}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(log zerolog.Logger) {
	s.log = log
}

func (s *Service) Create(ctx context.Context, name string, description *string) (domain.Group, error) {
	if name == "" {
		return domain.Group{}, errors.New("group name is required")
	}
	g, err := s.repo.CreateGroup(ctx, uuid.New(), name, description)
	if err != nil {
		return domain.Group{}, err
	}
	s.log.Info().Str("group_id", g.ID.String()).Str("name", g.Name).Msg("group created")
	return g, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Group, error) {
	return s.repo.GetGroup(ctx, id)
}

func (s *Service) ListForUser(ctx context.Context, subjectID string, isSuperadmin bool) ([]domain.Group, error) {
	if isSuperadmin {
		return s.repo.ListGroups(ctx)
	}
	return s.repo.ListGroupsForSubject(ctx, subjectID)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, name, description *string) (domain.Group, error) {
	g, err := s.repo.UpdateGroup(ctx, id, name, description)
	if err != nil {
		return domain.Group{}, err
	}
	s.log.Info().Str("group_id", g.ID.String()).Msg("group updated")
	return g, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteGroup(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("group_id", id.String()).Msg("group deleted")
	return nil
}

func (s *Service) AdminGroups(ctx context.Context, subjectID string) ([]domain.Group, error) {
	return s.repo.ListAdminGroups(ctx, subjectID)
}

func (s *Service) IsGroupAdmin(ctx context.Context, subjectID string, groupID uuid.UUID) (bool, error) {
	return s.repo.HasAdminMembership(ctx, subjectID, groupID)
}
