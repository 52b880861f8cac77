package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentverse/gatekeeper/internal/users/domain"
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

func (s *Service) Upsert(ctx context.Context, subjectID, displayName, email string) error {
	if subjectID == "" {
		return domain.ErrUserNotFound
	}
	u, err := s.repo.Upsert(ctx, subjectID, displayName, email)
	if err != nil {
		return err
	}
	s.log.Debug().Str("subject_id", u.SubjectID).Msg("user synced")
	return nil
}

func (s *Service) Get(ctx context.Context, subjectID string) (domain.User, error) {
	return s.repo.GetBySubjectID(ctx, subjectID)
}
