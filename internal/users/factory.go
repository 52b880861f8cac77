package users

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentverse/gatekeeper/internal/config"
	"github.com/agentverse/gatekeeper/internal/logger"
	repo "github.com/agentverse/gatekeeper/internal/users/repository"
	svc "github.com/agentverse/gatekeeper/internal/users/service"
)

// Registrar wires the users module. The slice has no routes of its own; the
// service is consumed by the auth middleware (request-time upsert) and the
// repository by the groups and agents slices for user lookups.
type Registrar struct {
	Svc  *svc.Service
	Repo *repo.PostgresRepository
}

func NewRegistrar(pg *pgxpool.Pool, cfg config.Config) *Registrar {
	r := repo.New(pg)
	s := svc.New(r)
	s.SetLogger(logger.New(cfg.AppEnv))
	return &Registrar{Svc: s, Repo: r}
}
