package agents

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	ctrl "github.com/agentverse/gatekeeper/internal/agents/controller"
	repo "github.com/agentverse/gatekeeper/internal/agents/repository"
	svc "github.com/agentverse/gatekeeper/internal/agents/service"
	"github.com/agentverse/gatekeeper/internal/config"
	groupsdomain "github.com/agentverse/gatekeeper/internal/groups/domain"
	"github.com/agentverse/gatekeeper/internal/logger"
)

// Registrar wires the agents module. The admin slice reuses Svc so the
// administrative agent views cannot drift from the user-facing ones.
type Registrar struct {
	Svc  *svc.Service
	Repo *repo.PostgresRepository
}

func NewRegistrar(pg *pgxpool.Pool, groups svc.GroupDirectory, users svc.UserLookup, cfg config.Config) *Registrar {
	r := repo.New(pg)
	s := svc.New(r, groups, users)
	s.SetLogger(logger.New(cfg.AppEnv))
	return &Registrar{Svc: s, Repo: r}
}

// Register mounts agent, assignment and per-user visibility routes.
func (r *Registrar) Register(g *echo.Group, groups groupsdomain.Service, perms ctrl.PermCache, requireGroupAdmin echo.MiddlewareFunc) {
	ctrl.New(r.Svc, groups, perms, requireGroupAdmin).Register(g)
}
