package groups

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/agentverse/gatekeeper/internal/config"
	ctrl "github.com/agentverse/gatekeeper/internal/groups/controller"
	repo "github.com/agentverse/gatekeeper/internal/groups/repository"
	svc "github.com/agentverse/gatekeeper/internal/groups/service"
	"github.com/agentverse/gatekeeper/internal/logger"
)

// Registrar wires the groups module. The repository is exposed because the
// agents slice resolves group membership through it, and the service because
// the group-admin guard asks it for admin status.
type Registrar struct {
	Svc     *svc.Service
	Members *svc.MembershipService
	Repo    *repo.PostgresRepository
}

func NewRegistrar(pg *pgxpool.Pool, users svc.UserLookup, cfg config.Config) *Registrar {
	r := repo.New(pg)
	s := svc.New(r)
	s.SetLogger(logger.New(cfg.AppEnv))
	m := svc.NewMembership(r, users)
	m.SetLogger(logger.New(cfg.AppEnv))
	return &Registrar{Svc: s, Members: m, Repo: r}
}

// Register mounts group and membership routes.
func (r *Registrar) Register(g *echo.Group, perms ctrl.Invalidator, requireSuperadmin, requireGroupAdmin echo.MiddlewareFunc) {
	ctrl.New(r.Svc, r.Members, perms, requireSuperadmin, requireGroupAdmin).Register(g)
}
