package permissions

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/agentverse/gatekeeper/internal/config"
	"github.com/agentverse/gatekeeper/internal/logger"
	ctrl "github.com/agentverse/gatekeeper/internal/permissions/controller"
	repo "github.com/agentverse/gatekeeper/internal/permissions/repository"
	svc "github.com/agentverse/gatekeeper/internal/permissions/service"
	"github.com/agentverse/gatekeeper/internal/platform/cache"
)

// NewService builds the permission engine over the given cache. The service
// is shared: other slices call its invalidation hooks after mutations.
func NewService(pg *pgxpool.Pool, c cache.Cache, cfg config.Config) *svc.Service {
	s := svc.New(repo.New(pg), c, int(cfg.PermCacheTTL.Seconds()))
	s.SetLogger(logger.New(cfg.AppEnv))
	s.SetStoreTimeout(cfg.StoreTimeout)
	return s
}

// Register mounts the permission check route.
func Register(g *echo.Group, s *svc.Service) {
	ctrl.New(s).Register(g)
}
