package admin

import (
	"github.com/labstack/echo/v4"

	ctrl "github.com/agentverse/gatekeeper/internal/admin/controller"
	svc "github.com/agentverse/gatekeeper/internal/admin/service"
	agentsdomain "github.com/agentverse/gatekeeper/internal/agents/domain"
	"github.com/agentverse/gatekeeper/internal/config"
	"github.com/agentverse/gatekeeper/internal/logger"
)

// Register wires the superadmin module and mounts its routes.
func Register(g *echo.Group, agents agentsdomain.Service, groups svc.GroupCounter, perms ctrl.Invalidator, requireSuperadmin echo.MiddlewareFunc, cfg config.Config) {
	s := svc.New(agents, groups)
	s.SetLogger(logger.New(cfg.AppEnv))
	ctrl.New(s, perms, requireSuperadmin).Register(g)
}
