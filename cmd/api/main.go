package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/agentverse/gatekeeper/internal/admin"
	"github.com/agentverse/gatekeeper/internal/agents"
	"github.com/agentverse/gatekeeper/internal/auth/guard"
	authmw "github.com/agentverse/gatekeeper/internal/auth/middleware"
	"github.com/agentverse/gatekeeper/internal/config"
	"github.com/agentverse/gatekeeper/internal/groups"
	"github.com/agentverse/gatekeeper/internal/logger"
	"github.com/agentverse/gatekeeper/internal/permissions"
	"github.com/agentverse/gatekeeper/internal/platform/cache"
	"github.com/agentverse/gatekeeper/internal/platform/validation"
	"github.com/agentverse/gatekeeper/internal/users"
	"github.com/agentverse/gatekeeper/internal/version"
)

func main() {
	_ = godotenv.Load()

	if handleCLICommand(os.Args[1:]) {
		return
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.AppEnv)
	log.Info().Str("addr", cfg.AppAddr).Msg("starting api server")

	// Init Postgres
	pgCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid DATABASE_URL")
	}
	pgPool, err := pgxpool.NewWithConfig(context.Background(), pgCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to create pg pool")
	}
	defer pgPool.Close()

	// Init Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer redisClient.Close()

	var permCache cache.Cache = cache.NewNop()
	if cfg.CacheEnabled {
		permCache = cache.NewRedis(redisClient, cfg.CacheTimeout, log)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middlewares
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Secure())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// Validator
	e.Validator = validation.New()

	// Token claims resolver
	var resolver authmw.ClaimsResolver
	if cfg.TokenMode == "oidc" {
		r, err := authmw.NewOIDCResolver(context.Background(), cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("unable to reach OIDC issuer")
		}
		resolver = r
	} else {
		resolver = authmw.NewHS256Resolver(cfg)
	}

	// Wire the slices
	usersReg := users.NewRegistrar(pgPool, cfg)
	groupsReg := groups.NewRegistrar(pgPool, usersReg.Repo, cfg)
	agentsReg := agents.NewRegistrar(pgPool, groupsReg.Repo, usersReg.Repo, cfg)
	permSvc := permissions.NewService(pgPool, permCache, cfg)

	requireSuperadmin := guard.RequireSuperadmin()
	requireGroupAdmin := guard.RequireGroupAdmin("group_id", groupsReg.Svc)

	// Every API route requires one of the platform role claims on the token.
	requirePlatformRole := guard.RequireRolesAndScopes(
		[][]string{{cfg.AdminRole}, {cfg.UserRole}, {cfg.SuperadminRole}}, nil)

	api := e.Group("/api/v1", authmw.NewAuth(resolver, usersReg.Svc, log), requirePlatformRole)

	groupsReg.Register(api, permSvc, requireSuperadmin, requireGroupAdmin)
	agentsReg.Register(api, groupsReg.Svc, permSvc, requireGroupAdmin)
	permissions.Register(api, permSvc)
	admin.Register(api, agentsReg.Svc, groupsReg.Repo, permSvc, requireSuperadmin, cfg)

	// Health endpoint pings DB and Redis
	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 500*time.Millisecond)
		defer cancel()

		dbStatus := "ok"
		if err := pgPool.Ping(ctx); err != nil {
			dbStatus = "down"
		}

		cacheStatus := "ok"
		if !cfg.CacheEnabled {
			cacheStatus = "disabled"
		} else if _, err := redisClient.Ping(ctx).Result(); err != nil {
			cacheStatus = "down"
		}

		return c.JSON(http.StatusOK, map[string]any{
			"status":  "ok",
			"version": version.String(),
			"time":    time.Now().UTC().Format(time.RFC3339),
			"db":      dbStatus,
			"cache":   cacheStatus,
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Start server
	go func() {
		if err := e.Start(cfg.AppAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}
