package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carehq/care/internal/config"
	"github.com/carehq/care/internal/domain/clinical"
	"github.com/carehq/care/internal/domain/facility"
	"github.com/carehq/care/internal/domain/patient"
	"github.com/carehq/care/internal/domain/summary"
	"github.com/carehq/care/internal/domain/users"
	"github.com/carehq/care/internal/platform/auth"
	"github.com/carehq/care/internal/platform/db"
	"github.com/carehq/care/internal/platform/middleware"
	"github.com/carehq/care/internal/platform/redis"
	"github.com/carehq/care/internal/platform/telemetry"
)

const jwksTTL = time.Hour

// app holds the wired HTTP server and the summary job.
type app struct {
	echo *echo.Echo
	job  *summary.Job
	rdb  *goredis.Client
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

// newApp wires repositories, handlers and middleware around the summary job
// from newJob, sharing its response cache.
func newApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	j, err := newJob(ctx, cfg, pool, logger)
	if err != nil {
		return nil, err
	}
	a := &app{job: j.Job, rdb: j.rdb}

	var checks []db.Check
	if j.rdb != nil {
		checks = append(checks, db.Check{Name: "redis", Ping: redis.Ping(j.rdb)})
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	userRepo := users.NewRepoPG(pool)
	facilityRepo := facility.NewRepoPG(pool)
	patientRepo := patient.NewRepoPG(pool)
	allergyRepo := clinical.NewAllergyRepoPG(pool)
	summaryRepo := summary.NewRepoPG(pool)

	authz := auth.NewController(facilityRepo)
	facilitySvc := facility.NewService(facilityRepo, db.Runner(pool))
	patientSvc := patient.NewService(patientRepo)
	clinicalSvc := clinical.NewService(allergyRepo, patientRepo, db.Runner(pool))

	authMW, err := authMiddleware(ctx, cfg, users.NewLoader(userRepo))
	if err != nil {
		a.Close()
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(telemetry.Middleware(auth.PublicPath))
	e.Use(middleware.Logger(logger))
	e.Use(echomw.BodyLimit("2M"))
	e.Use(echomw.SecureWithConfig(echomw.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Dev-User"},
	}))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool, checks...))

	apiV1 := e.Group("/api/v1", authMW)
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	users.NewHandler(userRepo).RegisterRoutes(apiV1)
	facility.NewHandler(facilitySvc, authz).RegisterRoutes(apiV1)

	patientAPI := apiV1.Group("", middleware.Audit(logger))
	patient.NewHandler(patientSvc, facilitySvc, authz).RegisterRoutes(patientAPI)
	clinical.NewHandler(clinicalSvc, authz).RegisterRoutes(patientAPI)

	summary.NewHandler(summaryRepo, loc).RegisterRoutes(apiV1,
		middleware.ResponseCache(j.cache, summary.CacheNamespace, cfg.SummaryCacheTTL, logger))

	a.echo = e
	return a, nil
}

// authMiddleware verifies bearer tokens with AUTH_SIGNING_KEY (HS256) or the
// issuer's JWKS (RS256). In development the X-Dev-User header is accepted
// as well.
func authMiddleware(ctx context.Context, cfg *config.Config, loader auth.PrincipalLoader) (echo.MiddlewareFunc, error) {
	key, err := cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	jc := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: key,
		Loader:     loader,
		Skipper:    auth.PublicPath,
	}
	if key == nil && (cfg.AuthJWKSURL != "" || cfg.AuthIssuer != "") {
		url := cfg.AuthJWKSURL
		if url == "" {
			if url, err = auth.DiscoverJWKSURL(ctx, cfg.AuthIssuer); err != nil {
				return nil, fmt.Errorf("discover jwks: %w", err)
			}
		}
		jc.Keys = auth.NewJWKSCache(url, jwksTTL)
	}

	var verify echo.MiddlewareFunc
	if key != nil || jc.Keys != nil {
		verify = auth.JWTMiddleware(jc)
	}
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(loader, verify), nil
	}
	if verify == nil {
		return nil, fmt.Errorf("no token verification configured")
	}
	return verify, nil
}
