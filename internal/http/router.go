package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"taskhub/internal/auth"
	"taskhub/internal/cache"
	"taskhub/internal/config"
	"taskhub/internal/http/handlers"
	"taskhub/internal/http/middlewares"
	"taskhub/internal/observability"
	"taskhub/internal/repo/postgres"
)

func NewRouter(log *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client, cfg config.Config) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// metrics live on a per-router registry so tests can build routers freely
	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())
	r.Use(otelgin.Middleware("taskhub"))
	r.Use(prom.GinHandleMiddleware())

	// health
	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	h := handlers.NewHealthHandler(ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// wire up repositories
	usersRepo := postgres.NewUsersRepo(pool, prom)
	tasksRepo := postgres.NewTasksRepo(pool, prom)

	// token manager: the signing secret comes in through config, never from
	// a package-level global
	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL())
	authMw := middlewares.NewAuthMiddleware(jwtManager)

	authHandler := handlers.NewAuthHandler(usersRepo, usersRepo, jwtManager)
	tasksHandler := handlers.NewTasksHandler(tasksRepo, cache.New(5*time.Second))

	// login/register get a shared-window limiter keyed by client IP
	limiter := middlewares.NewRateLimiter(rdb, cfg.AuthRateLimit, cfg.AuthRateWindow, "auth")

	authRoutes := r.Group("/auth")
	authRoutes.Use(limiter.Middleware(middlewares.KeyByIP))
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.GET("/me", authMw.RequireAuth(), authHandler.Me)
	}

	taskRoutes := r.Group("/tasks")
	taskRoutes.Use(authMw.RequireAuth())
	{
		taskRoutes.GET("", tasksHandler.ListTasks)
		taskRoutes.POST("", tasksHandler.CreateTask)
		taskRoutes.GET("/:id", tasksHandler.GetTaskById)
		taskRoutes.PUT("/:id", tasksHandler.UpdateTask)
		taskRoutes.DELETE("/:id", tasksHandler.DeleteTask)
	}

	return r
}
