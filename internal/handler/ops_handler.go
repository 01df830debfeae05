package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/notify-daemon/internal/domain"
	"github.com/kursadbilgin/notify-daemon/internal/observability"
	"github.com/kursadbilgin/notify-daemon/internal/repository"
	"github.com/kursadbilgin/notify-daemon/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	readinessTimeout = 2 * time.Second
	statsTimeout     = 5 * time.Second
)

// StatusCounter reports how many clients sit in each status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) ([]repository.StatusCount, error)
}

// OpsDeps are the dependencies probed or exposed by the ops server.
// Redis and Stats are optional.
type OpsDeps struct {
	SQLDB   *sql.DB
	Redis   *redis.Client
	Stats   StatusCounter
	Metrics *observability.Metrics
}

// NewOpsApp builds the fiber app serving health, metrics and stats.
func NewOpsApp(deps OpsDeps, logger *zap.Logger) *fiber.App {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "notify-daemon",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	if deps.Metrics != nil {
		app.Use(deps.Metrics.HTTPMiddleware())
	}

	RegisterOpsRoutes(app, deps)
	return app
}

func RegisterOpsRoutes(app fiber.Router, deps OpsDeps) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(deps.SQLDB, deps.Redis))
	app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	if deps.Stats != nil {
		app.Get("/stats", StatsHandler(deps.Stats))
	}
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		ready := true
		pgStatus := "ok"
		if sqlDB == nil || sqlDB.PingContext(ctx) != nil {
			pgStatus = "down"
			ready = false
		}

		redisStatus := "disabled"
		if rdb != nil {
			redisStatus = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "down"
				ready = false
			}
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": fiber.Map{
				"postgres": pgStatus,
				"redis":    redisStatus,
			},
		})
	}
}

// StatsHandler reports client counts per status. With ?status=<name> it
// reports only that status.
func StatsHandler(counter StatusCounter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var filter domain.Status
		if raw := c.Query("status"); raw != "" {
			status, err := domain.ParseStatusFromString(raw)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			filter = status
		}

		ctx, cancel := context.WithTimeout(c.Context(), statsTimeout)
		defer cancel()

		counts, err := counter.CountByStatus(ctx)
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "failed to count clients")
		}

		if filter != "" {
			var count int64
			for _, sc := range counts {
				if sc.Status == filter {
					count = sc.Count
				}
			}
			return c.Status(fiber.StatusOK).JSON(fiber.Map{
				"status": filter.String(),
				"count":  count,
			})
		}

		byStatus := make(map[string]int64, len(counts))
		var total int64
		for _, sc := range counts {
			byStatus[sc.Status.String()] = sc.Count
			total += sc.Count
		}

		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"total":    total,
			"byStatus": byStatus,
		})
	}
}
