// @title        codetrace API
// @version      1.0
// @description  Multi-language code execution and tracing service.
// @host         localhost:8080
// @BasePath     /
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/arc-self/codetrace/internal/debugsvc"
	"github.com/arc-self/codetrace/internal/events"
	"github.com/arc-self/codetrace/internal/execsvc"
	"github.com/arc-self/codetrace/internal/handler"
	"github.com/arc-self/codetrace/internal/historylog"
	"github.com/arc-self/codetrace/internal/langa"
	"github.com/arc-self/codetrace/internal/langb"
	"github.com/arc-self/codetrace/internal/platform/config"
	"github.com/arc-self/codetrace/internal/platform/middleware"
	"github.com/arc-self/codetrace/internal/platform/natsclient"
	"github.com/arc-self/codetrace/internal/platform/telemetry"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx := context.Background()

	// --- Vault Secret Loading (optional — falls back to env vars) ---
	secrets := map[string]interface{}{}
	if vaultAddr := os.Getenv("VAULT_ADDR"); vaultAddr != "" {
		vaultToken := os.Getenv("VAULT_TOKEN")
		if vaultToken == "" {
			vaultToken = "root"
		}
		secretPath := os.Getenv("VAULT_SECRET_PATH")
		if secretPath == "" {
			secretPath = "secret/data/arc/codetrace"
		}

		vaultManager, err := config.NewSecretManager(vaultAddr, vaultToken)
		if err != nil {
			logger.Error("Vault connection failed, falling back to env vars", zap.Error(err))
		} else if kv, err := vaultManager.GetKV2(secretPath); err != nil {
			logger.Error("failed to load secrets from Vault, falling back to env vars", zap.Error(err))
		} else {
			secrets = kv
		}
	}
	cfg := config.Resolve(secrets)

	// --- OpenTelemetry Tracer & Meter ---
	if cfg.OTelEndpoint != "" {
		tp, err := telemetry.InitTracer(ctx, "codetrace", cfg.OTelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(ctx)
		}

		mp, err := telemetry.InitMeterProvider(ctx, "codetrace", cfg.OTelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel meter provider", zap.Error(err))
		} else {
			defer mp.Shutdown(ctx)
		}
		logger.Info("OTel initialized", zap.String("endpoint", cfg.OTelEndpoint))
	}

	// --- Optional Postgres history log ---
	var historyStore *historylog.Store
	if cfg.PostgresURL != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL)
		if err != nil {
			logger.Error("failed to parse PG_URL, history log disabled", zap.Error(err))
		} else {
			poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()
			pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
			if err != nil {
				logger.Error("failed to connect to Postgres, history log disabled", zap.Error(err))
			} else {
				historyStore = historylog.New(pool, logger)
				if err := historyStore.EnsureSchema(ctx); err != nil {
					logger.Error("failed to ensure execution_history schema", zap.Error(err))
				}
				defer historyStore.Close()
				logger.Info("execution history log enabled", zap.String("url", cfg.PostgresURL))
			}
		}
	}

	// --- Optional NATS JetStream event publisher ---
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.NewClient(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("NATS initialization failed, event publishing disabled", zap.Error(err))
		} else {
			defer natsClient.Close()
			if err := natsClient.ProvisionStreams(); err != nil {
				logger.Error("NATS stream provisioning failed", zap.Error(err))
			}
			publisher = events.NewPublisher(natsClient, logger)
		}
	}

	// --- Core domain wiring ---
	tracerRunner := &langb.Runner{TracerPath: cfg.TracerPath, TempDir: cfg.LangBTempDir}

	execService := &execsvc.Service{
		Tracer:     tracerRunner,
		Logger:     logger,
		Deadline:   langa.EvaluateOptions{Deadline: cfg.LangADeadline},
		Publisher:  publisher,
		HistoryLog: historyStore,
	}

	debugStore := debugsvc.NewStore()
	reaper := debugsvc.NewReaper(debugStore, logger)
	if err := reaper.Start(); err != nil {
		logger.Error("failed to start debug session reaper", zap.Error(err))
	} else {
		defer reaper.Stop()
	}

	// --- HTTP Server (Echo) ---
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(logger)

	e.Use(otelecho.Middleware("codetrace"))
	e.Use(middleware.RequestID())
	e.Use(middleware.NullToEmptyArray())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("URI", v.URI),
				zap.Int("status", v.Status),
			}
			if reqID, ok := middleware.GetRequestID(c.Request().Context()); ok {
				fields = append(fields, zap.String("request_id", reqID))
			}
			logger.Info("HTTP request", fields...)
			return nil
		},
	}))
	e.Use(echomw.Recover())

	handler.NewExecuteHandler(execService).Register(e)
	handler.NewDebugHandler(tracerRunner, debugStore, publisher).Register(e)
	handler.RegisterHealth(e)

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	go func() {
		logger.Info("codetrace HTTP server listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failure", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown error", zap.Error(err))
	}

	logger.Info("codetrace shut down cleanly")
}
