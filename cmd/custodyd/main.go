package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/custodia-project/custodia/internal/ledger/handler"
	"github.com/custodia-project/custodia/internal/ledger/model"
	"github.com/custodia-project/custodia/internal/ledger/repository"
	"github.com/custodia-project/custodia/internal/ledger/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("custodyd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("custodyd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("database.url", "")
	viper.SetDefault("ledger.startup_sweep", true)
	viper.SetDefault("ledger.startup_sweep_limit", 25)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	// ── Store ────────────────────────────────────────────────────────────────
	var store repository.EventStore
	dbURL := viper.GetString("database.url")
	if dbURL != "" {
		db, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(context.Background()); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		store = repository.NewPostgresStore(db, logger)
	} else {
		logger.Warn("no database.url configured, using in-memory store (non-durable)")
		store = repository.NewMemoryStore()
	}

	// ── Services ─────────────────────────────────────────────────────────────
	recorder := service.NewRecorder(store, logger)
	verifier := service.NewVerifier(store, logger)
	query := service.NewQuery(store)

	// ── Startup integrity sweep ──────────────────────────────────────────────
	if viper.GetBool("ledger.startup_sweep") {
		sweepStart := time.Now()
		limit := viper.GetInt("ledger.startup_sweep_limit")
		swept, broken := startupSweep(context.Background(), verifier, query, limit)
		if broken > 0 {
			logger.Warn("startup integrity sweep found broken chains",
				zap.Int("chains_checked", swept),
				zap.Int("chains_broken", broken),
			)
		} else {
			logger.Info("startup integrity sweep clean",
				zap.Int("chains_checked", swept),
				zap.Duration("took", time.Since(sweepStart)),
			)
		}
	}

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:  corsOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	router.Use(handler.PrometheusMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	handler.NewEventHandler(recorder, query, logger).Register(v1)
	handler.NewVerifyHandler(verifier, logger).Register(v1)

	// ── Serve ────────────────────────────────────────────────────────────────
	port := viper.GetInt("server.port")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("custodyd HTTP listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down custodyd...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	return nil
}

// startupSweep re-verifies the chains of the most recently active shipments
// so operators learn about store-level tampering at boot rather than on the
// first verify request. Best effort: sweep failures never block startup.
func startupSweep(ctx context.Context, verifier *service.Verifier, query *service.Query, limit int) (swept, broken int) {
	page, err := query.Events(ctx, model.EventFilter{}, 1, limit)
	if err != nil {
		return 0, 0
	}

	seen := make(map[string]bool)
	for _, e := range page.Events {
		if seen[e.ShipmentID] {
			continue
		}
		seen[e.ShipmentID] = true

		result, err := verifier.VerifyChain(ctx, e.ShipmentID)
		if err != nil {
			continue
		}
		swept++
		if !result.IsValid {
			broken++
		}
	}
	return swept, broken
}
