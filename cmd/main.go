package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lshigami/Pangolin/config"
	"github.com/lshigami/Pangolin/database"
	_ "github.com/lshigami/Pangolin/docs" // Swagger docs - auto-generated
	"github.com/lshigami/Pangolin/internal/auth"
	adminctrl "github.com/lshigami/Pangolin/internal/controller/admin"
	userctrl "github.com/lshigami/Pangolin/internal/controller/user"
	"github.com/lshigami/Pangolin/internal/logger"
	"github.com/lshigami/Pangolin/internal/model"
	"github.com/lshigami/Pangolin/internal/repository"
	"github.com/lshigami/Pangolin/internal/service"
	"github.com/lshigami/Pangolin/internal/session"
	"github.com/lshigami/Pangolin/internal/transport"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// @title Spoken Exam Platform API
// @version 1.0
// @description API for AI-examined spoken language proficiency attempts and per-student result history.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
func main() {
	logger.Init()

	app := fx.New(
		// Core Application Components
		fx.Provide(
			config.NewConfig,
			database.NewDatabase, // Provides *gorm.DB (nil with the memory driver)
			NewGinEngine,
		),

		// Storage Layer
		fx.Provide(
			func(cfg *config.Config, db *gorm.DB) repository.HistoryStore {
				if cfg.Database.Driver == "memory" {
					return repository.NewMemoryHistoryRepository()
				}
				return repository.NewHistoryRepository(db)
			},
		),

		// Services Layer
		fx.Provide(
			service.NewResultValidator,
			service.NewResultRecorder,
			service.NewGeminiGraderService,
			service.NewHistoryService,
			auth.NewCredentialIssuer,
			transport.NewWebsocketDialer,
			session.NewManager,
		),

		// API Controllers Layer
		fx.Provide(
			userctrl.NewAttemptController,
			adminctrl.NewAdminHistoryController,
		),

		fx.Invoke(RegisterRoutesAndStartServer),
		fx.Invoke(AutoMigrateDB),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	<-app.Done()
	log.Info().Msg("Application shutting down gracefully...")
}

func NewGinEngine() *gin.Engine {
	gin.SetMode(gin.DebugMode)

	r := gin.New()

	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		log.Info().
			Str("client_ip", param.ClientIP).
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status_code", param.StatusCode).
			Dur("latency", param.Latency).
			Str("user_agent", param.Request.UserAgent()).
			Str("error_message", param.ErrorMessage).
			Msg("gin_request")
		return ""
	}))
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Be more specific in production
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Swagger UI at /swagger/index.html
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// RegisterRoutesAndStartServer configures API routes and manages server lifecycle.
func RegisterRoutesAndStartServer(
	lc fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	attemptCtrl *userctrl.AttemptController,
	adminHistoryCtrl *adminctrl.AdminHistoryController,
) {
	// Admin Routes (prefixed with /api/v1/admin)
	adminAPIGroup := router.Group("/api/v1/admin")
	{
		adminAPIGroup.GET("/histories", adminHistoryCtrl.ListHistories)
	}

	// User Routes (prefixed with /api/v1)
	userAPIGroup := router.Group("/api/v1")
	{
		// Attempt lifecycle
		userAPIGroup.POST("/attempts", attemptCtrl.StartAttempt)
		userAPIGroup.GET("/attempts/:attempt_id", attemptCtrl.GetAttempt)
		userAPIGroup.POST("/attempts/:attempt_id/end", attemptCtrl.EndAttempt)

		// Agent-facing result intake
		userAPIGroup.POST("/attempts/:attempt_id/result", attemptCtrl.SubmitResult)

		// History
		userAPIGroup.GET("/students/:student_key/history", attemptCtrl.GetStudentHistory)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msgf("Spoken exam API server starting on port %s", cfg.Server.Port)
			log.Info().Msgf("Swagger UI available at http://localhost:%s/swagger/index.html", cfg.Server.Port)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("Server ListenAndServe failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Server shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
}

func AutoMigrateDB(cfg *config.Config, db *gorm.DB) error {
	if cfg.Database.Driver == "memory" {
		log.Warn().Msg("Memory driver selected, skipping database migrations.")
		return nil
	}
	log.Info().Msg("Running database migrations...")
	if err := db.AutoMigrate(&model.StudentHistory{}); err != nil {
		log.Error().Err(err).Msg("Database migration failed")
		return err
	}
	log.Info().Msg("Database migration completed successfully.")
	return nil
}
