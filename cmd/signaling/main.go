package main

import (
	"context"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/carebridge/telehealth-signaling/config"
	"github.com/carebridge/telehealth-signaling/internal/appointment"
	"github.com/carebridge/telehealth-signaling/internal/auth"
	"github.com/carebridge/telehealth-signaling/internal/chat"
	"github.com/carebridge/telehealth-signaling/internal/handlers"
	"github.com/carebridge/telehealth-signaling/internal/middleware"
	"github.com/carebridge/telehealth-signaling/internal/provider"
	"github.com/carebridge/telehealth-signaling/internal/redis"
	"github.com/carebridge/telehealth-signaling/internal/room"
	"github.com/carebridge/telehealth-signaling/internal/signal"
)

func main() {
	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Redis holds only managed-provider room records.
	rdb, err := redis.Connect(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()

	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}

	messageStore := chat.NewStore(db)
	if err := messageStore.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate message store")
	}

	guard := auth.NewGuard(appointment.NewStore(db))
	registry := room.NewRegistry()
	relay := signal.NewRelay(registry)
	chatSvc := chat.NewService(guard, messageStore, relay)
	providerClient := provider.NewClient(cfg.Provider)
	records := provider.NewRecords(rdb)

	h := handlers.New(cfg, guard, registry, relay, chatSvc, providerClient, records)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Global CORS middleware (runs before routing)
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// REST surface (authenticated, guard re-validated per call)
	apiGroup := router.Group("/api", middleware.JWTAuth(cfg.JWTSecret))
	{
		apiGroup.POST("/video/create-room", h.CreateVideoRoom)
		apiGroup.POST("/video/join-room", h.JoinVideoRoom)
		apiGroup.GET("/video/room/:roomId", h.GetVideoRoom)
		apiGroup.GET("/video/room/:roomId/participants", h.ListVideoParticipants)
		apiGroup.POST("/video/end-call", h.EndVideoCall)

		apiGroup.GET("/chat/messages/:appointmentId", h.GetMessages)
		apiGroup.POST("/chat/messages", h.SendMessage)
		apiGroup.PUT("/chat/messages/:appointmentId/read", h.MarkMessagesRead)
		apiGroup.GET("/chat/unread-count", h.GetUnreadCount)
	}

	// WebSocket signaling endpoint
	router.GET("/ws", middleware.JWTAuth(cfg.JWTSecret), h.HandleWS)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("telehealth signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
