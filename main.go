package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-sync/internal/auth"
	"chat-sync/internal/config"
	"chat-sync/internal/db"
	"chat-sync/internal/engine"
	"chat-sync/internal/handlers"
	"chat-sync/internal/middleware"
	"chat-sync/internal/observability"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/repositories"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/upload"
	"chat-sync/internal/ws"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	identity, err := resolveIdentity(cfg)
	if err != nil {
		log.Fatalf("identity: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("notice publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))

	eng := engine.New(engine.Config{
		Identity: identity,
		RoomID:   cfg.RoomID,
		Transport: ws.Options{
			URL:          cfg.ServerURL,
			MaxAttempts:  cfg.MaxAttempts,
			RetryDelay:   cfg.RetryDelay,
			DialTimeout:  cfg.DialTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		TypingIdle:     cfg.TypingIdle,
		TypingThrottle: cfg.TypingThrottle,
		JobTimeout:     cfg.JobTimeout,
		ReapInterval:   cfg.ReapInterval,
	})

	emitter := telemetry.NewNoticeEmitter(publisher, cfg.NoticeRoutingKey, cfg.ServiceName, cfg.Environment, identity.Username, cfg.RoomID)
	eng.AddListener(emitter)

	var episodes repositories.EpisodeRepository
	if cfg.DatabaseDSN != "" {
		database, err := db.Connect(cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("failed to connect to db: %v", err)
		}
		defer database.Close()
		episodes = repositories.NewEpisodeRepo(database)
		journal := telemetry.NewJournal(episodes, identity.Username, cfg.RoomID, 0)
		defer journal.Close()
		eng.AddListener(journal)
	}

	done := eng.Start(ctx)

	if err := eng.Open(ctx); err != nil {
		log.Fatalf("open room %s: %v", cfg.RoomID, err)
	}

	uploader := upload.NewHTTPUploader(cfg.UploadURL, nil)
	roomHandler := handlers.NewRoomHandler(eng, uploader, episodes)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(handlers.RequestID())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.APIToken == "" {
		log.Printf("control API token not set, requests on %s are not authenticated", cfg.ListenAddr)
	}
	api := router.Group("/", middleware.AuthMiddleware(cfg.APIToken))

	api.GET("/session", roomHandler.GetSession)
	api.GET("/messages", roomHandler.ListMessages)
	api.POST("/messages", roomHandler.PostMessage)
	api.PATCH("/messages/:id", roomHandler.EditMessage)
	api.DELETE("/messages/:id", roomHandler.DeleteMessage)
	api.POST("/messages/:id/pin", roomHandler.PinMessage)
	api.POST("/attachments", roomHandler.PostAttachment)
	api.GET("/participants", roomHandler.ListParticipants)
	api.POST("/users/:username/:action", roomHandler.ModerateUser)
	api.GET("/typing", roomHandler.ListTyping)
	api.POST("/typing", roomHandler.PostTyping)
	api.GET("/threads/:user", roomHandler.GetThread)
	api.POST("/threads/:user", roomHandler.OpenThread)
	api.POST("/threads/:user/messages", roomHandler.PostPrivateMessage)
	api.POST("/jobs", roomHandler.SubmitJob)
	api.GET("/episodes", roomHandler.ListEpisodes)

	handlers.RegisterDebugRoutes(api, emitter, cfg.DebugRoutes)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()
	log.Printf("control API listening addr=%s room=%s username=%s", cfg.ListenAddr, cfg.RoomID, identity.Username)

	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	<-done
}

func resolveIdentity(cfg config.Config) (auth.Identity, error) {
	if cfg.Token == "" {
		return auth.Identity{Username: cfg.Username, IsModerator: cfg.Moderator}, nil
	}
	identity, err := auth.NewValidator(cfg.TokenSecret).Validate(cfg.Token)
	if err != nil {
		return auth.Identity{}, err
	}
	if cfg.Username != "" && cfg.Username != identity.Username {
		log.Printf("token username %s overrides configured username %s", identity.Username, cfg.Username)
	}
	return identity, nil
}
