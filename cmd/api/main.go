package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/creditswap/creditswap-api/internal/config"
	"github.com/creditswap/creditswap-api/internal/domain/auth"
	"github.com/creditswap/creditswap-api/internal/domain/chat"
	"github.com/creditswap/creditswap-api/internal/domain/completion"
	"github.com/creditswap/creditswap-api/internal/domain/credit"
	"github.com/creditswap/creditswap-api/internal/domain/listing"
	"github.com/creditswap/creditswap-api/internal/domain/notification"
	"github.com/creditswap/creditswap-api/internal/domain/offer"
	"github.com/creditswap/creditswap-api/internal/domain/payment"
	"github.com/creditswap/creditswap-api/internal/domain/user"
	"github.com/creditswap/creditswap-api/internal/middleware"
	"github.com/creditswap/creditswap-api/internal/pkg/database"
	"github.com/creditswap/creditswap-api/internal/pkg/jwt"
	"github.com/creditswap/creditswap-api/internal/pkg/logger"
	pkgresponse "github.com/creditswap/creditswap-api/internal/pkg/response"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting CreditSwap API")

	db, err := database.NewPostgres(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, running single-instance")
		redisClient = nil
	}
	defer database.CloseRedis(redisClient)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	tx := database.NewTransactor(db)

	// ---------- Repositories ----------
	userRepo := user.NewRepository(db)
	listingRepo := listing.NewRepository(db)
	offerRepo := offer.NewRepository(db)
	chatRepo := chat.NewRepository(db)
	creditRepo := credit.NewRepository(db)
	paymentRepo := payment.NewRepository(db)
	notificationRepo := notification.NewRepository(db)

	// ---------- WebSocket hub ----------
	chatHub := chat.NewHub(redisClient)

	// ---------- Notifications ----------
	notificationService := notification.NewService(notificationRepo, notification.NewSocketPublisher(chatHub))
	dispatcher := notification.NewDispatcher(notificationService, cfg.NotificationQueueSize, cfg.NotificationWorkers)
	cleanupJob := notification.NewCleanupJob(notificationRepo, cfg.NotificationRetentionDays)

	// ---------- Services ----------
	creditService := credit.NewService(creditRepo, tx)
	authService := auth.NewService(userRepo, creditService, tx, jwtService, cfg.SignupCredits)
	listingService := listing.NewService(listingRepo, tx)

	chatService := chat.NewService(chatRepo, userRepo, tx, chatHub, dispatcher, chat.NewPolicy(cfg.NegotiationCap))
	chatService.SetOfferLookup(offer.NewChatLookup(offerRepo, listingRepo))

	offerService := offer.NewService(offerRepo, listingRepo, chatService, tx, dispatcher)
	completionService := completion.NewService(listingRepo, offerRepo, creditService, chatService, tx, dispatcher)
	paymentService := payment.NewService(paymentRepo, creditService, tx, dispatcher)

	// ---------- Handlers ----------
	chatLimiter := middleware.NewRateLimiter(redisClient, "chat", cfg.ChatRateLimit, cfg.ChatRateLimitWindow)

	handlers := &handlers{
		auth:         auth.NewHandler(authService),
		listing:      listing.NewHandler(listingService),
		offer:        offer.NewHandler(offerService),
		completion:   completion.NewHandler(completionService),
		chat:         chat.NewHandler(chatService, chatHub, chatLimiter, cfg.AllowedOrigins),
		credit:       credit.NewHandler(creditService),
		payment:      payment.NewHandler(paymentService),
		notification: notification.NewHandler(notificationService),
	}

	r := newRouter(cfg, handlers, middleware.Auth(jwtService), healthHandler(dbCheck(db), redisCheck(redisClient)))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Notifications outlive the HTTP server so requests still finishing
	// during Shutdown can enqueue them.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		defer stopDispatch()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return chatHub.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(dispatchCtx) })
	g.Go(func() error { return cleanupJob.Start(gctx, cfg.NotificationCleanupEvery) })

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return
	}

	delivered, dropped := dispatcher.Stats()
	log.Info().
		Int64("notifications_delivered", delivered).
		Int64("notifications_dropped", dropped).
		Msg("Server exited properly")
}

type handlers struct {
	auth         *auth.Handler
	listing      *listing.Handler
	offer        *offer.Handler
	completion   *completion.Handler
	chat         *chat.Handler
	credit       *credit.Handler
	payment      *payment.Handler
	notification *notification.Handler
}

func newRouter(cfg *config.Config, h *handlers, authMiddleware func(http.Handler) http.Handler, health http.HandlerFunc) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket endpoint (before Compress)
	r.Handle("/ws", h.chat.WSRoute(authMiddleware))

	r.Group(func(r chi.Router) {
		r.Use(chimw.Compress(5))

		r.Get("/health", health)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
				pkgresponse.OK(w, map[string]string{"message": "pong"})
			})

			r.Mount("/auth", h.auth.Routes(authMiddleware))
			r.Mount("/listings", h.listing.Routes(authMiddleware, func(r chi.Router) {
				h.offer.ListingRoutes(r)
				h.completion.ListingRoutes(r)
			}))
			r.Mount("/offers", h.offer.Routes(authMiddleware))
			r.Mount("/chat", h.chat.Routes(authMiddleware))
			r.Mount("/credits", h.credit.Routes(authMiddleware))
			r.Mount("/payments", h.payment.Routes(authMiddleware))
			r.Mount("/notifications", h.notification.Routes(authMiddleware))
		})
	})

	return r
}

type healthCheck struct {
	name string
	ping func(ctx context.Context) error
}

func dbCheck(db *sqlx.DB) healthCheck {
	return healthCheck{name: "database", ping: db.PingContext}
}

// redisCheck is skipped when Redis is not configured.
func redisCheck(client *redis.Client) healthCheck {
	return healthCheck{name: "redis", ping: func(ctx context.Context) error {
		if client == nil {
			return nil
		}
		return client.Ping(ctx).Err()
	}}
}

func healthHandler(checks ...healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok", "version": version}
		healthy := true
		for _, c := range checks {
			if err := c.ping(ctx); err != nil {
				log.Warn().Err(err).Str("dependency", c.name).Msg("Health check failed")
				status[c.name] = "down"
				healthy = false
				continue
			}
			status[c.name] = "up"
		}

		if !healthy {
			status["status"] = "degraded"
			pkgresponse.JSON(w, http.StatusServiceUnavailable, status)
			return
		}
		pkgresponse.OK(w, status)
	}
}
