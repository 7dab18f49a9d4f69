package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"cinegen-server/modules/capability"
	"cinegen-server/modules/common/config"
	"cinegen-server/modules/common/database"
	"cinegen-server/modules/common/gemini"
	"cinegen-server/modules/common/logger"
	"cinegen-server/modules/common/redis"
	"cinegen-server/modules/export"
	"cinegen-server/modules/realtime"
	"cinegen-server/modules/session"
	"cinegen-server/modules/wizard"
	"cinegen-server/modules/workflow"
)

const (
	cleanupInterval = 5 * time.Minute
	shutdownTimeout = 15 * time.Second
)

// enableCORS - CORS headers for the browser wizard
func enableCORS(allowedOrigin string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// healthCheck - liveness probe
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "cinegen-server",
	})
}

// metricsHandler - session and connection counters
func metricsHandler(sessions *session.Manager, hub *realtime.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := sessions.Metrics()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"server": map[string]interface{}{
				"uptime":    time.Since(m.StartTime).String(),
				"startTime": m.StartTime,
			},
			"sessions":  m,
			"websocket": hub.Metrics(),
		})
	}
}

func newStore(cfg *config.Config) session.Store {
	log := logger.WithModule("Main")
	if cfg.RedisEnabled() {
		if rdb := redis.Connect(cfg); rdb != nil {
			log.Infof("✅ Session snapshots stored in Redis (%s)", cfg.GetRedisAddr())
			return session.NewRedisStore(rdb, cfg.SessionTTL)
		}
		log.Warn("⚠️  Redis unavailable, falling back to in-memory sessions")
	}
	return session.NewMemoryStore(cfg.SessionTTL)
}

func newExporter(cfg *config.Config) *export.Service {
	if !cfg.SupabaseEnabled() {
		return export.NewService(nil)
	}
	db, err := database.NewClient(cfg)
	if err != nil {
		logger.WithModule("Main").Warnf("⚠️  Export disabled: %v", err)
		return export.NewService(nil)
	}
	return export.NewService(db)
}

// hubNotifier breaks the construction cycle between the hub (needs session
// lookup) and the manager (needs a notifier).
type hubNotifier struct{ hub *realtime.Hub }

func (n *hubNotifier) Publish(id string, st workflow.State) {
	if n.hub != nil {
		n.hub.Publish(id, st)
	}
}

func main() {
	logger.Setup(os.Getenv("LOG_LEVEL"))
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("❌ Failed to load config: %v", err)
	}
	logger.Setup(cfg.LogLevel)
	log := logger.WithModule("Main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	caller, err := gemini.NewCaller(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize Gemini: %v", err)
	}
	client := capability.NewGeminiClient(caller, cfg.GeminiModel, cfg.RequestTimeout, cfg.StrictSceneCount)

	notifier := &hubNotifier{}
	sessions := session.NewManager(client, newStore(cfg), notifier, session.ManagerConfig{
		MaxImageBytes: cfg.MaxImageBytes,
		IdleTimeout:   cfg.SessionTTL,
	})
	hub := realtime.NewHub(func(ctx context.Context, id string) (workflow.State, error) {
		sess, err := sessions.Get(ctx, id)
		if err != nil {
			return workflow.State{}, err
		}
		return sess.Controller.State(), nil
	}, cfg.AllowedOrigin)
	notifier.hub = hub

	svc := wizard.NewService(sessions, newExporter(cfg), hub)

	r := mux.NewRouter()
	r.Use(enableCORS(cfg.AllowedOrigin))
	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/metrics", metricsHandler(sessions, hub)).Methods("GET")
	r.HandleFunc("/ws", hub.HandleWebSocket)
	wizard.NewHandler(svc, cfg.MaxImageBytes).RegisterRoutes(r)
	// preflight for every route
	r.Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("🚀 CineGen server starting on port %s", cfg.Port)
		log.Infof("📡 WebSocket endpoint: ws://localhost:%s/ws?session=<id>", cfg.Port)
		log.Infof("❤️  Health check: http://localhost:%s/health", cfg.Port)
		log.Infof("📊 Metrics: http://localhost:%s/metrics", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		log.Infof("🔄 Started session cleanup routine (every %s)", cleanupInterval)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				sessions.Cleanup()
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
	log.Info("👋 Server stopped")
}
