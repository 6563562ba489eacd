package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/planner/internal/config"
	"github.com/planner/internal/handler"
	"github.com/planner/internal/livesync"
	"github.com/planner/internal/logger"
	"github.com/planner/internal/middleware"
	"github.com/planner/internal/notify"
	"github.com/planner/internal/reminder"
	"github.com/planner/internal/service"
	"github.com/planner/internal/startup"
	"github.com/planner/internal/ws"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	inMemory := flag.Bool("memory", false, "keep all data in process memory (no database)")
	withReminders := flag.Bool("reminders", false, "run the reminder scheduler in this process")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev && !*inMemory {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	var backend *startup.Backend
	if *inMemory {
		backend = startup.OpenMemory()
	} else {
		var err error
		backend, err = startup.OpenPostgres(cfg, "")
		if err != nil {
			logger.Errorf("open storage: %v", err)
			os.Exit(1)
		}
	}
	defer backend.Close()
	if *migrate && !*dev && !*inMemory {
		return
	}

	transport := startup.EmailTransport(cfg)
	loc := cfg.Reminder.Location()
	notifier := notify.New(transport,
		notify.WithConcurrency(cfg.NotifyConcurrency),
		notify.WithSendTimeout(cfg.NotifyTimeout),
		notify.WithLocation(loc),
	)
	planner := service.NewPlanner(backend.Store, notifier, service.WithLocation(loc))
	otpSvc := service.NewOTPService(backend.Keys, transport, backend.Store)

	live := livesync.NewManager(backend.Store)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(live, planner, cfg.MaxWSConnections, cfg.WSSendBufferSize)

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	var sched *reminder.Scheduler
	if *withReminders {
		scanner := reminder.NewScanner(backend.Store, backend.Keys, notifier,
			reminder.WithLead(cfg.Reminder.Lead, cfg.Reminder.Window),
			reminder.WithLocation(loc),
		)
		var err error
		sched, err = reminder.NewScheduler(scanner, reminder.Specs{
			Upcoming:    cfg.Reminder.ScanSpec,
			DueToday:    cfg.Reminder.DueTodaySpec,
			DueTomorrow: cfg.Reminder.TomorrowSpec,
		}, loc, 0)
		if err != nil {
			logger.Errorf("reminder scheduler: %v", err)
			os.Exit(1)
		}
		sched.Start()
	}

	eventH := handler.NewEventHandler(planner)
	groupH := handler.NewGroupHandler(planner)
	calendarH := handler.NewCalendarHandler(planner, loc)
	otpH := handler.NewOTPHandler(otpSvc, planner)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)
	configH := handler.NewConfigHandler(cfg, transport.Configured())
	healthH := handler.NewHealthHandler(hub, live)

	auth := middleware.TrustedHeaders
	if cfg.AuthServiceURL != "" {
		auth = middleware.AuthServiceValidate(cfg.AuthServiceURL, nil)
	} else {
		logger.Warnf("AUTH_SERVICE_URL not set: identity is taken from X-User-Id / X-User-Email headers")
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSAllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Id", "X-User-Email"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthH.Get)
	r.Get("/api/config", configH.Get)

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Get("/ws", wsH.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(cfg.StoreTimeout))
			r.Get("/api/events", eventH.List)
			r.Post("/api/events", eventH.Create)
			r.Get("/api/events/{id}", eventH.Get)
			r.Put("/api/events/{id}", eventH.Update)
			r.Post("/api/events/{id}/toggle", eventH.Toggle)
			r.Delete("/api/events/{id}", eventH.Delete)
			r.Get("/api/groups", groupH.List)
			r.Post("/api/groups", groupH.Create)
			r.Get("/api/groups/{id}/messages", groupH.Messages)
			r.Post("/api/groups/{id}/messages", groupH.SendMessage)
			r.Get("/api/calendar.ics", calendarH.Export)
			r.Get("/api/users/me/verification", otpH.Status)
		})
		// Отправка письма может занять дольше, чем обычный запрос к хранилищу.
		r.Post("/api/otp/request", otpH.Request)
		r.Post("/api/otp/verify", otpH.Verify)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	if sched != nil {
		sched.Stop(shutdownCtx)
		logger.Info("reminder scheduler stopped")
	}
	hubCancel()
	hubWg.Wait()
	live.Close()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "planner"
		password = "planner_secret"
		database = "planner"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
