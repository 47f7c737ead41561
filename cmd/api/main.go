package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"callpulse/internal/audit"
	"callpulse/internal/auth"
	"callpulse/internal/config"
	"callpulse/internal/convstate"
	"callpulse/internal/dialogue"
	"callpulse/internal/httpapi"
	"callpulse/internal/orchestrator"
	"callpulse/internal/reporting"
	"callpulse/internal/sched"
	"callpulse/internal/store"
	"callpulse/internal/telephony"
	"callpulse/pkg/logger"
	"callpulse/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	gateway, err := telephony.NewTwilioGateway(telephony.TwilioConfig{
		AccountSID:         cfg.Twilio.AccountSID,
		AuthToken:          cfg.Twilio.AuthToken,
		FromNumber:         cfg.Twilio.FromNumber,
		PublicBaseURL:      cfg.Twilio.PublicBaseURL,
		DefaultCountryCode: cfg.Dialer.DefaultCountryCode,
	})
	if err != nil {
		log.Error("telephony init failed", "err", err)
		os.Exit(1)
	}

	var engine dialogue.Engine
	if cfg.OpenAI.APIKey != "" {
		engine, err = dialogue.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		if err != nil {
			log.Error("dialogue engine init failed", "err", err)
			os.Exit(1)
		}
		log.Info("dialogue engine", "kind", "openai", "model", cfg.OpenAI.Model)
	} else {
		engine = dialogue.NewScriptEngine()
		log.Warn("OPENAI_API_KEY not set, using scripted dialogue engine")
	}

	var limiter orchestrator.Limiter = orchestrator.NopLimiter{}
	if cfg.Dialer.GlobalMaxActiveCalls > 0 {
		limiter = orchestrator.NewRedisLimiter(rdb, cfg.Dialer.GlobalMaxActiveCalls, logger.Component(log, "limiter"))
	}

	st := store.NewPostgres(db)
	orch := orchestrator.New(orchestrator.Options{
		Store:     st,
		ConvStore: convstate.NewRedis(rdb, convstate.DefaultTTL),
		Gateway:   gateway,
		Engine:    engine,
		Scheduler: sched.NewTimers(),
		Limiter:   limiter,
		Logger:    logger.Component(log, "orchestrator"),
		Dialer:    cfg.Dialer,
	})

	handlers := httpapi.Handlers{
		Auth:    authManager,
		Orch:    orch,
		Store:   st,
		Reports: reporting.NewService(st),
		Audit:   audit.NewService(audit.NewPostgresRepo(db)),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:      cfg,
		authMW:   auth.RequireAccessToken(authManager),
		handlers: handlers,
		webhook:  telephony.WebhookHandler{Flow: orch},
		db:       db,
		rdb:      rdb,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
