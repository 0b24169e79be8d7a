package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pickup-push-backend/config"
	"pickup-push-backend/internal/api"
	"pickup-push-backend/internal/auth"
	"pickup-push-backend/internal/db"
	"pickup-push-backend/internal/dispatch"
	"pickup-push-backend/internal/inbox"
	"pickup-push-backend/internal/logger"
	"pickup-push-backend/internal/realtime"
	"pickup-push-backend/internal/relay"
	"pickup-push-backend/internal/reminder"
	"pickup-push-backend/internal/store"
)

func main() {
	configFlag := flag.String("config", "", "path to config.yaml (defaults to $CONFIG_PATH or ./config/config.yaml)")
	generateVAPID := flag.Bool("generate-vapid", false, "print a fresh VAPID key pair and exit")
	issueToken := flag.String("issue-token", "", "print an access token for this user id and exit")
	role := flag.String("role", auth.RoleService, "role of the token printed by -issue-token")
	flag.Parse()

	if *generateVAPID {
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate vapid keys: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("vapid_public_key: %q\nvapid_private_key: %q\n", pub, priv)
		return
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Server.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.WithModule("main")
	log.Info("configuration loaded", zap.String("path", configPath))

	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.Issuer})
	if err != nil {
		log.Warn("bearer auth disabled", zap.Error(err))
	}

	if *issueToken != "" {
		if jwtSvc == nil {
			log.Fatal("cannot issue tokens without auth.jwt_secret")
		}
		tok, err := jwtSvc.GenerateAccessToken(*issueToken, *role)
		if err != nil {
			log.Fatal("failed to issue token", zap.Error(err))
		}
		fmt.Println(tok)
		return
	}

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		log.Fatal("VAPID keys must be configured; run with -generate-vapid and add them to the config file")
	}
	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
		Urgency:         webpush.Urgency(cfg.Push.Urgency),
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		log.Fatal("failed to initialise database", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := realtime.NewFeed()
	appStore := store.NewGormStore(gormDB, store.WithPublisher(feed))
	hub := realtime.NewHub()

	pool := relay.NewPool(cfg.WorkerPool.Size, appStore, webpushOptions)
	pool.Start(ctx)

	dispatchOpts := []dispatch.Option{dispatch.WithLocalDisplay(hub)}
	if cfg.Relay.BaseURL != "" {
		dispatchOpts = append(dispatchOpts, dispatch.WithRelay(relay.NewClient(cfg.Relay.BaseURL, cfg.Relay.Token, cfg.Relay.Timeout)))
	} else {
		log.Warn("relay.base_url is empty; notifications are stored but not pushed")
	}
	dispatcher := dispatch.New(appStore, dispatch.Config{
		Title:        cfg.Relay.DefaultTitle,
		RelayTimeout: cfg.Relay.Timeout,
	}, dispatchOpts...)

	reminders := reminder.NewService(cfg.Reminder, appStore, reminder.NotifierFunc(func(ctx context.Context, matchID, message string) error {
		_, err := dispatcher.NotifyMatch(ctx, matchID, message)
		return err
	}))
	if err := reminders.Start(ctx); err != nil {
		log.Fatal("failed to start reminders", zap.Error(err))
	}

	if cfg.Server.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(api.Deps{
		Store:      appStore,
		Dispatcher: dispatcher,
		Inbox:      inbox.New(appStore, feed, inbox.DefaultLimit),
		Hub:        hub,
		Pool:       pool,
		WebPush:    webpushOptions,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(handler, jwtSvc, cfg.Server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	<-reminders.Stop().Done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown", zap.Error(err))
	}
	cancel()
	log.Info("server gracefully stopped")
}
