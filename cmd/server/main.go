package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"shop-auth/internal/auth"
	"shop-auth/internal/captcha"
	"shop-auth/internal/config"
	apphttp "shop-auth/internal/http"
	"shop-auth/internal/repository/sqlite"
	"shop-auth/internal/service"
	"shop-auth/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatalf("auth jwt secret is required")
	}
	if _, err := auth.ParseLifetime(cfg.Auth.ExpiresIn); err != nil {
		logger.Fatalf("auth token lifetime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := sqlite.Migrate(db); err != nil {
		logger.Fatalf("migrate database: %v", err)
	}

	userRepo := sqlite.NewUserRepository(db)
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	userService := service.NewUserService(userRepo, hasher, logger)
	tokenService := auth.NewTokenService(auth.TokenConfig{
		Secret:    cfg.Auth.JWTSecret,
		ExpiresIn: cfg.Auth.ExpiresIn,
	}, userRepo, logger)

	storageSvc, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}

	if cfg.Captcha.Secret == "" {
		logger.Warn("captcha secret not set, captcha checks disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Config{
		Users:  userService,
		Tokens: tokenService,
		Captcha: captcha.NewVerifier(captcha.Config{
			Secret:   cfg.Captcha.Secret,
			Endpoint: cfg.Captcha.Endpoint,
		}),
		Storage:      storageSvc,
		AvatarPrefix: cfg.Storage.KeyPrefix,
		AuthRateLimit: apphttp.RateLimit{
			Requests: cfg.Auth.LoginRequests,
			Window:   time.Duration(cfg.Auth.LoginWindowSec) * time.Second,
			Burst:    cfg.Auth.LoginBurst,
		},
		Logger: logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

// buildStorage returns nil when no bucket is configured; avatar routes then answer 503.
func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Storage.Bucket == "" {
		logger.Warn("storage bucket not set, avatar uploads disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client, cfg.Storage.Bucket), nil
}
