package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/config"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/database"
	kafkainfra "github.com/omairakapasha/EventAI-sub001/internal/infra/kafka"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/logger"
	redisinfra "github.com/omairakapasha/EventAI-sub001/internal/infra/redis"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/security"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/telemetry"
	postgresrepo "github.com/omairakapasha/EventAI-sub001/internal/repository/postgres"
	redisrepo "github.com/omairakapasha/EventAI-sub001/internal/repository/redis"
	"github.com/omairakapasha/EventAI-sub001/internal/transport/http/middleware"
	"github.com/omairakapasha/EventAI-sub001/internal/transport/http/routes"
	"github.com/omairakapasha/EventAI-sub001/internal/usecase"
)

const metricsNamespace = "marketplace"

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	consumer *kafkainfra.ConsumerGroup
	tracer   *telemetry.TracerProvider
	sentry   bool
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.init(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Application) init(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		a.tracer = tracer
	}

	sentryEnabled, err := telemetry.InitSentry(cfg.Sentry)
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	a.sentry = sentryEnabled

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	a.redis = redisClient

	keyProvider, err := security.NewFileKeyProvider(cfg.JWT.KeyDirectory, cfg.JWT.SigningKeyID)
	if err != nil {
		return fmt.Errorf("init key provider: %w", err)
	}
	jwtManager := security.NewJWTManager(keyProvider, cfg.JWT.Issuer, cfg.JWT.Audience)

	hasher, err := security.NewArgon2Hasher(argon2Config(cfg.Argon2))
	if err != nil {
		return fmt.Errorf("configure argon2: %w", err)
	}

	sealer, err := security.NewSecretBox(cfg.TOTP.EncryptionKey)
	if err != nil {
		return fmt.Errorf("init secret box: %w", err)
	}
	totp := security.NewTOTP(security.TOTPConfig{
		Issuer: cfg.TOTP.Issuer,
		Period: cfg.TOTP.Period,
		Skew:   cfg.TOTP.Skew,
		Digits: cfg.TOTP.Digits,
	})
	backupCodes := security.NewBackupCodeHasher([]byte(cfg.TOTP.BackupCodePepper))
	passwordPolicy := security.NewPasswordPolicy()

	rdb := redisClient.Client()
	prefix := redisClient.KeyPrefix()
	refreshStore := redisrepo.NewRefreshTokenStore(rdb, redisrepo.RefreshTokenStoreConfig{
		KeyPrefix: prefix + ":refresh",
		Retention: cfg.JWT.RefreshRetention,
		FamilyTTL: cfg.JWT.RefreshTokenTTL + cfg.JWT.RefreshRetention,
	})
	attemptStore := redisrepo.NewLoginAttemptStore(rdb, prefix+":login")
	twoFactorStore := redisrepo.NewTwoFactorStore(rdb, prefix+":2fa")
	rateLimitStore := redisrepo.NewRateLimitRepository(rdb, redisrepo.SlidingWindowConfig{KeyPrefix: prefix + ":rate-limit"})

	repos := postgresrepo.NewRepositories(pool)

	events := a.eventPublisher()

	authMetrics, err := telemetry.NewAuthMetrics(prometheus.DefaultRegisterer, metricsNamespace)
	if err != nil {
		return fmt.Errorf("init auth metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Namespace: metricsNamespace})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	timeout := cfg.Auth.StoreTimeout
	credentials, err := usecase.NewCredentialVerifier(repos.Accounts, hasher, timeout)
	if err != nil {
		return fmt.Errorf("init credential verifier: %w", err)
	}
	accountThrottle := usecase.NewLoginThrottle(attemptStore, lockoutPolicy(cfg.Lockout), usecase.ThrottleScopeAccount, timeout)
	ipThrottle := usecase.NewLoginThrottle(attemptStore, lockoutPolicy(cfg.IPLockout), usecase.ThrottleScopeIP, timeout)

	twoFactor := usecase.NewTwoFactorService(
		repos.Accounts,
		twoFactorStore,
		twoFactorStore,
		totp,
		sealer,
		backupCodes,
		credentials,
		accountThrottle,
		events,
		usecase.TwoFactorConfig{
			BackupCodeCount: cfg.TOTP.BackupCodeCount,
			EnrollmentTTL:   cfg.TOTP.EnrollmentTTL,
			StoreTimeout:    timeout,
		},
		log,
	).WithMetrics(authMetrics)

	policy := domain.NewDegradationPolicy(domain.ParseDegradationPolicyMode(cfg.Auth.DegradationPolicy))
	tokens := usecase.NewTokenService(jwtManager, refreshStore, policy, usecase.TokenConfig{
		AccessTTL:    cfg.JWT.AccessTokenTTL,
		RefreshTTL:   cfg.JWT.RefreshTokenTTL,
		StoreTimeout: timeout,
	}, log).WithAccounts(repos.Accounts)

	authService, err := usecase.NewAuthService(usecase.AuthDeps{
		Accounts:             repos.Accounts,
		Credentials:          credentials,
		AccountThrottle:      accountThrottle,
		IPThrottle:           ipThrottle,
		TwoFactor:            twoFactor,
		Tokens:               tokens,
		Events:               events,
		Alerter:              telemetry.NewSentryAlerter(nil, log),
		Metrics:              authMetrics,
		Logger:               log,
		RequireVerifiedEmail: cfg.Auth.RequireVerifiedEmail,
		StoreTimeout:         timeout,
	})
	if err != nil {
		return fmt.Errorf("init auth service: %w", err)
	}

	accountService := usecase.NewAccountService(
		repos.Accounts,
		repos.OneTimeTokens,
		hasher,
		passwordPolicy,
		tokens,
		accountThrottle,
		events,
		usecase.AccountConfig{
			VerifyEmailTTL:   cfg.Auth.VerifyEmailTTL,
			PasswordResetTTL: cfg.Auth.PasswordResetTTL,
			StoreTimeout:     timeout,
		},
		log,
	)

	if cfg.Kafka.Enabled && cfg.Kafka.ConsumeRevocations {
		consumer, err := kafkainfra.NewConsumerGroup(
			cfg.Kafka,
			domain.EventSessionRevokeRequested,
			kafkainfra.NewSessionRevocationConsumer(authService, log),
			log,
		)
		if err != nil {
			return fmt.Errorf("init revocation consumer: %w", err)
		}
		a.consumer = consumer
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: middleware.NewRateLimiter(rateLimitStore, log),
		Metrics:     httpMetrics,
		Database:    database.PoolHealth{Pool: pool},
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:      authService,
			Accounts:  accountService,
			TwoFactor: twoFactor,
			Keys:      tokens,
		},
	})

	return nil
}

// eventPublisher falls back to logging events when Kafka is disabled or unreachable at startup.
func (a *Application) eventPublisher() port.EventPublisher {
	cfg, log := a.cfg, a.logger
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(log)
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}
	a.producer = producer
	return kafkainfra.NewEventPublisher(producer, cfg.App, log)
}

func (a *Application) Run(ctx context.Context) error {
	defer a.close(context.Background())

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	if a.consumer != nil {
		go a.consumer.Run(ctx)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// close releases resources in reverse start order; it tolerates a partially built Application.
func (a *Application) close(ctx context.Context) {
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Warn("close kafka consumer", zap.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.sentry {
		telemetry.FlushSentry()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func lockoutPolicy(s config.LockoutSettings) domain.LockoutPolicy {
	return domain.LockoutPolicy{
		Window:       s.Window,
		MaxFailures:  s.MaxFailures,
		BaseDuration: s.BaseDuration,
		MaxDuration:  s.MaxDuration,
		Decay:        s.Decay,
	}
}

// argon2Config falls back to the library defaults when no memory cost is configured.
func argon2Config(s config.Argon2Settings) security.Argon2Config {
	if s.Memory == 0 {
		return security.DefaultArgon2Config()
	}
	return security.Argon2Config{
		Memory:      s.Memory,
		Iterations:  s.Iterations,
		Parallelism: s.Parallelism,
		SaltLength:  s.SaltLength,
		KeyLength:   s.KeyLength,
	}
}
