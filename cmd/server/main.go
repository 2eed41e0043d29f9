// Command notes-server starts the secure notes HTTP API.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/and161185/secure-notes/internal/config"
	"github.com/and161185/secure-notes/internal/crypto"
	"github.com/and161185/secure-notes/internal/crypto/fieldcrypto"
	"github.com/and161185/secure-notes/internal/limiter"
	"github.com/and161185/secure-notes/internal/lock"
	"github.com/and161185/secure-notes/internal/mailer"
	"github.com/and161185/secure-notes/internal/metrics"
	"github.com/and161185/secure-notes/internal/migrate"
	"github.com/and161185/secure-notes/internal/repository/postgres"
	grpcserver "github.com/and161185/secure-notes/internal/server/grpc"
	httpapi "github.com/and161185/secure-notes/internal/server/http"
	"github.com/and161185/secure-notes/internal/service"
	"github.com/and161185/secure-notes/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

// main loads configuration, runs migrations, and serves the API until a
// termination signal arrives.
func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	pool, err := postgres.Open(ctx, cfg.DSN, cfg.DBMaxConns)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	db := &postgres.DB{Pool: pool}
	defer db.Close()

	// Repositories
	accounts := postgres.NewAccountRepo(db)
	creds := postgres.NewCredentialRepo(db)
	notes := postgres.NewNoteRepo(db)

	locks := lock.NewPG(pool, logger)
	lim := limiter.NewPG(pool, cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlock)

	hasher := crypto.NewArgon2Hasher(crypto.DefaultArgon2Params)
	cipher, err := fieldcrypto.New([]byte(cfg.FieldKey))
	if err != nil {
		logger.Fatal("field cipher", zap.Error(err))
	}
	tokens := token.NewIssuer([]byte(cfg.JWTKey), cfg.AccessTTL, cfg.RefreshTTL)

	sender, err := newSender(cfg, logger)
	if err != nil {
		logger.Fatal("mailer", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	// Services
	otp := service.NewOTPIssuer(hasher, sender, cfg.OTPWindow)
	accountSvc := service.NewAccountService(accounts, hasher, otp, locks, rec, logger)
	sessionSvc := service.NewSessionService(
		service.NewPasswordAuthenticator(accounts, hasher),
		accounts, creds, tokens, locks, lim, rec, logger,
	)
	noteSvc := service.NewNoteService(notes, cipher, hasher, locks, rec, logger)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Accounts:       accountSvc,
			Sessions:       sessionSvc,
			Notes:          noteSvc,
			Metrics:        rec,
			MetricsHandler: metrics.Handler(reg),
			Ready:          db.Ping,
			AuthLimit:      httpapi.RateConfig{RPS: cfg.AuthRPS, Burst: cfg.AuthBurst},
			RequestTimeout: cfg.RequestTimeout,
			Log:            logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		if cfg.TLSCert != "" {
			logger.Info("listening (TLS)", zap.String("addr", cfg.Addr))
			errCh <- srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
			return
		}
		logger.Warn("listening without TLS", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	var hc *grpcserver.Health
	if cfg.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			logger.Fatal("listen health", zap.Error(err))
		}
		hc = grpcserver.NewHealth(logger)
		go hc.Monitor(ctx, db.Ping, 10*time.Second)
		go func() {
			logger.Info("health listening", zap.String("addr", cfg.HealthAddr))
			errCh <- hc.Serve(lis)
		}()
	}

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}

	if hc != nil {
		hc.Shutdown(shutdownTimeout)
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
		_ = srv.Close()
	}

	logger.Info("shutdown complete")
}

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// newSender picks SMTP delivery; in dev mode without a relay, codes go to the
// log instead.
func newSender(cfg config.Config, log *zap.Logger) (mailer.Sender, error) {
	if cfg.SMTP.Host == "" && cfg.Dev {
		log.Warn("no smtp relay configured, otp codes are logged")
		return mailer.NewLog(log, true), nil
	}
	return mailer.NewSMTP(cfg.SMTP)
}
