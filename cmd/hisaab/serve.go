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

	"connectrpc.com/connect"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/hisaab/internal/auth"
	"github.com/mmynk/hisaab/internal/config"
	"github.com/mmynk/hisaab/internal/events"
	"github.com/mmynk/hisaab/internal/metrics"
	"github.com/mmynk/hisaab/internal/middleware"
	"github.com/mmynk/hisaab/internal/service"
	"github.com/mmynk/hisaab/internal/storage/sqlite"
	"github.com/mmynk/hisaab/pkg/api/apiconnect"
	"github.com/mmynk/hisaab/pkg/logging"
)

const (
	shutdownTimeout = 10 * time.Second
	rateLimitTTL    = 10 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Connect API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()
		if err := cfg.Validate(); err != nil {
			return err
		}
		logging.SetupWithLevel(logging.ParseLevel(cfg.LogLevel))
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func newPublisher(cfg *config.Config) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		slog.Info("AMQP_URL not set, expense events disabled")
		return events.NopPublisher{}, nil
	}
	p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		return nil, err
	}
	slog.Info("Publishing expense events", "exchange", cfg.AMQPExchange)
	return p, nil
}

// rateLimited covers the RPC services and the exports; health checks and
// scrapes are not limited.
func rateLimited(path string) bool {
	return apiconnect.IsAPIPath(path) || path == service.ExportCSVPath || path == service.ExportPDFPath
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()

	if cfg.UsesDevSecret() {
		logger.Warn("JWT_SECRET not set, using the development secret")
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("Storage initialized", "database", cfg.DBPath)

	publisher, err := newPublisher(cfg)
	if err != nil {
		return err
	}
	defer publisher.Close()

	m := metrics.New()
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenDuration)
	authenticator := auth.NewPasswordAuthenticator(store)

	interceptors := connect.WithInterceptors(
		m.Interceptor(),
		middleware.RequireAuth(jwtManager, apiconnect.PublicProcedures...),
		middleware.LoggingInterceptor(logger),
	)

	analytics := service.NewAnalyticsService(store, logger)

	mux := http.NewServeMux()
	mux.Handle(apiconnect.NewAuthServiceHandler(service.NewAuthService(authenticator, jwtManager, store, logger), interceptors))
	mux.Handle(apiconnect.NewGroupServiceHandler(service.NewGroupService(store, m, logger), interceptors))
	mux.Handle(apiconnect.NewExpenseServiceHandler(service.NewExpenseService(store, publisher, m, logger), interceptors))
	mux.Handle(apiconnect.NewAnalyticsServiceHandler(analytics, interceptors))
	service.NewExportHandler(analytics, logger).Register(mux, func(h http.Handler) http.Handler {
		return middleware.Authenticate(jwtManager, h)
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	if cfg.MetricsEnabled {
		mux.Handle("GET /metrics", m.Handler())
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, rateLimitTTL, logger).
		WithTrustedProxies(proxies).
		WithPathFilter(rateLimited)
	handler := middleware.RequestLogger(logger, middleware.CORS(cfg.CORSOrigin, limiter.Middleware(mux)))

	// h2c for HTTP/2 without TLS (required for Connect streaming clients)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Connect server starting", "address", server.Addr, "url", "http://localhost"+server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
