// Command authcore-server serves the authentication engine over HTTP, backed
// by PostgreSQL for durable state and Redis for the hot path.
//
// Required environment: AUTH_JWT_SECRET, DATABASE_URL and REDIS_URL. A .env
// file in the working directory is loaded first when present. See
// authcore.LoadEnv for the optional variables.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	authcore "github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/httpapi"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/store/postgres"
)

func main() {
	var (
		migrate    = flag.Bool("migrate", true, "apply schema migrations on start")
		trustProxy = flag.Bool("trust-proxy", false, "take the client IP from X-Forwarded-For / X-Real-IP")
		accessLog  = flag.Bool("access-log", true, "log one line per request")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}
	env, err := authcore.LoadEnv()
	if err != nil {
		log.Fatal(err)
	}
	cfg, err := env.Config()
	if err != nil {
		log.Fatal(err)
	}

	if env.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         env.SentryDSN,
			Environment: env.AppEnv,
		}); err != nil {
			log.Fatalf("sentry init: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, env.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if *migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal(err)
		}
	}

	redisOpts, err := redis.ParseURL(env.RedisURL)
	if err != nil {
		log.Fatalf("parse REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	b := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithMailer(logMailer{})
	engine, err := postgres.New(db, cfg.Stores.DBTimeout).Attach(b).Build()
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}
	defer engine.Close()

	if err := engine.StartReaper(ctx); err != nil {
		log.Fatalf("start reaper: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		promexport.New(engine),
	)
	httpMetrics, err := httpapi.NewMetrics(reg)
	if err != nil {
		log.Fatal(err)
	}

	root := chi.NewRouter()
	root.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	root.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	root.Mount("/", httpapi.NewRouter(engine, httpapi.Options{
		TrustProxy:        *trustProxy,
		AccessLog:         *accessLog,
		Metrics:           httpMetrics,
		ThrottlePerSecond: 20,
		ThrottleBurst:     40,
	}))

	srv := &http.Server{
		Addr:              env.HTTPAddr,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("authcore: listening on %s (%s)", env.HTTPAddr, env.AppEnv)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Printf("authcore: server stopped: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("authcore: shutdown: %v", err)
	}
}

// logMailer writes codes to the log. Replace it with a real transport.
type logMailer struct{}

func (logMailer) Send(_ context.Context, m authcore.Mail) error {
	log.Printf("authcore: mail kind=%s to=%s code=%s expires_in=%s", m.Kind, m.To, m.Code, m.ExpiresIn)
	return nil
}
