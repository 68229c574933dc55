package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	_ "postpilot/docs"
	"postpilot/internal/dispatch"
	"postpilot/internal/entity"
	"postpilot/internal/platform"
	"postpilot/internal/repository/postgresql"
	"postpilot/internal/retry"
	"postpilot/internal/service"
	httptransport "postpilot/internal/transport/http"
	"postpilot/internal/worker"
)

// @title postpilot scheduler API
// @version 1.0
// @description Job dispatch and retry engine for scheduled social posts.
// @BasePath /
func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgDSN := mustEnv("POSTGRES_DSN")
	redisAddr := mustEnv("REDIS_ADDR")
	jwtSecret := mustEnv("JWT_SECRET")
	relayURL := mustEnv("PUBLISHER_URL")

	httpAddr := envOr("HTTP_ADDR", ":8080")
	cycleCron := envOr("CYCLE_CRON", "") // empty disables the internal timer
	batchLimit := envIntOr("BATCH_LIMIT", 50)
	concurrency := envIntOr("CYCLE_WORKERS", 4)
	maxAttempts := envIntOr("JOB_MAX_ATTEMPTS", 3)
	dispatchTimeout := time.Duration(envIntOr("DISPATCH_TIMEOUT_SEC", 30)) * time.Second
	origins := strings.Split(envOr("CORS_ORIGINS", "*"), ",")

	// Postgres
	pool, err := postgresql.NewPool(ctx, pgDSN)
	if err != nil {
		log.Fatalf("pg: %v", err)
	}
	defer pool.Close()

	// Redis (run-now nudges)
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	// DI
	jobs := postgresql.NewJobRepository(pool)
	posts := postgresql.NewPostRepository(pool)
	integrations := postgresql.NewIntegrationRepository(pool)

	registry := platform.NewRegistry()
	for _, p := range entity.Platforms() {
		if err := registry.Register(p, platform.NewRelayClient(relayURL, p, dispatchTimeout)); err != nil {
			log.Fatalf("platform registry: %v", err)
		}
	}

	dispatcher := dispatch.NewDispatcher(integrations, registry, dispatchTimeout)
	runner := worker.NewRunner(jobs, posts, dispatcher, retry.DefaultPolicy(), batchLimit, concurrency)
	intake := service.NewIntakeService(jobs, service.NewRedisRunNotifier(rdb), maxAttempts)

	handler := httptransport.NewHandler(intake, runner, jobs)
	router := httptransport.Routes(handler, httptransport.NewVerifier(jwtSecret), origins)

	// Intake publishes a nudge when a request schedules in the past; react
	// with an immediate cycle instead of waiting for the next trigger.
	go listenRunNudges(ctx, rdb, runner)

	// Optional internal timer. Processing stays trigger-driven: cron just
	// calls the same RunCycle the HTTP endpoint does.
	if cycleCron != "" {
		c := cron.New()
		_, err := c.AddFunc(cycleCron, func() {
			if _, err := runner.RunCycle(ctx); err != nil {
				log.Printf("[cron] cycle error=%v", err)
			}
		})
		if err != nil {
			log.Fatalf("cron spec %q: %v", cycleCron, err)
		}
		c.Start()
		defer c.Stop()
		log.Printf("[main] cycle cron enabled spec=%q", cycleCron)
	}

	srv := &http.Server{Addr: httpAddr, Handler: router}
	go func() {
		log.Printf("[main] listening addr=%s batch_limit=%d workers=%d postgres_dsn=%s",
			httpAddr, batchLimit, concurrency, redactDSN(pgDSN))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] shutdown error=%v", err)
	}
	log.Println("scheduler stopped")
}

func listenRunNudges(ctx context.Context, rdb *redis.Client, runner *worker.Runner) {
	sub := rdb.Subscribe(ctx, service.RunChannel)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.Channel():
			if !ok {
				return
			}
			if _, err := runner.RunCycle(ctx); err != nil {
				log.Printf("[nudge] cycle error=%v", err)
			}
		}
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("missing env: %s", key)
	}
	return v
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func redactDSN(dsn string) string {
	// user:pass@ -> user:****@, leaves password-less DSNs alone
	re := regexp.MustCompile(`://([^:/?#]+):([^@/]+)@`)
	return re.ReplaceAllString(dsn, `://$1:****@`)
}
