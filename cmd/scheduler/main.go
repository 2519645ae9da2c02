// Command scheduler runs the scan scheduling core: the control API, the
// schedule evaluator, the liveness sweeper, and the sandbox worker pool, in
// one process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/app"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/config"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/catalog"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/docker"
	kathttp "github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/http"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/http/handler"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/jobs"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/postgres"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/infra/redis"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/tracing"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/capability"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().Error("failed to load configuration", "error", err)
		return 1
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Info("starting", "app", cfg.App.Name, "env", cfg.App.Environment)

	shutdownTracing, err := tracing.Init(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		return 1
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		return 1
	}
	defer db.Close()

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer redisClient.Close()

	engine, err := docker.New(cfg.Sandbox.StderrLines, log)
	if err != nil {
		log.Error("failed to connect to docker", "error", err)
		return 1
	}

	taskRepo := postgres.NewTaskRepository(db)
	pluginRepo := postgres.NewPluginRepository(db)
	scheduleRepo := postgres.NewScheduleRepository(db)
	objectSetRepo := postgres.NewObjectSetRepository(db)
	attributionRepo := postgres.NewAttributionRepository(db)

	jobClient := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, log)
	defer jobClient.Close()

	issuer := capability.NewIssuer(capability.Config{
		Secret: cfg.Auth.TokenSecret,
		Issuer: cfg.Auth.Issuer,
	})

	hostname, _ := os.Hostname()
	executor := app.NewExecutor(taskRepo, pluginRepo, issuer, engine, app.ExecutorConfig{
		WorkerID:          hostname,
		APIBaseURL:        cfg.Sandbox.APIBaseURL,
		Network:           cfg.Sandbox.Network,
		ShimVolume:        cfg.Sandbox.ShimVolume,
		ShimMount:         "/kat",
		ShimEntrypoint:    cfg.Sandbox.ShimPath,
		Timeout:           cfg.Sandbox.Timeout,
		TokenGrace:        cfg.Sandbox.TokenGrace,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	}, log)

	evaluator := app.NewEvaluator(
		scheduleRepo, pluginRepo, objectSetRepo, taskRepo,
		catalog.New(&cfg.Catalog), redis.NewLocker(redisClient), jobClient,
		app.EvaluatorConfig{
			TickInterval: cfg.Scheduler.TickInterval,
			LockTTL:      cfg.Scheduler.LockTTL,
			DedupWindow:  cfg.Scheduler.DedupWindow,
		}, log)

	sweeper := app.NewSweeper(taskRepo, jobClient, app.SweeperConfig{
		Interval:   cfg.Scheduler.SweepInterval,
		StaleAfter: cfg.Scheduler.StaleAfter,
	}, log)

	notifier := redis.NewCancelNotifier(redisClient, log)

	taskService := app.NewTaskService(taskRepo, pluginRepo, jobClient, notifier, log)
	scheduleService := app.NewScheduleService(scheduleRepo, objectSetRepo, pluginRepo, log)
	attributionService := app.NewAttributionService(attributionRepo, taskRepo, log)

	v := validator.New()
	router := kathttp.NewRouter(kathttp.RouterDeps{
		Health:      handler.NewHealthHandler(db, redisClient),
		Tasks:       handler.NewTaskHandler(taskService, v, log),
		Schedules:   handler.NewScheduleHandler(scheduleService, v, log),
		ObjectSets:  handler.NewObjectSetHandler(scheduleService, v, log),
		Plugins:     handler.NewPluginHandler(pluginRepo, log),
		Attribution: handler.NewAttributionHandler(attributionService, v, log),
		Issuer:      issuer,
		APIToken:    cfg.Auth.APIToken,
		Logger:      log,
	})
	server := kathttp.NewServer(cfg, router, log)

	worker := jobs.NewWorker(jobs.WorkerConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Worker.Concurrency,
	}, executor, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := worker.Start(); err != nil {
			return err
		}
		<-gctx.Done()
		worker.Stop()
		return nil
	})

	g.Go(func() error {
		evaluator.Start(gctx)
		return nil
	})

	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})

	g.Go(func() error {
		return notifier.Listen(gctx, func(n redis.CancelNotification) {
			executor.CancelRunning(n.TaskID)
		})
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error("scheduler exited with error", "error", err)
		return 1
	}

	log.Info("scheduler stopped")
	return 0
}
