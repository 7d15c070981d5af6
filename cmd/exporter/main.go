package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	apihttp "ozzus/ring-exporter/internal/api/http"
	"ozzus/ring-exporter/internal/config"
	"ozzus/ring-exporter/internal/execx"
	"ozzus/ring-exporter/internal/lib/logger/slogpretty"
	"ozzus/ring-exporter/internal/metrics"
	"ozzus/ring-exporter/internal/probe"
	"ozzus/ring-exporter/internal/registry"
	"ozzus/ring-exporter/internal/repository"
	"ozzus/ring-exporter/internal/repository/kafka"
	"ozzus/ring-exporter/internal/ringapi"
	"ozzus/ring-exporter/internal/service"
	"ozzus/ring-exporter/internal/session"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Настраиваем логгер
	log := setupLogger(cfg.Env)

	log.Info("starting application",
		"env", cfg.Env,
		"ring_api", cfg.NLNOG.API,
	)

	// Без рабочего ключа не откроется ни один канал, падаем сразу
	if err := validateSSHKey(log, cfg.SSH.KeyPath); err != nil {
		log.Error("ssh key validation failed", "error", err)
		os.Exit(1)
	}

	ringClient, err := ringapi.NewClient(cfg.NLNOG.API, cfg.NLNOG.ParticipantsAPI, cfg.GetAPITimeout())
	if err != nil {
		log.Error("failed to initialize ring api client", "error", err)
		os.Exit(1)
	}

	runner := execx.NewOSRunner()
	sessions := session.NewManager(log, runner, cfg)
	nodeRegistry := registry.New(log)
	sessions.SetStatusCallback(nodeRegistry.UpdateStatus)

	snapshots := repository.NewFileSnapshotRepository(cfg.Cache.Path, log)

	var resultRepo repository.ResultRepository
	if cfg.KafkaEnabled() {
		log.Info("initializing Kafka producer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topics.Results,
		)
		resultsProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.Results)
		defer resultsProducer.Close()
		resultRepo = repository.NewKafkaResultRepository(resultsProducer, log)
	} else {
		log.Info("Kafka brokers not configured, probe results stay local")
		resultRepo = repository.NewNoopResultRepository()
	}

	executor := probe.NewExecutor(log, runner, cfg, sessions)

	promRegistry := prometheus.NewRegistry()
	exporterMetrics := metrics.New(promRegistry)

	proberService := service.NewProberService(
		log,
		cfg,
		ringClient,
		sessions,
		nodeRegistry,
		snapshots,
		executor,
		resultRepo,
		exporterMetrics,
	)

	probeController := apihttp.NewProbeController(proberService)
	statusController := apihttp.NewStatusController(proberService)
	router := apihttp.NewRouter(log, probeController, statusController, promRegistry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Запускаем восстановление и цикл сверки
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("starting reconcile loop",
			"interval", cfg.GetReconcileInterval().String(),
		)
		if err := proberService.Start(ctx); err != nil {
			log.Error("prober service failed", "error", err)
			os.Exit(1)
		}
	}()

	// Запускаем HTTP сервер
	httpServer := &nethttp.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("starting http server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Info("application started and ready", "addr", httpServer.Addr)

	<-quit
	log.Info("shutting down exporter...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	}

	// Останавливаем мастера, чтобы не копить осиротевшие сокеты
	sessions.CloseAll(shutdownCtx)

	wg.Wait()
	log.Info("exporter stopped gracefully")
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

// validateSSHKey гарантирует, что ключ для входа на узлы существует и
// читается. Пустой путь допустим: тогда ssh сам найдёт ключ или агент.
func validateSSHKey(log *slog.Logger, path string) error {
	if path == "" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("ssh key %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("ssh key %s is not a regular file", path)
	}
	if info.Mode().Perm()&0o077 != 0 {
		log.Warn("ssh key permissions are loose, ssh may refuse it",
			"path", path,
			"mode", info.Mode().Perm().String(),
		)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ssh key %s is not readable: %w", path, err)
	}
	f.Close()

	return nil
}
