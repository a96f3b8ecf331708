package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neuronudge-backend-go/internal/config"
	"neuronudge-backend-go/internal/db"
	"neuronudge-backend-go/internal/generator"
	httpapi "neuronudge-backend-go/internal/http"
	"neuronudge-backend-go/internal/logging"
	"neuronudge-backend-go/internal/migrations"
	"neuronudge-backend-go/internal/services"
	"neuronudge-backend-go/internal/store"
	"neuronudge-backend-go/internal/telemetry"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		bootLog, _ := logging.New("development")
		bootLog.Fatal("config", "error", err)
	}

	var sinks []zapcore.WriteSyncer
	logFile, fileErr := logging.OpenDailyFile(cfg.LogDir, cfg.LogRetentionDays)
	if fileErr == nil {
		sinks = append(sinks, logFile)
		defer logFile.Close()
	}
	log, err := logging.New(cfg.LogMode, sinks...)
	if err != nil {
		log = logging.Nop()
	}
	defer log.Sync()
	if fileErr != nil {
		log.Warn("file logging disabled", "dir", cfg.LogDir, "error", fileErr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, log, telemetry.Config{Enabled: cfg.OtelEnabled, ServiceName: cfg.OtelServiceName})
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}

	st, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	hub := services.NewStatsHub()
	go hub.Run(ctx)

	var gen generator.Generator = generator.Disabled{}
	if cfg.OpenAIAPIKey != "" {
		client := generator.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		defer client.Close()
		gen = client
	} else {
		log.Warn("OPENAI_API_KEY not set, nudges fall back to the default text")
	}

	server := httpapi.NewServer(cfg, httpapi.Deps{Store: st, Hub: hub, Generator: gen, Log: log})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("listening", "addr", cfg.Addr(), "store", cfg.StoreDriver, "model", gen.Model())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
	_ = shutdownTracing(ctxShutdown)
	log.Info("shutdown complete")
}

func openStore(ctx context.Context, cfg config.Config, log *logging.Logger) (store.Store, func()) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store, data is lost on exit")
		return store.NewMemory(), func() {}
	}
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db", "error", err)
	}
	applied, err := migrations.Apply(ctx, database)
	if err != nil {
		log.Fatal("migrations", "error", err)
	}
	if len(applied) > 0 {
		log.Info("migrations applied", "files", applied)
	}
	return store.NewPostgres(database), func() { _ = database.Close() }
}
