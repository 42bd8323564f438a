package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keyshop/bot"
	"keyshop/entity"
	"keyshop/impl/core"
	"keyshop/internal/config"
	"keyshop/internal/database"
	"keyshop/internal/database/memory"
	"keyshop/internal/http-server/api"
	"keyshop/internal/metrics"
	"keyshop/internal/session"
	"keyshop/lib/logger"
	"keyshop/lib/sl"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const sweepInterval = time.Minute

// repository is the store behind the core, closed on exit.
type repository interface {
	core.Repository
	Close()
}

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	log := logger.SetupLogger(conf.Env, *logPath)
	log.Info("starting keyshop", slog.String("config", *configPath), slog.String("env", conf.Env))

	repo, err := openRepository(conf, log)
	if err != nil {
		log.Error("storage init", sl.Err(err))
		os.Exit(1)
	}
	defer repo.Close()

	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		tgBot, err = bot.NewTgBot(conf.Telegram.ApiKey, log, bot.BotConfig{
			DigestIntervalMin: conf.Telegram.DigestIntervalMin,
		})
		if err != nil {
			log.Error("telegram bot init", sl.Err(err))
			os.Exit(1)
		}
		log.Info("telegram bot enabled", sl.Secret("api_key", conf.Telegram.ApiKey))
		// from here on records at the admin level are mirrored to administrator chats
		log = logger.WithNotifier(log, tgBot, logger.ParseLevel(conf.Telegram.AdminLogLevel))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler := core.New(repo, log)
	handler.SetMetrics(metrics.NewCollector(registry))
	if journal := database.NewMongoClient(conf); journal != nil {
		handler.SetJournal(journal)
		log.Info("purchase journal enabled", slog.String("database", conf.Mongo.Database))
	}

	if err = seedAdmin(handler, conf.Admin); err != nil {
		log.Error("admin seed", sl.Err(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions := session.NewStore(conf.Session.IdleTimeout, conf.Session.LoginAttemptsPerMinute)
	go sessions.Janitor(ctx, sweepInterval)
	machine := session.NewMachine(handler, sessions, log)

	if tgBot != nil {
		handler.SetSaleNotifier(tgBot)
		tgBot.SetCore(handler)
		tgBot.SetConversation(machine)
		go func() {
			if err := tgBot.Start(); err != nil {
				log.Error("telegram bot", sl.Err(err))
			}
		}()
	}

	server := api.New(conf, log, handler, metrics.Handler(registry))
	go func() {
		if err := server.Start(); err != nil {
			log.Error("api server", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Error("api shutdown", sl.Err(err))
	}
	if tgBot != nil {
		tgBot.Stop()
	}
}

func openRepository(conf *config.Config, log *slog.Logger) (repository, error) {
	if conf.Storage.Driver == "memory" {
		log.Warn("using in-memory storage; data is lost on exit")
		return memory.New(), nil
	}
	return database.NewSQLClient(conf)
}

func seedAdmin(handler *core.Core, conf config.AdminConfig) error {
	balance, err := entity.ParseMoney(conf.Balance)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return handler.EnsureAdmin(ctx, &entity.NewAccount{
		Handle:     conf.Handle,
		Credential: conf.Credential,
		Balance:    balance,
	})
}
