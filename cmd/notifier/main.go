package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/bizkut/EveSalesNotification/internal/config"
	"github.com/bizkut/EveSalesNotification/internal/esi"
	"github.com/bizkut/EveSalesNotification/internal/lifecycle"
	"github.com/bizkut/EveSalesNotification/internal/logger"
	"github.com/bizkut/EveSalesNotification/internal/notify"
	"github.com/bizkut/EveSalesNotification/internal/poller"
	"github.com/bizkut/EveSalesNotification/internal/postgres"
	"github.com/bizkut/EveSalesNotification/internal/server"
	"github.com/bizkut/EveSalesNotification/internal/store"
	"github.com/bizkut/EveSalesNotification/internal/token"
	"github.com/bizkut/EveSalesNotification/internal/undercut"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const _notifierCfgFilePath = "./configs/notifier.yaml"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("can't detect .env file")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadNotifierConfig(_notifierCfgFilePath)
	if err != nil {
		log.Fatalf("%s: can't load notifier cfg", err)
	}

	zapLogger, loggerSync, err := logger.NewZapLogger(logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Fatalf("%s: can't init logger", err)
	}
	defer loggerSync()

	db, err := postgres.NewDB(postgres.NewConfigFromEnv().Setup())
	if err != nil {
		zapLogger.Fatalf("%s: can't connect to db", err)
	}
	defer db.Close()

	st := store.New(db)
	if err := st.InitSchema(ctx); err != nil {
		zapLogger.Fatalf("%s: can't init db schema", err)
	}

	tokens := token.NewExchanger(cfg.ESI, zapLogger)
	client := esi.NewClient(cfg.ESI, tokens, zapLogger)

	lm := lifecycle.NewManager(st, cfg.Poller.GracePeriod, cfg.Poller.DeletionGrace, zapLogger)
	evaluator := undercut.NewEvaluator(client, st, zapLogger)
	distances := undercut.NewDistances(undercut.NewStargateGraph(client), st)
	sink := notify.NewTelegramSink(cfg.Telegram, zapLogger)

	scheduler := poller.NewScheduler(st, client, lm, evaluator, distances, sink, cfg.Poller, zapLogger)
	srv := server.New(ctx, cfg.HTTPPort, lm, st, tokens, zapLogger)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Run(gCtx)
	})
	g.Go(func() error {
		return srv.Run(gCtx)
	})

	zapLogger.Infof("notifier started, polling every %s", cfg.Poller.Interval)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		zapLogger.Errorf("notifier stopped: %v", err)
	}
}
