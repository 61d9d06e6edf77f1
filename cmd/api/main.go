package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"

	"github.com/salescope/ingest/internal/pkg/apiservice"
	"github.com/salescope/ingest/internal/pkg/config"
	"github.com/salescope/ingest/internal/pkg/monitor/poll"
	"github.com/salescope/ingest/internal/pkg/notify/email"
	"github.com/salescope/ingest/internal/pkg/notify/webhook"
	"github.com/salescope/ingest/internal/pkg/postgres"
	"github.com/salescope/ingest/internal/pkg/provider"
	"github.com/salescope/ingest/internal/pkg/statusservice"
	"github.com/salescope/ingest/internal/pkg/storage/local"
	"github.com/salescope/ingest/internal/pkg/storage/minio"
	"github.com/salescope/ingest/internal/pkg/tracking"
	"github.com/salescope/ingest/internal/pkg/utils"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	go utils.RunPerfEndpoint()

	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	sender, err := postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	tracker, err := tracking.NewService(db)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init tracker")
	}

	registry := provider.NewRegistry()
	if err := registry.RegisterStorage(local.NewStorage()); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't register local storage")
	}
	if err := registry.RegisterStorage(minio.NewStorage()); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't register minio storage")
	}
	if err := registry.RegisterMonitor(poll.NewPrototype(nil)); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't register poll monitor")
	}
	if err := registry.RegisterNotifier(webhook.NewNotifier()); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't register webhook notifier")
	}
	if err := registry.RegisterNotifier(email.NewNotifier()); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't register email notifier")
	}
	factory, err := provider.NewFactory(registry)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init factory")
	}

	gueClient, err := gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	wsHandler := statusservice.NewWSConnKeeper()

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	doneCh, err := statusservice.StartStatusHandler(ctx, &statusservice.HandlerData{
		GueClient: gueClient, WorkerCount: cfg.GetInt("status.workerCount"),
		DB: db, WSHandler: wsHandler})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start status handler")
	}

	data := &apiservice.Data{Port: cfg.GetInt("port"), DB: db, MsgSender: sender,
		Validator: config.NewValidator(), Factory: factory, Tracker: tracker, WSHandler: wsHandler}

	printBanner()

	go func() {
		if err := apiservice.StartWebServer(data); err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't start web server")
		}
	}()
	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
    _____       ________  _____________________
   /  _/ | / / ____/ ___/_  __/ ___/_  __/ ___/
   / //  |/ / / __ \__ \ / /  \__ \ / /  \__ \
 _/ // /|  / /_/ /___/ // /  ___/ // /  ___/ /
/___/_/ |_/\____//____//_/  /____//_/  /____/

              _
  ____ _____  (_)
 / __ ` + "`" + `/ __ \/ /
/ /_/ / /_/ / /
\__,_/ .___/_/
    /_/

  %s
%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/salescope/ingest"))
}
