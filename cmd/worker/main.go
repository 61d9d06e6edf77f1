package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/hashicorp/consul/api"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/spf13/viper"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"

	"github.com/salescope/ingest/internal/pkg/batch"
	"github.com/salescope/ingest/internal/pkg/config"
	"github.com/salescope/ingest/internal/pkg/consul"
	"github.com/salescope/ingest/internal/pkg/monitor/poll"
	"github.com/salescope/ingest/internal/pkg/notify/email"
	"github.com/salescope/ingest/internal/pkg/notify/webhook"
	"github.com/salescope/ingest/internal/pkg/postgres"
	"github.com/salescope/ingest/internal/pkg/provider"
	"github.com/salescope/ingest/internal/pkg/scorer"
	"github.com/salescope/ingest/internal/pkg/storage/local"
	"github.com/salescope/ingest/internal/pkg/storage/minio"
	tapi "github.com/salescope/ingest/internal/pkg/transcriber/api"
	"github.com/salescope/ingest/internal/pkg/tracking"
	"github.com/salescope/ingest/internal/pkg/transcriber"
	"github.com/salescope/ingest/internal/pkg/utils"
	"github.com/salescope/ingest/internal/pkg/worker"
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
	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")
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
	goapp.Log.Info().Interface("providers", registry.GetStats()).Msg("registry ready")
	factory, err := provider.NewFactory(registry)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init factory")
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	trans, err := initTranscriber(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init transcriber")
	}
	scr, err := scorer.NewClient(cfg.GetString("scorer.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init scorer")
	}

	batchSvc, err := batch.NewService(&batch.ServiceData{DB: db, Tracker: tracker,
		Factory: factory, Validator: config.NewValidator(), Transcriber: trans, Scorer: scr,
		MsgSender: sender, WorkDir: cfg.GetString("worker.workDir"),
		Testing: cfg.GetBool("worker.testing")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init batch service")
	}

	gueClient, err := gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data := &worker.ServiceData{GueClient: gueClient, WorkerCount: cfg.GetInt("worker.count"),
		Batch: batchSvc, Testing: cfg.GetBool("worker.testing")}

	printBanner()

	doneCh, err := worker.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
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

func initTranscriber(ctx context.Context, cfg *viper.Viper) (tapi.Transcriber, error) {
	if addr := cfg.GetString("consul.address"); addr != "" {
		cCfg := api.DefaultConfig()
		cCfg.Address = addr
		prov, err := consul.NewProvider(cCfg, cfg.GetString("consul.srvName"))
		if err != nil {
			return nil, err
		}
		if _, err := prov.StartRegistryLoop(ctx, cfg.GetDuration("consul.checkInterval")); err != nil {
			return nil, err
		}
		return prov, nil
	}
	return transcriber.NewClient(cfg.GetString("transcriber.url"))
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

 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /
|__/|__/\____/_/  /_/|_|\___/_/

  %s
%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/salescope/ingest"))
}
