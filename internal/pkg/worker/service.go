package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"

	"github.com/salescope/ingest/internal/pkg/batch"
	"github.com/salescope/ingest/internal/pkg/messages"
	"github.com/salescope/ingest/internal/pkg/utils"
)

// BatchRunner drives batch job processing
type BatchRunner interface {
	StartBatchProcessing(ctx context.Context, folderID string, opts *batch.Options) (string, error)
	StopBatchProcessing(ctx context.Context, jobID string) error
	ReprocessFile(ctx context.Context, fileID string) error
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	Batch       BatchRunner
	Testing     bool
}

// StartWorkerService starts the event queue listeners.
// Returns channel closed when all pools have finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}

	pools := []struct {
		queue string
		wf    gue.WorkFunc
	}{
		{messages.Batch, utils.CreateHandler(data, handleBatch)},
		{messages.Cancel, utils.CreateHandler(data, handleCancel)},
		{messages.RetryFile, utils.CreateHandler(data, handleRetryFile)},
	}

	res := make(chan struct{}, 1)
	done := make(chan struct{}, len(pools))
	for _, p := range pools {
		pool, err := gue.NewWorkerPool(
			data.GueClient, gue.WorkMap{p.queue: p.wf}, data.WorkerCount,
			gue.WithPoolQueue(p.queue),
			gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
			gue.WithPoolPollInterval(500*time.Millisecond),
			gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
			gue.WithPoolID("ingest-worker-"+p.queue),
		)
		if err != nil {
			return nil, fmt.Errorf("could not build gue workers pool: %w", err)
		}
		go func(queue string, pool *gue.WorkerPool) {
			goapp.Log.Info().Str("queue", queue).Msg("Starting workers")
			if err := pool.Run(ctx); err != nil {
				goapp.Log.Error().Err(err).Msg("pool error")
			}
			done <- struct{}{}
		}(p.queue, pool)
	}
	go func() {
		for range pools {
			<-done
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

func handleBatch(ctx context.Context, m *messages.BatchMessage, data *ServiceData) error {
	goapp.Log.Info().Str("folder", m.FolderID).Msg("handling batch start")
	jobID, err := data.Batch.StartBatchProcessing(ctx, m.FolderID, &batch.Options{JobID: m.ID, JobName: m.JobName})
	if err != nil {
		return fmt.Errorf("can't start batch: %w", err)
	}
	goapp.Log.Info().Str("ID", jobID).Msg("batch started")
	return nil
}

func handleCancel(ctx context.Context, m *messages.JobMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Msg("handling cancel")
	err := data.Batch.StopBatchProcessing(ctx, m.ID)
	if errors.Is(err, batch.ErrJobNotRunning) {
		// job finished before the message arrived, nothing to do
		goapp.Log.Warn().Str("ID", m.ID).Msg("job not running")
		return nil
	}
	return err
}

func handleRetryFile(ctx context.Context, m *messages.FileMessage, data *ServiceData) error {
	goapp.Log.Info().Str("fileID", m.FileID).Msg("handling file retry")
	return data.Batch.ReprocessFile(ctx, m.FileID)
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.Batch == nil {
		return fmt.Errorf("no batch runner")
	}
	return nil
}
