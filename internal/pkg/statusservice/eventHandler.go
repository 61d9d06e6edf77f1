package statusservice

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"

	"github.com/salescope/ingest/internal/pkg/messages"
	"github.com/salescope/ingest/internal/pkg/persistence"
	"github.com/salescope/ingest/internal/pkg/utils"
)

// WSConnHandler websocket connection registry
type WSConnHandler interface {
	HandleConnection(WsConn) error
	GetConnections(id string) ([]WsConn, bool)
}

// JobDB provides persistence functionality
type JobDB interface {
	LoadJob(ctx context.Context, id string) (*persistence.Job, error)
}

// HandlerData keeps data required for handler
type HandlerData struct {
	GueClient   *gue.Client
	WorkerCount int
	DB          JobDB
	WSHandler   WSConnHandler
}

// JobState is the payload pushed to subscribed websocket clients
type JobState struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	TotalFiles     int32  `json:"totalFiles"`
	ProcessedFiles int32  `json:"processedFiles"`
	FailedFiles    int32  `json:"failedFiles"`
	SkippedFiles   int32  `json:"skippedFiles"`
	Error          string `json:"error,omitempty"`
}

// StartStatusHandler starts the event queue listener for job status events.
// Returns channel for tracking if all jobs are finished
func StartStatusHandler(ctx context.Context, data *HandlerData) (chan struct{}, error) {
	if err := validateHandler(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Msg("Starting listen for messages")

	wm := gue.WorkMap{
		messages.StatusChange: utils.CreateHandler(data, handleStatus),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.StatusChange),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("status-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

func handleStatus(ctx context.Context, m *messages.JobMessage, data *HandlerData) error {
	goapp.Log.Debug().Str("ID", m.ID).Msg("handling status change event")

	conns, found := data.WSHandler.GetConnections(m.ID)
	if !found {
		return nil
	}
	job, err := data.DB.LoadJob(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't get job for ID %s: %w", m.ID, err)
	}
	res := MapJob(job)
	for _, c := range conns {
		if err := sendMsg(c, res); err != nil {
			goapp.Log.Error().Err(err).Send()
		}
	}
	return nil
}

// MapJob builds the push payload from a job row
func MapJob(job *persistence.Job) *JobState {
	return &JobState{ID: job.ID, Status: job.Status, TotalFiles: job.TotalFiles,
		ProcessedFiles: job.ProcessedFiles, FailedFiles: job.FailedFiles,
		SkippedFiles: job.SkippedFiles, Error: utils.FromSQLStr(job.Error)}
}

func sendMsg(c WsConn, res *JobState) error {
	if err := c.WriteJSON(res); err != nil {
		return fmt.Errorf("can't write to websocket: %w", err)
	}
	return nil
}

func validateHandler(data *HandlerData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.WSHandler == nil {
		return fmt.Errorf("no WSHandler")
	}
	return nil
}
