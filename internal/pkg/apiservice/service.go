package apiservice

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/salescope/ingest/internal/pkg/config"
	"github.com/salescope/ingest/internal/pkg/messages"
	"github.com/salescope/ingest/internal/pkg/persistence"
	"github.com/salescope/ingest/internal/pkg/postgres"
	"github.com/salescope/ingest/internal/pkg/provider"
	"github.com/salescope/ingest/internal/pkg/statusservice"
	"github.com/salescope/ingest/internal/pkg/tracking"
	"github.com/salescope/ingest/internal/pkg/utils"
)

// DB provides persistence functionality
type DB interface {
	InsertFolder(ctx context.Context, f *persistence.Folder) error
	LoadFolder(ctx context.Context, id string) (*persistence.Folder, error)
	ListFolders(ctx context.Context) ([]*persistence.Folder, error)
	UpdateFolder(ctx context.Context, f *persistence.Folder) error
	DeleteFolder(ctx context.Context, id string) error
	LoadJob(ctx context.Context, id string) (*persistence.Job, error)
	ListJobs(ctx context.Context, folderID string) ([]*persistence.Job, error)
	ListFileRecords(ctx context.Context, jobID string) ([]*persistence.FileRecord, error)
	LoadFileRecord(ctx context.Context, id string) (*persistence.FileRecord, error)
	InsertNotificationSink(ctx context.Context, n *persistence.NotificationSink) error
	ListActiveNotificationSinks(ctx context.Context) ([]*persistence.NotificationSink, error)
	DeleteNotificationSink(ctx context.Context, id string) error
	Live(ctx context.Context) error
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// Tracker provides file record statistics
type Tracker interface {
	JobStats(ctx context.Context, jobID string) (*tracking.Stats, error)
	Timeline(ctx context.Context, id string) ([]tracking.TimelineEvent, error)
}

// Data keeps data required for service work
type Data struct {
	Port      int
	DB        DB
	MsgSender MsgSender
	Validator *config.Validator
	Factory   *provider.Factory
	Tracker   Tracker
	WSHandler statusservice.WSConnHandler
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP ingest service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.DB == nil {
		return errors.New("no DB")
	}
	if data.MsgSender == nil {
		return errors.New("no msg sender")
	}
	if data.Validator == nil {
		return errors.New("no validator")
	}
	if data.Factory == nil {
		return errors.New("no factory")
	}
	if data.Tracker == nil {
		return errors.New("no tracker")
	}
	if data.WSHandler == nil {
		return errors.New("no WSHandler")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("ingest", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/folders", createFolder(data))
	e.GET("/folders", listFolders(data))
	e.GET("/folders/:id", getFolder(data))
	e.PUT("/folders/:id", updateFolder(data))
	e.DELETE("/folders/:id", deleteFolder(data))
	e.POST("/folders/:id/test", testFolder(data))
	e.POST("/folders/:id/jobs", startJob(data))
	e.GET("/folders/:id/jobs", listJobs(data))
	e.GET("/jobs/:id", getJob(data))
	e.POST("/jobs/:id/cancel", cancelJob(data))
	e.GET("/jobs/:id/files", listFiles(data))
	e.GET("/files/:id/timeline", fileTimeline(data))
	e.POST("/files/:id/retry", retryFile(data))
	e.POST("/notifications", createNotification(data))
	e.GET("/notifications", listNotifications(data))
	e.DELETE("/notifications/:id", deleteNotification(data))
	e.GET("/live", live(data))
	e.GET("/subscribe", subscribeHandler(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		if err := data.DB.Live(c.Request().Context()); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusServiceUnavailable, "DB not available")
		}
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

type folderInput struct {
	Name   string               `json:"name"`
	Active bool                 `json:"active"`
	Config *config.FolderConfig `json:"config"`
}

type folderResult struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Active   bool                 `json:"active"`
	Config   *config.FolderConfig `json:"config"`
	Warnings []string             `json:"warnings,omitempty"`
}

func createFolder(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("createFolder method")()
		ctx := c.Request().Context()
		var inp folderInput
		if err := c.Bind(&inp); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't read input")
		}
		if inp.Config == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no config")
		}
		vRes := data.Validator.ValidateFolder(inp.Config)
		if !vRes.Valid {
			return c.JSON(http.StatusBadRequest, vRes)
		}
		now := time.Now()
		f := &persistence.Folder{ID: inp.Config.ID, Name: inp.Name, Config: inp.Config,
			Active: inp.Active, Created: now, Updated: now}
		if f.Name == "" {
			f.Name = inp.Config.Name
		}
		if err := data.DB.InsertFolder(ctx, f); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		return c.JSON(http.StatusOK, &folderResult{ID: f.ID, Name: f.Name, Active: f.Active,
			Config: f.Config, Warnings: vRes.Warnings})
	}
}

func listFolders(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		folders, err := data.DB.ListFolders(c.Request().Context())
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		res := make([]*folderResult, 0, len(folders))
		for _, f := range folders {
			res = append(res, &folderResult{ID: f.ID, Name: f.Name, Active: f.Active, Config: f.Config})
		}
		return c.JSON(http.StatusOK, res)
	}
}

func getFolder(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		f, err := data.DB.LoadFolder(c.Request().Context(), c.Param("id"))
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusBadRequest, "no folder")
		}
		return c.JSON(http.StatusOK, &folderResult{ID: f.ID, Name: f.Name, Active: f.Active, Config: f.Config})
	}
}

func updateFolder(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		f, err := data.DB.LoadFolder(ctx, c.Param("id"))
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusBadRequest, "no folder")
		}
		var inp folderInput
		if err := c.Bind(&inp); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't read input")
		}
		if inp.Config != nil {
			inp.Config.ID = f.ID
			vRes := data.Validator.ValidateFolder(inp.Config)
			if !vRes.Valid {
				return c.JSON(http.StatusBadRequest, vRes)
			}
			f.Config = inp.Config
		}
		if inp.Name != "" {
			f.Name = inp.Name
		}
		f.Active = inp.Active
		if err := data.DB.UpdateFolder(ctx, f); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		return c.JSON(http.StatusOK, &folderResult{ID: f.ID, Name: f.Name, Active: f.Active, Config: f.Config})
	}
}

func deleteFolder(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		err := data.DB.DeleteFolder(c.Request().Context(), c.Param("id"))
		if errors.Is(err, postgres.ErrFolderBusy) {
			return echo.NewHTTPError(http.StatusConflict, "folder has active jobs")
		}
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusBadRequest, "can't delete folder")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type testResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func testFolder(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("testFolder method")()
		ctx := c.Request().Context()
		f, err := data.DB.LoadFolder(ctx, c.Param("id"))
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusBadRequest, "no folder")
		}
		st, err := data.Factory.GetStorage(ctx, f.Config.Storage.Type, f.Config.Storage.Config)
		if err != nil {
			return c.JSON(http.StatusOK, &testResult{Success: false, Error: err.Error()})
		}
		if _, err := data.Factory.GetMonitor(ctx, f.Config.Monitor.Type, f.Config.Monitor.Config, st); err != nil {
			return c.JSON(http.StatusOK, &testResult{Success: false, Error: err.Error()})
		}
		return c.JSON(http.StatusOK, &testResult{Success: true})
	}
}

type jobInput struct {
	Name string `json:"name,omitempty"`
}

type idResult struct {
	ID string `json:"id"`
}

func startJob(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("startJob method")()
		ctx := c.Request().Context()
		folderID := c.Param("id")
		if _, err := data.DB.LoadFolder(ctx, folderID); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusBadRequest, "no folder")
		}
		var inp jobInput
		if err := c.Bind(&inp); err != nil && !errors.Is(err, echo.ErrUnsupportedMediaType) {
			return echo.NewHTTPError(http.StatusBadRequest, "can't read input")
		}
		id := uuid.New().String()
		err := data.MsgSender.SendMessage(ctx, &messages.BatchMessage{
			QueueMessage: amessages.QueueMessage{ID: id}, FolderID: folderID, JobName: inp.Name}, messages.Batch)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		return c.JSON(http.StatusAccepted, &idResult{ID: id})
	}
}

func listJobs(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		jobs, err := data.DB.ListJobs(c.Request().Context(), c.Param("id"))
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		res := make([]*statusservice.JobState, 0, len(jobs))
		for _, j := range jobs {
			res = append(res, statusservice.MapJob(j))
		}
		return c.JSON(http.StatusOK, res)
	}
}

type jobResult struct {
	*statusservice.JobState
	Stats *tracking.Stats `json:"stats,omitempty"`
}

func getJob(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("getJob method")()
		ctx := c.Request().Context()
		job, err := data.DB.LoadJob(ctx, c.Param("id"))
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusBadRequest, "no job")
		}
		stats, err := data.Tracker.JobStats(ctx, job.ID)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		return c.JSON(http.StatusOK, &jobResult{JobState: statusservice.MapJob(job), Stats: stats})
	}
}

func cancelJob(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		job, err := data.DB.LoadJob(ctx, c.Param("id"))
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusBadRequest, "no job")
		}
		err = data.MsgSender.SendMessage(ctx, &messages.JobMessage{
			QueueMessage: amessages.QueueMessage{ID: job.ID}}, messages.Cancel)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		return c.JSON(http.StatusAccepted, &idResult{ID: job.ID})
	}
}

type fileResult struct {
	ID           string `json:"id"`
	FileName     string `json:"fileName"`
	FileSize     int64  `json:"fileSize"`
	Status       string `json:"status"`
	RetryCount   int32  `json:"retryCount"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CallID       string `json:"callID,omitempty"`
}

func listFiles(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		recs, err := data.DB.ListFileRecords(c.Request().Context(), c.Param("id"))
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		res := make([]*fileResult, 0, len(recs))
		for _, r := range recs {
			res = append(res, mapFile(r))
		}
		return c.JSON(http.StatusOK, res)
	}
}

func mapFile(r *persistence.FileRecord) *fileResult {
	return &fileResult{ID: r.ID, FileName: r.FileName, FileSize: r.FileSize, Status: r.Status,
		RetryCount: r.RetryCount, ErrorCode: utils.FromSQLStr(r.ErrorCode),
		ErrorMessage: utils.FromSQLStr(r.ErrorMessage), CallID: utils.FromSQLStr(r.CallID)}
}

func fileTimeline(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		res, err := data.Tracker.Timeline(c.Request().Context(), c.Param("id"))
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusBadRequest, "no file")
		}
		return c.JSON(http.StatusOK, res)
	}
}

func retryFile(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		rec, err := data.DB.LoadFileRecord(ctx, c.Param("id"))
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusBadRequest, "no file")
		}
		err = data.MsgSender.SendMessage(ctx, &messages.FileMessage{
			QueueMessage: amessages.QueueMessage{ID: rec.JobID}, FileID: rec.ID}, messages.RetryFile)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		return c.JSON(http.StatusAccepted, &idResult{ID: rec.ID})
	}
}

func createNotification(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("createNotification method")()
		ctx := c.Request().Context()
		var inp config.NotificationConfig
		if err := c.Bind(&inp); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't read input")
		}
		vRes := data.Validator.ValidateNotification(&inp)
		if !vRes.Valid {
			return c.JSON(http.StatusBadRequest, vRes)
		}
		n := &persistence.NotificationSink{ID: inp.ID, Type: inp.Type, Name: inp.Name,
			Config: inp.Config, Conditions: inp.Conditions, Active: inp.Active, Created: time.Now()}
		if err := data.DB.InsertNotificationSink(ctx, n); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		return c.JSON(http.StatusOK, &idResult{ID: n.ID})
	}
}

func listNotifications(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		res, err := data.DB.ListActiveNotificationSinks(c.Request().Context())
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		return c.JSON(http.StatusOK, res)
	}
}

func deleteNotification(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		if err := data.DB.DeleteNotificationSink(c.Request().Context(), c.Param("id")); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusBadRequest, "can't delete notification")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	}}

func subscribeHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return err
		}
		defer ws.Close()

		return data.WSHandler.HandleConnection(ws)
	}
}
