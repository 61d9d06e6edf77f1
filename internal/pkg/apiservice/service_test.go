package apiservice

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/salescope/ingest/internal/pkg/config"
	"github.com/salescope/ingest/internal/pkg/messages"
	"github.com/salescope/ingest/internal/pkg/persistence"
	"github.com/salescope/ingest/internal/pkg/postgres"
	"github.com/salescope/ingest/internal/pkg/provider"
	"github.com/salescope/ingest/internal/pkg/statusservice"
	"github.com/salescope/ingest/internal/pkg/test"
	"github.com/salescope/ingest/internal/pkg/test/mocks"
	"github.com/salescope/ingest/internal/pkg/tracking"
)

var (
	dbMock      *mocks.DB
	senderMock  *mocks.Sender
	trackerMock *mockTracker
	wsMock      *mockWSConnHandler
	storageMock *mocks.Storage
	monitorMock *mocks.Monitor
	tData       *Data
	tEcho       *echo.Echo
)

func initTest(t *testing.T) {
	t.Helper()
	dbMock = &mocks.DB{}
	senderMock = &mocks.Sender{}
	trackerMock = &mockTracker{}
	wsMock = &mockWSConnHandler{}
	storageMock = &mocks.Storage{}
	monitorMock = &mocks.Monitor{}
	storageMock.On("Type").Return("local")
	storageMock.On("ValidateConfig", mock.Anything).Return(nil)
	storageMock.On("TestConnection", mock.Anything, mock.Anything).Return(nil)
	storageMock.On("Connect", mock.Anything, mock.Anything).Return(nil)
	monitorMock.On("Type").Return("poll")
	monitorMock.On("ValidateConfig", mock.Anything).Return(nil)
	monitorMock.On("TestConnection", mock.Anything, mock.Anything).Return(nil)
	registry := provider.NewRegistry()
	require.Nil(t, registry.RegisterStorage(storageMock))
	require.Nil(t, registry.RegisterMonitor(monitorMock))
	factory, err := provider.NewFactory(registry)
	require.Nil(t, err)
	tData = &Data{Port: 8000, DB: dbMock, MsgSender: senderMock, Validator: config.NewValidator(),
		Factory: factory, Tracker: trackerMock, WSHandler: wsMock}
	tEcho = initRoutes(tData)
}

func newTestFolder(id string) *persistence.Folder {
	return &persistence.Folder{ID: id, Name: "olia", Active: true, Config: testFolderCfg(id)}
}

func testFolderCfg(id string) *config.FolderConfig {
	return &config.FolderConfig{ID: id, Name: "olia",
		Storage: &config.ProviderRef{Type: "local", Config: map[string]string{"path": "/data/in"}},
		Monitor: &config.ProviderRef{Type: "poll", Config: map[string]string{"path": "in"}},
		Processing: &config.ProcessingConfig{MaxFileSize: 10485760, AllowedExtensions: []string{".mp3"},
			MaxConcurrentFiles: 5},
	}
}

func jsonReq(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req
}

func TestWrongPath(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/invalid", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func TestWrongMethod(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodPut, "/jobs/1", nil)
	test.Code(t, tEcho, req, http.StatusMethodNotAllowed)
}

func Test_Live(t *testing.T) {
	initTest(t)
	dbMock.On("Live", mock.Anything).Return(nil)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	test.Code(t, tEcho, req, http.StatusOK)
}

func Test_Live_Fail(t *testing.T) {
	initTest(t)
	dbMock.On("Live", mock.Anything).Return(fmt.Errorf("olia err"))
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	test.Code(t, tEcho, req, http.StatusServiceUnavailable)
}

func Test_CreateFolder(t *testing.T) {
	initTest(t)
	dbMock.On("InsertFolder", mock.Anything, mock.Anything).Return(nil)
	req := jsonReq(http.MethodPost, "/folders",
		`{"name":"olia","active":true,"config":{"id":"f1","name":"olia",
		"storage":{"type":"local","config":{"path":"/data/in"}},
		"monitor":{"type":"poll","config":{}},
		"processing":{"maxFileSize":10485760,"allowedExtensions":[".mp3"],"maxConcurrentFiles":5}}}`)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[folderResult](t, resp.Result())
	assert.Equal(t, "f1", res.ID)
	assert.Equal(t, "olia", res.Name)
	dbMock.AssertCalled(t, "InsertFolder", mock.Anything, mock.Anything)
}

func Test_CreateFolder_GeneratesID(t *testing.T) {
	initTest(t)
	dbMock.On("InsertFolder", mock.Anything, mock.Anything).Return(nil)
	req := jsonReq(http.MethodPost, "/folders",
		`{"config":{"name":"olia",
		"storage":{"type":"local","config":{"path":"/data/in"}},
		"monitor":{"type":"poll","config":{}},
		"processing":{"maxFileSize":10485760,"allowedExtensions":[".mp3"],"maxConcurrentFiles":5}}}`)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[folderResult](t, resp.Result())
	assert.NotEmpty(t, res.ID)
	require.Equal(t, 1, len(res.Warnings))
}

func Test_CreateFolder_FailValidation(t *testing.T) {
	initTest(t)
	req := jsonReq(http.MethodPost, "/folders", `{"config":{"name":"olia"}}`)
	resp := test.Code(t, tEcho, req, http.StatusBadRequest)
	res := test.Decode[config.Result](t, resp.Result())
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Errors)
	dbMock.AssertNotCalled(t, "InsertFolder", mock.Anything, mock.Anything)
}

func Test_CreateFolder_FailNoConfig(t *testing.T) {
	initTest(t)
	req := jsonReq(http.MethodPost, "/folders", `{"name":"olia"}`)
	test.Code(t, tEcho, req, http.StatusBadRequest)
}

func Test_ListFolders(t *testing.T) {
	initTest(t)
	dbMock.On("ListFolders", mock.Anything).Return([]*persistence.Folder{newTestFolder("f1"), newTestFolder("f2")}, nil)
	req := httptest.NewRequest(http.MethodGet, "/folders", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[[]*folderResult](t, resp.Result())
	require.Equal(t, 2, len(res))
	assert.Equal(t, "f1", res[0].ID)
}

func Test_GetFolder(t *testing.T) {
	initTest(t)
	dbMock.On("LoadFolder", mock.Anything, "f1").Return(newTestFolder("f1"), nil)
	req := httptest.NewRequest(http.MethodGet, "/folders/f1", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[folderResult](t, resp.Result())
	assert.Equal(t, "f1", res.ID)
	require.NotNil(t, res.Config)
	assert.Equal(t, "local", res.Config.Storage.Type)
}

func Test_GetFolder_Fail(t *testing.T) {
	initTest(t)
	dbMock.On("LoadFolder", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("no rows"))
	req := httptest.NewRequest(http.MethodGet, "/folders/f1", nil)
	test.Code(t, tEcho, req, http.StatusBadRequest)
}

func Test_UpdateFolder(t *testing.T) {
	initTest(t)
	dbMock.On("LoadFolder", mock.Anything, "f1").Return(newTestFolder("f1"), nil)
	dbMock.On("UpdateFolder", mock.Anything, mock.Anything).Return(nil)
	req := jsonReq(http.MethodPut, "/folders/f1", `{"name":"new name","active":false}`)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[folderResult](t, resp.Result())
	assert.Equal(t, "new name", res.Name)
	assert.False(t, res.Active)
}

func Test_DeleteFolder(t *testing.T) {
	initTest(t)
	dbMock.On("DeleteFolder", mock.Anything, "f1").Return(nil)
	req := httptest.NewRequest(http.MethodDelete, "/folders/f1", nil)
	test.Code(t, tEcho, req, http.StatusNoContent)
}

func Test_DeleteFolder_Busy(t *testing.T) {
	initTest(t)
	dbMock.On("DeleteFolder", mock.Anything, "f1").Return(postgres.ErrFolderBusy)
	req := httptest.NewRequest(http.MethodDelete, "/folders/f1", nil)
	test.Code(t, tEcho, req, http.StatusConflict)
}

func Test_TestFolder(t *testing.T) {
	initTest(t)
	dbMock.On("LoadFolder", mock.Anything, "f1").Return(newTestFolder("f1"), nil)
	req := httptest.NewRequest(http.MethodPost, "/folders/f1/test", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[testResult](t, resp.Result())
	assert.True(t, res.Success)
}

func Test_TestFolder_FailConnection(t *testing.T) {
	initTest(t)
	dbMock.On("LoadFolder", mock.Anything, "f1").Return(newTestFolder("f1"), nil)
	storageMock.ExpectedCalls = nil
	storageMock.On("ValidateConfig", mock.Anything).Return(nil)
	storageMock.On("TestConnection", mock.Anything, mock.Anything).Return(fmt.Errorf("no dir"))
	req := httptest.NewRequest(http.MethodPost, "/folders/f1/test", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[testResult](t, resp.Result())
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no dir")
}

func Test_StartJob(t *testing.T) {
	initTest(t)
	dbMock.On("LoadFolder", mock.Anything, "f1").Return(newTestFolder("f1"), nil)
	senderMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	req := jsonReq(http.MethodPost, "/folders/f1/jobs", `{"name":"evening run"}`)
	resp := test.Code(t, tEcho, req, http.StatusAccepted)
	res := test.Decode[idResult](t, resp.Result())
	assert.NotEmpty(t, res.ID)
	require.Equal(t, 1, len(senderMock.Calls))
	msg := senderMock.Calls[0].Arguments[1].(*messages.BatchMessage)
	assert.Equal(t, res.ID, msg.ID)
	assert.Equal(t, "f1", msg.FolderID)
	assert.Equal(t, "evening run", msg.JobName)
	assert.Equal(t, messages.Batch, senderMock.Calls[0].Arguments[2])
}

func Test_StartJob_NoBody(t *testing.T) {
	initTest(t)
	dbMock.On("LoadFolder", mock.Anything, "f1").Return(newTestFolder("f1"), nil)
	senderMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	req := httptest.NewRequest(http.MethodPost, "/folders/f1/jobs", nil)
	test.Code(t, tEcho, req, http.StatusAccepted)
}

func Test_StartJob_FailNoFolder(t *testing.T) {
	initTest(t)
	dbMock.On("LoadFolder", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("no rows"))
	req := httptest.NewRequest(http.MethodPost, "/folders/f1/jobs", nil)
	test.Code(t, tEcho, req, http.StatusBadRequest)
	senderMock.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func Test_ListJobs(t *testing.T) {
	initTest(t)
	dbMock.On("ListJobs", mock.Anything, "f1").Return([]*persistence.Job{
		{ID: "j1", Status: "completed", TotalFiles: 3}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/folders/f1/jobs", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[[]*statusservice.JobState](t, resp.Result())
	require.Equal(t, 1, len(res))
	assert.Equal(t, "j1", res[0].ID)
	assert.Equal(t, int32(3), res[0].TotalFiles)
}

func Test_GetJob(t *testing.T) {
	initTest(t)
	dbMock.On("LoadJob", mock.Anything, "j1").Return(&persistence.Job{ID: "j1", Status: "running",
		TotalFiles: 3, ProcessedFiles: 1}, nil)
	trackerMock.On("JobStats", mock.Anything, "j1").Return(&tracking.Stats{Total: 3,
		Counts: map[string]int32{"completed": 1}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/jobs/j1", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[jobResult](t, resp.Result())
	assert.Equal(t, "j1", res.ID)
	require.NotNil(t, res.Stats)
	assert.Equal(t, int32(3), res.Stats.Total)
}

func Test_GetJob_Fail(t *testing.T) {
	initTest(t)
	dbMock.On("LoadJob", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("no rows"))
	req := httptest.NewRequest(http.MethodGet, "/jobs/j1", nil)
	test.Code(t, tEcho, req, http.StatusBadRequest)
}

func Test_CancelJob(t *testing.T) {
	initTest(t)
	dbMock.On("LoadJob", mock.Anything, "j1").Return(&persistence.Job{ID: "j1", Status: "running"}, nil)
	senderMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	req := httptest.NewRequest(http.MethodPost, "/jobs/j1/cancel", nil)
	test.Code(t, tEcho, req, http.StatusAccepted)
	require.Equal(t, 1, len(senderMock.Calls))
	msg := senderMock.Calls[0].Arguments[1].(*messages.JobMessage)
	assert.Equal(t, "j1", msg.ID)
	assert.Equal(t, messages.Cancel, senderMock.Calls[0].Arguments[2])
}

func Test_ListFiles(t *testing.T) {
	initTest(t)
	dbMock.On("ListFileRecords", mock.Anything, "j1").Return([]*persistence.FileRecord{
		{ID: "fr1", JobID: "j1", FileName: "a.mp3", FileSize: 5242880, Status: "completed",
			CallID: sql.NullString{String: "c1", Valid: true}},
		{ID: "fr2", JobID: "j1", FileName: "b.wav", Status: "skipped",
			ErrorCode: sql.NullString{String: "INVALID_FORMAT", Valid: true}}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/jobs/j1/files", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[[]*fileResult](t, resp.Result())
	require.Equal(t, 2, len(res))
	assert.Equal(t, "c1", res[0].CallID)
	assert.Equal(t, "INVALID_FORMAT", res[1].ErrorCode)
}

func Test_FileTimeline(t *testing.T) {
	initTest(t)
	trackerMock.On("Timeline", mock.Anything, "fr1").Return([]tracking.TimelineEvent{{Event: "discovered"}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/files/fr1/timeline", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[[]tracking.TimelineEvent](t, resp.Result())
	require.Equal(t, 1, len(res))
	assert.Equal(t, "discovered", res[0].Event)
}

func Test_RetryFile(t *testing.T) {
	initTest(t)
	dbMock.On("LoadFileRecord", mock.Anything, "fr1").Return(&persistence.FileRecord{
		ID: "fr1", JobID: "j1", Status: "failed"}, nil)
	senderMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	req := httptest.NewRequest(http.MethodPost, "/files/fr1/retry", nil)
	test.Code(t, tEcho, req, http.StatusAccepted)
	require.Equal(t, 1, len(senderMock.Calls))
	msg := senderMock.Calls[0].Arguments[1].(*messages.FileMessage)
	assert.Equal(t, "j1", msg.ID)
	assert.Equal(t, "fr1", msg.FileID)
	assert.Equal(t, messages.RetryFile, senderMock.Calls[0].Arguments[2])
}

func Test_CreateNotification(t *testing.T) {
	initTest(t)
	dbMock.On("InsertNotificationSink", mock.Anything, mock.Anything).Return(nil)
	req := jsonReq(http.MethodPost, "/notifications",
		`{"type":"webhook","name":"olia","config":{"url":"http://olia.lt/hook"},
		"conditions":["file_failed"],"isActive":true}`)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[idResult](t, resp.Result())
	assert.NotEmpty(t, res.ID)
}

func Test_CreateNotification_FailValidation(t *testing.T) {
	initTest(t)
	req := jsonReq(http.MethodPost, "/notifications",
		`{"type":"webhook","name":"olia","config":{},"conditions":["olia"]}`)
	resp := test.Code(t, tEcho, req, http.StatusBadRequest)
	res := test.Decode[config.Result](t, resp.Result())
	assert.False(t, res.Valid)
	dbMock.AssertNotCalled(t, "InsertNotificationSink", mock.Anything, mock.Anything)
}

func Test_ListNotifications(t *testing.T) {
	initTest(t)
	dbMock.On("ListActiveNotificationSinks", mock.Anything).Return([]*persistence.NotificationSink{
		{ID: "n1", Type: "webhook"}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[[]*persistence.NotificationSink](t, resp.Result())
	require.Equal(t, 1, len(res))
}

func Test_DeleteNotification(t *testing.T) {
	initTest(t)
	dbMock.On("DeleteNotificationSink", mock.Anything, "n1").Return(nil)
	req := httptest.NewRequest(http.MethodDelete, "/notifications/n1", nil)
	test.Code(t, tEcho, req, http.StatusNoContent)
}

func Test_validate(t *testing.T) {
	initTest(t)
	type args struct {
		prepare func(d *Data)
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{name: "OK", args: args{prepare: func(d *Data) {}}, wantErr: false},
		{name: "Fail DB", args: args{prepare: func(d *Data) { d.DB = nil }}, wantErr: true},
		{name: "Fail sender", args: args{prepare: func(d *Data) { d.MsgSender = nil }}, wantErr: true},
		{name: "Fail validator", args: args{prepare: func(d *Data) { d.Validator = nil }}, wantErr: true},
		{name: "Fail factory", args: args{prepare: func(d *Data) { d.Factory = nil }}, wantErr: true},
		{name: "Fail tracker", args: args{prepare: func(d *Data) { d.Tracker = nil }}, wantErr: true},
		{name: "Fail handler", args: args{prepare: func(d *Data) { d.WSHandler = nil }}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := *tData
			tt.args.prepare(&data)
			if err := validate(&data); (err != nil) != tt.wantErr {
				t.Errorf("StartWebServer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type mockTracker struct{ mock.Mock }

func (m *mockTracker) JobStats(ctx context.Context, jobID string) (*tracking.Stats, error) {
	args := m.Called(ctx, jobID)
	var res *tracking.Stats
	if args.Get(0) != nil {
		res = args.Get(0).(*tracking.Stats)
	}
	return res, args.Error(1)
}

func (m *mockTracker) Timeline(ctx context.Context, id string) ([]tracking.TimelineEvent, error) {
	args := m.Called(ctx, id)
	var res []tracking.TimelineEvent
	if args.Get(0) != nil {
		res = args.Get(0).([]tracking.TimelineEvent)
	}
	return res, args.Error(1)
}

type mockWSConnHandler struct{ mock.Mock }

func (m *mockWSConnHandler) HandleConnection(conn statusservice.WsConn) error {
	args := m.Called(conn)
	return args.Error(0)
}

func (m *mockWSConnHandler) GetConnections(id string) ([]statusservice.WsConn, bool) {
	args := m.Called(id)
	return args.Get(0).([]statusservice.WsConn), args.Bool(1)
}
