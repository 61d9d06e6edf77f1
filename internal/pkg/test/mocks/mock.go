package mocks

import (
	"context"

	"github.com/airenas/async-api/pkg/messages"
	"github.com/stretchr/testify/mock"

	"github.com/salescope/ingest/internal/pkg/persistence"
	"github.com/salescope/ingest/internal/pkg/provider"
	"github.com/salescope/ingest/internal/pkg/scorer"
	tapi "github.com/salescope/ingest/internal/pkg/transcriber/api"
)

// DB is postgres DB mock
type DB struct{ mock.Mock }

func (m *DB) InsertFolder(ctx context.Context, f *persistence.Folder) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}
func (m *DB) LoadFolder(ctx context.Context, id string) (*persistence.Folder, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Folder](args.Get(0)), args.Error(1)
}
func (m *DB) ListFolders(ctx context.Context) ([]*persistence.Folder, error) {
	args := m.Called(ctx)
	return to[[]*persistence.Folder](args.Get(0)), args.Error(1)
}
func (m *DB) UpdateFolder(ctx context.Context, f *persistence.Folder) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}
func (m *DB) DeleteFolder(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *DB) InsertJob(ctx context.Context, j *persistence.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}
func (m *DB) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Job](args.Get(0)), args.Error(1)
}
func (m *DB) ListJobs(ctx context.Context, folderID string) ([]*persistence.Job, error) {
	args := m.Called(ctx, folderID)
	return to[[]*persistence.Job](args.Get(0)), args.Error(1)
}
func (m *DB) UpdateJob(ctx context.Context, j *persistence.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}
func (m *DB) InsertFileRecord(ctx context.Context, r *persistence.FileRecord) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}
func (m *DB) LoadFileRecord(ctx context.Context, id string) (*persistence.FileRecord, error) {
	args := m.Called(ctx, id)
	return to[*persistence.FileRecord](args.Get(0)), args.Error(1)
}
func (m *DB) UpdateFileRecord(ctx context.Context, r *persistence.FileRecord) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}
func (m *DB) ListFileRecords(ctx context.Context, jobID string) ([]*persistence.FileRecord, error) {
	args := m.Called(ctx, jobID)
	return to[[]*persistence.FileRecord](args.Get(0)), args.Error(1)
}
func (m *DB) InsertNotificationSink(ctx context.Context, n *persistence.NotificationSink) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}
func (m *DB) ListActiveNotificationSinks(ctx context.Context) ([]*persistence.NotificationSink, error) {
	args := m.Called(ctx)
	return to[[]*persistence.NotificationSink](args.Get(0)), args.Error(1)
}
func (m *DB) DeleteNotificationSink(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *DB) InsertCall(ctx context.Context, c *persistence.Call) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}
func (m *DB) Live(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Sender is queue sender mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg messages.Message, queue string) error {
	args := m.Called(ctx, msg, queue)
	return args.Error(0)
}

// Storage is storage provider mock
type Storage struct{ mock.Mock }

func (m *Storage) Connect(ctx context.Context, cfg map[string]string) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}
func (m *Storage) ListFiles(ctx context.Context, path string) ([]provider.FileInfo, error) {
	args := m.Called(ctx, path)
	return to[[]provider.FileInfo](args.Get(0)), args.Error(1)
}
func (m *Storage) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	args := m.Called(ctx, remotePath, localPath)
	return args.Error(0)
}
func (m *Storage) ValidateConfig(cfg map[string]string) error {
	args := m.Called(cfg)
	return args.Error(0)
}
func (m *Storage) TestConnection(ctx context.Context, cfg map[string]string) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}
func (m *Storage) Type() string {
	args := m.Called()
	return args.String(0)
}

// Monitor is monitor provider mock
type Monitor struct{ mock.Mock }

func (m *Monitor) StartMonitoring(ctx context.Context, cfg map[string]string) (string, error) {
	args := m.Called(ctx, cfg)
	return args.String(0), args.Error(1)
}
func (m *Monitor) StopMonitoring(handle string) error {
	args := m.Called(handle)
	return args.Error(0)
}
func (m *Monitor) ScanForFiles(ctx context.Context, cfg map[string]string) ([]provider.FileInfo, error) {
	args := m.Called(ctx, cfg)
	return to[[]provider.FileInfo](args.Get(0)), args.Error(1)
}
func (m *Monitor) ValidateConfig(cfg map[string]string) error {
	args := m.Called(cfg)
	return args.Error(0)
}
func (m *Monitor) TestConnection(ctx context.Context, cfg map[string]string) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}
func (m *Monitor) Type() string {
	args := m.Called()
	return args.String(0)
}

// Notifier is notification provider mock
type Notifier struct{ mock.Mock }

func (m *Notifier) Configure(cfg map[string]string) error {
	args := m.Called(cfg)
	return args.Error(0)
}
func (m *Notifier) SendNotification(ctx context.Context, ev *provider.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}
func (m *Notifier) ValidateConfig(cfg map[string]string) error {
	args := m.Called(cfg)
	return args.Error(0)
}
func (m *Notifier) TestConnection(ctx context.Context, cfg map[string]string) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}
func (m *Notifier) Type() string {
	args := m.Called()
	return args.String(0)
}

// Transcriber is transcriber client mock
type Transcriber struct{ mock.Mock }

func (m *Transcriber) Transcribe(ctx context.Context, localPath string) (*tapi.Transcription, error) {
	args := m.Called(ctx, localPath)
	return to[*tapi.Transcription](args.Get(0)), args.Error(1)
}

// Scorer is scorer client mock
type Scorer struct{ mock.Mock }

func (m *Scorer) Score(ctx context.Context, text string) (*scorer.Result, error) {
	args := m.Called(ctx, text)
	return to[*scorer.Result](args.Get(0)), args.Error(1)
}

func to[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
