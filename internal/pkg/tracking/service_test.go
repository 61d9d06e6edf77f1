package tracking

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/salescope/ingest/internal/pkg/persistence"
	"github.com/salescope/ingest/internal/pkg/status"
	"github.com/salescope/ingest/internal/pkg/test"
	"github.com/salescope/ingest/internal/pkg/test/mocks"
	"github.com/salescope/ingest/internal/pkg/utils"
)

var (
	dbMock *mocks.DB
	srv    *Service
)

func initTest(t *testing.T) {
	t.Helper()
	dbMock = &mocks.DB{}
	var err error
	srv, err = NewService(dbMock)
	require.Nil(t, err)
	srv.now = func() time.Time { return time.Date(2023, 4, 5, 10, 0, 0, 0, time.UTC) }
	dbMock.On("UpdateFileRecord", mock.Anything, mock.Anything).Return(nil)
}

func rec(st status.File) *persistence.FileRecord {
	return &persistence.FileRecord{ID: "r1", JobID: "j1", FileName: "a.mp3", FileSize: 1000,
		Status: st.String(), Created: time.Date(2023, 4, 5, 9, 0, 0, 0, time.UTC)}
}

func TestUpdateStatus(t *testing.T) {
	initTest(t)
	dbMock.On("LoadFileRecord", mock.Anything, "r1").Return(rec(status.Discovered), nil)
	res, err := srv.UpdateStatus(test.Ctx(t), "r1", status.Queued, nil)
	require.Nil(t, err)
	assert.Equal(t, status.Queued.String(), res.Status)
	assert.False(t, res.StartedAt.Valid)
	assert.False(t, res.CompletedAt.Valid)
}

func TestUpdateStatus_FailTransition(t *testing.T) {
	initTest(t)
	dbMock.On("LoadFileRecord", mock.Anything, "r1").Return(rec(status.Completed), nil)
	_, err := srv.UpdateStatus(test.Ctx(t), "r1", status.Processing, nil)
	var tErr *status.InvalidTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, status.Completed, tErr.From)
	// no save on rejected transition
	dbMock.AssertNotCalled(t, "UpdateFileRecord", mock.Anything, mock.Anything)
}

func TestUpdateStatus_StampsStart(t *testing.T) {
	initTest(t)
	dbMock.On("LoadFileRecord", mock.Anything, "r1").Return(rec(status.Queued), nil)
	res, err := srv.UpdateStatus(test.Ctx(t), "r1", status.Processing, nil)
	require.Nil(t, err)
	assert.True(t, res.StartedAt.Valid)
	assert.Equal(t, srv.now(), res.StartedAt.Time)
}

func TestUpdateStatus_KeepsFirstStart(t *testing.T) {
	initTest(t)
	r := rec(status.Retrying)
	first := time.Date(2023, 4, 5, 8, 0, 0, 0, time.UTC)
	r.StartedAt = utils.ToSQLTime(first)
	dbMock.On("LoadFileRecord", mock.Anything, "r1").Return(r, nil)
	res, err := srv.UpdateStatus(test.Ctx(t), "r1", status.Processing, nil)
	require.Nil(t, err)
	assert.Equal(t, first, res.StartedAt.Time)
}

func TestUpdateStatus_StampsCompleted(t *testing.T) {
	initTest(t)
	for _, to := range []status.File{status.Completed, status.Failed} {
		dbMock.ExpectedCalls = nil
		dbMock.On("UpdateFileRecord", mock.Anything, mock.Anything).Return(nil)
		dbMock.On("LoadFileRecord", mock.Anything, "r1").Return(rec(status.Processing), nil)
		res, err := srv.UpdateStatus(test.Ctx(t), "r1", to, nil)
		require.Nil(t, err)
		assert.True(t, res.CompletedAt.Valid, to.String())
	}
}

func TestUpdateStatus_AppliesExtra(t *testing.T) {
	initTest(t)
	dbMock.On("LoadFileRecord", mock.Anything, "r1").Return(rec(status.Processing), nil)
	res, err := srv.UpdateStatus(test.Ctx(t), "r1", status.Retrying,
		&Update{ErrorCode: status.ECProcessingError, ErrorMessage: "olia err", IncrementRetry: true})
	require.Nil(t, err)
	assert.Equal(t, status.ECProcessingError.String(), res.ErrorCode.String)
	assert.Equal(t, "olia err", res.ErrorMessage.String)
	assert.Equal(t, int32(1), res.RetryCount)
}

func TestRetryFile(t *testing.T) {
	initTest(t)
	r := rec(status.Failed)
	r.ErrorCode = utils.ToSQLStr(status.ECMaxRetriesExceeded.String())
	r.ErrorMessage = utils.ToSQLStr("olia err")
	r.CompletedAt = utils.ToSQLTime(time.Now())
	dbMock.On("LoadFileRecord", mock.Anything, "r1").Return(r, nil)
	res, err := srv.RetryFile(test.Ctx(t), "r1")
	require.Nil(t, err)
	assert.Equal(t, status.Retrying.String(), res.Status)
	assert.False(t, res.ErrorCode.Valid)
	assert.False(t, res.ErrorMessage.Valid)
	assert.False(t, res.CompletedAt.Valid)
}

func TestRetryFile_FailNotFailed(t *testing.T) {
	initTest(t)
	dbMock.On("LoadFileRecord", mock.Anything, "r1").Return(rec(status.Processing), nil)
	_, err := srv.RetryFile(test.Ctx(t), "r1")
	var tErr *status.InvalidTransitionError
	assert.ErrorAs(t, err, &tErr)
}

func TestJobStats(t *testing.T) {
	initTest(t)
	start := time.Date(2023, 4, 5, 9, 0, 0, 0, time.UTC)
	recs := []*persistence.FileRecord{
		{ID: "r1", JobID: "j1", FileSize: 1000, Status: status.Completed.String(),
			StartedAt: utils.ToSQLTime(start), CompletedAt: utils.ToSQLTime(start.Add(time.Second * 10))},
		{ID: "r2", JobID: "j1", FileSize: 3000, Status: status.Completed.String(), RetryCount: 2,
			StartedAt: utils.ToSQLTime(start), CompletedAt: utils.ToSQLTime(start.Add(time.Second * 20))},
		{ID: "r3", JobID: "j1", FileSize: 2000, Status: status.Failed.String(), RetryCount: 3},
		{ID: "r4", JobID: "j1", FileSize: 2000, Status: status.Skipped.String()},
	}
	dbMock.On("ListFileRecords", mock.Anything, "j1").Return(recs, nil)
	res, err := srv.JobStats(test.Ctx(t), "j1")
	require.Nil(t, err)
	assert.Equal(t, int32(4), res.Total)
	assert.Equal(t, int32(2), res.Counts[status.Completed.String()])
	assert.Equal(t, int32(1), res.Counts[status.Failed.String()])
	assert.Equal(t, int32(1), res.Counts[status.Skipped.String()])
	assert.InDelta(t, 2000, res.AvgFileSize, 0.001)
	assert.InDelta(t, 15, res.AvgLatencySecs, 0.001)
	assert.Equal(t, int32(5), res.RetryTotal)
	assert.InDelta(t, 2.0/3.0, res.SuccessRate, 0.001)
}

func TestJobStats_Empty(t *testing.T) {
	initTest(t)
	dbMock.On("ListFileRecords", mock.Anything, "j1").Return(nil, nil)
	res, err := srv.JobStats(test.Ctx(t), "j1")
	require.Nil(t, err)
	assert.Equal(t, int32(0), res.Total)
	assert.InDelta(t, 0, res.SuccessRate, 0.001)
}

func TestTimeline(t *testing.T) {
	initTest(t)
	r := rec(status.Failed)
	r.RetryCount = 2
	r.StartedAt = utils.ToSQLTime(r.Created.Add(time.Minute))
	r.CompletedAt = utils.ToSQLTime(r.Created.Add(time.Minute * 5))
	r.ErrorCode = utils.ToSQLStr(status.ECMaxRetriesExceeded.String())
	dbMock.On("LoadFileRecord", mock.Anything, "r1").Return(r, nil)
	res, err := srv.Timeline(test.Ctx(t), "r1")
	require.Nil(t, err)
	require.Equal(t, 5, len(res))
	assert.Equal(t, "discovered", res[0].Event)
	assert.Contains(t, res[len(res)-1].Event, "failed")
	for i := 1; i < len(res); i++ {
		assert.False(t, res[i].At.Before(res[i-1].At))
	}
}

func TestNewService_Fail(t *testing.T) {
	_, err := NewService(nil)
	assert.NotNil(t, err)
}

func TestUpdateStatus_FailDB(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadFileRecord", mock.Anything, "r1").Return(nil, fmt.Errorf("olia err"))
	_, err := srv.UpdateStatus(test.Ctx(t), "r1", status.Queued, nil)
	assert.NotNil(t, err)
}
