package transcriber

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salescope/ingest/internal/pkg/test"
)

type testResp struct {
	code int
	resp string
}

type testReq struct {
	body string
	URL  string
}

func newTestReq(req *http.Request) testReq {
	b, _ := io.ReadAll(req.Body)
	return testReq{URL: req.URL.String(), body: string(b)}
}

func initTestServer(t *testing.T, rData map[string]testResp) (*Client, *[]testReq) {
	t.Helper()
	resRequest := make([]testReq, 0)
	rLock := &sync.Mutex{}
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rLock.Lock()
		defer rLock.Unlock()
		resRequest = append(resRequest, newTestReq(req))
		resp, f := rData[req.URL.String()]
		if f {
			rw.WriteHeader(resp.code)
			_, _ = rw.Write([]byte(resp.resp))
		} else {
			rw.WriteHeader(http.StatusNotFound)
		}
	}))
	cl := Client{}
	cl.httpclient = server.Client()
	cl.url = server.URL + "/transcribe"
	cl.timeout = time.Second * 5
	cl.backoff = func() backoff.BackOff {
		return &backoff.StopBackOff{}
	}
	t.Cleanup(func() { server.Close() })
	return &cl, &resRequest
}

func testFile(t *testing.T) string {
	t.Helper()
	f := filepath.Join(t.TempDir(), "a.mp3")
	require.Nil(t, os.WriteFile(f, []byte("__audio_olia__"), 0644))
	return f
}

func TestTranscribe(t *testing.T) {
	cl, tReq := initTestServer(t, map[string]testResp{
		"/transcribe": {code: 200, resp: `{"text":"labas","durationSeconds":12.5,"wordCount":1}`}})

	r, err := cl.Transcribe(test.Ctx(t), testFile(t))

	require.Nil(t, err)
	assert.Equal(t, "labas", r.Text)
	assert.Equal(t, 12.5, r.DurationSeconds)
	assert.Equal(t, 1, r.WordCount)
	require.Equal(t, 1, len(*tReq))
}

func TestTranscribe_PassFile(t *testing.T) {
	cl, tReq := initTestServer(t, map[string]testResp{
		"/transcribe": {code: 200, resp: `{"text":"labas"}`}})

	_, err := cl.Transcribe(test.Ctx(t), testFile(t))

	require.Nil(t, err)
	require.Equal(t, 1, len(*tReq))
	bs := (*tReq)[0].body
	assert.Contains(t, bs, "a.mp3")
	assert.Contains(t, bs, "__audio_olia__")
}

func TestTranscribe_FailNoFile(t *testing.T) {
	cl, tReq := initTestServer(t, map[string]testResp{})

	_, err := cl.Transcribe(test.Ctx(t), "/olia/no-file.mp3")

	assert.NotNil(t, err)
	assert.Equal(t, 0, len(*tReq))
}

func TestTranscribe_FailCode(t *testing.T) {
	cl, tReq := initTestServer(t, map[string]testResp{
		"/transcribe": {code: 400, resp: "err"}})

	_, err := cl.Transcribe(test.Ctx(t), testFile(t))

	assert.NotNil(t, err)
	assert.Equal(t, 1, len(*tReq))
}

func TestTranscribe_FailJSON(t *testing.T) {
	cl, tReq := initTestServer(t, map[string]testResp{
		"/transcribe": {code: 200, resp: "olia"}})

	_, err := cl.Transcribe(test.Ctx(t), testFile(t))

	assert.NotNil(t, err)
	assert.Equal(t, 1, len(*tReq))
}

func TestTranscribe_Backoff(t *testing.T) {
	cl, tReq := initTestServer(t, map[string]testResp{
		"/transcribe": {code: http.StatusTooManyRequests, resp: "err"}})
	cl.backoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
	}

	_, err := cl.Transcribe(test.Ctx(t), testFile(t))

	assert.NotNil(t, err)
	assert.Equal(t, 4, len(*tReq))
}

func TestTranscribe_NoBackoffOn400(t *testing.T) {
	cl, tReq := initTestServer(t, map[string]testResp{
		"/transcribe": {code: http.StatusBadRequest, resp: "err"}})
	cl.backoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
	}

	_, err := cl.Transcribe(test.Ctx(t), testFile(t))

	assert.NotNil(t, err)
	assert.Equal(t, 1, len(*tReq))
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://olia")
	assert.Nil(t, err)
	assert.NotNil(t, c)
	_, err = NewClient("")
	assert.NotNil(t, err)
}
