package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
	tapi "github.com/salescope/ingest/internal/pkg/transcriber/api"
)

// Client communicates with the transcription service
type Client struct {
	httpclient *http.Client
	url        string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates a transcriber client
func NewClient(url string) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("no url")
	}
	return &Client{url: url, timeout: time.Minute * 30,
		httpclient: &http.Client{Transport: newTransport()},
		backoff:    newSimpleBackoff}, nil
}

// Transcribe uploads the audio file and returns its transcription
func (sp *Client) Transcribe(ctx context.Context, localPath string) (*tapi.Transcription, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("can't open '%s': %w", localPath, err)
	}
	defer f.Close()
	part, err := writer.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return nil, fmt.Errorf("can't add file to request: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("can't add file content to request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("can't close form: %w", err)
	}
	data := body.Bytes()

	return goapp.InvokeWithBackoff(ctx, func() (*tapi.Transcription, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodPost, sp.url, bytes.NewReader(data))
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req = req.WithContext(ctx)
		goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			return nil, goapp.IsRetryableCode(resp.StatusCode), err
		}
		res := &tapi.Transcription{}
		if err := json.NewDecoder(resp.Body).Decode(res); err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't unmarshal: %w", err)
		}
		return res, false, nil
	}, sp.backoff())
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	res.InitialInterval = time.Second * 2
	res.MaxElapsedTime = time.Minute
	return res
}

func newTransport() http.RoundTripper {
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 20
	res.MaxIdleConnsPerHost = 5
	return res
}
