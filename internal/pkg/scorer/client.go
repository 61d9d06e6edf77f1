package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
)

// Result carries category scores for one transcript
type Result struct {
	CategoryScores map[string]float64 `json:"categoryScores"`
	OverallScore   float64            `json:"overallScore"`
	AnalysisNotes  string             `json:"analysisNotes"`
}

// Client communicates with the phrase scoring service
type Client struct {
	httpclient *http.Client
	url        string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates a scorer client
func NewClient(url string) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("no url")
	}
	return &Client{url: url, timeout: time.Minute * 5,
		httpclient: &http.Client{}, backoff: newSimpleBackoff}, nil
}

type scoreRequest struct {
	Text string `json:"text"`
}

// Score scores the transcript text
func (sp *Client) Score(ctx context.Context, text string) (*Result, error) {
	data, err := json.Marshal(scoreRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("can't marshal request: %w", err)
	}
	return goapp.InvokeWithBackoff(ctx, func() (*Result, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodPost, sp.url, bytes.NewReader(data))
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(ctx)
		goapp.Log.Debug().Str("url", req.URL.String()).Msg("call")
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
		res := &Result{}
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
