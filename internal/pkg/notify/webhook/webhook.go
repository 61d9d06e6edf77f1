package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
	"github.com/salescope/ingest/internal/pkg/provider"
)

// Notifier delivers events as JSON POSTs to a configured URL
type Notifier struct {
	httpclient *http.Client
	url        string
	backoffF   func() backoff.BackOff
}

// NewNotifier creates the instance
func NewNotifier() *Notifier {
	return &Notifier{httpclient: &http.Client{Timeout: time.Second * 20},
		backoffF: newSimpleBackoff}
}

// New returns a fresh unconfigured copy, used by the provider factory
func (s *Notifier) New() provider.Notifier {
	return NewNotifier()
}

// Type implements provider.Notifier
func (s *Notifier) Type() string {
	return "webhook"
}

// ValidateConfig implements provider.Notifier
func (s *Notifier) ValidateConfig(cfg map[string]string) error {
	u := cfg["url"]
	if u == "" {
		return fmt.Errorf("no url")
	}
	pu, err := url.Parse(u)
	if err != nil || pu.Scheme == "" || pu.Host == "" {
		return fmt.Errorf("malformed url '%s'", u)
	}
	return nil
}

// TestConnection posts a test event
func (s *Notifier) TestConnection(ctx context.Context, cfg map[string]string) error {
	if err := s.ValidateConfig(cfg); err != nil {
		return err
	}
	return post(ctx, s.httpclient, cfg["url"],
		&provider.Event{Condition: "test", Message: "connectivity test", At: time.Now()})
}

// Configure implements provider.Notifier
func (s *Notifier) Configure(cfg map[string]string) error {
	if err := s.ValidateConfig(cfg); err != nil {
		return err
	}
	s.url = cfg["url"]
	return nil
}

// SendNotification posts the event, retrying transient failures
func (s *Notifier) SendNotification(ctx context.Context, ev *provider.Event) error {
	if s.url == "" {
		return fmt.Errorf("not configured")
	}
	op := func() error {
		return post(ctx, s.httpclient, s.url, ev)
	}
	if err := backoff.Retry(op, backoff.WithContext(s.backoffF(), ctx)); err != nil {
		return fmt.Errorf("can't deliver webhook: %w", err)
	}
	goapp.Log.Debug().Str("condition", ev.Condition).Str("url", s.url).Msg("webhook sent")
	return nil
}

func post(ctx context.Context, cl *http.Client, url string, ev *provider.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("can't marshal event: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := cl.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err = fmt.Errorf("webhook returned %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	return nil
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	res.InitialInterval = time.Second
	res.MaxElapsedTime = time.Second * 30
	return res
}
