package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jordan-wright/email"
	"github.com/salescope/ingest/internal/pkg/provider"
)

// Sender delivers a prepared email
type Sender interface {
	Send(e *email.Email, addr string, auth smtp.Auth) error
}

type smtpSender struct{}

func (s smtpSender) Send(e *email.Email, addr string, auth smtp.Auth) error {
	return e.Send(addr, auth)
}

// Notifier delivers events as emails over SMTP
type Notifier struct {
	sender Sender
	cfg    map[string]string
}

// NewNotifier creates the instance
func NewNotifier() *Notifier {
	return &Notifier{sender: smtpSender{}}
}

// New returns a fresh unconfigured copy, used by the provider factory
func (s *Notifier) New() provider.Notifier {
	return &Notifier{sender: s.sender}
}

// Type implements provider.Notifier
func (s *Notifier) Type() string {
	return "email"
}

// ValidateConfig implements provider.Notifier
func (s *Notifier) ValidateConfig(cfg map[string]string) error {
	for _, k := range []string{"to", "host", "port"} {
		if cfg[k] == "" {
			return fmt.Errorf("no %s", k)
		}
	}
	if _, err := strconv.Atoi(cfg["port"]); err != nil {
		return fmt.Errorf("wrong port '%s'", cfg["port"])
	}
	return nil
}

// TestConnection dials the SMTP endpoint
func (s *Notifier) TestConnection(ctx context.Context, cfg map[string]string) error {
	if err := s.ValidateConfig(cfg); err != nil {
		return err
	}
	addr := net.JoinHostPort(cfg["host"], cfg["port"])
	c, err := net.DialTimeout("tcp", addr, time.Second*10)
	if err != nil {
		return fmt.Errorf("can't reach smtp at '%s': %w", addr, err)
	}
	return c.Close()
}

// Configure implements provider.Notifier
func (s *Notifier) Configure(cfg map[string]string) error {
	if err := s.ValidateConfig(cfg); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

// SendNotification sends the event as an email
func (s *Notifier) SendNotification(ctx context.Context, ev *provider.Event) error {
	if s.cfg == nil {
		return fmt.Errorf("not configured")
	}
	e := email.NewEmail()
	e.From = s.cfg["from"]
	if e.From == "" {
		e.From = "ingest@" + s.cfg["host"]
	}
	e.To = []string{s.cfg["to"]}
	e.Subject = fmt.Sprintf("Sales call ingest: %s", ev.Condition)
	e.Text = []byte(formatBody(ev))
	addr := net.JoinHostPort(s.cfg["host"], s.cfg["port"])
	var auth smtp.Auth
	if s.cfg["user"] != "" {
		auth = smtp.PlainAuth("", s.cfg["user"], s.cfg["pass"], s.cfg["host"])
	}
	if err := s.sender.Send(e, addr, auth); err != nil {
		return fmt.Errorf("can't send email: %w", err)
	}
	goapp.Log.Debug().Str("condition", ev.Condition).Str("to", s.cfg["to"]).Msg("email sent")
	return nil
}

func formatBody(ev *provider.Event) string {
	res := fmt.Sprintf("Event:   %s\nAt:      %s\n", ev.Condition, ev.At.Format(time.RFC3339))
	if ev.JobID != "" {
		res += fmt.Sprintf("Job:     %s\n", ev.JobID)
	}
	if ev.FolderID != "" {
		res += fmt.Sprintf("Folder:  %s\n", ev.FolderID)
	}
	if ev.Message != "" {
		res += fmt.Sprintf("Message: %s\n", ev.Message)
	}
	for k, v := range ev.Data {
		res += fmt.Sprintf("%s: %s\n", k, v)
	}
	return res
}
