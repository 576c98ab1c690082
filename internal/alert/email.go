package alert

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"sort"
	"strings"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
	To       []string
	MinLevel types.AlertLevel // default error
}

// sendMailFunc matches smtp.SendMail.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSink mails alerts at or above MinLevel. Lower levels are dropped
// without error.
type EmailSink struct {
	cfg      EmailConfig
	auth     smtp.Auth
	sendMail sendMailFunc
}

// NewEmailSink creates a new email alert sink.
func NewEmailSink(cfg EmailConfig) (*EmailSink, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("SMTP address required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("email from and to addresses required")
	}
	if cfg.MinLevel == "" {
		cfg.MinLevel = types.AlertLevelError
	}

	s := &EmailSink{cfg: cfg, sendMail: smtp.SendMail}
	if cfg.Username != "" {
		host, _, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("parsing SMTP address: %w", err)
		}
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return s, nil
}

// Name returns the sink identifier.
func (s *EmailSink) Name() string { return "email" }

// Send mails the alert if its level passes the filter. smtp.SendMail has no
// context; the dispatcher's per-sink timeout bounds it.
func (s *EmailSink) Send(_ context.Context, alert types.Alert) error {
	if !alert.Level.AtLeast(s.cfg.MinLevel) {
		return nil
	}
	if err := s.sendMail(s.cfg.Addr, s.auth, s.cfg.From, s.cfg.To, s.message(alert)); err != nil {
		return fmt.Errorf("sending alert email: %w", err)
	}
	return nil
}

func (s *EmailSink) message(alert types.Alert) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(s.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: [%s] %s\r\n", strings.ToUpper(string(alert.Level)), alert.Title)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")

	fmt.Fprintf(&b, "%s\r\n\r\n", alert.Message)
	fmt.Fprintf(&b, "Source: %s\r\n", alert.Source)
	fmt.Fprintf(&b, "Time: %s\r\n", alert.Timestamp.Format("2006-01-02 15:04:05 MST"))
	if alert.AlertID != "" {
		fmt.Fprintf(&b, "Alert ID: %s\r\n", alert.AlertID)
	}

	keys := make([]string, 0, len(alert.Metadata))
	for k := range alert.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\r\n", k, alert.Metadata[k])
	}
	return []byte(b.String())
}
