// Package delivery emails per-host scan reports.
package delivery

//go:generate mockgen -destination=mocks/mock_sender.go -package=mocks github.com/anstrom/bannerscan/internal/delivery Sender

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/anstrom/bannerscan/internal/errors"
	"github.com/anstrom/bannerscan/internal/logging"
	"github.com/anstrom/bannerscan/internal/report"
	"github.com/anstrom/bannerscan/internal/scanning"
)

// Sender transmits a composed message.
type Sender interface {
	Send(ctx context.Context, msg *gomail.Message) error
}

// Settings holds SMTP account and addressing settings.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// SMTPSender sends messages through a gomail dialer.
type SMTPSender struct {
	dialer *gomail.Dialer
}

// NewSMTPSender creates a sender for the configured SMTP server.
func NewSMTPSender(s Settings) *SMTPSender {
	return &SMTPSender{dialer: gomail.NewDialer(s.Host, s.Port, s.Username, s.Password)}
}

// Send dials the server and sends msg. gomail does not take a context, so
// cancellation is only honored before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg *gomail.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.dialer.DialAndSend(msg)
}

// Mailer composes one message per host result and hands it to a Sender.
type Mailer struct {
	settings Settings
	sender   Sender
	logger   *logging.Logger
}

// NewMailer creates a Mailer. A nil sender uses SMTPSender.
func NewMailer(settings Settings, sender Sender, logger *logging.Logger) *Mailer {
	if sender == nil {
		sender = NewSMTPSender(settings)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Mailer{
		settings: settings,
		sender:   sender,
		logger:   logger.WithComponent("delivery"),
	}
}

// Deliver emails the summary of result with artifacts attached.
func (m *Mailer) Deliver(ctx context.Context, result *scanning.HostScanResult, artifacts []report.Artifact) error {
	msg := m.Compose(result, artifacts)
	if err := m.sender.Send(ctx, msg); err != nil {
		return errors.WrapDeliveryError(result.Host, err)
	}
	m.logger.InfoScan("Report delivered", result.Host,
		"recipients", len(m.settings.To),
		"attachments", len(artifacts))
	return nil
}

// Compose builds the message without sending it.
func (m *Mailer) Compose(result *scanning.HostScanResult, artifacts []report.Artifact) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.settings.From)
	msg.SetHeader("To", m.settings.To...)
	msg.SetHeader("Subject", Subject(result))
	msg.SetBody("text/plain", Body(result, artifacts))
	for _, a := range artifacts {
		msg.Attach(a.Path)
	}
	return msg
}

// Subject returns the message subject for result.
func Subject(result *scanning.HostScanResult) string {
	return fmt.Sprintf("Port scan report for %s: %d open ports", result.DisplayName(), len(result.Open()))
}

// Body returns the plain-text summary for result.
func Body(result *scanning.HostScanResult, artifacts []report.Artifact) string {
	var b strings.Builder
	counts := result.Counts()

	fmt.Fprintf(&b, "Host: %s\n", result.DisplayName())
	fmt.Fprintf(&b, "Ports: %s\n", result.Range)
	fmt.Fprintf(&b, "Started: %s\n", result.StartTime.Format(time.RFC1123))
	fmt.Fprintf(&b, "Duration: %s\n", result.Duration.Round(time.Millisecond))
	if result.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", result.RunID)
	}
	fmt.Fprintf(&b, "\n%d open, %d closed, %d error\n", counts.Open, counts.Closed, counts.Error)

	open := result.Open()
	if len(open) > 0 {
		b.WriteString("\nOpen ports:\n")
		for _, p := range open {
			fmt.Fprintf(&b, "  %5d  %-10s  %s\n", p.Port, p.Service, p.Banner)
		}
	}

	if len(artifacts) > 0 {
		b.WriteString("\nAttached:\n")
		for _, a := range artifacts {
			fmt.Fprintf(&b, "  %s (%s)\n", filepath.Base(a.Path), a.Format)
		}
	}
	return b.String()
}
