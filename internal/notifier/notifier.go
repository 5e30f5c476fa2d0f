// Package notifier tells operators when a command starts and finishes.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/smtp"
	"strconv"
	"time"

	"github.com/jordan-wright/email"
)

// Kind is the lifecycle point an event reports
type Kind string

const (
	KindStarted   Kind = "started"
	KindCompleted Kind = "completed"
)

// Event describes one command run
type Event struct {
	Kind    Kind      `json:"kind"`
	Command string    `json:"command"`
	Vault   string    `json:"vault,omitempty"`
	RunID   string    `json:"run_id"`
	Summary string    `json:"summary,omitempty"`
	Time    time.Time `json:"time"`
}

// Subject is a one line description of the event
func (e Event) Subject() string {
	if e.Vault == "" {
		return fmt.Sprintf("[vaulty] %s %s", e.Command, e.Kind)
	}
	return fmt.Sprintf("[vaulty] %s %s: %s", e.Command, e.Kind, e.Vault)
}

// Notifier delivers events
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Nop drops every event
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Multi delivers to every notifier and joins their errors
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MailSettings configures EmailNotifier
type MailSettings struct {
	Host     string
	Port     int
	Sender   string
	Receiver string
	Password string
}

// EmailNotifier sends one plain text mail per event
type EmailNotifier struct {
	settings MailSettings
	send     func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewEmailNotifier creates a notifier sending through an SMTP server with PLAIN auth
func NewEmailNotifier(settings MailSettings) *EmailNotifier {
	return &EmailNotifier{
		settings: settings,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

func (n *EmailNotifier) Notify(_ context.Context, ev Event) error {
	e := email.NewEmail()
	e.From = n.settings.Sender
	e.To = []string{n.settings.Receiver}
	e.Subject = ev.Subject()
	e.Text = []byte(body(ev))

	addr := n.settings.Host + ":" + strconv.Itoa(n.settings.Port)
	auth := smtp.PlainAuth("", n.settings.Sender, n.settings.Password, n.settings.Host)

	if err := n.send(e, addr, auth); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", n.settings.Receiver, err)
	}
	return nil
}

func body(ev Event) string {
	text := fmt.Sprintf("Command: %s\nRun: %s\nTime: %s\n", ev.Command, ev.RunID, ev.Time.Format(time.RFC3339))
	if ev.Vault != "" {
		text += "Vault: " + ev.Vault + "\n"
	}
	if ev.Summary != "" {
		text += "\n" + ev.Summary + "\n"
	}
	return text
}

// Publisher sends a message body to a broker
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// AMQPNotifier publishes events as JSON
type AMQPNotifier struct {
	publisher Publisher
}

// NewAMQPNotifier creates a notifier publishing through p
func NewAMQPNotifier(p Publisher) *AMQPNotifier {
	return &AMQPNotifier{publisher: p}
}

func (n *AMQPNotifier) Notify(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return n.publisher.PublishWithRetry(ctx, b, "application/json")
}
