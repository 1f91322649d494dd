package adapters

import (
	"context"
	"fmt"
	"net/smtp"
	"time"
)

// SMTPConfig holds the credentials an Email adapter needs; a zero-value
// Host means the adapter is not configured.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Email delivers rendered content as plain-text mail over SMTP.
type Email struct {
	name string
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmail returns an Email adapter registered under name.
func NewEmail(name string, cfg SMTPConfig) *Email {
	return &Email{name: name, cfg: cfg, send: smtp.SendMail}
}

func (e *Email) Name() string { return e.name }

func (e *Email) IsEnabled(ctx context.Context) bool { return e.cfg.Host != "" }

func (e *Email) Validate(ctx context.Context) (bool, string) {
	if e.cfg.Host == "" {
		return false, "not_configured"
	}
	if e.cfg.From == "" {
		return false, "invalid_argument"
	}
	return true, ""
}

func (e *Email) Execute(execCtx ExecutionContext) Receipt {
	now := time.Now().UTC()
	if e.cfg.Host == "" {
		return Receipt{Kind: ReceiptSkipped, Adapter: e.name, ActionID: execCtx.ActionID, Reason: "not_configured", At: now}
	}
	if len(execCtx.Routing) == 0 {
		return Receipt{Kind: ReceiptFailed, Adapter: e.name, ActionID: execCtx.ActionID, Reason: "invalid_argument", At: now}
	}

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}

	msg := []byte(fmt.Sprintf("Subject: %s\r\n\r\n%s\r\n", execCtx.Channel, execCtx.Content))

	if err := e.send(addr, auth, e.cfg.From, execCtx.Routing, msg); err != nil {
		if execCtx.Context.Err() != nil {
			return Receipt{Kind: ReceiptFailed, Adapter: e.name, ActionID: execCtx.ActionID, Reason: "cancelled", At: now}
		}
		return Receipt{Kind: ReceiptFailed, Adapter: e.name, ActionID: execCtx.ActionID, Reason: "transient_error", At: now}
	}

	return Receipt{
		Kind:       ReceiptOK,
		Adapter:    e.name,
		ActionID:   execCtx.ActionID,
		DeliveryID: fmt.Sprintf("%s-%d", e.name, now.UnixNano()),
		At:         now,
	}
}
