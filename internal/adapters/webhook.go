package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Webhook posts the rendered content to a configured URL as the generic
// vehicle for any "fire an opaque HTTP side-effect" action: outbound
// webhooks proper, static-site publish hooks, and social/posting
// bridges all share this shape, since the wire details of each concrete
// third party are out of scope for the orchestrator.
type Webhook struct {
	name       string
	url        string
	httpClient *http.Client
}

// NewWebhook returns a Webhook adapter posting to url. An empty url
// means the adapter is not configured.
func NewWebhook(name, url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		name:       name,
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (w *Webhook) Name() string { return w.name }

func (w *Webhook) IsEnabled(ctx context.Context) bool { return w.url != "" }

func (w *Webhook) Validate(ctx context.Context) (bool, string) {
	if w.url == "" {
		return false, "not_configured"
	}
	return true, ""
}

func (w *Webhook) Execute(execCtx ExecutionContext) Receipt {
	now := time.Now().UTC()
	if w.url == "" {
		return Receipt{Kind: ReceiptSkipped, Adapter: w.name, ActionID: execCtx.ActionID, Reason: "not_configured", At: now}
	}

	body, err := json.Marshal(map[string]interface{}{
		"action_id": execCtx.ActionID,
		"channel":   execCtx.Channel,
		"content":   execCtx.Content,
		"routing":   execCtx.Routing,
	})
	if err != nil {
		return Receipt{Kind: ReceiptFailed, Adapter: w.name, ActionID: execCtx.ActionID, Reason: "invalid_argument", At: now}
	}

	req, err := http.NewRequestWithContext(execCtx.Context, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return Receipt{Kind: ReceiptFailed, Adapter: w.name, ActionID: execCtx.ActionID, Reason: "invalid_argument", At: now}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		if execCtx.Context.Err() != nil {
			return Receipt{Kind: ReceiptFailed, Adapter: w.name, ActionID: execCtx.ActionID, Reason: "cancelled", At: now}
		}
		return Receipt{Kind: ReceiptFailed, Adapter: w.name, ActionID: execCtx.ActionID, Reason: "transient_error", At: now}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Receipt{Kind: ReceiptFailed, Adapter: w.name, ActionID: execCtx.ActionID, Reason: "rate_limited", At: now}
	case resp.StatusCode >= 500:
		return Receipt{Kind: ReceiptFailed, Adapter: w.name, ActionID: execCtx.ActionID, Reason: "transient_error", At: now}
	case resp.StatusCode >= 400:
		return Receipt{Kind: ReceiptFailed, Adapter: w.name, ActionID: execCtx.ActionID, Reason: "upstream_error", At: now}
	default:
		return Receipt{
			Kind:       ReceiptOK,
			Adapter:    w.name,
			ActionID:   execCtx.ActionID,
			DeliveryID: fmt.Sprintf("%s-%d", w.name, now.UnixNano()),
			At:         now,
		}
	}
}
