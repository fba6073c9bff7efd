package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Notifier delivers task outcomes to a caller-supplied callback address.
// Delivery is fire-and-forget: failures are logged and swallowed, never
// retried, and never fail the task.
type Notifier struct {
	httpClient *http.Client
}

// NewNotifier creates a notifier with a short delivery timeout.
func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Notify POSTs payload as JSON to url.
func (n *Notifier) Notify(ctx context.Context, url string, payload interface{}) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		log.Printf(`{"level":"error","message":"Failed to marshal notification","url":"%s","error":"%v"}`, url, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		log.Printf(`{"level":"error","message":"Failed to create notification request","url":"%s","error":"%v"}`, url, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		log.Printf(`{"level":"warn","message":"Notification delivery failed","url":"%s","error":"%v"}`, url, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf(`{"level":"warn","message":"Notification sink returned non-success","url":"%s","status":%d}`, url, resp.StatusCode)
	}
}
