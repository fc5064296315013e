// Package notify fans out push notifications to every registered
// subscription endpoint. Delivery is best-effort: individual endpoint
// failures are logged, never propagated, and permanently gone
// endpoints are pruned from the store.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"gramkeeper/internal/logging"
	"gramkeeper/internal/store"
)

// SubscriptionStore is the persistence surface the notifier needs.
type SubscriptionStore interface {
	ListSubscriptions() ([]store.Subscription, error)
	DeleteSubscription(endpoint string) error
}

// Message is the JSON payload delivered to each endpoint.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}

// PushNotifier posts notification payloads to subscription endpoints.
type PushNotifier struct {
	subs SubscriptionStore
	http *http.Client
}

// NewPushNotifier creates a notifier backed by the given store.
func NewPushNotifier(subs SubscriptionStore) *PushNotifier {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = 15 * time.Second

	return &PushNotifier{
		subs: subs,
		http: rc.StandardClient(),
	}
}

// Notify delivers the message to all current subscriptions. Only a
// failure to list subscriptions is returned; per-endpoint failures are
// logged and swallowed so a dead endpoint never blocks a run.
func (n *PushNotifier) Notify(ctx context.Context, title, body, url string) error {
	subs, err := n.subs.ListSubscriptions()
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(Message{Title: title, Body: body, URL: url})
	if err != nil {
		return err
	}

	sent := 0
	for _, sub := range subs {
		if err := n.deliver(ctx, sub.Endpoint, payload); err != nil {
			logging.Push("delivery to %s failed: %v", sub.Endpoint, err)
			continue
		}
		sent++
	}
	logging.Push("delivered %q to %d of %d subscriptions", title, sent, len(subs))
	return nil
}

func (n *PushNotifier) deliver(ctx context.Context, endpoint string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("TTL", "86400")

	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// Endpoint no longer exists; stop trying it in the future.
		if delErr := n.subs.DeleteSubscription(endpoint); delErr != nil {
			logging.Push("pruning dead endpoint %s: %v", endpoint, delErr)
		} else {
			logging.Push("pruned dead endpoint %s (status %d)", endpoint, resp.StatusCode)
		}
		return fmt.Errorf("endpoint gone: status %d", resp.StatusCode)
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}
