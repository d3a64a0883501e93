// Package notify tells the outside world that everyone in a group has
// finished swiping.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
)

// AllDone describes a finished round.
type AllDone struct {
	GroupID string              `json:"groupId"`
	Code    string              `json:"code"`
	Name    string              `json:"name"`
	Members int                 `json:"members"`
	Matches []models.Restaurant `json:"matches"`
	At      time.Time           `json:"at"`
}

// Notifier is told when every member of a group is done swiping.
type Notifier interface {
	AllDone(ctx context.Context, n AllDone) error
}

// LogNotifier writes the notification to the default logger.
type LogNotifier struct{}

func (LogNotifier) AllDone(_ context.Context, n AllDone) error {
	slog.Info("All members done swiping",
		"group_id", n.GroupID,
		"members", n.Members,
		"matches", len(n.Matches),
	)
	return nil
}

// WebhookNotifier POSTs the notification as JSON.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookNotifier) AllDone(ctx context.Context, n AllDone) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Multi fans a notification out to several notifiers. Every notifier is
// tried; the errors are joined.
type Multi []Notifier

func (m Multi) AllDone(ctx context.Context, n AllDone) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.AllDone(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
