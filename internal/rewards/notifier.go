// Package rewards – achievement notification sink.
package rewards

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Notifier receives fire-and-forget achievement pings. Failures are logged
// and never propagate: achievements must not affect reading outcomes.
type Notifier interface {
	ReadingCompleted(ctx context.Context, userID, readingID string)
}

// HTTPNotifier posts achievement events to the gamification service.
type HTTPNotifier struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPNotifier constructs an HTTPNotifier. An empty baseURL disables it.
func NewHTTPNotifier(baseURL string) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 3 * time.Second},
	}
}

// ReadingCompleted notifies the achievement service that userID finished a
// reading. Errors are logged at debug level only.
func (n *HTTPNotifier) ReadingCompleted(ctx context.Context, userID, readingID string) {
	if n.baseURL == "" {
		return
	}
	body, _ := json.Marshal(map[string]string{
		"event":      "reading_completed",
		"user_id":    userID,
		"reading_id": readingID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/v1/achievements/events", strings.NewReader(string(body)))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("user_id", userID).Msg("achievement notify failed")
		return
	}
	resp.Body.Close()
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

// ReadingCompleted is a no-op.
func (NopNotifier) ReadingCompleted(context.Context, string, string) {}
