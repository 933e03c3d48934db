package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/liftmode/netcents-gateway/internal/resilience"
)

// Severity classifies operational alerts.
type Severity string

const (
	// SeverityWarning marks degraded but recoverable conditions, e.g. a
	// gateway transport failure.
	SeverityWarning Severity = "warning"
	// SeverityCritical marks rejected payments needing operator attention.
	SeverityCritical Severity = "critical"
)

// Alerter delivers operational notifications. Payload fields passed to
// Alert must already be redacted by the caller; the alerter does not
// inspect them.
type Alerter interface {
	Alert(ctx context.Context, severity Severity, message string, fields map[string]any) error
}

// Nop swallows all alerts. Used when alerting is disabled.
type Nop struct{}

// Alert does nothing.
func (Nop) Alert(context.Context, Severity, string, map[string]any) error { return nil }

// WebhookAlerter posts Slack-style incoming-webhook messages. Delivery
// runs through the resilient HTTP wrapper so a flapping alert endpoint
// retries with backoff and eventually trips its breaker instead of
// stalling payment flows.
type WebhookAlerter struct {
	URL    string
	HTTP   *resilience.HTTPClient
	Logger zerolog.Logger
}

type webhookMessage struct {
	Text      string `json:"text"`
	IconEmoji string `json:"icon_emoji,omitempty"`
}

// Alert formats and delivers one notification. Errors are returned for
// the caller to log; they must never mask the payment error that
// triggered the alert.
func (a *WebhookAlerter) Alert(ctx context.Context, severity Severity, message string, fields map[string]any) error {
	if a == nil || strings.TrimSpace(a.URL) == "" {
		return errors.New("notify: webhook url not configured")
	}
	if a.HTTP == nil {
		return errors.New("notify: http client not configured")
	}
	payload, err := json.Marshal(webhookMessage{
		Text:      formatAlertText(message, fields),
		IconEmoji: emojiFor(severity),
	})
	if err != nil {
		return fmt.Errorf("notify: encode alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("notify: deliver alert: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: alert endpoint returned %s", resp.Status)
	}
	a.Logger.Debug().Str("severity", string(severity)).Msg("alert_delivered")
	return nil
}

func formatAlertText(message string, fields map[string]any) string {
	var b strings.Builder
	b.WriteString("*")
	b.WriteString(message)
	b.WriteString("*")
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString(" ```")
		b.WriteString(stringify(fields[k]))
		b.WriteString("```")
	}
	return b.String()
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}

func emojiFor(severity Severity) string {
	switch severity {
	case SeverityCritical:
		return ":cop:"
	default:
		return ":warning:"
	}
}
