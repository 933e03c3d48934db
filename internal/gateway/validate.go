package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/liftmode/netcents-gateway/internal/notify"
)

// Validator inspects a parsed gateway body and classifies the outcome.
// The gateway reports its own status field inside the JSON body; the
// 2xx-family rule applies to that field, not only to the HTTP status.
type Validator struct {
	Logger  zerolog.Logger
	Alerter notify.Alerter
}

// Validate returns the body unchanged when the gateway approved the
// request, or a *RejectionError otherwise. The sent payload is redacted
// before it reaches the log or the alert channel.
func (v Validator) Validate(ctx context.Context, res Result, sent []byte) (map[string]any, error) {
	if StatusApproved(res.Body) {
		return res.Body, nil
	}

	status := stringField(res.Body, "status")
	message := stringField(res.Body, "message")
	redacted := RedactString(string(sent))

	v.Logger.Error().
		Int("http_status", res.HTTPStatus).
		Interface("response", RedactMap(res.Body)).
		Str("request", redacted).
		Str("reason", rejectionReason(status, message)).
		Msg("payment_rejected")

	if v.Alerter != nil {
		fields := map[string]any{
			"response":  RedactMap(res.Body),
			"data_sent": redacted,
		}
		if err := v.Alerter.Alert(ctx, notify.SeverityCritical, "NetCents payment rejected", fields); err != nil {
			v.Logger.Warn().Err(err).Msg("alert_delivery_failed")
		}
	}

	return nil, &RejectionError{HTTPStatus: res.HTTPStatus, Status: status, Message: message}
}

// StatusApproved reports whether a gateway body carries an approved
// status: non-empty body, status field present, leading digit 2. The
// reconciliation sweep applies the same rule to fetched transaction
// statuses.
func StatusApproved(body map[string]any) bool {
	if len(body) == 0 {
		return false
	}
	raw, ok := body["status"]
	if !ok || raw == nil {
		return false
	}
	s := strings.TrimSpace(coerceString(raw))
	return s != "" && s[0] == '2'
}

func rejectionReason(status, message string) string {
	if status == "" && message == "" {
		return "empty or malformed gateway response"
	}
	return fmt.Sprintf("response code: %s %s", status, message)
}

func stringField(body map[string]any, key string) string {
	if body == nil {
		return ""
	}
	return strings.TrimSpace(coerceString(body[key]))
}

func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; render without exponent
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", t), "0"), ".")
	default:
		return fmt.Sprint(t)
	}
}
