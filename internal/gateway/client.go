package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/liftmode/netcents-gateway/internal/notify"
	"github.com/liftmode/netcents-gateway/internal/obs"
)

// Result carries one parsed gateway response through validation.
type Result struct {
	HTTPStatus int
	Headers    http.Header
	Body       map[string]any
}

// Client issues authenticated HTTP requests against the gateway. It
// never retries: one call is one attempt, and retry policy belongs to
// the reconciliation sweep schedule.
type Client struct {
	BaseURL     string
	Credentials *CredentialSource
	HTTP        *http.Client
	Logger      zerolog.Logger
	Alerter     notify.Alerter
}

// NewHTTPClient builds the transport used for gateway calls: connect
// timeout, total request timeout, and TLS host verification disabled.
// The gateway's processing endpoint has historically presented a
// certificate that fails host verification; skipping it matches the
// production deployment and is tracked as a known security gap.
func NewHTTPClient(connectTimeout, requestTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = 60 * time.Second
	}
	if requestTimeout <= 0 {
		requestTimeout = 40 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
	}
	return &http.Client{
		Timeout:   requestTimeout,
		Transport: otelhttp.NewTransport(transport),
	}
}

// Send performs one gateway call and returns the parsed response.
// Transport failures and non-2xx HTTP statuses surface as
// *TransportError before any domain decoding happens, since an error
// body does not follow the success schema. Caller headers extend and
// override the base header set.
func (c *Client) Send(ctx context.Context, method, path string, headers map[string]string, body []byte) (Result, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path

	creds, err := c.Credentials.Resolve()
	if err != nil {
		return Result{}, fmt.Errorf("gateway: resolve credentials: %w", err)
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return Result{}, fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.SetBasicAuth(creds.AccountID, creds.AuthSecret)

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		terr := &TransportError{URL: url, Err: err}
		c.reportTransport(ctx, terr, body, elapsed)
		return Result{}, terr
	}
	defer func() { _ = resp.Body.Close() }()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		terr := &TransportError{URL: url, Status: resp.StatusCode, Headers: resp.Header, Err: readErr}
		c.reportTransport(ctx, terr, body, elapsed)
		return Result{}, terr
	}

	var parsed map[string]any
	if len(bytes.TrimSpace(raw)) > 0 {
		// a malformed body is treated as empty, not as a crash
		if err := json.Unmarshal(raw, &parsed); err != nil {
			parsed = nil
		}
	}

	if obs.GatewayRequestDuration != nil {
		obs.GatewayRequestDuration.
			WithLabelValues(metricPath(path), strconv.Itoa(resp.StatusCode)).
			Observe(obs.DurationMillis(elapsed))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		terr := &TransportError{URL: url, Status: resp.StatusCode, Headers: resp.Header, Body: parsed}
		c.reportTransport(ctx, terr, body, elapsed)
		return Result{}, terr
	}

	return Result{HTTPStatus: resp.StatusCode, Headers: resp.Header, Body: parsed}, nil
}

// PostJSON sends a JSON payload with the base header set.
func (c *Client) PostJSON(ctx context.Context, path string, payload []byte) (Result, error) {
	return c.Send(ctx, http.MethodPost, path, nil, payload)
}

// Get issues a body-less request.
func (c *Client) Get(ctx context.Context, path string) (Result, error) {
	return c.Send(ctx, http.MethodGet, path, nil, nil)
}

func (c *Client) reportTransport(ctx context.Context, terr *TransportError, sent []byte, elapsed time.Duration) {
	if obs.GatewayTransportErrors != nil {
		obs.GatewayTransportErrors.Inc()
	}
	redacted := RedactString(string(sent))
	evt := c.Logger.Error().
		Str("url", terr.URL).
		Int("http_status", terr.Status).
		Dur("elapsed", elapsed).
		Str("request", redacted)
	if terr.Body != nil {
		evt = evt.Interface("response", RedactMap(terr.Body))
	}
	if len(terr.Headers) > 0 {
		evt = evt.Interface("response_headers", terr.Headers)
	}
	if terr.Err != nil {
		evt = evt.AnErr("cause", terr.Err)
	}
	evt.Msg("gateway_transport_error")

	if c.Alerter == nil {
		return
	}
	fields := map[string]any{
		"url":       terr.URL + " (" + strconv.Itoa(terr.Status) + ")",
		"data_sent": redacted,
	}
	if terr.Body != nil {
		fields["response"] = RedactMap(terr.Body)
	}
	if err := c.Alerter.Alert(ctx, notify.SeverityWarning, "NetCents payment call failed", fields); err != nil {
		// alert failure must never mask the payment error
		c.Logger.Warn().Err(err).Msg("alert_delivery_failed")
	}
}

// metricPath collapses identifier segments so gateway paths stay
// low-cardinality metric labels.
func metricPath(path string) string {
	switch {
	case path == "/payment":
		return "/payment"
	case strings.HasPrefix(path, "/payment/") && strings.HasSuffix(path, "/refund"):
		return "/payment/{id}/refund"
	case strings.HasPrefix(path, "/transactions/"):
		return "/transactions/{id}"
	case path == "/magento/verify":
		return "/magento/verify"
	default:
		return "other"
	}
}
