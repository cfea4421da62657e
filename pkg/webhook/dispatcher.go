// Package webhook delivers signed task-status notifications to external
// systems.
//
// Delivery is best-effort, at most once: the task's persisted status is
// the source of truth, so a notification failure is logged and swallowed,
// never propagated to the executor.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gobwas/glob"

	"github.com/steerhq/steer/pkg/logging"
	"github.com/steerhq/steer/pkg/metrics"
	"github.com/steerhq/steer/pkg/types"
)

const (
	deliveryTimeout = 10 * time.Second

	headerTimestamp = "X-Webhook-Timestamp"
	headerSignature = "X-Webhook-Signature"
)

// Dispatcher posts webhook payloads. Zero-value construction is not
// supported; use NewDispatcher.
type Dispatcher struct {
	client       *http.Client
	log          *logging.Logger
	allowedHosts []glob.Glob
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client, primarily for tests. The
// 10-second delivery timeout still applies through the request context.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		d.client = client
	}
}

// WithAllowedHosts restricts delivery to URLs whose host matches one of
// the given glob patterns (e.g. "*.example.com"). No patterns means no
// restriction. Invalid patterns are dropped with a warning.
func WithAllowedHosts(patterns []string) Option {
	return func(d *Dispatcher) {
		for _, p := range patterns {
			g, err := glob.Compile(p)
			if err != nil {
				d.log.Warnf("ignoring invalid webhook host pattern %q: %v", p, err)
				continue
			}
			d.allowedHosts = append(d.allowedHosts, g)
		}
	}
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	logger, err := logging.NewLogger("webhook")
	if err != nil {
		logger.Warnf("file logging unavailable: %v", err)
	}

	d := &Dispatcher{
		client: &http.Client{Timeout: deliveryTimeout},
		log:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver serializes the payload, signs it if a secret is supplied, and
// POSTs it to url with a hard 10-second timeout. Network failure, timeout,
// DNS failure, and non-2xx responses are all treated identically: logged
// with enough detail to diagnose, then swallowed. Deliver never fails the
// caller.
func (d *Dispatcher) Deliver(ctx context.Context, rawURL string, payload *types.WebhookPayload, secret string) {
	if rawURL == "" {
		return
	}
	if !d.hostAllowed(rawURL) {
		d.log.Warnf("webhook host not in allowlist, dropping delivery: %s", rawURL)
		metrics.RecordWebhookDelivery("blocked")
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.log.Errorf("marshal payload for %s: %v", rawURL, err)
		metrics.RecordWebhookDelivery("failed")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		d.log.Errorf("build request for %s: %v", rawURL, err)
		metrics.RecordWebhookDelivery("failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerTimestamp, time.Now().UTC().Format(time.RFC3339))
	if secret != "" {
		req.Header.Set(headerSignature, "sha256="+Sign(body, secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Errorf("deliver task %s status to %s: %v", payload.TaskID, rawURL, err)
		metrics.RecordWebhookDelivery("failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.log.Errorf("deliver task %s status to %s: HTTP %d", payload.TaskID, rawURL, resp.StatusCode)
		metrics.RecordWebhookDelivery("failed")
		return
	}

	d.log.Infof("delivered task %s status %s to %s", payload.TaskID, payload.TaskStatus, rawURL)
	metrics.RecordWebhookDelivery("delivered")
}

func (d *Dispatcher) hostAllowed(rawURL string) bool {
	if len(d.allowedHosts) == 0 {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, g := range d.allowedHosts {
		if g.Match(u.Hostname()) {
			return true
		}
	}
	return false
}

// Sign computes the hex-encoded HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the MAC over body and compares it with signature in
// constant time. The signature may carry the "sha256=" prefix. A length
// mismatch short-circuits to false; otherwise every byte is compared
// regardless of early mismatches.
func Verify(body []byte, signature, secret string) bool {
	const prefix = "sha256="
	if len(signature) >= len(prefix) && signature[:len(prefix)] == prefix {
		signature = signature[len(prefix):]
	}
	expected := Sign(body, secret)
	// hmac.Equal is constant-time over equal-length inputs.
	return hmac.Equal([]byte(signature), []byte(expected))
}

// Payload builds the notification body for a task status report.
func Payload(batchID, taskID string, taskIndex int, report *types.StatusReport) *types.WebhookPayload {
	return &types.WebhookPayload{
		Event:       types.WebhookEventTaskStatus,
		BatchID:     batchID,
		TaskID:      taskID,
		TaskIndex:   taskIndex,
		TaskStatus:  types.TaskStatusFor(report.Status),
		AgentStatus: report.Status,
		Message:     report.Message,
		Reasoning:   report.Reasoning,
		NextStep:    report.NextStep,
		Evidence:    report.Evidence,
		Timestamp:   time.Now().UTC(),
	}
}
