package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

const defaultOpsGenieURL = "https://api.opsgenie.com/v2/alerts"

// OpsGenie creates alerts through the OpsGenie Alert API.
type OpsGenie struct {
	key      string
	endpoint string
	client   *http.Client
}

type OpsGenieOption func(*OpsGenie)

func WithOpsGenieURL(endpoint string) OpsGenieOption {
	return func(o *OpsGenie) {
		o.endpoint = endpoint
	}
}

func NewOpsGenie(key string, opts ...OpsGenieOption) *OpsGenie {
	o := &OpsGenie{
		key:      key,
		endpoint: defaultOpsGenieURL,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type opsGenieAlert struct {
	Message     string   `json:"message"`
	Alias       string   `json:"alias,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Priority    string   `json:"priority"`
}

// Escalate opens an alert. OpsGenie deduplicates open alerts by alias.
func (o *OpsGenie) Escalate(ctx context.Context, e Escalation) error {
	body, err := json.Marshal(opsGenieAlert{
		Message:     truncate(e.Message, 130),
		Alias:       truncate(e.Alias, 512),
		Description: truncate(e.Description, 15000),
		Tags:        e.Tags,
		Priority:    "P3",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "GenieKey "+o.key)

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("opsgenie returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
