package alerting

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZendutySender raises and resolves incidents through the Zenduty
// events API. Gated channel. The API rate-limits aggressively, so 429
// responses are retried with exponential backoff before giving up.
type ZendutySender struct {
	integrationKey string
	baseURL        string
	client         *http.Client
	logger         zerolog.Logger
	maxRetries     int
	backoffCap     time.Duration

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

const (
	zendutyDefaultBaseURL = "https://www.zenduty.com/api/events"
	zendutyMaxRetries     = 30
	zendutyBackoffCap     = 30 * time.Second
)

// NewZendutySender constructs the incident-management channel.
func NewZendutySender(integrationKey, baseURL string, timeout time.Duration, logger zerolog.Logger) *ZendutySender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = zendutyDefaultBaseURL
	}

	return &ZendutySender{
		integrationKey: integrationKey,
		baseURL:        strings.TrimRight(baseURL, "/"),
		client:         &http.Client{Timeout: timeout},
		logger:         logger.With().Str("component", "alert_zenduty").Logger(),
		maxRetries:     zendutyMaxRetries,
		backoffCap:     zendutyBackoffCap,
		sleep:          sleepCtx,
	}
}

func (s *ZendutySender) Name() string { return "zenduty" }

// Send posts one event, retrying 429s. Exhausting the retry budget is
// an error to the caller, which leaves the alert open for next cycle.
func (s *ZendutySender) Send(ctx context.Context, event Event) error {
	alertType := "critical"
	if event.Resolved {
		alertType = "resolved"
	}

	payload, err := json.Marshal(map[string]string{
		"alert_type": alertType,
		"message":    event.Fields.Msg(),
		"summary":    summarize(event),
		"entity_id":  entityID(event.Identifier),
	})
	if err != nil {
		return fmt.Errorf("marshal zenduty payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/", s.baseURL, s.integrationKey)

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if backoff > s.backoffCap {
				backoff = s.backoffCap
			}
			s.logger.Warn().
				Str("identifier", event.Identifier).
				Dur("backoff", backoff).
				Int("attempt", attempt).
				Msg("zenduty rate limited, backing off")
			if err := s.sleep(ctx, backoff); err != nil {
				return err
			}
		}

		status, body, err := s.post(ctx, url, payload)
		if err != nil {
			return fmt.Errorf("send zenduty event: %w", err)
		}

		switch {
		case status >= 200 && status < 300:
			s.logger.Info().
				Str("identifier", event.Identifier).
				Str("alert_type", alertType).
				Msg("zenduty event sent")
			return nil
		case status == http.StatusTooManyRequests:
			continue
		default:
			return fmt.Errorf("zenduty returned %d: %s", status, strings.TrimSpace(body))
		}
	}

	return fmt.Errorf("zenduty still rate limited after %d attempts for %s", s.maxRetries, event.Identifier)
}

func (s *ZendutySender) post(ctx context.Context, url string, payload []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(body), nil
}

// entityID derives a stable incident id from the alert identifier. The
// API limits entity ids to 32 characters.
func entityID(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:])[:32]
}

func summarize(event Event) string {
	parts := []string{
		fmt.Sprintf("check: %s", event.Fields.Type()),
		fmt.Sprintf("symbol: %s", event.Fields.Symbol()),
	}
	if event.Context.Network != "" {
		parts = append(parts, fmt.Sprintf("network: %s", event.Context.Network))
	}
	return strings.Join(parts, ", ")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Sender = (*ZendutySender)(nil)
