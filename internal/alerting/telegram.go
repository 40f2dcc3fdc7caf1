package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TelegramSender 通过 Telegram Bot API 推送消息。Gated channel.
type TelegramSender struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramSender 构造 Telegram 告警通道。
func NewTelegramSender(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramSender{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

func (s *TelegramSender) Name() string { return "telegram" }

// Send 调用 sendMessage API 推送文本。
func (s *TelegramSender) Send(ctx context.Context, event Event) error {
	payload := map[string]string{
		"chat_id": s.chatID,
		"text":    renderMessage(event),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	s.logger.Info().
		Str("identifier", event.Identifier).
		Bool("resolved", event.Resolved).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(event Event) string {
	builder := strings.Builder{}
	if event.Resolved {
		builder.WriteString("[RESOLVED] ")
	}
	builder.WriteString(event.Fields.Msg())
	builder.WriteString("\n\n")

	keys := make([]string, 0, len(event.Fields))
	for key := range event.Fields {
		if key == "msg" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		builder.WriteString(fmt.Sprintf("%s: %s\n", key, renderValue(event.Fields[key])))
	}
	if event.Context.Network != "" {
		builder.WriteString(fmt.Sprintf("network: %s\n", event.Context.Network))
	}
	return builder.String()
}

// renderValue keeps floats readable; raw %v output of float64 prices is
// noisy in chat messages.
func renderValue(value any) string {
	switch v := value.(type) {
	case float64:
		return decimal.NewFromFloat(v).Round(6).String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

var _ Sender = (*TelegramSender)(nil)
