package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// maxListed caps how many tickers are spelled out per status line.
const maxListed = 20

// Notification 封装一次批次运行的汇总。
type Notification struct {
	RunID       string
	StartedAt   time.Time
	Duration    time.Duration
	Succeeded   int
	NoData      int
	Partial     int
	Failed      int
	Interrupted bool
	FailedIDs   []string
	PartialIDs  []string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// ShouldNotify reports whether a summary is worth sending. Failures always
// qualify; partial outcomes only when onPartial is set.
func ShouldNotify(note Notification, onPartial bool) bool {
	if note.Failed > 0 || note.Interrupted {
		return true
	}
	return onPartial && note.Partial > 0
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送批次汇总。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
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

	n.logger.Info().Str("run_id", note.RunID).
		Int("failed", note.Failed).
		Int("partial", note.Partial).
		Msg("批次汇总已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[MOEX history batch]\n")
	builder.WriteString(fmt.Sprintf("Run: %s\n", note.RunID))
	builder.WriteString(fmt.Sprintf("Started: %s UTC (%s)\n", note.StartedAt.UTC().Format(time.RFC3339), note.Duration.Round(time.Second)))
	builder.WriteString(fmt.Sprintf("Succeeded: %d, no data: %d, partial: %d, failed: %d\n", note.Succeeded, note.NoData, note.Partial, note.Failed))
	if note.Interrupted {
		builder.WriteString("Interrupted before all instruments were launched\n")
	}
	if len(note.FailedIDs) > 0 {
		builder.WriteString(fmt.Sprintf("Failed: %s\n", listTickers(note.FailedIDs)))
	}
	if len(note.PartialIDs) > 0 {
		builder.WriteString(fmt.Sprintf("Partial: %s\n", listTickers(note.PartialIDs)))
	}
	return builder.String()
}

func listTickers(ids []string) string {
	if len(ids) <= maxListed {
		return strings.Join(ids, ",")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(ids[:maxListed], ","), len(ids)-maxListed)
}

var _ Notifier = (*TelegramNotifier)(nil)
