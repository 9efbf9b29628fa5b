package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification describes a monitoring halt.
type Notification struct {
	OccurredAt time.Time
	Username   string
	Error      string
	LastKudos  decimal.NullDecimal
	Interval   time.Duration
	Channels   []string
}

// Text renders the notification as a plain-text chat message. Unknown
// account and kudos lines are left out.
func (n Notification) Text() string {
	lines := []string{
		"[Horde Monitor] monitoring halted",
		"Time: " + n.OccurredAt.UTC().Format(time.RFC3339) + " UTC",
	}
	if n.Username != "" {
		lines = append(lines, "Account: "+n.Username)
	}
	if n.LastKudos.Valid {
		lines = append(lines, "Last kudos: "+n.LastKudos.Decimal.String())
	}
	if n.Interval > 0 {
		lines = append(lines, "Interval: "+n.Interval.String())
	}
	lines = append(lines, "Error: "+n.Error)
	return strings.Join(lines, "\n") + "\nStart monitoring again to resume."
}

// Notifier delivers halt notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TelegramNotifier sends halts to one chat through the Bot API.
type TelegramNotifier struct {
	endpoint string
	chatID   string
	client   *http.Client
	logger   zerolog.Logger
}

const defaultTelegramAPI = "https://api.telegram.org"

// NewTelegramNotifier builds a notifier for chatID. An empty baseURL selects
// the public Bot API.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if baseURL == "" {
		baseURL = defaultTelegramAPI
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramNotifier{
		endpoint: strings.TrimRight(baseURL, "/") + "/bot" + botToken + "/sendMessage",
		chatID:   chatID,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "telegram").Str("chat_id", chatID).Logger(),
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type botResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Notify posts the rendered notification. Both a non-2xx status and a body
// with ok=false are failures.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                n.chatID,
		Text:                  note.Text(),
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("encode sendMessage: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var reply botResponse
	decodeErr := json.Unmarshal(raw, &reply)

	if resp.StatusCode/100 != 2 {
		if reply.Description != "" {
			return fmt.Errorf("telegram status %d: %s", resp.StatusCode, reply.Description)
		}
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	if decodeErr == nil && !reply.OK {
		return fmt.Errorf("telegram rejected message (ok=false, code %d): %s", reply.ErrorCode, reply.Description)
	}

	n.logger.Info().Time("occurred_at", note.OccurredAt).Str("account", note.Username).Msg("halt notification delivered")
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = Fanout(nil)
)
