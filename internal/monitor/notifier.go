package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Notifier delivers human-readable alerts. Delivery is fire-and-forget:
// failures are logged and never returned to the trading core.
type Notifier interface {
	// Notify sends text to the trading audience.
	Notify(ctx context.Context, text string)
	// Alert sends text to the operators only.
	Alert(ctx context.Context, text string)
}

// Sender is a single delivery channel.
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
	Name() string
}

// Dispatcher prefixes messages with the UTC time and strategy name and
// fans them out to every sender and chat.
type Dispatcher struct {
	senders   []Sender
	chats     []string
	operators []string
	strategy  string
	now       func() time.Time
}

// NewDispatcher builds a dispatcher. Operators default to chats when empty.
func NewDispatcher(strategy string, chats, operators []string, senders ...Sender) *Dispatcher {
	if len(operators) == 0 {
		operators = chats
	}
	return &Dispatcher{
		senders:   senders,
		chats:     chats,
		operators: operators,
		strategy:  strategy,
		now:       time.Now,
	}
}

func (d *Dispatcher) Notify(ctx context.Context, text string) {
	d.dispatch(ctx, d.chats, text)
}

func (d *Dispatcher) Alert(ctx context.Context, text string) {
	d.dispatch(ctx, d.operators, text)
}

// Format renders the message header used on every notification.
func (d *Dispatcher) Format(text string) string {
	return fmt.Sprintf("%s utc | %s | \n%s", d.now().UTC().Format("2006-01-02 15:04:05"), d.strategy, text)
}

func (d *Dispatcher) dispatch(ctx context.Context, chats []string, text string) {
	msg := d.Format(text)
	for _, s := range d.senders {
		targets := chats
		if len(targets) == 0 {
			targets = []string{""}
		}
		for _, chat := range targets {
			if err := s.Send(ctx, chat, msg); err != nil {
				log.Printf("⚠️ notify via %s failed: %v", s.Name(), err)
			}
		}
	}
}

// LogSender writes notifications to the process log.
type LogSender struct{}

func (LogSender) Send(_ context.Context, _ string, text string) error {
	log.Printf("📣 %s", strings.ReplaceAll(text, "\n", " "))
	return nil
}

func (LogSender) Name() string { return "log" }

var telegramEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

// EscapeMarkdown escapes the characters Telegram's Markdown mode treats as markup.
func EscapeMarkdown(s string) string {
	return telegramEscaper.Replace(s)
}

// Telegram delivers messages through the Telegram Bot API.
type Telegram struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewTelegram creates a sender with a 10 second request timeout.
func NewTelegram(token string) *Telegram {
	return &Telegram{
		token:   token,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL points the sender at another API host.
func (t *Telegram) WithBaseURL(u string) *Telegram {
	t.baseURL = strings.TrimRight(u, "/")
	return t
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, chatID, text string) error {
	if chatID == "" {
		return fmt.Errorf("telegram: empty chat id")
	}
	body, err := json.Marshal(map[string]string{
		"chat_id":    chatID,
		"text":       EscapeMarkdown(text),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(context.Context, string) {}
func (Nop) Alert(context.Context, string)  {}
