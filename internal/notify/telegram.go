package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"spotbot/internal/config"
	"spotbot/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const telegramAPIURL = "https://api.telegram.org"

// TelegramClient - тонкий клиент Bot API для отправки сообщений в чат.
// Доставка сообщений не критична для торговли, поэтому клиент без
// ретраев: не дошло - значит не дошло, торговый цикл не ждет.
type TelegramClient struct {
	baseURL string
	token   string
	chatID  string
	http    *http.Client
	log     *utils.Logger
}

// NewTelegramClient создает клиент Telegram Bot API
func NewTelegramClient(cfg config.TelegramConfig, log *utils.Logger) *TelegramClient {
	return &TelegramClient{
		baseURL: telegramAPIURL,
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log.WithComponent("telegram"),
	}
}

// TestConnection проверяет токен бота через getMe
func (c *TelegramClient) TestConnection(ctx context.Context) error {
	url := fmt.Sprintf("%s/bot%s/getMe", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram getMe: status %d", resp.StatusCode)
	}

	var result struct {
		OK     bool `json:"ok"`
		Result struct {
			Username string `json:"username"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram getMe: ok=false")
	}

	c.log.Info("Telegram подключен", utils.String("bot", result.Result.Username))
	return nil
}

// SendMessage отправляет одно сообщение в настроенный чат
func (c *TelegramClient) SendMessage(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"chat_id":                  c.chatID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram sendMessage: status %d", resp.StatusCode)
	}
	return nil
}
