package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultAPIURL = "https://api.telegram.org"

// Bot is a minimal Telegram Bot API client. Messages are sent as plain text so user
// questions never need escaping.
type Bot struct {
	httpClient *http.Client
	baseURL    string
}

func NewBot(token string) *Bot {
	return NewBotWithURL(defaultAPIURL, token)
}

// NewBotWithURL points the client at another API host; tests use an httptest server.
func NewBotWithURL(apiURL, token string) *Bot {
	return &Bot{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    fmt.Sprintf("%s/bot%s", apiURL, token),
	}
}

// SendMessage sends text to chatID, split at Telegram's length limit. The keyboard, if
// any, is attached to the last chunk.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, keyboard *InlineKeyboardMarkup) error {
	chunks := splitMessage(text, maxMessageLength)
	for i, chunk := range chunks {
		body := map[string]any{
			"chat_id": chatID,
			"text":    chunk,
		}
		if keyboard != nil && i == len(chunks)-1 {
			body["reply_markup"] = keyboard
		}
		if err := b.call(ctx, b.httpClient, "sendMessage", body, nil); err != nil {
			return err
		}
	}
	return nil
}

// AnswerCallbackQuery stops the button spinner, optionally with a toast or alert.
func (b *Bot) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string, showAlert bool) error {
	body := map[string]any{"callback_query_id": callbackQueryID}
	if text != "" {
		body["text"] = text
	}
	if showAlert {
		body["show_alert"] = true
	}
	return b.call(ctx, b.httpClient, "answerCallbackQuery", body, nil)
}

// EditMessageReplyMarkup replaces the inline keyboard of a sent message; nil removes it.
func (b *Bot) EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, keyboard *InlineKeyboardMarkup) error {
	body := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	if keyboard != nil {
		body["reply_markup"] = keyboard
	}
	return b.call(ctx, b.httpClient, "editMessageReplyMarkup", body, nil)
}

// DeleteWebhook is required before getUpdates works on a bot that once had a webhook.
func (b *Bot) DeleteWebhook(ctx context.Context) error {
	return b.call(ctx, b.httpClient, "deleteWebhook", nil, nil)
}

// GetUpdates long-polls for updates starting at offset. Cancelling ctx aborts the request.
func (b *Bot) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	body := map[string]any{
		"timeout":         timeout,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if offset > 0 {
		body["offset"] = offset
	}
	// The long poll holds the connection for up to timeout seconds.
	client := &http.Client{Timeout: time.Duration(timeout+10) * time.Second}

	var updates []Update
	if err := b.call(ctx, client, "getUpdates", body, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (b *Bot) call(ctx context.Context, client *http.Client, method string, body map[string]any, result any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("telegram %s: marshal request: %w", method, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram %s: create request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: send request: %w", method, err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("telegram %s: decode response (status %d): %w", method, resp.StatusCode, err)
	}
	if !apiResp.OK {
		return &APIError{Method: method, Code: apiResp.ErrorCode, Description: apiResp.Description}
	}
	if result != nil && len(apiResp.Result) > 0 {
		if err := json.Unmarshal(apiResp.Result, result); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

// APIError is a response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: api error %d: %s", e.Method, e.Code, e.Description)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      *Chat  `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

const chatTypePrivate = "private"

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}

type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

func NewInlineKeyboard(rows ...[]InlineKeyboardButton) *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{InlineKeyboard: rows}
}

func NewInlineKeyboardButton(text, callbackData string) InlineKeyboardButton {
	return InlineKeyboardButton{Text: text, CallbackData: callbackData}
}
