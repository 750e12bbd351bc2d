package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiCall struct {
	Method string
	Body   map[string]any
}

// fakeAPI records Bot API calls and answers each method with a canned result.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	results map[string]string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *Bot) {
	t.Helper()
	api := &fakeAPI{results: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		body := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&body)

		api.mu.Lock()
		api.calls = append(api.calls, apiCall{Method: method, Body: body})
		res, ok := api.results[method]
		api.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			res = `{"ok":true,"result":true}`
		}
		_, _ = w.Write([]byte(res))
	}))
	t.Cleanup(srv.Close)
	return api, NewBotWithURL(srv.URL, "TOKEN")
}

func TestBot_SendMessage(t *testing.T) {
	api, bot := newFakeAPI(t)

	err := bot.SendMessage(context.Background(), 42, "halo", ticketKeyboard("K1"))
	require.NoError(t, err)

	require.Len(t, api.calls, 1)
	call := api.calls[0]
	assert.Equal(t, "sendMessage", call.Method)
	assert.Equal(t, float64(42), call.Body["chat_id"])
	assert.Equal(t, "halo", call.Body["text"])
	assert.NotContains(t, call.Body, "parse_mode")

	markup := call.Body["reply_markup"].(map[string]any)
	rows := markup["inline_keyboard"].([]any)
	first := rows[0].([]any)[0].(map[string]any)
	assert.Equal(t, "lock:K1", first["callback_data"])
}

func TestBot_SendMessageSplitsLongText(t *testing.T) {
	api, bot := newFakeAPI(t)
	long := strings.Repeat("a", maxMessageLength) + "\n\n" + "tail"

	require.NoError(t, bot.SendMessage(context.Background(), 42, long, replyKeyboard("K1")))
	require.Len(t, api.calls, 2)
	assert.NotContains(t, api.calls[0].Body, "reply_markup")
	assert.Contains(t, api.calls[1].Body, "reply_markup", "keyboard goes on the last chunk")
}

func TestBot_APIError(t *testing.T) {
	api, bot := newFakeAPI(t)
	api.results["sendMessage"] = `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`

	err := bot.SendMessage(context.Background(), 42, "halo", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Code)
	assert.Contains(t, err.Error(), "blocked")
}

func TestBot_GetUpdates(t *testing.T) {
	api, bot := newFakeAPI(t)
	api.results["getUpdates"] = `{"ok":true,"result":[
		{"update_id":10,"message":{"message_id":1,"from":{"id":7,"is_bot":false,"first_name":"A"},"chat":{"id":7,"type":"private"},"date":0,"text":"/start"}},
		{"update_id":11,"callback_query":{"id":"cb1","from":{"id":9,"is_bot":false,"first_name":"Op"},"data":"lock:K1","message":{"message_id":5,"chat":{"id":-100,"type":"supergroup"},"date":0}}}
	]}`

	updates, err := bot.GetUpdates(context.Background(), 10, 1)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, "/start", updates[0].Message.Text)
	assert.Equal(t, "lock:K1", updates[1].CallbackQuery.Data)
	assert.Equal(t, float64(10), api.calls[0].Body["offset"])
}

func TestBot_AnswerCallbackAndEdit(t *testing.T) {
	api, bot := newFakeAPI(t)
	ctx := context.Background()

	require.NoError(t, bot.AnswerCallbackQuery(ctx, "cb1", "ok", true))
	require.NoError(t, bot.EditMessageReplyMarkup(ctx, 42, 5, nil))
	require.NoError(t, bot.DeleteWebhook(ctx))

	require.Len(t, api.calls, 3)
	assert.Equal(t, true, api.calls[0].Body["show_alert"])
	assert.NotContains(t, api.calls[1].Body, "reply_markup")
	assert.Equal(t, "deleteWebhook", api.calls[2].Method)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	chunks := splitMessage("aaaa\nbbbb\ncccc", 10)
	assert.Equal(t, []string{"aaaa\nbbbb\n", "cccc"}, chunks)

	chunks = splitMessage(strings.Repeat("é", 15), 10)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("é", 10), chunks[0])

	chunks = splitMessage("satu dua tiga empat", 10)
	assert.Equal(t, []string{"satu dua ", "tiga empat"}, chunks)

	q := "apakah aman?\n\n+ (2023-11-15 06:14:50) lagi"
	chunks = splitMessage(q, 30)
	assert.Equal(t, []string{"apakah aman?\n\n", "+ (2023-11-15 06:14:50) lagi"}, chunks)
	assert.Equal(t, q, strings.Join(chunks, ""))
}
