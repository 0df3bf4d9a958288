package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const DefaultBaseUrl = "https://api.telegram.org"

const (
	ParseMode_None       = ""
	ParseMode_MarkdownV2 = "MarkdownV2"
)

// Telegram caps a single message at 4096 characters.
const MaxMessageLength = 4096

var backoffSchedule = []time.Duration{
	1 * time.Second,
	3 * time.Second,
	10 * time.Second,
}

type TelegramConfig struct {
	BaseUrl string
	Token   string
}

type TelegramClient struct {
	httpClient *http.Client
	Logger     *zap.Logger
	Config     *TelegramConfig
}

type sendMessageRequest struct {
	ChatId                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type TelegramResponse struct {
	Ok          bool            `json:"ok"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Result      json.RawMessage `json:"result"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters,omitempty"`
}

func NewTelegramClient(hc *http.Client, l *zap.Logger, cfg *TelegramConfig) *TelegramClient {
	if cfg.BaseUrl == "" {
		cfg.BaseUrl = DefaultBaseUrl
	}
	return &TelegramClient{
		httpClient: hc,
		Logger:     l,
		Config:     cfg,
	}
}

func (tc *TelegramClient) methodUrl(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(tc.Config.BaseUrl, "/"), tc.Config.Token, method)
}

func (tc *TelegramClient) makeRequest(ctx context.Context, method string, payload interface{}) (*TelegramResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.methodUrl(method), bytes.NewReader(body))
	if err != nil {
		// the parse error would quote the url, and with it the bot token
		tc.Logger.Sugar().Errorw("Failed to create the Telegram HTTP request",
			zap.String("method", method),
		)
		return nil, errors.Errorf("telegram %s request could not be built", method)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	res, err := tc.httpClient.Do(req)
	if err != nil {
		// the request url embeds the bot token
		tc.Logger.Sugar().Errorw("Failed to perform the Telegram HTTP request",
			zap.String("method", method),
		)
		return nil, errors.Errorf("telegram %s request failed", method)
	}
	defer res.Body.Close()

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		tc.Logger.Sugar().Errorw("Failed to read the Telegram HTTP response",
			zap.Error(err),
		)
		return nil, errors.Wrap(err, "failed to read the Telegram response")
	}
	parsedBody := &TelegramResponse{}
	if err := json.Unmarshal(bodyBytes, parsedBody); err != nil {
		tc.Logger.Sugar().Errorw("Failed to parse the Telegram response",
			zap.Int("status", res.StatusCode),
			zap.Error(err),
		)
		return nil, errors.Wrap(err, "failed to parse the Telegram response")
	}

	if res.StatusCode != http.StatusOK || !parsedBody.Ok {
		return parsedBody, errors.Errorf("telegram %s: status %d: %s", method, res.StatusCode, parsedBody.Description)
	}
	return parsedBody, nil
}

func (tc *TelegramClient) makeRequestWithBackoff(ctx context.Context, method string, payload interface{}) (*TelegramResponse, error) {
	for _, backoff := range backoffSchedule {
		res, err := tc.makeRequest(ctx, method, payload)
		if err == nil {
			return res, nil
		}
		if res == nil || res.ErrorCode != http.StatusTooManyRequests {
			return res, err
		}

		wait := backoff
		if res.Parameters != nil && res.Parameters.RetryAfter > 0 {
			wait = time.Duration(res.Parameters.RetryAfter) * time.Second
		}
		tc.Logger.Sugar().Infow("Rate limit reached, backing off",
			zap.Duration("backoff", wait),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, errors.Errorf("failed to make the Telegram %s request after backoff", method)
}

// SendMessage posts text to a chat. Link previews are always disabled since messages
// carry explorer links. Text longer than MaxMessageLength is sent in several messages,
// split on line boundaries where possible.
func (tc *TelegramClient) SendMessage(ctx context.Context, chatId string, text string, parseMode string) error {
	for _, chunk := range SplitMessage(text, MaxMessageLength) {
		_, err := tc.makeRequestWithBackoff(ctx, "sendMessage", &sendMessageRequest{
			ChatId:                chatId,
			Text:                  chunk,
			ParseMode:             parseMode,
			DisableWebPagePreview: true,
		})
		if err != nil {
			return err
		}
	}
	tc.Logger.Sugar().Debugw("Sent Telegram message", zap.String("chatId", chatId))
	return nil
}

func SplitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	chunks := make([]string, 0)
	var current strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			cut := cutIndex(line, limit)
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if current.Len()+len(line) > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// cutIndex returns where to split a line longer than limit bytes: at most limit, on a rune
// boundary, and never right after an unpaired MarkdownV2 escape backslash.
func cutIndex(line string, limit int) int {
	n := limit
	for n > 0 && !utf8.RuneStart(line[n]) {
		n--
	}
	backslashes := 0
	for i := n - 1; i >= 0 && line[i] == '\\'; i-- {
		backslashes++
	}
	if backslashes%2 == 1 {
		n--
	}
	if n == 0 {
		_, size := utf8.DecodeRuneInString(line)
		n = size
	}
	return n
}
