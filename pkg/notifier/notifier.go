package notifier

import (
	"context"
	"errors"
	"strings"

	"github.com/OjusWiZard/triton-bot/pkg/clients/telegram"
	"go.uber.org/zap"
)

type Format int

const (
	Format_Plain Format = iota
	Format_MarkdownV2
)

// Sink delivers operator-facing messages.
type Sink interface {
	SendMessage(ctx context.Context, text string, format Format) error
}

const markdownV2Special = "*_[]()~`>#+=|{}.!\\-"

// EscapeMarkdownV2 backslash-escapes every character Telegram's MarkdownV2 treats as markup.
func EscapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Link renders a MarkdownV2 inline link. The label is escaped; inside the url only ')' and
// '\' need escaping.
func Link(label string, url string) string {
	escapedUrl := strings.NewReplacer(`\`, `\\`, `)`, `\)`).Replace(url)
	return "[" + EscapeMarkdownV2(label) + "](" + escapedUrl + ")"
}

type TelegramSink struct {
	client *telegram.TelegramClient
	chatId string
}

func NewTelegramSink(client *telegram.TelegramClient, chatId string) *TelegramSink {
	return &TelegramSink{client: client, chatId: chatId}
}

func (ts *TelegramSink) SendMessage(ctx context.Context, text string, format Format) error {
	parseMode := telegram.ParseMode_None
	if format == Format_MarkdownV2 {
		parseMode = telegram.ParseMode_MarkdownV2
	}
	return ts.client.SendMessage(ctx, ts.chatId, text, parseMode)
}

// LogSink writes messages to the logger, used when no chat is configured and by the
// one-shot commands.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(l *zap.Logger) *LogSink {
	return &LogSink{logger: l}
}

func (ls *LogSink) SendMessage(ctx context.Context, text string, format Format) error {
	ls.logger.Sugar().Infow("Notification", zap.String("text", text))
	return nil
}

// FanoutSink delivers to every sink, even when some fail, and joins the errors.
type FanoutSink struct {
	sinks []Sink
}

func NewFanoutSink(sinks ...Sink) *FanoutSink {
	return &FanoutSink{sinks: sinks}
}

func (fs *FanoutSink) SendMessage(ctx context.Context, text string, format Format) error {
	var errs []error
	for _, s := range fs.sinks {
		if err := s.SendMessage(ctx, text, format); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
