// Package notify delivers alerts to the operator and receives their commands.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vadiminshakov/sweepguard/internal/domain"
	"github.com/vadiminshakov/sweepguard/internal/metrics"
	"github.com/vadiminshakov/sweepguard/pkg/retrier"
)

const (
	queueSize       = 64
	commandBuffer   = 8
	updateTimeout   = 30
	drainTimeout    = 5 * time.Second
	sendTimeout     = 15 * time.Second
	messagesPerSec  = 1
	messageBurst    = 3
	deliveryRetries = 3
)

// ErrQueueFull is returned by Send when delivery is too far behind.
var ErrQueueFull = errors.New("notification queue is full")

// botPath matches the token segment of Bot API request URLs.
var botPath = regexp.MustCompile(`/bot[^/\s"]+/`)

const redactedBotPath = "/bot<redacted>/"

// Channel is an operator notification channel.
type Channel interface {
	// Send queues text for delivery and returns without waiting for it.
	Send(ctx context.Context, text string) error
	// SendNow delivers text before returning.
	SendNow(ctx context.Context, text string) error
	// Commands emits operator commands. It may never fire.
	Commands() <-chan domain.Command
	// Run delivers queued messages and polls for commands until ctx is cancelled.
	Run(ctx context.Context) error
}

// BotAPI is the part of the Telegram client used here.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Telegram sends HTML messages to one chat and accepts commands only from that chat.
type Telegram struct {
	bot      BotAPI
	token    string
	chatID   int64
	queue    chan string
	commands chan domain.Command
	limiter  *rate.Limiter
	retrier  *retrier.Retrier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewTelegram connects to the Bot API with token.
func NewTelegram(token string, chatID int64, logger *zap.Logger, m *metrics.Metrics) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: sendTimeout + updateTimeout*time.Second})
	if err != nil {
		// the Bot API error echoes the request URL, which carries the token
		return nil, errors.New("telegram bot authorization failed, check TELEGRAM_BOT_TOKEN")
	}
	logger.Info("Telegram bot authorized", zap.String("bot", bot.Self.UserName))
	t := NewTelegramWithBot(bot, chatID, logger, m)
	// the library logs polling failures itself, with the request URL
	if err := tgbotapi.SetLogger(&botLogger{logger: logger.Named("tgbotapi"), token: token}); err != nil {
		return nil, errors.Wrap(err, "install telegram logger")
	}
	return t, nil
}

// NewTelegramWithBot wraps an existing client.
func NewTelegramWithBot(bot BotAPI, chatID int64, logger *zap.Logger, m *metrics.Metrics) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	var token string
	if api, ok := bot.(*tgbotapi.BotAPI); ok {
		token = api.Token
	}
	return &Telegram{
		bot:      bot,
		token:    token,
		chatID:   chatID,
		queue:    make(chan string, queueSize),
		commands: make(chan domain.Command, commandBuffer),
		limiter:  rate.NewLimiter(rate.Limit(messagesPerSec), messageBurst),
		retrier: retrier.New(
			retrier.WithMaxRetries(deliveryRetries),
			retrier.WithInitialInterval(500*time.Millisecond),
			retrier.WithMaxInterval(5*time.Second),
			retrier.WithMultiplier(3),
			retrier.WithRetryIf(isRetryable),
		),
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

func (t *Telegram) Send(_ context.Context, text string) error {
	select {
	case t.queue <- text:
		return nil
	default:
		t.metrics.Notification(false)
		return ErrQueueFull
	}
}

func (t *Telegram) SendNow(ctx context.Context, text string) error {
	return t.deliver(ctx, text)
}

func (t *Telegram) Commands() <-chan domain.Command {
	return t.commands
}

// Run delivers queued messages and polls for updates. On cancellation queued messages get a short
// grace period to go out.
func (t *Telegram) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t.deliverLoop(ctx)
		return nil
	})
	g.Go(func() error {
		t.listen(ctx)
		return nil
	})
	return g.Wait()
}

func (t *Telegram) deliverLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			t.drain()
			return
		case text := <-t.queue:
			// a dequeued message is delivered even if shutdown starts meanwhile
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
			if err := t.deliver(sendCtx, text); err != nil {
				t.logger.Error("Failed to send Telegram message", zap.Error(err))
			}
			cancel()
		}
	}
}

func (t *Telegram) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case text := <-t.queue:
			if err := t.deliver(ctx, text); err != nil {
				t.logger.Error("Failed to send Telegram message during shutdown", zap.Error(err))
			}
		default:
			return
		}
	}
}

func (t *Telegram) deliver(ctx context.Context, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		t.metrics.Notification(false)
		return errors.Wrap(err, "wait for send slot")
	}

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	err := t.retrier.Do(ctx, func(context.Context) error {
		_, err := t.bot.Send(msg)
		return err
	})
	t.metrics.Notification(err == nil)
	if err != nil {
		return errors.Wrap(redactError(err, t.token), "send telegram message")
	}
	t.logger.Debug("Telegram message sent")
	return nil
}

func (t *Telegram) listen(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout
	updates := t.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	if msg.Chat.ID != t.chatID {
		t.logger.Debug("Ignoring message from unknown chat", zap.Int64("chat_id", msg.Chat.ID))
		return
	}
	if !msg.IsCommand() {
		return
	}

	name, ok := domain.ParseCommandName(msg.Command())
	if !ok {
		t.logger.Debug("Ignoring unknown command", zap.String("command", msg.Command()))
		return
	}

	select {
	case t.commands <- domain.Command{Name: name, ChatID: msg.Chat.ID, ReceivedAt: t.now()}:
	case <-ctx.Done():
	}
}

// isRetryable treats Telegram client errors other than rate limiting as permanent.
func isRetryable(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return true
}

// redactError removes the bot token from transport errors, whose message carries the request URL.
func redactError(err error, token string) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) && (token == "" || !strings.Contains(err.Error(), token)) {
		return err
	}
	return errors.New(redact(err.Error(), token))
}

func redact(s, token string) string {
	if token != "" {
		s = strings.ReplaceAll(s, token, "<redacted>")
	}
	return botPath.ReplaceAllString(s, redactedBotPath)
}

// botLogger routes Bot API library logging through zap without the token.
type botLogger struct {
	logger *zap.Logger
	token  string
}

func (l *botLogger) Println(v ...interface{}) {
	l.logger.Warn(redact(strings.TrimSuffix(fmt.Sprintln(v...), "\n"), l.token))
}

func (l *botLogger) Printf(format string, v ...interface{}) {
	l.logger.Warn(redact(fmt.Sprintf(format, v...), l.token))
}
