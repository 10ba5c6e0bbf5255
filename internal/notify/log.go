package notify

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/vadiminshakov/sweepguard/internal/domain"
)

var htmlTag = regexp.MustCompile(`</?[a-z]+>`)

// LogNotifier writes notifications to the log. It is used when Telegram is not configured and
// never emits commands.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, text string) error {
	return n.SendNow(ctx, text)
}

func (n *LogNotifier) SendNow(_ context.Context, text string) error {
	n.logger.Info("Notification", zap.String("text", htmlTag.ReplaceAllString(text, "")))
	return nil
}

func (n *LogNotifier) Commands() <-chan domain.Command {
	return nil
}

func (n *LogNotifier) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
