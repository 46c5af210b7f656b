package mailer

import (
	"context"

	"github.com/balancebuddy/authflow"
	"go.uber.org/zap"
)

// LogNotifier writes messages to a zap logger instead of sending them. The
// plain-text body, codes and reset links included, is logged at Info.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("mailer")}
}

func (n *LogNotifier) Send(ctx context.Context, msg authflow.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.Info("email not sent, smtp disabled",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.TextBody),
	)
	return nil
}
