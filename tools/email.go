package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/deepnoodle-ai/invoiceflow"
)

// LogNotifier records notifications in the log instead of sending them.
type LogNotifier struct {
	provider string
	logger   *slog.Logger
	clock    func() time.Time
}

func NewLogNotifier(provider string, logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogNotifier{provider: provider, logger: logger, clock: time.Now}
}

func (n *LogNotifier) Name() string { return n.provider }

func (n *LogNotifier) Notify(ctx context.Context, recipient, subject, body string) (*invoiceflow.NotificationReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.logger.Info("notification sent",
		"provider", n.provider,
		"recipient", recipient,
		"subject", subject,
		"body_length", len(body))
	return &invoiceflow.NotificationReceipt{
		Recipient: recipient,
		Subject:   subject,
		Provider:  n.provider,
		SentAt:    n.clock().UTC(),
	}, nil
}
