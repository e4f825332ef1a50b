package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"attest/internal/notify"
)

// Sender performs the actual channel send. Implementations exist per
// channel; the dispatcher looks one up by the notification's channel.
type Sender interface {
	// Send delivers the message and returns the provider's message id.
	Send(ctx context.Context, n notify.Notification, msg Message) (providerMessageID string, err error)
}

// SenderRegistry maps channels to senders.
type SenderRegistry map[notify.Channel]Sender

// LogSender writes deliveries to the log. Used for the in-app channel in
// development and as a stand-in until a real provider is wired.
type LogSender struct {
	logger *slog.Logger
	seq    int
	mu     sync.Mutex
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, n notify.Notification, msg Message) (string, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	if s.logger != nil {
		s.logger.InfoContext(ctx, "delivering notification",
			"notification_id", n.ID.String(),
			"channel", string(n.Channel),
			"subject", msg.Subject,
		)
	}
	return fmt.Sprintf("log-%d", seq), nil
}
