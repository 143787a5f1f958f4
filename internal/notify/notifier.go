package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultQueueKey = "archboard:mail"

// Message is one outbound notification handed to the external mailer.
type Message struct {
	Recipient  string    `json:"recipient"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Notifier delivers fire-and-forget notifications. Delivery failures are the
// implementation's problem to log; callers never see them.
type Notifier interface {
	Notify(ctx context.Context, recipient, subject, body string)
}

// QueueNotifier enqueues notification jobs on a Redis list consumed by the
// mail worker that lives outside this repository.
type QueueNotifier struct {
	client   *redis.Client
	queueKey string
	logger   zerolog.Logger
}

// NewQueueNotifier constructs a notifier publishing to the default queue.
func NewQueueNotifier(client *redis.Client, logger zerolog.Logger) *QueueNotifier {
	return &QueueNotifier{client: client, queueKey: defaultQueueKey, logger: logger}
}

// Notify implements Notifier.
func (n *QueueNotifier) Notify(ctx context.Context, recipient, subject, body string) {
	if n == nil || n.client == nil {
		return
	}

	msg := Message{Recipient: recipient, Subject: subject, Body: body, EnqueuedAt: time.Now().UTC()}
	payload, err := json.Marshal(msg)
	if err != nil {
		n.logger.Error().Err(err).Msg("failed to encode notification")
		return
	}

	if err := n.client.LPush(ctx, n.queueKey, payload).Err(); err != nil {
		n.logger.Warn().Err(err).Str("recipient", recipient).Msg("failed to enqueue notification")
	}
}

// LogNotifier writes notifications to the log instead of a queue. Used when
// no Redis is configured and by tests.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, recipient, subject, _ string) {
	n.Logger.Info().Str("recipient", recipient).Str("subject", subject).Msg("notification")
}

// FormatMention renders the subject line for a mention notification.
func FormatMention(author, nodeName string) string {
	return fmt.Sprintf("%s mentioned you on %q", author, nodeName)
}
