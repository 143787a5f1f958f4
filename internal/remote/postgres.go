package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/example/archboard/internal/types"
)

const (
	defaultChannelPrefix = "board:"
	maxBackoffDelay      = 30 * time.Second
)

// PostgresStore keeps the board row in a single JSONB-backed Postgres row and
// relays every write through a Redis channel so peers see it without polling.
type PostgresStore struct {
	pool    *pgxpool.Pool
	pubsub  *redis.Client
	boardID string
	logger  zerolog.Logger

	maxRetries int
	retryDelay time.Duration
}

// StoreOption configures a PostgresStore.
type StoreOption func(*PostgresStore)

// WithMaxRetries sets the retry count for transient database failures.
func WithMaxRetries(n int) StoreOption {
	return func(s *PostgresStore) {
		s.maxRetries = n
	}
}

// WithRetryDelay sets the base delay between database retries.
func WithRetryDelay(d time.Duration) StoreOption {
	return func(s *PostgresStore) {
		s.retryDelay = d
	}
}

// NewPostgresStore constructs a store for the given board id.
func NewPostgresStore(pool *pgxpool.Pool, pubsub *redis.Client, boardID string, logger zerolog.Logger, opts ...StoreOption) *PostgresStore {
	s := &PostgresStore{
		pool:       pool,
		pubsub:     pubsub,
		boardID:    boardID,
		logger:     logger,
		maxRetries: 3,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates the board table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
                CREATE TABLE IF NOT EXISTS board_documents (
                        board_id    text PRIMARY KEY,
                        document    jsonb NOT NULL,
                        connections jsonb NOT NULL DEFAULT '[]',
                        updated_at  timestamptz NOT NULL
                )`)
	if err != nil {
		return fmt.Errorf("ensure board schema: %w", err)
	}
	return nil
}

// Fetch reads the board row. ErrNotFound signals the first-run condition.
func (s *PostgresStore) Fetch(ctx context.Context) (Row, error) {
	start := time.Now()

	var (
		docBytes  []byte
		connBytes []byte
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx, `
                SELECT document, connections, updated_at
                FROM board_documents
                WHERE board_id = $1`, s.boardID).Scan(&docBytes, &connBytes, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrNotFound
	}
	if err != nil {
		return Row{}, fmt.Errorf("fetch board row: %w", err)
	}

	var row Row
	if err := json.Unmarshal(docBytes, &row.Document); err != nil {
		return Row{}, fmt.Errorf("decode board document: %w", err)
	}
	if len(connBytes) > 0 {
		if err := json.Unmarshal(connBytes, &row.Connections); err != nil {
			return Row{}, fmt.Errorf("decode board connections: %w", err)
		}
	}
	row.UpdatedAt = types.At(updatedAt)

	fetchLatency.WithLabelValues(s.boardID).Observe(time.Since(start).Seconds())
	return row, nil
}

// Write upserts the board row in full and publishes it on the push feed.
// The publish is best-effort: a missed notification is recovered by the
// subscribers' polling fallback.
func (s *PostgresStore) Write(ctx context.Context, row Row) error {
	start := time.Now()

	docBytes, err := json.Marshal(row.Document)
	if err != nil {
		return fmt.Errorf("encode board document: %w", err)
	}
	connBytes, err := json.Marshal(row.Connections)
	if err != nil {
		return fmt.Errorf("encode board connections: %w", err)
	}

	err = s.retry(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
                        INSERT INTO board_documents (board_id, document, connections, updated_at)
                        VALUES ($1, $2, $3, $4)
                        ON CONFLICT (board_id)
                        DO UPDATE SET document = EXCLUDED.document,
                                      connections = EXCLUDED.connections,
                                      updated_at = EXCLUDED.updated_at`,
			s.boardID, docBytes, connBytes, row.UpdatedAt.Time)
		return err
	})
	if err != nil {
		return fmt.Errorf("write board row: %w", err)
	}

	writeLatency.WithLabelValues(s.boardID).Observe(time.Since(start).Seconds())

	if s.pubsub != nil {
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode feed payload: %w", err)
		}
		if err := s.pubsub.Publish(ctx, s.channel(), payload).Err(); err != nil {
			s.logger.Warn().Err(err).Str("channel", s.channel()).Msg("feed publish failed; peers will pick the write up by polling")
		}
	}

	return nil
}

// Subscribe consumes the Redis push feed, redelivering every observed write
// to fn. The consume loop reconnects with exponential backoff until the
// context is cancelled or the returned stop function is called.
func (s *PostgresStore) Subscribe(ctx context.Context, fn func(Row)) (func(), error) {
	if s.pubsub == nil {
		return nil, errors.New("push feed not configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	go s.consumeLoop(ctx, fn)
	return cancel, nil
}

func (s *PostgresStore) consumeLoop(ctx context.Context, fn func(Row)) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := s.pubsub.Subscribe(ctx, s.channel())
		if err := s.consume(ctx, pubsub, fn); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("feed subscription interrupted; retrying")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			if backoff *= 2; backoff > maxBackoffDelay {
				backoff = maxBackoffDelay
			}
		}
	}
}

func (s *PostgresStore) consume(ctx context.Context, pubsub *redis.PubSub, fn func(Row)) error {
	defer pubsub.Close()

	ch := pubsub.Channel(redis.WithChannelSize(64))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("pubsub channel closed")
			}
			var row Row
			if err := json.Unmarshal([]byte(msg.Payload), &row); err != nil {
				s.logger.Warn().Err(err).Msg("failed to decode feed payload")
				continue
			}
			feedMessages.WithLabelValues(s.boardID).Inc()
			fn(row)
		}
	}
}

func (s *PostgresStore) channel() string {
	return defaultChannelPrefix + s.boardID
}

func (s *PostgresStore) retry(ctx context.Context, fn func(context.Context) error) error {
	delay := s.retryDelay
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isTransient(err) || attempt == s.maxRetries {
			return err
		}
		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01": // deadlock_detected
			return true
		}
	}

	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}
