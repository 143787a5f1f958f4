// Package presence tracks which teammates currently have the board open.
// Heartbeats live in Redis under a TTL so a closed tab expires on its own,
// and roster changes fan out over a Redis channel so every agent instance
// sees the same list.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/example/archboard/internal/identity"
)

const (
	defaultTTL    = 45 * time.Second
	keyPrefix     = "presence:board:"
	scanBatchSize = 100
)

// Entry is one teammate currently viewing the board.
type Entry struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Service maintains the board roster in Redis.
type Service struct {
	client  *redis.Client
	boardID string
	logger  zerolog.Logger
	ttl     time.Duration

	mu       sync.Mutex
	onChange []func([]Entry)
}

// NewService constructs a presence service for the board.
func NewService(client *redis.Client, boardID string, logger zerolog.Logger) *Service {
	return &Service{client: client, boardID: boardID, logger: logger, ttl: defaultTTL}
}

// OnChange registers a callback receiving the full roster after each change.
func (s *Service) OnChange(fn func([]Entry)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Start begins relaying roster updates published by any instance.
func (s *Service) Start(ctx context.Context) {
	if s.client == nil {
		return
	}
	go s.subscribe(ctx)
}

// Heartbeat refreshes the identity's presence entry and notifies peers.
func (s *Service) Heartbeat(ctx context.Context, ident identity.Identity) error {
	if s.client == nil {
		return errors.New("presence not configured")
	}

	entry := Entry{UserID: ident.UserID, DisplayName: ident.DisplayName, LastSeen: time.Now().UTC()}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal presence entry: %w", err)
	}

	if err := s.client.Set(ctx, s.key(ident.UserID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache presence entry: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel(), payload).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish presence update")
	}
	return nil
}

// Leave removes the identity's entry immediately instead of waiting for the
// TTL, and notifies peers.
func (s *Service) Leave(ctx context.Context, userID string) {
	if s.client == nil || userID == "" {
		return
	}
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Str("user", userID).Msg("failed to delete presence entry")
	}
	if err := s.client.Publish(ctx, s.channel(), []byte(`{}`)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish presence removal")
	}
}

// Roster loads the current viewers, sorted by display name.
func (s *Service) Roster(ctx context.Context) ([]Entry, error) {
	if s.client == nil {
		return nil, nil
	}

	iter := s.client.Scan(ctx, 0, s.key("*"), scanBatchSize).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan presence keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch presence entries: %w", err)
	}

	var roster []Entry
	for _, raw := range values {
		strVal, ok := raw.(string)
		if !ok || strVal == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(strVal), &entry); err != nil {
			s.logger.Warn().Err(err).Msg("failed to decode presence entry")
			continue
		}
		roster = append(roster, entry)
	}

	sort.Slice(roster, func(i, j int) bool { return roster[i].DisplayName < roster[j].DisplayName })
	return roster, nil
}

func (s *Service) subscribe(ctx context.Context) {
	pubsub := s.client.Subscribe(ctx, s.channel())
	defer pubsub.Close()

	ch := pubsub.Channel(redis.WithChannelSize(32))
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			roster, err := s.Roster(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("failed to reload roster")
				continue
			}
			s.emit(roster)
		}
	}
}

func (s *Service) emit(roster []Entry) {
	s.mu.Lock()
	subs := make([]func([]Entry), len(s.onChange))
	copy(subs, s.onChange)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(roster)
	}
}

func (s *Service) key(userID string) string {
	return fmt.Sprintf("%s%s:user:%s", keyPrefix, s.boardID, userID)
}

func (s *Service) channel() string {
	return keyPrefix + s.boardID
}
