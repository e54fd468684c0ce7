package keyedpager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisChange is the wire form of a change notice broadcast on the pub/sub
// channel. Op is one of "added", "updated", "removed"; Value is empty for
// removals.
type RedisChange struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// RedisSourceConfig configures a RedisSource.
type RedisSourceConfig struct {
	// Set is the sorted set whose members are the dataset keys, ordered by
	// score. Member names must sort lexically in the same order as their
	// scores (zero-padded timestamps or sequence numbers do), since consumers
	// order windows by key.
	Set string
	// Hash maps each member to its value.
	Hash string
	// Channel is the pub/sub channel carrying RedisChange notices.
	Channel string
	// PageSize is the number of members served per fetch; 0 or negative
	// selects a default of 10.
	PageSize int64
	// Logger receives diagnostics; nil selects the logrus standard logger.
	Logger logrus.FieldLogger
}

// RedisSource adapts a Redis sorted set plus hash to the Source contract,
// with a pub/sub channel as the change feed. Its cursor is a decimal rank
// into the sorted set.
//
// Served spans are tracked in rank space and assume the set is append-mostly;
// heavy concurrent re-scoring can skew page boundaries by a few entries.
type RedisSource struct {
	client *redis.Client
	cfg    RedisSourceConfig

	feed        *Feed[ChangeEvent[string, string]]
	hasNext     *Observable[bool]
	hasPrevious *Observable[bool]
	nextLoading *Observable[bool]
	prevLoading *Observable[bool]

	mu             sync.Mutex
	loRank, hiRank int64 // served span [loRank, hiRank) in set ranks
	anchored       bool
	disposed       bool

	pubsub *redis.PubSub
}

var _ Source[string, string, string] = (*RedisSource)(nil)

// NewRedisSource creates a RedisSource and starts consuming change notices.
// The client is owned by the caller and survives Dispose.
func NewRedisSource(client *redis.Client, cfg RedisSourceConfig) *RedisSource {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	s := &RedisSource{
		client:      client,
		cfg:         cfg,
		feed:        NewFeed[ChangeEvent[string, string]](),
		hasNext:     NewObservable(false),
		hasPrevious: NewObservable(false),
		nextLoading: NewObservable(false),
		prevLoading: NewObservable(false),
	}
	s.pubsub = client.Subscribe(context.Background(), cfg.Channel)
	go s.consume()
	return s
}

func (s *RedisSource) HasNext() *Observable[bool]         { return s.hasNext }
func (s *RedisSource) HasPrevious() *Observable[bool]     { return s.hasPrevious }
func (s *RedisSource) NextLoading() *Observable[bool]     { return s.nextLoading }
func (s *RedisSource) PreviousLoading() *Observable[bool] { return s.prevLoading }

func (s *RedisSource) Changes() *Feed[ChangeEvent[string, string]] { return s.feed }

// consume relays pub/sub notices into the change feed until the subscription
// is closed by Dispose.
func (s *RedisSource) consume() {
	for msg := range s.pubsub.Channel() {
		var change RedisChange
		if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
			s.cfg.Logger.WithError(err).Warn("malformed change notice dropped")
			continue
		}
		ev := ChangeEvent[string, string]{Key: change.Key, Value: change.Value}
		switch change.Op {
		case "added":
			ev.Op = OpAdded
		case "updated":
			ev.Op = OpUpdated
		case "removed":
			ev.Op = OpRemoved
		default:
			s.cfg.Logger.WithField("op", change.Op).Warn("unknown change op dropped")
			continue
		}
		s.feed.Publish(ev)
	}
}

// Around serves the first page starting at the anchor position: the cursor
// rank when given, else the rank of key, else the head of the set.
func (s *RedisSource) Around(ctx context.Context, key *string, cursor *string) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	s.mu.Unlock()

	anchor := int64(0)
	switch {
	case cursor != nil:
		rank, err := strconv.ParseInt(*cursor, 10, 64)
		if err != nil {
			return fmt.Errorf("parse cursor: %w", err)
		}
		anchor = rank
	case key != nil:
		rank, err := s.client.ZRank(ctx, s.cfg.Set, *key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("rank of anchor key: %w", err)
		}
		if err == nil {
			anchor = rank
		}
	}
	total, err := s.client.ZCard(ctx, s.cfg.Set).Result()
	if err != nil {
		return fmt.Errorf("size of %s: %w", s.cfg.Set, err)
	}
	if anchor < 0 {
		anchor = 0
	}
	if anchor > total {
		anchor = total
	}
	end := anchor + s.cfg.PageSize
	if end > total {
		end = total
	}
	if err := s.publishRange(ctx, anchor, end); err != nil {
		return err
	}

	s.mu.Lock()
	s.loRank, s.hiRank = anchor, end
	s.anchored = true
	s.mu.Unlock()
	s.hasNext.Set(end < total)
	s.hasPrevious.Set(anchor > 0)
	return nil
}

// Next serves one further page in the forward direction.
func (s *RedisSource) Next(ctx context.Context) error {
	s.nextLoading.Set(true)
	defer s.nextLoading.Set(false)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if !s.anchored {
		s.mu.Unlock()
		return errNotAnchored
	}
	start := s.hiRank
	s.mu.Unlock()

	total, err := s.client.ZCard(ctx, s.cfg.Set).Result()
	if err != nil {
		return fmt.Errorf("size of %s: %w", s.cfg.Set, err)
	}
	end := start + s.cfg.PageSize
	if end > total {
		end = total
	}
	if err := s.publishRange(ctx, start, end); err != nil {
		return err
	}

	s.mu.Lock()
	s.hiRank = end
	s.mu.Unlock()
	s.hasNext.Set(end < total)
	return nil
}

// Previous serves one further page in the backward direction.
func (s *RedisSource) Previous(ctx context.Context) error {
	s.prevLoading.Set(true)
	defer s.prevLoading.Set(false)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if !s.anchored {
		s.mu.Unlock()
		return errNotAnchored
	}
	end := s.loRank
	s.mu.Unlock()

	start := end - s.cfg.PageSize
	if start < 0 {
		start = 0
	}
	if err := s.publishRange(ctx, start, end); err != nil {
		return err
	}

	s.mu.Lock()
	s.loRank = start
	s.mu.Unlock()
	s.hasPrevious.Set(start > 0)
	return nil
}

// publishRange fetches set members in [start, stop) with their hash values
// and publishes an Added event per entry.
func (s *RedisSource) publishRange(ctx context.Context, start, stop int64) error {
	if start >= stop {
		return nil
	}
	members, err := s.client.ZRange(ctx, s.cfg.Set, start, stop-1).Result()
	if err != nil {
		return fmt.Errorf("range of %s: %w", s.cfg.Set, err)
	}
	if len(members) == 0 {
		return nil
	}
	values, err := s.client.HMGet(ctx, s.cfg.Hash, members...).Result()
	if err != nil {
		return fmt.Errorf("values from %s: %w", s.cfg.Hash, err)
	}
	for i, member := range members {
		value, _ := values[i].(string)
		s.feed.Publish(ChangeEvent[string, string]{Op: OpAdded, Key: member, Value: value})
	}
	return nil
}

// Dispose closes the pub/sub subscription, which also stops the relay
// goroutine. The Redis client stays open for its owner. Safe to call more
// than once.
func (s *RedisSource) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.mu.Unlock()

	if err := s.pubsub.Close(); err != nil {
		s.cfg.Logger.WithError(err).Warn("closing change subscription")
	}
}

// PublishRedisChange broadcasts a change notice on channel. Producers call it
// after mutating the backing set and hash so that every subscribed source
// relays the mutation to its consumers.
func PublishRedisChange(ctx context.Context, client *redis.Client, channel string, change RedisChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change notice: %w", err)
	}
	if err := client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change notice: %w", err)
	}
	return nil
}
