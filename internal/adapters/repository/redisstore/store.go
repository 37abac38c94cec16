// Package redisstore implements the score store on Redis.
//
// Each user is a hash under <prefix>:user:<id>. The ranking is one sorted set
// under <prefix>:ranking whose score is the negated user score and whose member
// is "<createdAt nanos, 20 digits>:<userId>". Ascending sorted-set order
// therefore equals the ranking order, and ZRANK is the position minus one.
// Sorted-set scores are doubles, so scores above 2^53 order approximately.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/metrics"
)

const backendRedis = "redis"

// memberPrefixLen is the width of the createdAt prefix plus the separator.
const memberPrefixLen = 21

// Store implements repository.Store and repository.Positioner on Redis.
type Store struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
	owned  bool
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps an existing client. The caller keeps ownership of rdb.
func New(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{
		rdb:    rdb,
		prefix: "scoreboard",
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open dials Redis, verifies the connection and returns a Store that closes
// the client on Close.
func Open(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: ping redis %s: %w", model.ErrStorage, addr, err)
	}
	s := New(rdb, opts...)
	s.owned = true
	return s, nil
}

// Close closes the client when the Store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) userKey(userID string) string { return s.prefix + ":user:" + userID }
func (s *Store) rankingKey() string          { return s.prefix + ":ranking" }

func (s *Store) keys(userID string) []string {
	return []string{s.userKey(userID), s.rankingKey()}
}

// Create implements repository.Store.
func (s *Store) Create(ctx context.Context, userID, displayName string) (model.UserScore, error) {
	defer observe("create", time.Now())

	now := s.now()
	nanos := now.UnixNano()
	member := fmt.Sprintf("%020d:%s", nanos, userID)

	created, err := createScript.Run(ctx, s.rdb, s.keys(userID),
		userID, displayName, nanos, member).Int()
	if err != nil {
		return model.UserScore{}, storageErr("create", err)
	}
	if created == 0 {
		return model.UserScore{}, fmt.Errorf("%w: %s", model.ErrAlreadyExists, userID)
	}
	return model.UserScore{
		UserID:      userID,
		DisplayName: displayName,
		CreatedAt:   fromNanos(nanos),
		UpdatedAt:   fromNanos(nanos),
	}, nil
}

// Get implements repository.Store.
func (s *Store) Get(ctx context.Context, userID string) (model.UserScore, error) {
	defer observe("get", time.Now())

	vals, err := s.rdb.HMGet(ctx, s.userKey(userID), rowFields...).Result()
	if err != nil {
		return model.UserScore{}, storageErr("get", err)
	}
	return parseRow(vals, userID)
}

// SetScore implements repository.Store.
func (s *Store) SetScore(ctx context.Context, userID string, score int64) (model.UserScore, error) {
	defer observe("set_score", time.Now())

	if score < 0 {
		return model.UserScore{}, fmt.Errorf("%w: score must not be negative", model.ErrValidation)
	}
	vals, err := setScoreScript.Run(ctx, s.rdb, s.keys(userID),
		score, s.now().UnixNano(), strconv.FormatInt(-score, 10)).Slice()
	if err != nil {
		return model.UserScore{}, scriptErr("set_score", userID, err)
	}
	return parseRow(vals, userID)
}

// IncrementScore implements repository.Store. The read-check-add runs inside
// one Lua script, so concurrent increments are serialized by Redis.
func (s *Store) IncrementScore(ctx context.Context, userID string, delta int64) (model.UserScore, error) {
	defer observe("increment_score", time.Now())

	vals, err := incrementScript.Run(ctx, s.rdb, s.keys(userID),
		delta, s.now().UnixNano()).Slice()
	if err != nil {
		return model.UserScore{}, scriptErr("increment_score", userID, err)
	}
	return parseRow(vals, userID)
}

// ListAll implements repository.Store. Rows come back in ranking order.
func (s *Store) ListAll(ctx context.Context) ([]model.UserScore, error) {
	defer observe("list_all", time.Now())

	members, err := s.rdb.ZRange(ctx, s.rankingKey(), 0, -1).Result()
	if err != nil {
		return nil, storageErr("list_all", err)
	}
	return s.loadRows(ctx, members)
}

// ListPage implements repository.Store.
func (s *Store) ListPage(ctx context.Context, offset, limit int) ([]model.UserScore, int, error) {
	defer observe("list_page", time.Now())

	if offset < 0 || limit < 1 {
		return nil, 0, fmt.Errorf("%w: invalid page window", model.ErrValidation)
	}

	stop := int64(offset) + int64(limit) - 1
	if stop < int64(offset) {
		stop = math.MaxInt64
	}

	var (
		card   *redis.IntCmd
		window *redis.StringSliceCmd
	)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		card = pipe.ZCard(ctx, s.rankingKey())
		window = pipe.ZRange(ctx, s.rankingKey(), int64(offset), stop)
		return nil
	})
	if err != nil {
		return nil, 0, storageErr("list_page", err)
	}

	rows, err := s.loadRows(ctx, window.Val())
	if err != nil {
		return nil, 0, err
	}
	return rows, int(card.Val()), nil
}

// Position implements repository.Positioner with ZRANK.
func (s *Store) Position(ctx context.Context, userID string) (int, int, model.UserScore, error) {
	defer observe("position", time.Now())

	reply, err := positionScript.Run(ctx, s.rdb, s.keys(userID)).Slice()
	if err != nil {
		return 0, 0, model.UserScore{}, scriptErr("position", userID, err)
	}
	if len(reply) != 3 {
		return 0, 0, model.UserScore{}, storageErr("position", fmt.Errorf("unexpected reply length %d", len(reply)))
	}
	rank, ok1 := reply[0].(int64)
	total, ok2 := reply[1].(int64)
	row, ok3 := reply[2].([]any)
	if !ok1 || !ok2 || !ok3 {
		return 0, 0, model.UserScore{}, storageErr("position", errors.New("unexpected reply types"))
	}
	u, err := parseRow(row, userID)
	if err != nil {
		return 0, 0, model.UserScore{}, err
	}
	return int(rank) + 1, int(total), u, nil
}

// Count implements repository.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.rdb.ZCard(ctx, s.rankingKey()).Result()
	if err != nil {
		return 0, storageErr("count", err)
	}
	return int(n), nil
}

// loadRows fetches the hashes for members in one pipeline, keeping order.
func (s *Store) loadRows(ctx context.Context, members []string) ([]model.UserScore, error) {
	out := make([]model.UserScore, 0, len(members))
	if len(members) == 0 {
		return out, nil
	}

	cmds := make([]*redis.SliceCmd, len(members))
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, m := range members {
			cmds[i] = pipe.HMGet(ctx, s.userKey(userIDFromMember(m)), rowFields...)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("load rows", err)
	}

	for i, cmd := range cmds {
		u, err := parseRow(cmd.Val(), userIDFromMember(members[i]))
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

var rowFields = []string{"id", "name", "score", "created", "updated"}

func parseRow(vals []any, userID string) (model.UserScore, error) {
	if len(vals) != len(rowFields) || vals[0] == nil {
		return model.UserScore{}, fmt.Errorf("%w: %s", model.ErrNotFound, userID)
	}
	str := make([]string, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			return model.UserScore{}, storageErr("parse row", fmt.Errorf("field %s missing for %s", rowFields[i], userID))
		}
		str[i] = s
	}

	score, err := strconv.ParseInt(str[2], 10, 64)
	if err != nil {
		return model.UserScore{}, storageErr("parse score", err)
	}
	created, err := strconv.ParseInt(str[3], 10, 64)
	if err != nil {
		return model.UserScore{}, storageErr("parse created", err)
	}
	updated, err := strconv.ParseInt(str[4], 10, 64)
	if err != nil {
		return model.UserScore{}, storageErr("parse updated", err)
	}
	return model.UserScore{
		UserID:      str[0],
		DisplayName: str[1],
		Score:       score,
		CreatedAt:   fromNanos(created),
		UpdatedAt:   fromNanos(updated),
	}, nil
}

func userIDFromMember(member string) string {
	if len(member) <= memberPrefixLen {
		return member
	}
	return member[memberPrefixLen:]
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// scriptErr classifies a script reply: nil means the user is missing, and
// the script's own error replies are validation failures.
func scriptErr(op, userID string, err error) error {
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", model.ErrNotFound, userID)
	}
	msg := err.Error()
	if strings.Contains(msg, "score overflow") || strings.Contains(msg, "negative score") {
		return fmt.Errorf("%w: %s", model.ErrValidation, msg)
	}
	return storageErr(op, err)
}

func storageErr(op string, err error) error {
	metrics.RecordErrorByComponent("repository", "storage")
	return fmt.Errorf("%w: redis %s: %w", model.ErrStorage, op, err)
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(backendRedis, op, float64(time.Since(start).Microseconds())/1000)
}
