package repository

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/ordering"
	"github.com/okian/scoreboard/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// The BST comparator is ordering.Compare, where "less" means ranks earlier.
// In-order traversal therefore yields the leaderboard from first to last, and
// subtree sizes give positions and page seeks in O(log n) expected time.

const backendMemory = "memory"

// treap node
type node struct {
	key   ordering.Key
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, key ordering.Key) *node {
	if n == nil {
		return &node{key: key, prio: rand.Uint64(), size: 1}
	}
	if ordering.Compare(key, n.key) < 0 {
		n.left = insert(n.left, key)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, key)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, key ordering.Key) *node {
	if n == nil {
		return nil
	}
	switch c := ordering.Compare(key, n.key); {
	case c < 0:
		n.left = deleteNode(n.left, key)
	case c > 0:
		n.right = deleteNode(n.right, key)
	default:
		// Rotate the higher-priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, key)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, key)
		}
	}
	fix(n)
	return n
}

// countAbove returns how many keys in the tree rank strictly above key.
func countAbove(n *node, key ordering.Key) int {
	above := 0
	for n != nil {
		if ordering.Compare(key, n.key) <= 0 {
			n = n.left
			continue
		}
		above += nsize(n.left) + 1
		n = n.right
	}
	return above
}

// collectRange appends up to limit keys in rank order, skipping the first offset.
func collectRange(n *node, offset, limit int, out *[]ordering.Key) {
	if n == nil || len(*out) >= limit {
		return
	}
	leftSize := nsize(n.left)
	if offset < leftSize {
		collectRange(n.left, offset, limit, out)
	}
	if len(*out) < limit && offset <= leftSize {
		*out = append(*out, n.key)
	}
	if len(*out) < limit {
		collectRange(n.right, max(0, offset-leftSize-1), limit, out)
	}
}

// TreapStore keeps every row in memory, indexed by the ranking order.
type TreapStore struct {
	mu   sync.RWMutex
	root *node
	byID map[string]model.UserScore
	now  func() time.Time

	metricsUpdateInterval time.Duration
	closed                bool

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTreapStore constructs a treap store with configuration options.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		byID:                  make(map[string]model.UserScore),
		now:                   func() time.Time { return time.Now().UTC() },
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background metrics goroutine. Every later call fails with
// ErrClosed.
func (s *TreapStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// checkOpen fails once Close has run. Caller holds s.mu.
func (s *TreapStore) checkOpen(op string) error {
	if s.closed {
		return fmt.Errorf("%w: %s: %w", model.ErrStorage, op, ErrClosed)
	}
	return nil
}

// Create implements Store.Create.
func (s *TreapStore) Create(ctx context.Context, userID, displayName string) (model.UserScore, error) {
	defer observe("create", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen("create"); err != nil {
		return model.UserScore{}, err
	}
	if _, ok := s.byID[userID]; ok {
		return model.UserScore{}, fmt.Errorf("%w: %s", model.ErrAlreadyExists, userID)
	}
	now := s.now()
	u := model.UserScore{UserID: userID, DisplayName: displayName, CreatedAt: now, UpdatedAt: now}
	s.byID[userID] = u
	s.root = insert(s.root, ordering.KeyOf(u))
	return u, nil
}

// Get implements Store.Get.
func (s *TreapStore) Get(ctx context.Context, userID string) (model.UserScore, error) {
	defer observe("get", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("get"); err != nil {
		return model.UserScore{}, err
	}

	u, ok := s.byID[userID]
	if !ok {
		return model.UserScore{}, fmt.Errorf("%w: %s", model.ErrNotFound, userID)
	}
	return u, nil
}

// SetScore implements Store.SetScore.
func (s *TreapStore) SetScore(ctx context.Context, userID string, score int64) (model.UserScore, error) {
	defer observe("set_score", time.Now())

	if score < 0 {
		return model.UserScore{}, fmt.Errorf("%w: score must not be negative", model.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(userID, func(int64) (int64, error) { return score, nil })
}

// IncrementScore implements Store.IncrementScore. The read-modify-write runs
// under the write lock, so concurrent increments never lose an update.
func (s *TreapStore) IncrementScore(ctx context.Context, userID string, delta int64) (model.UserScore, error) {
	defer observe("increment_score", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(userID, func(old int64) (int64, error) {
		if delta > 0 && old > math.MaxInt64-delta {
			return 0, fmt.Errorf("%w: score overflow", model.ErrValidation)
		}
		if old+delta < 0 {
			return 0, fmt.Errorf("%w: score must not be negative", model.ErrValidation)
		}
		return old + delta, nil
	})
}

// replaceLocked re-keys a row after computing its new score. Caller holds s.mu.
func (s *TreapStore) replaceLocked(userID string, next func(int64) (int64, error)) (model.UserScore, error) {
	if err := s.checkOpen("update"); err != nil {
		return model.UserScore{}, err
	}
	u, ok := s.byID[userID]
	if !ok {
		return model.UserScore{}, fmt.Errorf("%w: %s", model.ErrNotFound, userID)
	}
	score, err := next(u.Score)
	if err != nil {
		return model.UserScore{}, err
	}
	s.root = deleteNode(s.root, ordering.KeyOf(u))
	u.Score = score
	u.UpdatedAt = s.now()
	s.byID[userID] = u
	s.root = insert(s.root, ordering.KeyOf(u))
	return u, nil
}

// ListAll implements Store.ListAll. Rows come back in ranking order.
func (s *TreapStore) ListAll(ctx context.Context) ([]model.UserScore, error) {
	defer observe("list_all", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("list_all"); err != nil {
		return nil, err
	}

	keys := make([]ordering.Key, 0, len(s.byID))
	collectRange(s.root, 0, len(s.byID), &keys)
	return s.rowsLocked(keys), nil
}

// ListPage implements Store.ListPage in O(log n + limit).
func (s *TreapStore) ListPage(ctx context.Context, offset, limit int) ([]model.UserScore, int, error) {
	defer observe("list_page", time.Now())

	if offset < 0 || limit < 1 {
		return nil, 0, fmt.Errorf("%w: invalid page window", model.ErrValidation)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("list_page"); err != nil {
		return nil, 0, err
	}

	total := len(s.byID)
	if offset >= total {
		return []model.UserScore{}, total, nil
	}
	keys := make([]ordering.Key, 0, min(limit, total-offset))
	collectRange(s.root, offset, limit, &keys)
	return s.rowsLocked(keys), total, nil
}

// Position implements Positioner in O(log n).
func (s *TreapStore) Position(ctx context.Context, userID string) (int, int, model.UserScore, error) {
	defer observe("position", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("position"); err != nil {
		return 0, 0, model.UserScore{}, err
	}

	u, ok := s.byID[userID]
	if !ok {
		return 0, 0, model.UserScore{}, fmt.Errorf("%w: %s", model.ErrNotFound, userID)
	}
	return countAbove(s.root, ordering.KeyOf(u)) + 1, len(s.byID), u, nil
}

// Count implements Store.Count.
func (s *TreapStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("count"); err != nil {
		return 0, err
	}
	return len(s.byID), nil
}

func (s *TreapStore) rowsLocked(keys []ordering.Key) []model.UserScore {
	out := make([]model.UserScore, len(keys))
	for i, k := range keys {
		out[i] = s.byID[k.UserID]
	}
	return out
}

// startMetricsUpdater publishes the population gauge until Close or ctx is done.
func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				n, _ := s.Count(ctx)
				metrics.UpdateTotalUsers(n)
			}
		}
	}()
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(backendMemory, op, float64(time.Since(start).Microseconds())/1000)
}
