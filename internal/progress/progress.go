package progress

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// ErrInProgress is returned by Start when the key is already running.
var ErrInProgress = errors.New("crawl already in progress")

// Entry is one running crawl.
type Entry struct {
	Key       string    `json:"key"`
	Keyword   string    `json:"keyword"`
	Stage     string    `json:"stage"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store tracks running crawls. Entries are inserted on start, removed on
// completion or error, and swept once they have not been updated for the
// TTL, so a crashed run cannot block its keyword forever.
type Store struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets how long an entry may go without updates. Defaults to 30m.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]Entry),
		ttl:     30 * time.Minute,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers a running crawl. An expired entry for the same key is
// replaced.
func (s *Store) Start(key, keyword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && !s.expired(e, now) {
		return ErrInProgress
	}
	s.entries[key] = Entry{
		Key:       key,
		Keyword:   keyword,
		Stage:     "started",
		StartedAt: now,
		UpdatedAt: now,
	}
	return nil
}

// Update records the stage a running crawl reached. Unknown keys are ignored.
func (s *Store) Update(key, stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return
	}
	e.Stage = stage
	e.UpdatedAt = s.now()
	s.entries[key] = e
}

// Finish removes a crawl.
func (s *Store) Finish(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Get returns the entry of key.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

// List returns all entries, oldest first.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	slices.SortFunc(list, func(a, b Entry) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return list
}

// Len returns the number of running crawls.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, key)
			removed++
			s.logger.Warn("stale crawl progress removed", "key", key, "stage", e.Stage, "started_at", e.StartedAt)
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) expired(e Entry, now time.Time) bool {
	return now.Sub(e.UpdatedAt) >= s.ttl
}
