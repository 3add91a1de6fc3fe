package transcript

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("transcript not found")

type entry struct {
	transcript Transcript
	expires    time.Time
}

// DefaultMaxEntries bounds a store created without an explicit limit.
const DefaultMaxEntries = 1000

type StoreOptions struct {
	TTL time.Duration
	// MaxEntries caps the number of kept transcripts; the oldest is evicted
	// once it is reached.
	MaxEntries int
}

// Store keeps finished transcripts in memory for ttl so the result page can
// offer downloads. Audio is never stored.
type Store struct {
	mu         sync.RWMutex
	items      map[string]entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	stop      chan struct{}
	done      chan struct{}
	running   bool
	closeOnce sync.Once
}

func NewStore(opts StoreOptions) *Store {
	s := newStore(opts, time.Now)
	s.running = true
	go s.janitor(sweepInterval(s.ttl))
	return s
}

func newStore(opts StoreOptions, now func() time.Time) *Store {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	return &Store{
		items:      make(map[string]entry),
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		now:        now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	switch {
	case interval < time.Second:
		return time.Second
	case interval > time.Minute:
		return time.Minute
	default:
		return interval
	}
}

// Save assigns an ID and creation time when missing and stores t. A full
// store first drops expired entries, then the one closest to expiry.
func (s *Store) Save(t Transcript) Transcript {
	now := s.now()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[t.ID]; !exists && len(s.items) >= s.maxEntries {
		s.sweepLocked(now)
		if len(s.items) >= s.maxEntries {
			s.evictOldestLocked()
		}
	}
	s.items[t.ID] = entry{transcript: t, expires: now.Add(s.ttl)}
	return t
}

func (s *Store) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, e := range s.items {
		if oldestID == "" || e.expires.Before(oldest) {
			oldestID, oldest = id, e.expires
		}
	}
	delete(s.items, oldestID)
}

func (s *Store) Get(id string) (Transcript, error) {
	s.mu.RLock()
	e, ok := s.items[id]
	s.mu.RUnlock()

	if !ok || !s.now().Before(e.expires) {
		return Transcript{}, ErrNotFound
	}
	return e.transcript, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Sweep drops expired transcripts and reports how many were removed.
func (s *Store) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

func (s *Store) sweepLocked(now time.Time) int {
	removed := 0
	for id, e := range s.items {
		if !now.Before(e.expires) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

func (s *Store) janitor(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Close stops the janitor. It is safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		if s.running {
			<-s.done
		}
	})
}
