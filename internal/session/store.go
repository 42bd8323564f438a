package session

import (
	"context"
	"sync"
	"time"

	"keyshop/entity"

	"golang.org/x/time/rate"
)

type State int

const (
	Idle State = iota
	AwaitingCredentials
	AwaitingCategory
	AwaitingProduct
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingCredentials:
		return "awaiting_credentials"
	case AwaitingCategory:
		return "awaiting_category"
	case AwaitingProduct:
		return "awaiting_product"
	}
	return "unknown"
}

// Session is the conversation record of one chat. It is only touched while
// its lock is held through Store.acquire.
type Session struct {
	mu         sync.Mutex
	users      int // guarded by Store.mu
	touched    time.Time
	limiter    *rate.Limiter
	state      State
	categories []string
	category   string
	offers     []*entity.ProductStock
}

func (s *Session) reset() {
	s.state = Idle
	s.categories = nil
	s.category = ""
	s.offers = nil
}

// Store keeps one session per chat. Sessions untouched for longer than the
// idle timeout start over from Idle; zero disables the timeout.
type Store struct {
	mu          sync.Mutex
	sessions    map[int64]*Session
	idleTimeout time.Duration
	loginLimit  rate.Limit
	loginBurst  int
	now         func() time.Time
}

// NewStore allows loginsPerMinute credential attempts per chat;
// zero or less means unlimited.
func NewStore(idleTimeout time.Duration, loginsPerMinute int) *Store {
	limit, burst := rate.Inf, 0
	if loginsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(loginsPerMinute))
		burst = loginsPerMinute
	}
	return &Store{
		sessions:    make(map[int64]*Session),
		idleTimeout: idleTimeout,
		loginLimit:  limit,
		loginBurst:  burst,
		now:         time.Now,
	}
}

func (s *Store) expired(sess *Session, now time.Time) bool {
	return s.idleTimeout > 0 && !sess.touched.IsZero() && now.Sub(sess.touched) > s.idleTimeout
}

// acquire returns the locked session of the chat; release it when done.
func (s *Store) acquire(chatId int64) *Session {
	s.mu.Lock()
	sess, ok := s.sessions[chatId]
	if !ok {
		sess = &Session{limiter: rate.NewLimiter(s.loginLimit, s.loginBurst)}
		s.sessions[chatId] = sess
	}
	sess.users++
	s.mu.Unlock()

	sess.mu.Lock()
	now := s.now()
	if s.expired(sess, now) {
		sess.reset()
	}
	sess.touched = now
	return sess
}

func (s *Store) release(sess *Session) {
	sess.mu.Unlock()
	s.mu.Lock()
	sess.users--
	s.mu.Unlock()
}

// State reports the current state of the chat without touching it.
func (s *Store) State(chatId int64) State {
	s.mu.Lock()
	sess, ok := s.sessions[chatId]
	s.mu.Unlock()
	if !ok {
		return Idle
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if s.expired(sess, s.now()) {
		return Idle
	}
	return sess.state
}

// Sweep evicts idle sessions nobody is using and returns how many were removed.
func (s *Store) Sweep() int {
	if s.idleTimeout <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if sess.users == 0 && s.expired(sess, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Janitor sweeps idle sessions every interval until ctx is done.
func (s *Store) Janitor(ctx context.Context, interval time.Duration) {
	if s.idleTimeout <= 0 {
		return
	}
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
