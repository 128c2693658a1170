package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jobboard/apiserver/internal/auth"
	"github.com/jobboard/apiserver/internal/ids"
	"github.com/jobboard/apiserver/internal/localstate"
)

// SessionCookie names the cookie that identifies a web session.
const SessionCookie = "jobfinder_sid"

const defaultSessionTTL = 7 * 24 * time.Hour

// SessionOptions configures a SessionRegistry.
type SessionOptions struct {
	// Redis keeps session state across restarts. Nil keeps it in memory.
	Redis *redis.Client
	// TTL bounds how long Redis keeps the state of an idle session.
	TTL time.Duration
	// SecureCookie marks the session cookie Secure.
	SecureCookie bool
	// Holder is passed to every auth.Holder the registry creates.
	Holder auth.Options
}

type sessionEntry struct {
	holder *auth.Holder
	seen   time.Time
}

// SessionRegistry maps web sessions to their auth holders.
type SessionRegistry struct {
	source auth.ClientSource
	logger *zap.Logger
	opts   SessionOptions
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry(source auth.ClientSource, logger *zap.Logger, opts SessionOptions) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultSessionTTL
	}
	if opts.Holder.Logger == nil {
		opts.Holder.Logger = logger.Named("auth")
	}
	return &SessionRegistry{
		source:   source,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
	}
}

// Holder returns the auth holder of the request's session. A request
// without a valid session cookie starts a new session and gets the cookie.
func (s *SessionRegistry) Holder(w http.ResponseWriter, r *http.Request) (*auth.Holder, error) {
	sid := ""
	if c, err := r.Cookie(SessionCookie); err == nil && ids.ValidSessionID(c.Value) {
		sid = c.Value
	}

	if sid != "" {
		s.mu.Lock()
		entry, ok := s.sessions[sid]
		if ok {
			entry.seen = s.now()
		}
		s.mu.Unlock()
		if ok {
			return entry.holder, nil
		}
	} else {
		sid = ids.NewSessionID()
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sid,
			Path:     "/",
			MaxAge:   int(s.opts.TTL / time.Second),
			HttpOnly: true,
			Secure:   s.opts.SecureCookie,
			SameSite: http.SameSiteLaxMode,
		})
	}

	holder := auth.NewHolder(s.source, s.store(sid), s.opts.Holder)
	if err := holder.Start(r.Context()); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[sid]; ok {
		existing.seen = s.now()
		return existing.holder, nil
	}
	s.sessions[sid] = &sessionEntry{holder: holder, seen: s.now()}
	return holder, nil
}

// Evict drops sessions not seen for longer than idle and returns how many
// were dropped. Redis-backed state survives and is hydrated again on the
// next request.
func (s *SessionRegistry) Evict(idle time.Duration) int {
	cutoff := s.now().Add(-idle)
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for sid, entry := range s.sessions {
		if entry.seen.Before(cutoff) {
			delete(s.sessions, sid)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of live sessions.
func (s *SessionRegistry) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionRegistry) store(sid string) localstate.Store {
	if s.opts.Redis != nil {
		return localstate.NewRedisStore(s.opts.Redis, sid, s.opts.TTL)
	}
	return localstate.NewMemoryStore()
}
