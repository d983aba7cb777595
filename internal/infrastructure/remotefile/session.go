package remotefile

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/docservice/internal/domain/document"
	infraconfig "github.com/erp/docservice/internal/infrastructure/config"
	"github.com/erp/docservice/internal/infrastructure/logger"
	"github.com/erp/docservice/internal/infrastructure/telemetry"
)

// ReleaseOptions controls Release.
type ReleaseOptions struct {
	// ClearCache drops the cached session so the next Acquire logs in again.
	ClearCache bool
}

// SessionManager logs in to the remote file server and hands out sessions.
//
// Without caching every Acquire performs a login and every Release a logout.
// With caching one session is shared until it expires. The cache slot is a
// single entry guarded by mu, which is held across login so concurrent
// acquirers never log in twice. Borrowers are counted per token: a token
// that leaves the cache while still borrowed is logged out by its last
// Release.
type SessionManager struct {
	transport    *Transport
	username     string
	password     string
	sessionName  string
	cacheEnabled bool
	ttl          time.Duration
	now          func() time.Time

	mu      sync.Mutex
	cached  *document.Session
	refs    map[string]int
	retired map[string]bool
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		m.now = now
	}
}

// NewSessionManager creates a manager for the configured account.
func NewSessionManager(t *Transport, cfg *infraconfig.RemoteFileConfig, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		transport:    t,
		username:     cfg.Username,
		password:     cfg.Password,
		sessionName:  cfg.SessionName,
		cacheEnabled: cfg.SessionCacheEnabled,
		ttl:          cfg.SessionTTL,
		now:          time.Now,
		refs:         make(map[string]int),
		retired:      make(map[string]bool),
	}
	if m.sessionName == "" {
		m.sessionName = "FileStation"
	}
	if m.ttl <= 0 {
		m.ttl = 15 * time.Minute
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CacheEnabled reports whether sessions are shared between operations.
func (m *SessionManager) CacheEnabled() bool {
	return m.cacheEnabled
}

// Acquire returns a live session, reusing the cached one when allowed.
func (m *SessionManager) Acquire(ctx context.Context) (*document.Session, error) {
	if !m.cacheEnabled {
		s, err := m.login(ctx, false)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.refs[s.Token]++
		m.mu.Unlock()
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil {
		if !m.cached.Expired(m.now()) {
			m.refs[m.cached.Token]++
			logger.L(ctx, m.transport.logger).Debug("Reusing cached remote session",
				zap.Stringer("session", m.cached))
			return m.cached, nil
		}
		m.retireLocked(ctx, m.cached.Token)
		m.cached = nil
	}

	s, err := m.login(ctx, true)
	if err != nil {
		return nil, err
	}
	m.cached = s
	m.refs[s.Token] = 1
	return s, nil
}

// Release gives a session back. Non-cached sessions are logged out. A
// release of an unknown or already released session only logs a warning.
// Logout failures are logged and never returned.
func (m *SessionManager) Release(ctx context.Context, s *document.Session, opts ReleaseOptions) {
	log := logger.L(ctx, m.transport.logger)
	if s == nil || s.Token == "" {
		log.Warn("Release called without a session")
		return
	}

	m.mu.Lock()
	n, known := m.refs[s.Token]
	if !known {
		m.mu.Unlock()
		log.Warn("Release of unknown or already released remote session", zap.Stringer("session", s))
		return
	}

	isCached := m.cached != nil && m.cached.Token == s.Token
	if n == 0 {
		// Idle cached session: nothing is borrowed, only a cache clear applies.
		if !(opts.ClearCache && isCached) {
			m.mu.Unlock()
			log.Warn("Release of already released remote session", zap.Stringer("session", s))
			return
		}
		m.cached = nil
		delete(m.refs, s.Token)
		m.mu.Unlock()
		m.logout(ctx, s.Token)
		return
	}

	if opts.ClearCache && isCached {
		m.cached = nil
		m.retired[s.Token] = true
	}

	logout := false
	n--
	if n > 0 {
		m.refs[s.Token] = n
	} else {
		delete(m.refs, s.Token)
		if !s.CacheEligible || m.retired[s.Token] {
			delete(m.retired, s.Token)
			logout = true
		} else {
			// Still cached and idle: keep it known for the next borrower.
			m.refs[s.Token] = 0
		}
	}
	m.mu.Unlock()

	if logout {
		m.logout(ctx, s.Token)
	}
}

// Close logs out the cached session. Borrowed sessions are logged out by
// their last Release.
func (m *SessionManager) Close(ctx context.Context) {
	m.mu.Lock()
	cached := m.cached
	m.cached = nil
	logout := false
	if cached != nil {
		if m.refs[cached.Token] == 0 {
			delete(m.refs, cached.Token)
			logout = true
		} else {
			m.retired[cached.Token] = true
		}
	}
	m.mu.Unlock()

	if logout {
		m.logout(ctx, cached.Token)
	}
}

// retireLocked drops an expired cached token. Caller holds mu.
func (m *SessionManager) retireLocked(ctx context.Context, token string) {
	if m.refs[token] > 0 {
		m.retired[token] = true
		return
	}
	delete(m.refs, token)
	m.logout(ctx, token)
}

type loginData struct {
	SID string `json:"sid"`
}

func (m *SessionManager) login(ctx context.Context, cacheEligible bool) (*document.Session, error) {
	const op = "remote login"
	log := logger.L(ctx, m.transport.logger)

	ctx, span := telemetry.StartClientSpan(ctx, "dsm", "login")
	defer span.End()

	log.Debug("Logging in to remote file server",
		zap.String("account", m.username),
		logger.Masked("password", m.password),
	)

	resp, err := m.transport.do(ctx, request{
		method:   http.MethodPost,
		endpoint: m.transport.authURL,
		params: url.Values{
			"api":     {apiAuth},
			"version": {versionAuth},
			"method":  {"login"},
			"account": {m.username},
			"passwd":  {m.password},
			"session": {m.sessionName},
			"format":  {"sid"},
		},
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if isTimeout(err) {
			return nil, document.NewAuthError(op, "remote file server did not answer in time", err)
		}
		return nil, document.NewAuthError(op, "remote file server unreachable", err)
	}

	var data loginData
	if err := decode(resp, &data); err != nil {
		telemetry.RecordError(span, err)
		log.Warn("Remote login rejected", zap.Error(err))
		return nil, document.NewAuthError(op, "login rejected", err)
	}
	if data.SID == "" {
		return nil, document.NewAuthError(op, "login returned no session id", nil)
	}

	now := m.now()
	s := &document.Session{Token: data.SID, IssuedAt: now, CacheEligible: cacheEligible}
	if cacheEligible {
		exp := now.Add(m.ttl)
		s.ExpiresAt = &exp
	}

	log.Info("Remote session acquired", zap.Stringer("session", s), zap.Bool("cached", cacheEligible))
	return s, nil
}

func (m *SessionManager) logout(ctx context.Context, token string) {
	log := logger.L(ctx, m.transport.logger).With(logger.Masked("sid", token))

	// Logout runs on the way out of operations whose context may already
	// be cancelled.
	ctx = context.WithoutCancel(ctx)
	ctx, span := telemetry.StartClientSpan(ctx, "dsm", "logout")
	defer span.End()

	resp, err := m.transport.do(ctx, request{
		method:   http.MethodGet,
		endpoint: m.transport.authURL,
		params: url.Values{
			"api":     {apiAuth},
			"version": {versionAuth},
			"method":  {"logout"},
			"session": {m.sessionName},
		},
		sid: token,
	})
	if err == nil {
		err = decode(resp, nil)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		log.Warn("Remote logout failed", zap.Error(err))
		return
	}
	log.Debug("Remote session released")
}
