package shared

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// SessionManager reads cookie based sessions backed by Redis. Sessions are written by the
// login flow; this side only resolves which user a request belongs to.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
}

// Session holds per-request session data.
type Session struct {
	ID     string
	values map[string]string
	userID string
}

type sessionPayload struct {
	Values map[string]string `json:"values"`
	UserID string            `json:"user_id"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
	}
}

// Load returns the session referenced by the request cookie. A request without a cookie, or
// with a cookie whose session expired, yields an anonymous session.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return &Session{}, nil
		}
		return nil, err
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &Session{ID: cookie.Value}, nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}
	return &Session{ID: cookie.Value, values: stored.Values, userID: stored.UserID}, nil
}

// Store persists a session for the given user. The login flow owns session creation; Store
// exists for tooling and tests that need an authenticated request.
func (sm *SessionManager) Store(ctx context.Context, id string, userID int64) error {
	data, err := json.Marshal(sessionPayload{UserID: strconv.FormatInt(userID, 10)})
	if err != nil {
		return err
	}
	return sm.client.Set(ctx, sm.redisKey(id), data, sm.ttl).Err()
}

// NewSession builds an in-memory session bound to userID.
func NewSession(id, userID string) *Session {
	return &Session{ID: id, userID: userID}
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s == nil || s.values == nil {
		return ""
	}
	return s.values[key]
}

// User returns the current user ID.
func (s *Session) User() string {
	if s == nil {
		return ""
	}
	return s.userID
}

// UserID parses the session user as a numeric identifier.
func (s *Session) UserID() (int64, bool) {
	raw := strings.TrimSpace(s.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}
