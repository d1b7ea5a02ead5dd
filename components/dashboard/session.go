package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie is the cookie holding the session token.
const SessionCookie = "auth_token"

var (
	// ErrMissingToken is returned when no session token was presented.
	ErrMissingToken = errors.New("dashboard: session token missing")
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("dashboard: session token invalid")
)

// Session is the authentication state of a client. Remember selects a
// persistent cookie over a browser-session one.
type Session struct {
	Token    string `json:"-"`
	Subject  string `json:"subject,omitempty"`
	Remember bool   `json:"remember"`
}

// Authenticated reports whether a verified token is present.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Viewer converts the session to the viewer a view is opened for.
func (s Session) Viewer(locale string) ViewerContext {
	return ViewerContext{Subject: s.Subject, Token: s.Token, Locale: locale}
}

// TokenVerifier validates a token issued by the external auth provider and
// returns its subject.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// PresenceVerifier accepts any non-empty token. Issuance and validation stay
// with the auth provider.
type PresenceVerifier struct{}

// Verify implements TokenVerifier.
func (PresenceVerifier) Verify(_ context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return "", nil
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTVerifier builds a verifier. An empty issuer accepts any issuer.
func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("dashboard: jwt secret is required")
	}
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Verify implements TokenVerifier.
func (v *JWTVerifier) Verify(_ context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, options...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Sign issues a token for subject. Used by tooling and tests; production
// tokens come from the auth provider.
func (v *JWTVerifier) Sign(subject string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("dashboard: sign token: %w", err)
	}
	return signed, nil
}

// SessionContext is the explicit session object handed to the gate and the
// views. Every change goes through SignIn or SignOut and is announced to
// subscribers; nothing reads ambient storage.
type SessionContext struct {
	verifier TokenVerifier

	mu        sync.Mutex
	current   Session
	listeners map[int]func(Session)
	next      int
}

// NewSessionContext builds an anonymous session.
func NewSessionContext(verifier TokenVerifier) *SessionContext {
	if verifier == nil {
		verifier = PresenceVerifier{}
	}
	return &SessionContext{verifier: verifier, listeners: map[int]func(Session){}}
}

// Restore verifies a token presented with a request. Invalid tokens leave the
// session anonymous without notifying subscribers.
func (s *SessionContext) Restore(ctx context.Context, token string) Session {
	subject, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return s.Current()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Session{Token: token, Subject: subject, Remember: s.current.Remember}
	return s.current
}

// Current returns the session state.
func (s *SessionContext) Current() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe registers a listener for session changes.
func (s *SessionContext) Subscribe(fn func(Session)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// SignIn verifies the token and makes it current.
func (s *SessionContext) SignIn(ctx context.Context, token string, remember bool) (Session, error) {
	subject, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return Session{}, err
	}
	return s.set(Session{Token: token, Subject: subject, Remember: remember}), nil
}

// SignOut clears the session.
func (s *SessionContext) SignOut() Session {
	return s.set(Session{})
}

func (s *SessionContext) set(next Session) Session {
	s.mu.Lock()
	s.current = next
	listeners := make([]func(Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(next)
	}
	return next
}

// ExtractToken picks the session token from the cookie value or a Bearer
// authorization header, the cookie winning.
func ExtractToken(cookie, authorization string) string {
	if token := strings.TrimSpace(cookie); token != "" {
		return token
	}
	const prefix = "bearer "
	if len(authorization) > len(prefix) && strings.EqualFold(authorization[:len(prefix)], prefix) {
		return strings.TrimSpace(authorization[len(prefix):])
	}
	return ""
}

// GateDecision is the outcome of a route check.
type GateDecision struct {
	Allow    bool   `json:"allow"`
	Redirect string `json:"redirect,omitempty"`
}

// SessionGate decides page access from the session state alone.
type SessionGate struct {
	public     map[string]struct{}
	publicOnly map[string]struct{}
	landing    string
	home       string
}

// NewSessionGate builds the default gate: "/", "/login", "/signup" and
// "/about" are public; the first three send signed-in users to the dashboard.
func NewSessionGate() *SessionGate {
	return &SessionGate{
		public:     pathSet("/", "/login", "/signup", "/about"),
		publicOnly: pathSet("/", "/login", "/signup"),
		landing:    "/",
		home:       "/dashboard",
	}
}

// Decide returns whether path may be served and where to go otherwise.
func (g *SessionGate) Decide(path string, authenticated bool) GateDecision {
	path = cleanPath(path)
	if _, ok := g.public[path]; ok {
		if _, only := g.publicOnly[path]; only && authenticated {
			return GateDecision{Redirect: g.home}
		}
		return GateDecision{Allow: true}
	}
	if !authenticated {
		return GateDecision{Redirect: g.landing}
	}
	return GateDecision{Allow: true}
}

func pathSet(paths ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		out[p] = struct{}{}
	}
	return out
}

func cleanPath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}
