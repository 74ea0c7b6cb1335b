package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// ticketTTL is how long a WebSocket ticket is valid.
	ticketTTL = 60 * time.Second

	// ticketBytes is the number of random bytes in a WebSocket ticket.
	ticketBytes = 32

	bearerPrefix = "Bearer "
)

// ctxKeySubject is the context key for the authenticated token subject.
const ctxKeySubject contextKey = "subject"

// ErrTokenInvalid is returned when a bearer token fails verification.
var ErrTokenInvalid = errors.New("invalid token")

// IssueToken creates a signed HS256 access token.
//
// Parameters:
//   - secret: Signing secret (api.jwt_secret)
//   - subject: Who the token is for, recorded in request logs
//   - ttl: Token lifetime
//
// Returns:
//   - string: The signed token
//   - error: If the secret or subject is empty, or signing fails
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	if subject == "" {
		return "", errors.New("token subject is empty")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies signature, expiry and subject of an access token.
func ParseToken(tokenString, secret string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

// authMiddleware requires a valid bearer token when a secret is configured.
// Without one the API is loopback-only (enforced by config validation) and
// requests pass through.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if !s.cfg.AuthEnabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			writeUnauthorized(w, "bearer token is required")
			return
		}

		claims, err := ParseToken(strings.TrimPrefix(header, bearerPrefix), s.cfg.JWTSecret)
		if err != nil {
			s.logger.Debug("rejected bearer token", "error", err)
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeySubject, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// subjectFromContext returns the authenticated subject, if any.
func subjectFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeySubject).(string)
	return v
}

// ticketStore holds pending WebSocket tickets. Tickets are single-use and
// expire after ticketTTL. Browsers cannot set headers on a WebSocket
// upgrade, so the bearer token is exchanged for a ticket first.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
	now     func() time.Time
}

type ticketEntry struct {
	subject   string
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{
		tickets: make(map[string]ticketEntry),
		now:     time.Now,
	}
}

// issue creates a ticket for subject and drops any expired ones.
func (t *ticketStore) issue(subject string) (string, error) {
	b := make([]byte, ticketBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating ticket: %w", err)
	}
	ticket := hex.EncodeToString(b)

	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for k, e := range t.tickets {
		if now.After(e.expiresAt) {
			delete(t.tickets, k)
		}
	}
	t.tickets[ticket] = ticketEntry{subject: subject, expiresAt: now.Add(ticketTTL)}
	return ticket, nil
}

// consume validates and removes a ticket.
func (t *ticketStore) consume(ticket string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return "", false
	}
	delete(t.tickets, ticket)
	if t.now().After(entry.expiresAt) {
		return "", false
	}
	return entry.subject, true
}

// handleWSTicket issues a single-use ticket for GET /ws.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.tickets.issue(subjectFromContext(r.Context()))
	if err != nil {
		s.logger.Error("issuing websocket ticket failed", "error", err)
		writeInternalError(w, "could not issue ticket")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// authorizeWebSocket checks the ticket query parameter of an upgrade request.
func (s *Server) authorizeWebSocket(w http.ResponseWriter, r *http.Request) bool {
	if !s.cfg.AuthEnabled() {
		return true
	}
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return false
	}
	if _, ok := s.tickets.consume(ticket); !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return false
	}
	return true
}
