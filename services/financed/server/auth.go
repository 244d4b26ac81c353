package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"campusfi/observability/logging"
)

// AuthOptions configures the mutation guard. Static tokens and HMAC signed
// JWTs may be combined.
type AuthOptions struct {
	Tokens         []string
	JWTSecret      string
	JWTIssuer      string
	AllowAnonymous bool
	ClockSkew      time.Duration
}

// Authenticator guards mutating routes with bearer credentials.
type Authenticator struct {
	tokens    [][]byte
	secret    []byte
	issuer    string
	skew      time.Duration
	anonymous bool
	logger    *slog.Logger
}

// NewAuthenticator builds the guard. With AllowAnonymous every request passes.
func NewAuthenticator(opts AuthOptions, logger *slog.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authenticator{
		secret:    []byte(strings.TrimSpace(opts.JWTSecret)),
		issuer:    strings.TrimSpace(opts.JWTIssuer),
		skew:      opts.ClockSkew,
		anonymous: opts.AllowAnonymous,
		logger:    logger,
	}
	if a.skew <= 0 {
		a.skew = 2 * time.Minute
	}
	for _, token := range opts.Tokens {
		if token = strings.TrimSpace(token); token != "" {
			a.tokens = append(a.tokens, []byte(token))
		}
	}
	if len(a.tokens) == 0 && len(a.secret) == 0 && !a.anonymous {
		return nil, fmt.Errorf("at least one bearer token or a jwt secret must be configured")
	}
	return a, nil
}

// Middleware rejects requests without a valid bearer credential.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			http.Error(w, "authentication unavailable", http.StatusInternalServerError)
			return
		}
		if a.anonymous {
			next.ServeHTTP(w, r)
			return
		}
		token := parseBearerToken(r.Header.Get("Authorization"))
		err := a.verify(token)
		if err == nil {
			next.ServeHTTP(w, r)
			return
		}
		a.logger.Warn("rejected unauthenticated request",
			slog.String("route", r.URL.Path),
			logging.MaskField("token", token),
			slog.String("reason", err.Error()))
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required", Kind: "Unauthorized"})
	})
}

func (a *Authenticator) verify(token string) error {
	if token == "" {
		return errors.New("missing bearer token")
	}
	if a.allowed(token) {
		return nil
	}
	if len(a.secret) == 0 {
		return errors.New("unknown token")
	}
	return a.verifyJWT(token)
}

func (a *Authenticator) allowed(token string) bool {
	provided := []byte(token)
	ok := false
	for _, expected := range a.tokens {
		if subtle.ConstantTimeCompare(provided, expected) == 1 {
			ok = true
		}
	}
	return ok
}

func (a *Authenticator) verifyJWT(tokenString string) error {
	opts := []jwt.ParserOption{jwt.WithLeeway(a.skew), jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("token invalid")
	}
	return nil
}

func parseBearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
