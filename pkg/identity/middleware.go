package identity

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrymomot/tenantkit/pkg/apierr"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
)

// Authenticator verifies and issues identity tokens signed with HS256.
type Authenticator struct {
	secret []byte
	issuer string
	parser *jwt.Parser
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator from cfg.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("%w: jwt secret must be at least 32 bytes", ErrInvalidSecret)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Authenticator{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		parser: jwt.NewParser(opts...),
		now:    time.Now,
	}, nil
}

// Parse verifies token and returns the identity it carries.
func (a *Authenticator) Parse(token string) (Identity, error) {
	var claims TokenClaims
	_, err := a.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: subject is missing", ErrInvalidToken)
	}
	return Identity{UserID: claims.Subject, OrgID: claims.OrgID, Role: claims.OrgRole}, nil
}

// Issue signs a token for id valid for ttl. audience may be empty.
func (a *Authenticator) Issue(id Identity, audience string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := TokenClaims{
		OrgID:   id.OrgID,
		OrgRole: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	skip   func(r *http.Request) bool
	logger *slog.Logger
}

// WithSkip bypasses authentication for requests matching fn.
func WithSkip(fn func(r *http.Request) bool) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.skip = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(o *middlewareOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Middleware authenticates bearer tokens and stores the Identity and tenant claims in the
// request context. Requests without a valid token are answered with 401 UNAUTHENTICATED.
func (a *Authenticator) Middleware(opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := &middlewareOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	log := o.logger.With(logger.Component("identity"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if o.skip != nil && o.skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			id, err := a.authenticate(r)
			if err != nil {
				log.DebugContext(r.Context(), "request not authenticated", logger.Error(err))
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				apierr.Write(w, apierr.New(http.StatusUnauthorized, apierr.CodeUnauthenticated,
					"A valid bearer token is required.").WithCause(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func (a *Authenticator) authenticate(r *http.Request) (Identity, error) {
	token, err := BearerToken(r)
	if err != nil {
		return Identity{}, err
	}
	return a.Parse(token)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}
