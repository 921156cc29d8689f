package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/classquiz/internal/domain"
	"github.com/victornm/classquiz/internal/errors"
)

const defaultTTL = 8 * time.Hour

type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Claims carries the caller identity. Subject holds the numeric user ID.
type Claims struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Resolver turns a bearer credential into an identity.
type Resolver struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
}

func NewResolver(c Config) *Resolver {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.Issuer))
	}

	return &Resolver{
		secret: []byte(c.Secret),
		issuer: c.Issuer,
		ttl:    ttl,
		parser: jwt.NewParser(opts...),
	}
}

// Issue signs a token for id. Token issuance belongs to the login service; this exists for
// tooling and tests.
func (r *Resolver) Issue(id domain.Identity, now time.Time) (string, error) {
	claims := &Claims{
		Username: id.Username,
		Role:     id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

// Resolve validates the credential, which may carry a "Bearer " prefix, and returns the caller.
func (r *Resolver) Resolve(_ context.Context, credential string) (*domain.Identity, error) {
	raw := strings.TrimSpace(credential)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return nil, unauthenticated(fmt.Errorf("missing credential"))
	}

	var c Claims
	if _, err := r.parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}); err != nil {
		return nil, unauthenticated(err)
	}

	uid, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || uid <= 0 {
		return nil, unauthenticated(fmt.Errorf("invalid subject %q", c.Subject))
	}

	return &domain.Identity{
		UserID:   uid,
		Username: c.Username,
		Role:     c.Role,
	}, nil
}

func unauthenticated(cause error) *errors.Error {
	return errors.New(errors.CodeUnauthenticated,
		errors.WithReason(errors.ReasonUnauthenticated),
		errors.WithMessagef("user not authenticated"),
		errors.WithCause(cause),
	)
}
